package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveAndRestoreState saves the debug package state and returns a cleanup function
func saveAndRestoreState() func() {
	originalDebug := EnableDebug
	originalQuiet := QuietMode
	originalRuntime := runtimeEnabled.Load()
	originalOutput := debugOutput
	originalFile := debugFile
	return func() {
		EnableDebug = originalDebug
		QuietMode = originalQuiet
		runtimeEnabled.Store(originalRuntime)
		debugOutput = originalOutput
		debugFile = originalFile
	}
}

func TestSetQuietMode(t *testing.T) {
	defer saveAndRestoreState()()

	SetQuietMode(true)
	assert.True(t, QuietMode)

	SetQuietMode(false)
	assert.False(t, QuietMode)
}

func TestIsDebugEnabled(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	EnableDebug = "false"
	QuietMode = false
	assert.False(t, IsDebugEnabled())

	EnableDebug = "true"
	assert.True(t, IsDebugEnabled())

	// Invalid value defaults to false
	EnableDebug = "invalid"
	assert.False(t, IsDebugEnabled())

	SetEnabled(true)
	assert.True(t, IsDebugEnabled())

	QuietMode = true
	assert.False(t, IsDebugEnabled(), "quiet mode wins over every other switch")
}

func TestIsDebugEnabled_Env(t *testing.T) {
	defer saveAndRestoreState()()
	EnableDebug = "false"
	QuietMode = false

	t.Setenv("DEBUG", "1")
	assert.True(t, IsDebugEnabled())
}

func TestLog(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	QuietMode = false

	Log("TEST", "Hello %s", "World")

	output := buf.String()
	assert.Contains(t, output, "[DEBUG:TEST]")
	assert.Contains(t, output, "Hello World")
}

func TestLog_QuietMode(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	QuietMode = true

	Log("TEST", "Hello %s", "World")
	CatastrophicError("broken %d", 1)

	assert.Empty(t, buf.String())
}

func TestComponentHelpers(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	QuietMode = false

	LogTransaction("commit %d\n", 1)
	LogIndex("index\n")
	LogLifetime("lifetime\n")
	LogReaction("reaction\n")
	LogMirror("mirror\n")

	output := buf.String()
	for _, tag := range []string{"[DEBUG:TX]", "[DEBUG:INDEX]", "[DEBUG:LIFETIME]", "[DEBUG:REACTION]", "[DEBUG:MIRROR]"} {
		assert.Contains(t, output, tag)
	}
}

func TestNoOutputWhenDisabled(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "false"
	SetEnabled(false)
	QuietMode = false

	Printf("should not appear")
	Log("TEST", "should not appear")

	assert.Empty(t, buf.String())
}

func TestInitDebugLogFileAt(t *testing.T) {
	defer saveAndRestoreState()()

	logPath := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, InitDebugLogFileAt(logPath))

	EnableDebug = "true"
	QuietMode = false
	LogTransaction("written to file\n")
	require.NoError(t, CloseDebugLog())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	// Closing twice is harmless
	assert.NoError(t, CloseDebugLog())
}
