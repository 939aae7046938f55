package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testConfig = `
model {
    name "cli-test"
    history_size 4
}
tags {
    tag "editors" {
        marker "tags" "editor"
    }
    tag "go" {
        glob "fs/**/*.go"
    }
}
`

const editorScript = `
name = "editor lifecycle"

[[transaction]]
label = "open"
  [[transaction.op]]
  op = "put"
  path = "a/b/c/edt1"
  value = { title = "main.go", tags = ["editor"] }

[[transaction]]
label = "rename"
  [[transaction.op]]
  op = "put"
  path = "a/b/c/edt1/title"
  value = "util.go"

[[transaction]]
label = "rollback"
fail = true
  [[transaction.op]]
  op = "delete"
  path = "a/b/c/edt1"
`

// setupProject writes a config and a script into a fresh directory and points
// HOME at an empty one so no global config leaks in
func setupProject(t *testing.T) (dir, scriptPath string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rmodel.kdl"), []byte(testConfig), 0o644))
	scriptPath = filepath.Join(dir, "editor.toml")
	require.NoError(t, os.WriteFile(scriptPath, []byte(editorScript), 0o644))
	return dir, scriptPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"rmodel"}, args...))
	return out.String(), err
}

func TestReplay(t *testing.T) {
	dir, script := setupProject(t)

	out, err := run(t, "-c", dir, "replay", script)
	require.NoError(t, err)

	assert.Contains(t, out, `step 1 "open": committed revision 1`)
	assert.Contains(t, out, `step 2 "rename": committed revision 2`)
	assert.Contains(t, out, `step 3 "rollback": aborted as expected`)
	assert.Contains(t, out, "tag editors marker(tags=\"editor\"): 1 members, reaction fired 1 times")
	assert.Contains(t, out, "  a/b/c/edt1\n")
	assert.Contains(t, out, "tag go glob(fs/**/*.go): 0 members")
}

func TestReplay_JSON(t *testing.T) {
	dir, script := setupProject(t)

	out, err := run(t, "-c", dir, "replay", "--json", "--tag", "editors", script)
	require.NoError(t, err)

	var report ReplayReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Steps, 3)
	assert.False(t, report.Steps[2].Committed)
	assert.True(t, report.Steps[2].Expected)

	require.Len(t, report.Tags, 1)
	assert.Equal(t, "editors", report.Tags[0].Name)
	assert.Equal(t, []string{"a/b/c/edt1"}, report.Tags[0].Members)
	assert.Equal(t, "cli-test", report.Stats.Name)
	assert.Equal(t, uint64(2), report.Stats.Revision)
	assert.Equal(t, int64(1), report.Stats.Aborted)
}

func TestReplay_UnknownTagSuggests(t *testing.T) {
	dir, script := setupProject(t)

	_, err := run(t, "-c", dir, "replay", "--tag", "editor", script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown tag "editor"`)
	assert.Contains(t, err.Error(), "did you mean editors")
}

func TestReplay_MissingScript(t *testing.T) {
	dir, _ := setupProject(t)

	_, err := run(t, "-c", dir, "replay", filepath.Join(dir, "nope.toml"))
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	dir, script := setupProject(t)

	out, err := run(t, "-c", dir, "get", "--json", script, "a/b/c/edt1")
	require.NoError(t, err)

	var value map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &value))
	assert.Equal(t, "util.go", value["title"])
	assert.Equal(t, []interface{}{"editor"}, value["tags"])

	_, err = run(t, "-c", dir, "get", script, "a/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing at a/missing")
}

func TestTags(t *testing.T) {
	dir, _ := setupProject(t)

	out, err := run(t, "-c", dir, "tags")
	require.NoError(t, err)
	assert.Equal(t, "editors\tmarker(tags=\"editor\")\ngo\tglob(fs/**/*.go)\n", out)
}

func TestMirrorOnce(t *testing.T) {
	dir, _ := setupProject(t)
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "pkg", "lib.go"), []byte("package pkg\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "README.md"), []byte("# src\n"), 0o644))

	out, err := run(t, "-c", dir, "mirror", "--once", "--tag", "go", src)
	require.NoError(t, err)
	assert.Equal(t, "tag go: 1 members\n  fs/pkg/lib.go\n", out)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rmodel ")
}

func TestSuggest(t *testing.T) {
	known := []string{"editors", "viewers", "go-sources"}
	s := suggest("editor", known)
	require.NotEmpty(t, s)
	assert.Equal(t, "editors", s[0])
	assert.Empty(t, suggest("zzz", known))
	assert.Empty(t, suggest("x", nil))
}
