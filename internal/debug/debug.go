package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/standardbeagle/rmodel/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// QuietMode suppresses all debug output, used when stdout carries machine-readable output
var QuietMode = false

// runtimeEnabled is set from configuration (debug { enabled true })
var runtimeEnabled atomic.Bool

// debugOutput is the writer for debug output (defaults to nil, meaning no output)
var debugOutput io.Writer

// debugFile holds the open file handle if debug output goes to a file
var debugFile *os.File

// debugMutex protects access to debug output
var debugMutex sync.Mutex

// SetQuietMode enables quiet mode which suppresses all debug output
func SetQuietMode(enabled bool) {
	QuietMode = enabled
}

// SetEnabled turns debug logging on or off at runtime
func SetEnabled(enabled bool) {
	runtimeEnabled.Store(enabled)
}

// SetDebugOutput sets a custom writer for debug output.
// Pass nil to disable debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile initializes debug logging to a timestamped file in the temp directory.
// Returns the path to the log file, or an error if initialization fails.
// Call CloseDebugLog when done to ensure the file is properly closed.
func InitDebugLogFile() (string, error) {
	logDir := filepath.Join(os.TempDir(), "rmodel-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))
	if err := InitDebugLogFileAt(logPath); err != nil {
		return "", err
	}
	return logPath, nil
}

// InitDebugLogFileAt directs debug output to the given file, appending to it.
func InitDebugLogFileAt(logPath string) error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create debug log file: %w", err)
	}

	if debugFile != nil {
		_ = debugFile.Close()
	}
	debugFile = file
	debugOutput = file
	return nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// IsDebugEnabled returns true if debug mode is enabled and we're not in quiet mode
func IsDebugEnabled() bool {
	if QuietMode {
		return false
	}

	// Check build flag first
	if EnableDebug == "true" {
		return true
	}

	if runtimeEnabled.Load() {
		return true
	}

	// Allow runtime override via environment variable
	if os.Getenv("DEBUG") == "1" || os.Getenv("DEBUG") == "true" {
		return true
	}

	return false
}

// getDebugWriter returns the writer for debug output, or nil if none is configured
func getDebugWriter() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Printf prints debug information only when debug mode is enabled and output is configured
func Printf(format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG] "+format, args...)
}

// Log provides structured debug logging with component names
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format, append([]interface{}{component}, args...)...)
}

// LogTransaction provides debug logging for transaction commits and aborts
func LogTransaction(format string, args ...interface{}) {
	Log("TX", format, args...)
}

// LogIndex provides debug logging for tag index maintenance
func LogIndex(format string, args ...interface{}) {
	Log("INDEX", format, args...)
}

// LogLifetime provides debug logging for lifetime termination
func LogLifetime(format string, args ...interface{}) {
	Log("LIFETIME", format, args...)
}

// LogReaction provides debug logging for reaction dispatch
func LogReaction(format string, args ...interface{}) {
	Log("REACTION", format, args...)
}

// LogMirror provides debug logging for the filesystem mirror
func LogMirror(format string, args ...interface{}) {
	Log("MIRROR", format, args...)
}

// CatastrophicError records an error that indicates broken internal state.
// Unlike the other helpers it is written whenever an output is configured,
// regardless of debug mode, unless quiet mode is on.
func CatastrophicError(format string, args ...interface{}) {
	if QuietMode {
		return
	}
	w := getDebugWriter()
	if w != nil {
		fmt.Fprintf(w, "[CATASTROPHIC] "+format, args...)
	}
}
