// Package logger is the diagnostic trail for the transfer subsystem.
// Lines are appended to a single log file as
//
//	[2006-01-02 15:04:05] [LEVEL] message
//
// Writes are best-effort: a failing or uninitialized sink never
// propagates an error to the caller.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

var (
	mu      sync.Mutex
	sink    *os.File
	debugOn bool
)

// InitLogging opens (creating if needed) the log file at path and
// enables debug lines when debug is true. It replaces any previously
// configured sink.
func InitLogging(debug bool, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if sink != nil {
		_ = sink.Close()
	}
	sink = f
	debugOn = debug

	return nil
}

// Close flushes and closes the log file. Logging calls after Close are
// no-ops.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
}

// Debugf logs a debug line. Suppressed unless debug logging was enabled.
func Debugf(format string, args ...any) {
	write("DEBUG", format, args...)
}

// Infof logs an informational line.
func Infof(format string, args ...any) {
	write("INFO", format, args...)
}

// Warnf logs a warning line.
func Warnf(format string, args ...any) {
	write("WARN", format, args...)
}

// Errorf logs an error line.
func Errorf(format string, args ...any) {
	write("ERROR", format, args...)
}

func write(level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if sink == nil {
		return
	}
	if level == "DEBUG" && !debugOn {
		return
	}

	// Write failures are swallowed: diagnostics must never affect the
	// outcome of the operation being logged.
	_, _ = fmt.Fprintf(sink, "[%s] [%s] %s\n",
		time.Now().Format(timestampLayout), level, fmt.Sprintf(format, args...))
}
