// Package logger is the debug-gated file sink the CLI injects into the
// coordinator (spec.md §9: "Logging is a process-wide sink initialized at
// startup by the embedder — the core takes it as an injected interface,
// not a global."). The gating and format match the corpus's logging
// package; unlike it, state lives on a value instead of package globals
// so the core never reaches for a process-wide logger directly.
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Logger gates debug/info/warn/error lines behind a single enabled flag
// and writes them to an append-only file.
type Logger struct {
	enabled bool
	sink    *log.Logger
	file    *os.File
}

// New creates a Logger. When enabled is false, or logPath is empty, every
// call is a no-op. Call Close when done.
func New(enabled bool, logPath string) (*Logger, error) {
	l := &Logger{enabled: enabled}

	if !enabled || logPath == "" {
		return l, nil
	}

	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logger: create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}

	l.file = f
	l.sink = log.New(f, "", log.Ldate|log.Ltime|log.Lshortfile)

	return l, nil
}

// Close closes the underlying log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}

	return nil
}

func (l *Logger) Infof(format string, v ...any) {
	if l.enabled && l.sink != nil {
		l.sink.Printf("[INFO] "+format, v...)
	}
}

func (l *Logger) Errorf(format string, v ...any) {
	if l.enabled && l.sink != nil {
		l.sink.Printf("[ERROR] "+format, v...)
	}
}

func (l *Logger) Debugf(format string, v ...any) {
	if l.enabled && l.sink != nil {
		l.sink.Printf("[DEBUG] "+format, v...)
	}
}

func (l *Logger) Warnf(format string, v ...any) {
	if l.enabled && l.sink != nil {
		l.sink.Printf("[WARNING] "+format, v...)
	}
}
