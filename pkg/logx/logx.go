// Package logx provides leveled, component-tagged logging for the agent core.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes timestamped, component-tagged log lines.
// Loggers are constructor-injected collaborators; there is no ambient
// global logger to look up.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	component string
	debug     bool
}

// NewLogger creates a logger for the named component writing to stderr.
// Debug output is enabled when the DEBUG environment variable is set.
func NewLogger(component string) *Logger {
	return &Logger{
		out:       os.Stderr,
		component: component,
		debug:     os.Getenv("DEBUG") != "",
	}
}

// WithComponent returns a logger sharing this logger's output and debug
// setting but tagged with a different component name.
func (l *Logger) WithComponent(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		out:       l.out,
		component: component,
		debug:     l.debug,
	}
}

// SetOutput redirects log output, primarily for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// SetDebug toggles debug-level output.
func (l *Logger) SetDebug(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = enabled
}

// Component returns the component name this logger is tagged with.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	// Keep log lines single-line so they stay grep-able.
	msg = strings.ReplaceAll(msg, "\n", " ")

	fmt.Fprintf(l.out, "%s [%s] %-5s %s\n",
		time.Now().UTC().Format(time.RFC3339), l.component, level, msg)
}

// Debug logs at DEBUG level when debug output is enabled.
func (l *Logger) Debug(format string, args ...any) {
	l.mu.Lock()
	enabled := l.debug
	l.mu.Unlock()
	if enabled {
		l.log(LevelDebug, format, args...)
	}
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}
