// Package logx provides structured, component-scoped logging for the orchestrator.
package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu           sync.RWMutex
	output       io.Writer = os.Stderr
	debugEnabled bool
)

func init() {
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugEnabled = true
	}
}

// SetOutput redirects all loggers to w. Used by the CLI to tee logs to a file
// and by tests to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetDebug toggles debug-level logging at runtime.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	debugEnabled = enabled
}

// Logger writes leveled, component-tagged log lines.
type Logger struct {
	component string
}

// NewLogger creates a logger scoped to a component or agent ID.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the component tag this logger was created with.
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a new logger with a different component tag.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) log(level Level, format string, args ...any) {
	mu.RLock()
	w := output
	mu.RUnlock()

	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] %s", level, l.component, msg)
	log.New(w, "", log.LstdFlags).Print(line)
}

// Debug logs a debug-level message when debug logging is enabled.
func (l *Logger) Debug(format string, args ...any) {
	mu.RLock()
	enabled := debugEnabled
	mu.RUnlock()
	if !enabled {
		return
	}
	l.log(LevelDebug, format, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error-level message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}
