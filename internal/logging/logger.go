package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Logger provides leveled logging with redaction support. Output goes to
// stderr by default so secret values written to stdout by the CLI are never
// interleaved with diagnostics.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	debug   bool
	noColor bool
}

// New creates a logger writing to stderr.
func New(debug, noColor bool) *Logger {
	return &Logger{out: os.Stderr, debug: debug, noColor: noColor}
}

// NewWithWriter creates a logger writing to w, used by tests to capture
// output.
func NewWithWriter(w io.Writer, debug bool) *Logger {
	return &Logger{out: w, debug: debug, noColor: true}
}

func (l *Logger) printf(color, prefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.noColor || color == "" {
		fmt.Fprintf(l.out, "%s %s\n", prefix, msg)
		return
	}
	fmt.Fprintf(l.out, "\033[%sm%s\033[0m %s\n", color, prefix, msg)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.printf("32", "✓", format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.printf("33", "⚠", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.printf("31", "✗", format, args...)
}

// Debug logs a debug message if debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.printf("36", "[DEBUG]", format, args...)
}

// Secret wraps a value that must never appear in logs. Both String and
// GoString render as [REDACTED], so %s, %v and %#v are all safe.
type Secret string

func (s Secret) String() string   { return "[REDACTED]" }
func (s Secret) GoString() string { return "[REDACTED]" }

// Redact replaces occurrences of the given sensitive values in s. Values of
// three characters or fewer are left alone so common short substrings do not
// shred the message.
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if len(secret) > 3 {
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
