package testutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// LogEntry is one recorded log call.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// TestLogger forwards every log call to t.Log and records it for assertions.
type TestLogger struct {
	t       testing.TB
	mu      sync.Mutex
	entries []LogEntry
}

// NewTestLogger creates a logger bound to t.
func NewTestLogger(t testing.TB) *TestLogger {
	return &TestLogger{t: t}
}

func (l *TestLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args) }
func (l *TestLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args) }
func (l *TestLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args) }
func (l *TestLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args) }

func (l *TestLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s\t%s", level, msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, "\t%v=%v", args[i], args[i+1])
	}
	l.t.Log(b.String())
}

// Entries returns the recorded entries at level, or all entries if level is empty.
func (l *TestLogger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogEntry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Logged reports whether a message containing msg was logged at level.
func (l *TestLogger) Logged(level, msg string) bool {
	for _, e := range l.Entries(level) {
		if strings.Contains(e.Msg, msg) {
			return true
		}
	}
	return false
}
