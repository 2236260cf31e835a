package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// LogEntry is one recorded log call.
type LogEntry struct {
	Level         string
	Msg           string
	KeysAndValues []any
}

// Value returns the value logged under key, if any.
func (e LogEntry) Value(key string) (any, bool) {
	for i := 0; i+1 < len(e.KeysAndValues); i += 2 {
		if k, ok := e.KeysAndValues[i].(string); ok && k == key {
			return e.KeysAndValues[i+1], true
		}
	}
	return nil, false
}

// RecordingLogger captures log calls for assertions.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewRecordingLogger creates an empty logger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) Debug(msg string, kv ...any) { l.record("debug", msg, kv) }
func (l *RecordingLogger) Info(msg string, kv ...any) { l.record("info", msg, kv) }
func (l *RecordingLogger) Warn(msg string, kv ...any) { l.record("warn", msg, kv) }
func (l *RecordingLogger) Error(msg string, kv ...any) { l.record("error", msg, kv) }

func (l *RecordingLogger) record(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, KeysAndValues: kv})
}

// Entries returns a copy of every recorded entry.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Find returns the entries whose message contains substr.
func (l *RecordingLogger) Find(substr string) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if strings.Contains(e.Msg, substr) {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether a message containing substr was logged at level.
func (l *RecordingLogger) Has(level, substr string) bool {
	for _, e := range l.Find(substr) {
		if e.Level == level {
			return true
		}
	}
	return false
}

// String renders all entries, one per line.
func (l *RecordingLogger) String() string {
	var sb strings.Builder
	for _, e := range l.Entries() {
		fmt.Fprintf(&sb, "%s %s %v\n", e.Level, e.Msg, e.KeysAndValues)
	}
	return sb.String()
}
