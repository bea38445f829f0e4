// Package audit implements the append-only JSONL audit trail. Every
// tool invocation attempt produces exactly one record; records are
// never mutated or deleted, and writes are synced so a crash cannot
// lose acknowledged entries.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one audit log entry.
type Record struct {
	TS       time.Time      `json:"ts"`
	Question string         `json:"question"`
	Tool     string         `json:"tool"`
	ToolArgs map[string]any `json:"tool_args"`
	ToolOut  string         `json:"tool_out"`
	Error    string         `json:"error"`
}

// Logger appends records to a line-delimited JSON file. Appends are
// serialized by a mutex; concurrent requests interleave whole lines,
// never partial ones.
type Logger struct {
	mu sync.Mutex
	f  *os.File
}

// Open opens (or creates) the audit log for appending.
func Open(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	return &Logger{f: f}, nil
}

// Append writes one record as a single JSON line and syncs the file.
// A zero TS is stamped with the current UTC time.
func (l *Logger) Append(rec Record) error {
	if rec.TS.IsZero() {
		rec.TS = time.Now().UTC()
	}
	if rec.ToolArgs == nil {
		rec.ToolArgs = map[string]any{}
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(line); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Summarize renders v as compact JSON bounded to maxChars characters
// for inclusion in a record's ToolOut field. Non-serializable values
// fall back to fmt formatting.
func Summarize(v any, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 800
	}
	var s string
	if data, err := json.Marshal(v); err == nil {
		s = string(data)
	} else {
		s = fmt.Sprintf("%v", v)
	}
	if len(s) > maxChars {
		return s[:maxChars] + "…"
	}
	return s
}
