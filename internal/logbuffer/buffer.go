/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log lines in memory so the
// control API can serve them without shell access to the host.
package logbuffer

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, overwriting the oldest once full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Len reports how many entries are held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Query filters the buffer.
type Query struct {
	Level     string // exact level match
	Component string // exact component match
	Track     string // matches the "track" field
	Search    string // case-insensitive substring of the message
	Limit     int    // 0 = all
}

// Find returns matching entries, newest first.
func (b *Buffer) Find(q Query) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	search := strings.ToLower(q.Search)
	out := make([]LogEntry, 0)
	for i := b.count - 1; i >= 0; i-- {
		idx := i
		if b.count == b.capacity {
			idx = (b.head + i) % b.capacity
		}
		e := b.entries[idx]

		if q.Level != "" && e.Level != q.Level {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		if q.Track != "" {
			if track, _ := e.Fields["track"].(string); track != q.Track {
				continue
			}
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Message), search) {
			continue
		}

		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

// Writer adapts the buffer to io.Writer for zerolog's JSON output.
type Writer struct {
	buffer *Buffer
}

// NewWriter returns a writer feeding buffer.
func NewWriter(buffer *Buffer) *Writer {
	return &Writer{buffer: buffer}
}

// Write parses one zerolog JSON line. Lines that do not parse are dropped.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}

	entry := LogEntry{Timestamp: time.Now(), Fields: make(map[string]interface{})}
	if lvl, ok := raw["level"].(string); ok {
		entry.Level = lvl
		delete(raw, "level")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}
	if comp, ok := raw["component"].(string); ok {
		entry.Component = comp
		delete(raw, "component")
	}
	if ts, ok := raw["time"].(float64); ok {
		entry.Timestamp = time.Unix(int64(ts), 0)
	}
	delete(raw, "time")
	for k, v := range raw {
		entry.Fields[k] = v
	}

	w.buffer.Add(entry)
	return len(p), nil
}

var _ io.Writer = (*Writer)(nil)
