/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue holds the ordered list of tracks waiting to air.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrIndexOutOfRange is returned by Move and Remove for bad positions.
var ErrIndexOutOfRange = errors.New("queue: index out of range")

// Entry is one pending track.
type Entry struct {
	ID         int64     `json:"id"`
	Reference  string    `json:"file"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is a mutex-guarded FIFO that supports reordering.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64

	onChange func()
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{nextID: 1}
}

// OnChange registers fn to run after every mutation, outside the lock.
func (q *Queue) OnChange(fn func()) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// Enqueue appends ref and returns the new entry.
func (q *Queue) Enqueue(ref string) Entry {
	q.mu.Lock()
	e := Entry{ID: q.nextID, Reference: ref, EnqueuedAt: time.Now().UTC()}
	q.nextID++
	q.entries = append(q.entries, e)
	fn := q.onChange
	q.mu.Unlock()

	if fn != nil {
		fn()
	}
	return e
}

// List returns a snapshot in play order.
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len reports the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Move relocates the entry at from so that it ends up at index to.
func (q *Queue) Move(from, to int) error {
	q.mu.Lock()
	n := len(q.entries)
	if from < 0 || from >= n || to < 0 || to >= n {
		q.mu.Unlock()
		return fmt.Errorf("%w: move %d -> %d with %d entries", ErrIndexOutOfRange, from, to, n)
	}
	if from != to {
		e := q.entries[from]
		q.entries = append(q.entries[:from], q.entries[from+1:]...)
		q.entries = append(q.entries[:to], append([]Entry{e}, q.entries[to:]...)...)
	}
	fn := q.onChange
	q.mu.Unlock()

	if fn != nil && from != to {
		fn()
	}
	return nil
}

// Remove deletes the entry at index and returns it.
func (q *Queue) Remove(index int) (Entry, error) {
	q.mu.Lock()
	if index < 0 || index >= len(q.entries) {
		n := len(q.entries)
		q.mu.Unlock()
		return Entry{}, fmt.Errorf("%w: remove %d with %d entries", ErrIndexOutOfRange, index, n)
	}
	e := q.entries[index]
	q.entries = append(q.entries[:index], q.entries[index+1:]...)
	fn := q.onChange
	q.mu.Unlock()

	if fn != nil {
		fn()
	}
	return e, nil
}

// DequeueNext pops the head of the queue.
func (q *Queue) DequeueNext() (Entry, bool) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return Entry{}, false
	}
	e := q.entries[0]
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	fn := q.onChange
	q.mu.Unlock()

	if fn != nil {
		fn()
	}
	return e, true
}
