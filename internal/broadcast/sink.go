/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSinkClosed is returned by Pump once the broadcaster has dropped the sink.
var ErrSinkClosed = errors.New("broadcast: sink closed")

// ListenerInfo describes a connected sink.
type ListenerInfo struct {
	ID          string    `json:"id"`
	Transport   string    `json:"transport"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	Bytes       uint64    `json:"bytes"`
	Track       string    `json:"track,omitempty"`
	Offset      uint64    `json:"offset"`
}

// Sink is one listener's outbound queue. The broadcaster fills it; the
// connection's own goroutine drains it through Pump.
type Sink struct {
	info ListenerInfo
	ch   chan []byte
	done chan struct{}
	once sync.Once

	written atomic.Uint64
}

func newSink(info ListenerInfo, buffer int) *Sink {
	return &Sink{
		info: info,
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// ID returns the sink's identifier.
func (s *Sink) ID() string {
	return s.info.ID
}

// Done is closed when the sink has been dropped.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// offer queues b without blocking. False means the sink is closed or full.
func (s *Sink) offer(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- b:
		return true
	default:
		return false
	}
}

func (s *Sink) close() {
	s.once.Do(func() { close(s.done) })
}

// Pump writes queued blocks with write until ctx ends, the sink is dropped
// or write fails.
func (s *Sink) Pump(ctx context.Context, write func([]byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSinkClosed
		case b := <-s.ch:
			if err := write(b); err != nil {
				return err
			}
			s.written.Add(uint64(len(b)))
		}
	}
}
