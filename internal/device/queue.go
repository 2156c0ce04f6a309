/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package device paces playback against a real audio output.
package device

import (
	"bytes"
	"io"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/friendsincode/wavecast/internal/codec"
)

// blockQueue is a beep.Streamer that plays queued PCM blocks back to back
// and emits silence while empty, so the output never underruns into clicks.
// Each block's done channel is closed once the mixer has pulled its last
// sample.
type blockQueue struct {
	mu      sync.Mutex
	pending []queuedBlock
}

type queuedBlock struct {
	streamer beep.Streamer
	done     chan struct{}
}

// decodeBlock wraps raw PCM in a canonical header and lets the wav decoder
// turn it into float samples.
func decodeBlock(block []byte, format codec.Format) (beep.StreamSeekCloser, error) {
	header := codec.Header(format, uint32(len(block)))
	streamer, _, err := wav.Decode(io.MultiReader(bytes.NewReader(header), bytes.NewReader(block)))
	return streamer, err
}

// push appends s and returns the channel closed when it finishes.
func (q *blockQueue) push(s beep.Streamer) <-chan struct{} {
	done := make(chan struct{})
	q.mu.Lock()
	q.pending = append(q.pending, queuedBlock{streamer: s, done: done})
	q.mu.Unlock()
	return done
}

// clear drops every queued block, releasing anyone waiting on them.
func (q *blockQueue) clear() {
	q.mu.Lock()
	for _, b := range q.pending {
		close(b.done)
	}
	q.pending = nil
	q.mu.Unlock()
}

func (q *blockQueue) Stream(samples [][2]float64) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	filled := 0
	for filled < len(samples) && len(q.pending) > 0 {
		head := q.pending[0]
		n, ok := head.streamer.Stream(samples[filled:])
		filled += n
		if !ok || n == 0 {
			close(head.done)
			q.pending = q.pending[1:]
		}
	}
	for i := filled; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (q *blockQueue) Err() error {
	return nil
}

func (q *blockQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
