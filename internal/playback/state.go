/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback owns the authoritative play position and the loop that
// moves it forward in real time.
package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/friendsincode/wavecast/internal/codec"
)

// Track is a decoded track on air. It is never mutated after LoadTrack, so
// sinks may hold slices of Data without copying.
type Track struct {
	Seq      uint64
	EntryID  int64
	Name     string
	Format   codec.Format
	Data     []byte
	LoadedAt time.Time
}

// Len is the PCM length in bytes.
func (t *Track) Len() uint64 {
	return uint64(len(t.Data))
}

// Duration is the track's playing time.
func (t *Track) Duration() time.Duration {
	return t.Format.Duration(t.Len())
}

// State is the playback state shared by the clock, the broadcaster and the
// control surface. The track pointer is swapped under mu; position moves
// lock-free and only ever grows while a track is loaded.
type State struct {
	mu       sync.RWMutex
	track    *Track
	position atomic.Uint64
	skip     atomic.Bool
}

// NewState returns an idle state.
func NewState() *State {
	return &State{}
}

// LoadTrack makes t current and rewinds the position.
func (s *State) LoadTrack(t *Track) {
	s.mu.Lock()
	s.track = t
	s.position.Store(0)
	s.mu.Unlock()
}

// Unload clears the current track.
func (s *State) Unload() {
	s.mu.Lock()
	s.track = nil
	s.position.Store(0)
	s.mu.Unlock()
}

// Advance moves the position forward by n bytes and returns the new value.
// Only the clock goroutine calls it.
func (s *State) Advance(n uint64) uint64 {
	return s.position.Add(n)
}

// Position is the live byte offset into the current track.
func (s *State) Position() uint64 {
	return s.position.Load()
}

// Current returns the loaded track and the position that belongs to it.
// While the read lock is held the track cannot be swapped, so the pair is
// consistent.
func (s *State) Current() (*Track, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.track, s.position.Load()
}

// RequestSkip asks the clock to end the current track. It reports false and
// leaves the flag alone when nothing is playing.
func (s *State) RequestSkip() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.track == nil {
		return false
	}
	s.skip.Store(true)
	return true
}

// SkipPending reports whether a skip is waiting to be consumed.
func (s *State) SkipPending() bool {
	return s.skip.Load()
}

// consumeSkip clears the flag and reports whether it was set.
func (s *State) consumeSkip() bool {
	return s.skip.CompareAndSwap(true, false)
}

// Progress is a point-in-time view of the current track.
type Progress struct {
	Position float64 `json:"position"`
	Elapsed  float64 `json:"elapsed"`
	Duration float64 `json:"duration"`
	Filename string  `json:"filename"`
	Playing  bool    `json:"playing"`
	Bytes    uint64  `json:"bytes"`
	Total    uint64  `json:"total"`
}

// Progress reports elapsed/duration in seconds and their ratio in [0,1].
func (s *State) Progress() Progress {
	track, pos := s.Current()
	if track == nil {
		return Progress{}
	}

	total := track.Len()
	if pos > total {
		pos = total
	}
	p := Progress{
		Filename: track.Name,
		Playing:  true,
		Bytes:    pos,
		Total:    total,
		Duration: track.Duration().Seconds(),
		Elapsed:  track.Format.Duration(pos).Seconds(),
	}
	if p.Elapsed > p.Duration {
		p.Elapsed = p.Duration
	}
	if total > 0 {
		p.Position = float64(pos) / float64(total)
	}
	return p
}
