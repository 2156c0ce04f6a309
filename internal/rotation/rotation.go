/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rotation supplies fallback tracks when the queue runs dry.
package rotation

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is the on-disk playlist format.
type File struct {
	Tracks  []string `yaml:"tracks"`
	Shuffle bool     `yaml:"shuffle"`
}

// Rotation cycles through a fixed list of references.
type Rotation struct {
	mu      sync.Mutex
	tracks  []string
	shuffle bool
	order   []int
	next    int
	last    int
	rng     *rand.Rand
}

// Load reads a rotation file from path.
func Load(path string) (*Rotation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rotation: %w", err)
	}
	return Parse(data)
}

// Parse decodes a rotation document. Blank entries are dropped.
func Parse(data []byte) (*Rotation, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rotation: %w", err)
	}
	tracks := make([]string, 0, len(f.Tracks))
	for _, t := range f.Tracks {
		if t = strings.TrimSpace(t); t != "" {
			tracks = append(tracks, t)
		}
	}
	if len(tracks) == 0 {
		return nil, errors.New("rotation has no tracks")
	}
	return New(tracks, f.Shuffle, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))), nil
}

// New builds a rotation over tracks. rng is only used when shuffle is set.
func New(tracks []string, shuffle bool, rng *rand.Rand) *Rotation {
	r := &Rotation{
		tracks:  append([]string(nil), tracks...),
		shuffle: shuffle,
		last:    -1,
		rng:     rng,
	}
	r.reorder()
	return r
}

// Next returns the next reference. It implements playback.Fallback.
func (r *Rotation) Next() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tracks) == 0 {
		return "", false
	}
	if r.next >= len(r.order) {
		r.reorder()
	}
	i := r.order[r.next]
	r.next++
	r.last = i
	return r.tracks[i], true
}

// Len is the number of tracks in rotation.
func (r *Rotation) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracks)
}

// reorder starts a new cycle. A shuffled cycle never opens with the track
// that closed the previous one.
func (r *Rotation) reorder() {
	r.next = 0
	r.order = make([]int, len(r.tracks))
	for i := range r.order {
		r.order[i] = i
	}
	if !r.shuffle || len(r.order) < 2 {
		return
	}
	r.rng.Shuffle(len(r.order), func(i, j int) {
		r.order[i], r.order[j] = r.order[j], r.order[i]
	})
	if r.order[0] == r.last {
		r.order[0], r.order[len(r.order)-1] = r.order[len(r.order)-1], r.order[0]
	}
}
