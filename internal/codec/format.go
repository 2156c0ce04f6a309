/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package codec turns WAV files into interleaved PCM and builds the RIFF
// headers that precede each track on the live stream.
package codec

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedFormat is returned for containers that are not PCM WAV.
	ErrUnsupportedFormat = errors.New("codec: unsupported format")
	// ErrEmptyTrack is returned when a file decodes to zero samples.
	ErrEmptyTrack = errors.New("codec: track has no samples")
)

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate    uint32 `json:"sample_rate"`
	Channels      uint32 `json:"channels"`
	BitsPerSample uint32 `json:"bits_per_sample"`
}

// ByteRate is the number of bytes per second of audio.
func (f Format) ByteRate() uint32 {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// BlockAlign is the size of one frame (one sample for every channel).
func (f Format) BlockAlign() uint32 {
	return f.Channels * f.BitsPerSample / 8
}

// Duration converts a byte count to playback time.
func (f Format) Duration(n uint64) time.Duration {
	rate := f.ByteRate()
	if rate == 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(rate) * float64(time.Second))
}

// Validate rejects formats the engine cannot pace.
func (f Format) Validate() error {
	if f.SampleRate == 0 || f.Channels == 0 {
		return fmt.Errorf("%w: %d Hz, %d channels", ErrUnsupportedFormat, f.SampleRate, f.Channels)
	}
	switch f.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, f.BitsPerSample)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitsPerSample)
}
