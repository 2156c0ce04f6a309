/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

//go:build (linux && cgo) || windows || darwin

package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/codec"
)

// Speaker paces playback by the sound card: Pace hands a block to the
// output and returns once the block before it has been pulled, keeping one
// block of lookahead in the mixer.
type Speaker struct {
	mu     sync.Mutex
	rate   beep.SampleRate
	queue  *blockQueue
	prev   <-chan struct{}
	logger zerolog.Logger
}

// NewSpeaker returns a pacer bound to the default audio output. The device
// is opened on the first Pace call.
func NewSpeaker(logger zerolog.Logger) (*Speaker, error) {
	return &Speaker{
		queue:  &blockQueue{},
		logger: logger.With().Str("component", "speaker").Logger(),
	}, nil
}

// Pace implements playback.Pacer.
func (s *Speaker) Pace(ctx context.Context, block []byte, format codec.Format) error {
	s.mu.Lock()
	if err := s.ensureRate(beep.SampleRate(format.SampleRate)); err != nil {
		s.mu.Unlock()
		return err
	}
	streamer, err := decodeBlock(block, format)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("decode block: %w", err)
	}
	prev := s.prev
	s.prev = s.queue.push(streamer)
	s.mu.Unlock()

	if prev == nil {
		return nil
	}
	select {
	case <-prev:
		return nil
	case <-ctx.Done():
		s.queue.clear()
		return ctx.Err()
	}
}

// ensureRate (re)opens the device when the sample rate changes between
// tracks. Caller holds s.mu.
func (s *Speaker) ensureRate(rate beep.SampleRate) error {
	if rate == s.rate {
		return nil
	}
	if s.rate != 0 {
		s.queue.clear()
		speaker.Close()
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		s.rate = 0
		return fmt.Errorf("open audio device: %w", err)
	}
	s.rate = rate
	s.prev = nil
	speaker.Play(s.queue)
	s.logger.Info().Int("sample_rate", int(rate)).Msg("audio device opened")
	return nil
}

// Close releases the audio device.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rate == 0 {
		return nil
	}
	s.queue.clear()
	speaker.Close()
	s.rate = 0
	s.prev = nil
	return nil
}
