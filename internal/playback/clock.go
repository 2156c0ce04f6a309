/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/codec"
	"github.com/friendsincode/wavecast/internal/queue"
	"github.com/friendsincode/wavecast/internal/telemetry"
)

// Outcome records how a track left the air.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Fanout receives every block the clock plays.
type Fanout interface {
	// Reset is called after a new track is loaded and before its first block.
	Reset(t *Track)
	// Deliver hands over Data[start:end]; position is already at end.
	Deliver(t *Track, start, end uint64)
}

// Loader turns a queue reference into decoded PCM.
type Loader interface {
	Load(ctx context.Context, ref string) (codec.Format, []byte, error)
}

// Source supplies queued entries.
type Source interface {
	DequeueNext() (queue.Entry, bool)
}

// Fallback supplies references when the queue runs dry.
type Fallback interface {
	Next() (string, bool)
}

// Observer is told about track lifecycle changes. Calls happen on the clock
// goroutine and must not block.
type Observer interface {
	TrackStarted(t *Track)
	TrackEnded(t *Track, played uint64, outcome Outcome)
	TrackFailed(e queue.Entry, err error)
}

// Options tune the clock.
type Options struct {
	BlockSize int
	IdleDelay time.Duration
}

// Clock is the single playback goroutine.
type Clock struct {
	state     *State
	source    Source
	loader    Loader
	fanout    Fanout
	pacer     Pacer
	fallback  Fallback
	observers []Observer
	opts      Options
	logger    zerolog.Logger

	seq uint64
}

// NewClock wires the playback loop.
func NewClock(state *State, source Source, loader Loader, fanout Fanout, pacer Pacer, opts Options, logger zerolog.Logger) *Clock {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = 100 * time.Millisecond
	}
	return &Clock{
		state:  state,
		source: source,
		loader: loader,
		fanout: fanout,
		pacer:  pacer,
		opts:   opts,
		logger: logger.With().Str("component", "playback").Logger(),
	}
}

// SetFallback enables always-on mode.
func (c *Clock) SetFallback(f Fallback) {
	c.fallback = f
}

// AddObserver registers o. Not safe to call once Run has started.
func (c *Clock) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Run plays until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	c.logger.Info().Int("block_size", c.opts.BlockSize).Msg("playback clock started")
	defer c.logger.Info().Msg("playback clock stopped")

	for {
		if ctx.Err() != nil {
			if track, pos := c.state.Current(); track != nil {
				outcome := OutcomeSkipped
				if pos >= track.Len() {
					outcome = OutcomeCompleted
				}
				c.endTrack(track, pos, outcome)
			}
			return nil
		}

		track, pos := c.state.Current()
		skipped := c.state.consumeSkip()

		if track == nil || pos >= track.Len() || skipped {
			if track != nil {
				outcome := OutcomeCompleted
				if skipped && pos < track.Len() {
					outcome = OutcomeSkipped
				}
				c.endTrack(track, pos, outcome)
			}
			if !c.loadNext(ctx) {
				c.idle(ctx)
			}
			continue
		}

		end := pos + uint64(c.opts.BlockSize)
		if end > track.Len() {
			end = track.Len()
		}
		c.state.Advance(end - pos)
		c.fanout.Deliver(track, pos, end)

		telemetry.TrackSecondsTotal.Add(track.Format.Duration(end - pos).Seconds())
		telemetry.PlaybackPosition.Set(track.Format.Duration(end).Seconds())

		if err := c.pacer.Pace(ctx, track.Data[pos:end], track.Format); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn().Err(err).Str("track", track.Name).Msg("pacer failed")
			c.idle(ctx)
		}
	}
}

// loadNext dequeues and decodes the next track. It reports false when there
// was nothing to try or the fallback entry failed, so the caller idles.
func (c *Clock) loadNext(ctx context.Context) bool {
	entry, ok := c.source.DequeueNext()
	fromFallback := false
	if !ok {
		if c.fallback == nil {
			return false
		}
		ref, ok := c.fallback.Next()
		if !ok {
			return false
		}
		entry = queue.Entry{Reference: ref, EnqueuedAt: time.Now().UTC()}
		fromFallback = true
	}
	// A skip aimed at the previous track must not leak into this one.
	c.state.consumeSkip()

	format, data, err := c.load(ctx, entry.Reference)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		telemetry.TracksTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		c.logger.Error().Err(err).Str("track", entry.Reference).Int64("entry_id", entry.ID).Msg("cannot load track, skipping")
		for _, o := range c.observers {
			o.TrackFailed(entry, err)
		}
		return !fromFallback
	}

	c.seq++
	t := &Track{
		Seq:      c.seq,
		EntryID:  entry.ID,
		Name:     entry.Reference,
		Format:   format,
		Data:     data,
		LoadedAt: time.Now().UTC(),
	}
	c.state.LoadTrack(t)
	c.fanout.Reset(t)

	c.logger.Info().
		Str("track", t.Name).
		Int64("entry_id", t.EntryID).
		Str("format", t.Format.String()).
		Dur("duration", t.Duration()).
		Bool("fallback", fromFallback).
		Msg("track loaded")
	for _, o := range c.observers {
		o.TrackStarted(t)
	}
	return true
}

func (c *Clock) load(ctx context.Context, ref string) (codec.Format, []byte, error) {
	format, data, err := c.loader.Load(ctx, ref)
	if err != nil {
		return codec.Format{}, nil, err
	}
	if err := format.Validate(); err != nil {
		return codec.Format{}, nil, err
	}
	if len(data) == 0 {
		return codec.Format{}, nil, fmt.Errorf("%s: %w", ref, codec.ErrEmptyTrack)
	}
	return format, data, nil
}

func (c *Clock) endTrack(t *Track, pos uint64, outcome Outcome) {
	c.state.Unload()
	telemetry.TracksTotal.WithLabelValues(string(outcome)).Inc()
	telemetry.PlaybackPosition.Set(0)

	c.logger.Info().
		Str("track", t.Name).
		Uint64("bytes", pos).
		Str("outcome", string(outcome)).
		Msg("track ended")
	for _, o := range c.observers {
		o.TrackEnded(t, pos, outcome)
	}
}

func (c *Clock) idle(ctx context.Context) {
	timer := time.NewTimer(c.opts.IdleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
