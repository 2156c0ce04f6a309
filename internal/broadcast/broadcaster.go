/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package broadcast fans the playback clock's blocks out to every connected
// listener, starting each newcomer at the live position.
package broadcast

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/codec"
	"github.com/friendsincode/wavecast/internal/events"
	"github.com/friendsincode/wavecast/internal/playback"
	"github.com/friendsincode/wavecast/internal/telemetry"
)

// Drop reasons.
const (
	reasonSlow       = "slow"
	reasonDisconnect = "disconnect"
	reasonShutdown   = "shutdown"
)

// Options tune the fanout.
type Options struct {
	// Buffer is the per-sink queue depth in blocks.
	Buffer int
	// MaxCatchUp is the largest gap, in bytes, a lagging sink is allowed to
	// close in one burst. Larger gaps are skipped and the sink resumes at the
	// live edge.
	MaxCatchUp uint64
}

type entry struct {
	sink *Sink
	// delivered is the offset into track seq already queued to the sink.
	// Only the clock goroutine writes it once the entry is registered.
	delivered atomic.Uint64
	seq       atomic.Uint64
}

// Broadcaster implements playback.Fanout.
type Broadcaster struct {
	state  *playback.State
	opts   Options
	logger zerolog.Logger
	bus    events.Publisher

	mu     sync.Mutex
	sinks  map[string]*entry
	closed bool
}

// New returns a broadcaster reading live positions from state. bus may be nil.
func New(state *playback.State, opts Options, bus events.Publisher, logger zerolog.Logger) *Broadcaster {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	return &Broadcaster{
		state:  state,
		opts:   opts,
		bus:    bus,
		logger: logger.With().Str("component", "broadcast").Logger(),
		sinks:  make(map[string]*entry),
	}
}

// Register adds a listener at the live position. If a track is on air the
// sink's first bytes are the stream header followed by the block that starts
// at the current position. A track whose last block has already gone out is
// not on air; the sink waits for the next Reset like an idle join.
func (b *Broadcaster) Register(info ListenerInfo) (*Sink, bool) {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now().UTC()
	}
	s := newSink(info, b.opts.Buffer)
	e := &entry{sink: s}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, false
	}
	track, pos := b.state.Current()
	onAir := track != nil && pos < track.Len()
	if onAir {
		e.seq.Store(track.Seq)
		e.delivered.Store(pos)
		s.offer(codec.StreamHeader(track.Format))
	}
	b.sinks[info.ID] = e
	count := len(b.sinks)
	b.mu.Unlock()

	telemetry.ListenersActive.Set(float64(count))
	telemetry.ListenerConnections.WithLabelValues(info.Transport).Inc()
	ev := b.logger.Info().Str("sink_id", info.ID).Str("transport", info.Transport).Str("remote", info.RemoteAddr).Int("listeners", count)
	if onAir {
		ev = ev.Str("track", track.Name).Uint64("offset", pos)
	}
	ev.Msg("listener joined")
	b.publishStats(count, "connect")
	return s, true
}

// Deregister removes the sink with id. Unknown ids are ignored.
func (b *Broadcaster) Deregister(id string) {
	b.remove(id, reasonDisconnect)
}

// Reset starts every sink on track t: offsets go to zero and a fresh header
// is queued. Sinks that registered after t was loaded already have it.
func (b *Broadcaster) Reset(t *playback.Track) {
	header := codec.StreamHeader(t.Format)
	for _, e := range b.snapshot() {
		if e.seq.Load() == t.Seq {
			continue
		}
		e.seq.Store(t.Seq)
		e.delivered.Store(0)
		if !e.sink.offer(header) {
			b.remove(e.sink.ID(), reasonSlow)
		}
	}
}

// Deliver queues t.Data[start:end] to every sink that has not yet seen it.
func (b *Broadcaster) Deliver(t *playback.Track, start, end uint64) {
	for _, e := range b.snapshot() {
		if e.seq.Load() != t.Seq {
			// Joined while nothing was on air; waits for the next Reset.
			continue
		}
		d := e.delivered.Load()
		if d >= end {
			continue
		}

		from := d
		if d < start {
			if start-d <= b.opts.MaxCatchUp {
				telemetry.SinkCatchUpTotal.WithLabelValues("burst").Inc()
			} else {
				from = start
				telemetry.SinkCatchUpTotal.WithLabelValues("resync").Inc()
				b.logger.Debug().Str("sink_id", e.sink.ID()).Uint64("gap", start-d).Msg("listener resynced to live edge")
			}
		}

		if !e.sink.offer(t.Data[from:end]) {
			b.remove(e.sink.ID(), reasonSlow)
			continue
		}
		e.delivered.Store(end)
		telemetry.BytesDeliveredTotal.Add(float64(end - from))
	}
}

// Count is the number of registered sinks.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sinks)
}

// Listeners describes every registered sink, oldest first.
func (b *Broadcaster) Listeners() []ListenerInfo {
	track, _ := b.state.Current()
	entries := b.snapshot()

	out := make([]ListenerInfo, 0, len(entries))
	for _, e := range entries {
		info := e.sink.info
		info.Bytes = e.sink.written.Load()
		info.Offset = e.delivered.Load()
		if track != nil && e.seq.Load() == track.Seq {
			info.Track = track.Name
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Close drops every sink and refuses new registrations.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	entries := make([]*entry, 0, len(b.sinks))
	for _, e := range b.sinks {
		entries = append(entries, e)
	}
	b.sinks = make(map[string]*entry)
	b.mu.Unlock()

	for _, e := range entries {
		e.sink.close()
	}
	if len(entries) > 0 {
		telemetry.SinkDropsTotal.WithLabelValues(reasonShutdown).Add(float64(len(entries)))
	}
	telemetry.ListenersActive.Set(0)
	b.logger.Info().Int("listeners", len(entries)).Msg("broadcaster closed")
}

func (b *Broadcaster) snapshot() []*entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*entry, 0, len(b.sinks))
	for _, e := range b.sinks {
		out = append(out, e)
	}
	return out
}

func (b *Broadcaster) remove(id, reason string) {
	b.mu.Lock()
	e, ok := b.sinks[id]
	if ok {
		delete(b.sinks, id)
	}
	count := len(b.sinks)
	b.mu.Unlock()

	if !ok {
		return
	}
	e.sink.close()

	telemetry.ListenersActive.Set(float64(count))
	telemetry.SinkDropsTotal.WithLabelValues(reason).Inc()
	b.logger.Info().Str("sink_id", id).Str("reason", reason).Uint64("bytes", e.sink.written.Load()).Int("listeners", count).Msg("listener left")
	b.publishStats(count, reason)
}

func (b *Broadcaster) publishStats(count int, reason string) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.EventListenerStats, events.Payload{
		"listeners": count,
		"event":     reason,
	})
}

var _ playback.Fanout = (*Broadcaster)(nil)
