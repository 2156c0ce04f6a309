/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"time"

	"github.com/friendsincode/wavecast/internal/events"
	"github.com/friendsincode/wavecast/internal/queue"
)

// EventNotifier publishes track lifecycle events.
type EventNotifier struct {
	bus events.Publisher
}

// NewEventNotifier returns an Observer that publishes to bus.
func NewEventNotifier(bus events.Publisher) *EventNotifier {
	return &EventNotifier{bus: bus}
}

func (n *EventNotifier) TrackStarted(t *Track) {
	n.bus.Publish(events.EventNowPlaying, events.Payload{
		"track":           t.Name,
		"entry_id":        t.EntryID,
		"seq":             t.Seq,
		"duration":        t.Duration().Seconds(),
		"sample_rate":     t.Format.SampleRate,
		"channels":        t.Format.Channels,
		"bits_per_sample": t.Format.BitsPerSample,
		"started_at":      t.LoadedAt.Format(time.RFC3339),
	})
}

func (n *EventNotifier) TrackEnded(t *Track, played uint64, outcome Outcome) {
	n.bus.Publish(events.EventTrackEnded, events.Payload{
		"track":    t.Name,
		"entry_id": t.EntryID,
		"seq":      t.Seq,
		"elapsed":  t.Format.Duration(played).Seconds(),
		"outcome":  string(outcome),
	})
}

func (n *EventNotifier) TrackFailed(e queue.Entry, err error) {
	n.bus.Publish(events.EventTrackFailed, events.Payload{
		"track":    e.Reference,
		"entry_id": e.ID,
		"error":    err.Error(),
	})
}
