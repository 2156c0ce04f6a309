/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"time"

	"github.com/friendsincode/wavecast/internal/codec"
	"github.com/friendsincode/wavecast/internal/telemetry"
)

// Pacer holds the clock back so blocks leave at real-time speed.
type Pacer interface {
	Pace(ctx context.Context, block []byte, format codec.Format) error
}

// maxDrift is how far behind schedule WallClock may fall before it gives up
// catching up and restarts its schedule from now.
const maxDrift = time.Second

// WallClock paces against the system clock. Deadlines accumulate, so sleep
// overshoot on one block is absorbed by the next instead of drifting.
type WallClock struct {
	next time.Time
	now  func() time.Time
}

// NewWallClock returns a software pacer.
func NewWallClock() *WallClock {
	return &WallClock{now: time.Now}
}

// Pace sleeps until the block's deadline.
func (w *WallClock) Pace(ctx context.Context, block []byte, format codec.Format) error {
	now := w.now()
	if w.next.IsZero() || now.Sub(w.next) > maxDrift {
		w.next = now
	}
	w.next = w.next.Add(format.Duration(uint64(len(block))))

	wait := w.next.Sub(now)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		telemetry.PacerLag.Observe(w.now().Sub(w.next).Seconds())
		return nil
	}
}

// Immediate never waits. Tests and offline rendering use it.
type Immediate struct{}

// Pace returns at once unless ctx is done.
func (Immediate) Pace(ctx context.Context, _ []byte, _ codec.Format) error {
	return ctx.Err()
}
