/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history keeps a persistent log of what went to air.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/wavecast/internal/models"
	"github.com/friendsincode/wavecast/internal/playback"
	"github.com/friendsincode/wavecast/internal/queue"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	writeBuffer  = 64
)

// Recorder implements playback.Observer. Clock callbacks only enqueue
// records; Run writes them so a slow database never stalls playback.
type Recorder struct {
	db     *gorm.DB
	nodeID string
	logger zerolog.Logger

	pending chan models.PlayRecord

	mu     sync.Mutex
	closed bool
}

// NewRecorder returns a recorder writing to db. The schema must already be
// migrated.
func NewRecorder(db *gorm.DB, nodeID string, logger zerolog.Logger) *Recorder {
	return &Recorder{
		db:      db,
		nodeID:  nodeID,
		logger:  logger.With().Str("component", "history").Logger(),
		pending: make(chan models.PlayRecord, writeBuffer),
	}
}

// Run drains pending records until ctx is cancelled, then flushes what is
// left with a short deadline.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.pending:
			r.write(context.WithoutCancel(ctx), rec)
		case <-ctx.Done():
			r.mu.Lock()
			r.closed = true
			r.mu.Unlock()

			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case rec := <-r.pending:
					r.write(flushCtx, rec)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec models.PlayRecord) {
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		r.logger.Warn().Err(err).Str("track", rec.Track).Msg("failed to record play")
	}
}

func (r *Recorder) enqueue(rec models.PlayRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.pending <- rec:
	default:
		r.logger.Warn().Str("track", rec.Track).Msg("history backlog full, dropping record")
	}
}

// TrackStarted is a no-op; the record is written once the outcome is known.
func (r *Recorder) TrackStarted(*playback.Track) {}

// TrackEnded records a completed or skipped track.
func (r *Recorder) TrackEnded(t *playback.Track, played uint64, outcome playback.Outcome) {
	r.enqueue(models.PlayRecord{
		EntryID:     t.EntryID,
		Track:       t.Name,
		Format:      t.Format.String(),
		StartedAt:   t.LoadedAt,
		EndedAt:     time.Now().UTC(),
		BytesPlayed: played,
		TotalBytes:  t.Len(),
		Seconds:     t.Format.Duration(played).Seconds(),
		Outcome:     string(outcome),
		NodeID:      r.nodeID,
	})
}

// TrackFailed records an entry that could not be loaded.
func (r *Recorder) TrackFailed(e queue.Entry, err error) {
	now := time.Now().UTC()
	r.enqueue(models.PlayRecord{
		EntryID:   e.ID,
		Track:     e.Reference,
		StartedAt: now,
		EndedAt:   now,
		Outcome:   models.OutcomeFailed,
		Error:     err.Error(),
		NodeID:    r.nodeID,
	})
}

// Recent returns up to limit records, newest first. limit <= 0 uses the
// default page size.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]models.PlayRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var records []models.PlayRecord
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Order("ended_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return records, nil
}

// Prune deletes records that ended before cutoff and reports how many went.
func (r *Recorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("ended_at < ?", cutoff).Delete(&models.PlayRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var _ playback.Observer = (*Recorder)(nil)
