/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome values for PlayRecord.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// PlayRecord is one track that went to air, or failed to.
type PlayRecord struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	EntryID     int64     `gorm:"index" json:"entry_id"`
	Track       string    `gorm:"type:varchar(255);index" json:"track"`
	Format      string    `gorm:"type:varchar(64)" json:"format,omitempty"`
	StartedAt   time.Time `gorm:"index" json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	BytesPlayed uint64    `json:"bytes_played"`
	TotalBytes  uint64    `json:"total_bytes"`
	Seconds     float64   `json:"seconds"`
	Outcome     string    `gorm:"type:varchar(16);index" json:"outcome"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	NodeID      string    `gorm:"type:varchar(128)" json:"node_id,omitempty"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (PlayRecord) TableName() string {
	return "play_records"
}

// BeforeCreate assigns an ID when the caller left it empty.
func (p *PlayRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
