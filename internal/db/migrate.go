/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"gorm.io/gorm"

	"github.com/friendsincode/wavecast/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.PlayRecord{},
	); err != nil {
		return err
	}

	return applyPostgresHistoryIndex(database)
}

// applyPostgresHistoryIndex adds a descending index for the recent-plays query.
func applyPostgresHistoryIndex(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}
	return database.Exec(
		"CREATE INDEX IF NOT EXISTS idx_play_records_started_desc ON play_records (started_at DESC)",
	).Error
}
