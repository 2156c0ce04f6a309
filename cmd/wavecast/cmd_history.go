/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/wavecast/internal/db"
	"github.com/friendsincode/wavecast/internal/history"
)

var (
	historyLimit     int
	historyOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the play log",
	Long: `Show the most recent entries of the play log.

Reads the configured database directly (WAVECAST_DB_BACKEND, WAVECAST_DB_DSN),
so the server does not need to be running.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete play log entries older than a cutoff",
	Long: `Delete play log entries that ended before now minus --older-than.

Examples:
  # Keep thirty days of history
  wavecast history prune --older-than 720h
`,
	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
	historyPruneCmd.Flags().DurationVar(&historyOlderThan, "older-than", 30*24*time.Hour, "Age of the oldest entry to keep")

	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory connects to the play log database (used by history commands)
func openHistory() (*history.Recorder, *gorm.DB, error) {
	if err := loadConfig(); err != nil {
		return nil, nil, err
	}
	database, err := db.Connect(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return history.NewRecorder(database, cfg.InstanceID, logger), database, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	rec, database, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close(database)

	records, err := rec.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no plays recorded")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTRACK\tOUTCOME\tPLAYED")
	for _, r := range records {
		played := time.Duration(r.Seconds * float64(time.Second)).Round(time.Second)
		outcome := r.Outcome
		if r.Error != "" {
			outcome += ": " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.StartedAt.Local().Format(time.DateTime), r.Track, outcome, played)
	}
	return tw.Flush()
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if historyOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	rec, database, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close(database)

	cutoff := time.Now().Add(-historyOlderThan)
	n, err := rec.Prune(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("play log pruned")
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries older than %s\n", n, cutoff.Format(time.DateTime))
	return nil
}
