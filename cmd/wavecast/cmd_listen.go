/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/wavecast/internal/client"
)

var listenOut string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Record the live stream to a WAV file",
	Long: `Connect to /audio and record the live stream until interrupted.

Track boundaries are stitched into one file while the format stays the
same. On exit the WAV header is rewritten with the recorded length.

Examples:
  wavecast listen
  wavecast listen --server http://radio.local:8080 -o tonight.wav
`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVarP(&listenOut, "out", "o", "stream.wav", "Output file")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	f, err := os.Create(listenOut)
	if err != nil {
		return fmt.Errorf("create %s: %w", listenOut, err)
	}
	defer f.Close()

	ctx, stop := cliContext(cmd.Context())
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "recording %s to %s, Ctrl+C to stop\n", serverURL, listenOut)
	rec, err := c.Record(ctx, f)
	if err != nil && !errors.Is(err, client.ErrFormatChanged) {
		return err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "stopped: %v\n", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes, %d tracks, %s)\n",
		listenOut, rec.Bytes, rec.Tracks, rec.Format.Duration(uint64(rec.Bytes)).Round(100*time.Millisecond))
	return f.Close()
}
