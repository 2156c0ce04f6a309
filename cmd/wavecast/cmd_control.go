/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/wavecast/internal/client"
	"github.com/friendsincode/wavecast/internal/playback"
)

var (
	serverURL     string
	progressWatch bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <file.wav>...",
	Short: "Append library files to the play queue",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnqueue,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the pending queue",
	Args:  cobra.NoArgs,
	RunE:  runQueue,
}

var queueMoveCmd = &cobra.Command{
	Use:   "move <from> <to>",
	Short: "Move a pending entry to a new position",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueueMove,
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <index>",
	Short: "Remove a pending entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRemove,
}

var skipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip the current track",
	Args:  cobra.NoArgs,
	RunE:  runSkip,
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show playback progress of the current track",
	Long: `Show playback progress of the current track.

With --watch the position is polled every 500ms until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runProgress,
}

func init() {
	def := os.Getenv("WAVECAST_SERVER")
	if def == "" {
		def = "http://127.0.0.1:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", def, "Base URL of the wavecast server (env WAVECAST_SERVER)")

	progressCmd.Flags().BoolVarP(&progressWatch, "watch", "w", false, "Keep polling until interrupted")

	queueCmd.AddCommand(queueMoveCmd, queueRemoveCmd)
	rootCmd.AddCommand(enqueueCmd, queueCmd, skipCmd, progressCmd)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	for _, name := range args {
		res, err := c.Enqueue(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s (entry %d)\n", res.File, res.ID)
	}
	return nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	items, err := c.Queue(cmd.Context())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tENTRY\tFILE")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", it.Index, it.ID, it.File)
	}
	return tw.Flush()
}

func runQueueMove(cmd *cobra.Command, args []string) error {
	from, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid from index %q", args[0])
	}
	to, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid to index %q", args[1])
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	return c.Move(cmd.Context(), from, to)
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[0])
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	return c.Remove(cmd.Context(), index)
}

func runSkip(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.Skip(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "skip sent")
	return nil
}

func runProgress(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if !progressWatch {
		p, err := c.Progress(cmd.Context())
		if err != nil {
			return err
		}
		printProgress(cmd.OutOrStdout(), p)
		return nil
	}

	ctx, stop := cliContext(cmd.Context())
	defer stop()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		p, err := c.Progress(ctx)
		if err != nil && ctx.Err() == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "progress: %v\n", err)
		} else if err == nil {
			printProgress(cmd.OutOrStdout(), p)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printProgress(w io.Writer, p playback.Progress) {
	if !p.Playing {
		fmt.Fprintln(w, "idle")
		return
	}
	fmt.Fprintf(w, "%s  %5.1f%%  %s / %s\n", p.Filename, p.Position*100,
		formatSeconds(p.Elapsed), formatSeconds(p.Duration))
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// cliContext is cancelled on SIGINT/SIGTERM.
func cliContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
