package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/cardtracker/internal/ingest"
	"github.com/ArionMiles/cardtracker/internal/server"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Read new notification mail once and store its transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd.Context(), false, "")
	},
}

var watchAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep polling for notification mail until interrupted",
	Long: `watch polls the source at GMAIL_POLL_INTERVAL and stores new transactions.
With --addr it also serves the HTTP API and /metrics while running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd.Context(), true, watchAddr)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "also serve the HTTP API on this address")
}

func runSync(ctx context.Context, watch bool, addr string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	reader, err := a.newReader(ctx, watch)
	if err != nil {
		return err
	}

	runner := ingest.New(a.newParser(), st, ingest.Config{
		Workers:       a.cfg.SyncWorkers,
		RetryAttempts: a.cfg.SyncRetryAttempts,
		Metrics:       a.metrics,
	}, a.logger.With("component", "ingest"))

	if addr != "" {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		srv := server.New(st, a.metrics, a.loc, a.logger.With("component", "http"))
		go func() {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				a.logger.Error("http server failed", "error", err)
			}
		}()
	}

	stats, err := runner.Run(ctx, reader)
	printStats(os.Stdout, stats)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// printStats writes a run summary, with skip reasons in name order.
func printStats(w io.Writer, stats ingest.Stats) {
	fmt.Fprintf(w, "Sync %s: %d received, %d saved, %d duplicate, %d skipped, %d failed\n",
		stats.RunID, stats.Received, stats.Saved, stats.Duplicate, stats.SkippedTotal(), stats.Failed)
	for _, reason := range slices.Sorted(maps.Keys(stats.Skipped)) {
		fmt.Fprintf(w, "  skipped (%s): %d\n", reason, stats.Skipped[reason])
	}
}
