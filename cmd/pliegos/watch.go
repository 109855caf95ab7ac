// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pliegos/internal/sink"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Wait for the next search result to be stored",
	Long: `Watch polls the store until a result newer than the current one
appears, then prints its summary. It gives up after --max-checks polls.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "poll interval (default 1s)")
	watchCmd.Flags().Int("max-checks", 0, "maximum polls before giving up (default 90)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig(cmd)
	if d, _ := cmd.Flags().GetDuration("interval"); d > 0 {
		cfg.Sink.PollInterval = d
	}
	if n, _ := cmd.Flags().GetInt("max-checks"); n > 0 {
		cfg.Sink.MaxChecks = n
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := sink.Open(cfg.Sink)
	if err != nil {
		return err
	}
	defer store.Close()

	poller := sink.NewPoller(store, cfg.Sink, nil)
	since, err := poller.Baseline(ctx)
	if err != nil {
		return err
	}
	if q, err := store.LastQuery(ctx); err == nil && q != "" {
		fmt.Fprintf(os.Stderr, "Waiting for a result newer than the last search (%q)...\n", q)
	}

	r, err := poller.WaitNewer(ctx, since)
	if errors.Is(err, sink.ErrPollExhausted) {
		return fmt.Errorf("no new result after %d checks", cfg.Sink.MaxChecks)
	}
	if err != nil {
		return err
	}
	printSummary(os.Stdout, r)
	return nil
}
