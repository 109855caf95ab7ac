// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pliegos/internal/sink"
	"github.com/pdiddy/pliegos/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scraping pipeline behind a NATS subject",
	Long: `Serve starts the browser, page agents and orchestrator and answers
search requests arriving on the configured NATS subject until interrupted.
Finished runs are written to the store; clients learn about them with
"pliegos watch" or "pliegos search --remote".`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("nats", "", "NATS server URL (default from config bus.nats_url)")
	serveCmd.Flags().String("engine", "", "tab engine: chrome, container or http")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig(cmd)
	if natsURL, _ := cmd.Flags().GetString("nats"); natsURL != "" {
		cfg.Bus.NATSURL = natsURL
	}
	if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
		cfg.Browser.Engine = types.BrowserEngine(engine)
	}
	if cfg.Bus.NATSURL == "" {
		return fmt.Errorf("serve requires a NATS server (--nats or bus.nats_url)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sink.Open(cfg.Sink)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := newPipeline(ctx, cfg, store, os.Stdout)
	if err != nil {
		return err
	}
	defer p.Close()

	logger.Info("serving", "nats", cfg.Bus.NATSURL, "subject", cfg.Bus.Subject, "engine", cfg.Browser.Engine)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
