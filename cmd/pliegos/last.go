// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pliegos/internal/report"
	"github.com/pdiddy/pliegos/internal/sink"
)

var lastCmd = &cobra.Command{
	Use:   "last",
	Short: "Export the most recent search result",
	Long: `Last reads the stored result of the most recent search and writes it
as a plain-text summary, JSON, YAML, or a CSL-YAML bibliography.

With --output the export is written to a file; "-" picks the default
name pliegos-<query>-<timestamp>.<ext> in the current directory.`,
	RunE: runLast,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past searches",
	RunE:  runHistory,
}

func init() {
	lastCmd.Flags().String("format", "txt", "export format: txt, json, yaml, csl")
	lastCmd.Flags().String("output", "", `output file ("-" for the default name; stdout when empty)`)

	historyCmd.Flags().Int("limit", 20, "maximum runs to list (0 = all)")
	historyCmd.Flags().Bool("json", false, "output history as JSON")

	rootCmd.AddCommand(lastCmd)
	rootCmd.AddCommand(historyCmd)
}

func runLast(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	store, err := sink.Open(pipelineConfig(cmd).Sink)
	if err != nil {
		return err
	}
	defer store.Close()

	r, ok, err := store.LastResult(context.Background())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no stored result; run \"pliegos search\" first")
	}

	now := time.Now()
	var w io.Writer = os.Stdout
	if output != "" {
		if output == "-" {
			output = report.FileName(r.Query, now, report.Format(format))
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if err := report.Write(w, report.Format(format), r, now); err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", output)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := sink.Open(pipelineConfig(cmd).Sink)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	runs, err := store.History(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if err := report.WriteHistory(os.Stdout, runs, time.Local); err != nil {
		return err
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.TotalSearches > 0 {
		fmt.Fprintf(os.Stdout, "\n%d searches, %d tabs opened, last on %s\n",
			stats.TotalSearches, stats.TotalTabs, stats.LastSearch.In(time.Local).Format("2006-01-02 15:04"))
	}
	return nil
}
