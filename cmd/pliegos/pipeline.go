// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pdiddy/pliegos/internal/agent"
	"github.com/pdiddy/pliegos/internal/browser"
	"github.com/pdiddy/pliegos/internal/bus"
	"github.com/pdiddy/pliegos/internal/notify"
	"github.com/pdiddy/pliegos/internal/orchestrator"
	"github.com/pdiddy/pliegos/internal/sink"
	"github.com/pdiddy/pliegos/internal/sources"
	"github.com/pdiddy/pliegos/pkg/types"
)

// pipeline is the receiving side of a search: browser, page agents,
// orchestrator and store, connected through one bus.
type pipeline struct {
	provider browser.Provider
	store    *sink.Store
	bus      bus.Bus
	orch     *orchestrator.Orchestrator

	closers []func() error
}

// openBus returns the in-process bus, or NATS when cfg names a server.
func openBus(cfg types.BusConfig) (bus.Bus, func() error, error) {
	if cfg.NATSURL == "" {
		return bus.NewLocal(), func() error { return nil }, nil
	}
	nb, err := bus.DialNATS(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return nb, nb.Close, nil
}

// newPipeline wires every stage around store and starts serving the bus.
// Completion notices go to out. The caller keeps ownership of store.
func newPipeline(ctx context.Context, cfg types.PipelineConfig, store *sink.Store, out io.Writer) (*pipeline, error) {
	p := &pipeline{store: store}

	b, closeBus, err := openBus(cfg.Bus)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.bus = b
	p.closers = append(p.closers, closeBus)

	provider, err := browser.New(ctx, cfg.Browser, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.provider = provider
	p.closers = append(p.closers, provider.Close)

	p.orch = orchestrator.New(orchestrator.Options{
		Provider:   provider,
		Injector:   agent.New(b, cfg.Scrape, nil, logger),
		Sink:       store,
		Progress:   notify.NewBadge(os.Stderr),
		Notifier:   notify.NewNotifier(out, logger, nil),
		Logger:     logger,
		JobTimeout: cfg.Scrape.JobTimeout,
	})

	stop, err := b.Serve(p.orch.Handle)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("serving bus: %w", err)
	}
	p.closers = append(p.closers, func() error { stop(); return nil })
	return p, nil
}

// Close releases every stage in reverse order of creation.
func (p *pipeline) Close() error {
	var first error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// sourceInfos describes targets the way search requests carry them.
func sourceInfos(targets []sources.Target) []bus.SourceInfo {
	infos := make([]bus.SourceInfo, len(targets))
	for i, t := range targets {
		infos[i] = bus.SourceInfo{
			ID:   t.Source,
			Name: sources.Name(t.Source),
			URL:  t.URL,
			Page: t.Page,
		}
	}
	return infos
}

// printSummary writes the per-source breakdown of a finished run.
func printSummary(w io.Writer, r types.RunResult) {
	fmt.Fprintf(w, "Búsqueda: %q\n", r.Query)
	fmt.Fprintf(w, "%d resultados encontrados en %.1fs\n", r.TotalRecords(), float64(r.Elapsed)/1000)
	for _, jr := range r.Results {
		fmt.Fprintf(w, "  %-32s %d\n", jr.Source, len(jr.Records))
	}
	for _, je := range r.Errors {
		name := je.Source
		if name == "" {
			name = "Desconocido"
		}
		fmt.Fprintf(w, "  %-32s Error: %s\n", name, je.Error)
	}
}
