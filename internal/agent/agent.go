// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent implements the page agent: the per-tab routine that waits
// for a catalog page to settle, extracts its records and reports the
// outcome back over the bus exactly once.
package agent

import (
	"context"
	"fmt"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/pdiddy/pliegos/internal/browser"
	"github.com/pdiddy/pliegos/internal/bus"
	"github.com/pdiddy/pliegos/internal/clock"
	"github.com/pdiddy/pliegos/internal/extract"
	"github.com/pdiddy/pliegos/internal/sources"
	"github.com/pdiddy/pliegos/pkg/types"
)

// Agent scrapes tabs and reports to the orchestrator.
type Agent struct {
	bus       bus.Bus
	extractor *extract.Extractor
	clock     clockwork.Clock
	cfg       types.ScrapeConfig
	logger    *log.Logger
}

// New returns an Agent. A nil clock uses the wall clock.
func New(b bus.Bus, cfg types.ScrapeConfig, c clockwork.Clock, logger *log.Logger) *Agent {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Agent{
		bus:       b,
		extractor: extract.New(logger),
		clock:     c,
		cfg:       cfg,
		logger:    logger,
	}
}

// Inject checks tab and, when it accepts the agent, starts Run on a new
// goroutine. The check error is returned as the injection failure.
func (a *Agent) Inject(ctx context.Context, runID string, tab browser.Tab, seq *types.Sequence) error {
	if err := tab.Inject(ctx); err != nil {
		return err
	}
	go a.Run(ctx, runID, tab, seq)
	return nil
}

// Run scrapes one tab. Pages of unknown catalogs produce no report; a
// cancelled ctx during the settle delay also ends the job silently.
func (a *Agent) Run(ctx context.Context, runID string, tab browser.Tab, seq *types.Sequence) {
	hostname := hostnameOf(tab.URL())
	src := sources.Resolve(hostname)
	logger := a.logger.With("tab", tab.ID(), "host", hostname)
	if src == types.SourceUnknown {
		logger.Warn("unrecognized source, not scraping")
		return
	}

	if err := clock.Sleep(ctx, a.clock, a.cfg.SettleDelay(src)); err != nil {
		logger.Debug("settle wait abandoned", "err", err)
		return
	}

	msg := bus.Message{
		RunID:      runID,
		TabID:      tab.ID(),
		SourceName: sources.Name(src),
		SourceID:   src,
		Hostname:   hostname,
	}

	records, err := a.scrape(ctx, tab, src, seq)
	msg.Timestamp = types.MillisOf(a.clock.Now())
	if err != nil {
		msg.Action = bus.ActionFailed
		msg.Error = err.Error()
		logger.Warn("scraping failed", "err", err)
	} else {
		msg.Action = bus.ActionCompleted
		msg.Records = records
		logger.Info("scraped", "records", len(records))
	}

	if _, err := a.bus.Send(ctx, msg); err != nil {
		logger.Error("report not delivered", "action", msg.Action, "err", err)
	}
}

// scrape snapshots the tab and extracts it. A panic anywhere inside is
// returned as an error.
func (a *Agent) scrape(ctx context.Context, tab browser.Tab, src types.SourceID, seq *types.Sequence) (records []types.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("extraction panicked: %v", r)
		}
	}()

	doc, err := tab.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	records, err = a.extractor.Extract(doc, src, seq)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []types.Record{}
	}
	return records, nil
}

func hostnameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
