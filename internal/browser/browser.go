// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package browser provisions the tabs a search run scrapes. Chrome drives
// a real browser through the DevTools protocol, either a local binary or
// a headless image run under docker or podman. Static fetches pages over
// plain HTTP for catalogs that render server-side.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/pdiddy/pliegos/internal/dom"
	"github.com/pdiddy/pliegos/pkg/types"
)

// Tab is one opened page.
type Tab interface {
	// ID is unique among the tabs of a provider.
	ID() int

	// URL is the address the tab was opened with.
	URL() string

	// WaitLoaded blocks until the page has finished loading.
	WaitLoaded(ctx context.Context) error

	// Inject prepares the page for extraction. An error means the page
	// agent cannot run in this tab.
	Inject(ctx context.Context) error

	// Snapshot captures the current document, shadow trees included.
	Snapshot(ctx context.Context) (dom.DocumentView, error)
}

// Provider opens tabs.
type Provider interface {
	// Open creates one tab per URL, in order. newWindow groups the tabs
	// in a fresh window. An error aborts the whole batch.
	Open(ctx context.Context, urls []string, newWindow bool) ([]Tab, error)

	Close() error
}

// New returns the provider selected by cfg.Engine.
func New(ctx context.Context, cfg types.BrowserConfig, logger *log.Logger) (Provider, error) {
	switch cfg.Engine {
	case types.EngineHTTP:
		return NewStatic(cfg, logger), nil
	case types.EngineChrome, "":
		return NewChrome(ctx, cfg, logger)
	case types.EngineContainer:
		return NewContainerChrome(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", cfg.Engine)
	}
}

// newPacer spaces tab creations by delay.
func newPacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
