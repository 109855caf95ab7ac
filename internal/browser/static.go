// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/pdiddy/pliegos/internal/dom"
	"github.com/pdiddy/pliegos/internal/httputil"
	"github.com/pdiddy/pliegos/pkg/types"
)

// Static opens "tabs" by fetching pages over HTTP. Pages are seen as
// served, without client-side rendering or shadow trees.
type Static struct {
	client *http.Client
	cfg    types.HTTPConfig
	logger *log.Logger
	pacer  *rate.Limiter
	nextID atomic.Int64
}

// NewStatic returns a Static provider.
func NewStatic(cfg types.BrowserConfig, logger *log.Logger) *Static {
	return &Static{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg.HTTPConfig,
		logger: logger,
		pacer:  newPacer(cfg.TabDelay),
	}
}

// Open implements Provider. newWindow has no effect.
func (s *Static) Open(ctx context.Context, urls []string, _ bool) ([]Tab, error) {
	tabs := make([]Tab, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("opening tab: invalid url %q", raw)
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("opening tab for %s: %w", raw, err)
		}

		t := &staticTab{
			id:     int(s.nextID.Add(1)),
			url:    raw,
			loaded: make(chan struct{}),
		}
		// The fetch outlives the request that opened the tab.
		go t.fetch(context.WithoutCancel(ctx), s)
		tabs = append(tabs, t)
	}
	return tabs, nil
}

// Close implements Provider.
func (s *Static) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

type staticTab struct {
	id  int
	url string

	loaded chan struct{}
	page   *httputil.Page
	err    error
}

func (t *staticTab) ID() int     { return t.id }
func (t *staticTab) URL() string { return t.url }

func (t *staticTab) fetch(ctx context.Context, s *Static) {
	defer close(t.loaded)
	t.page, t.err = httputil.GetPage(ctx, s.client, t.url, s.cfg.UserAgent, s.cfg.MaxRetries)
	if t.err != nil {
		s.logger.Warn("page fetch failed", "tab", t.id, "url", t.url, "err", t.err)
	}
}

// WaitLoaded returns once the fetch has finished. A failed fetch still
// counts as loaded; Inject reports the failure.
func (t *staticTab) WaitLoaded(ctx context.Context) error {
	select {
	case <-t.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *staticTab) Inject(ctx context.Context) error {
	if err := t.WaitLoaded(ctx); err != nil {
		return err
	}
	return t.err
}

func (t *staticTab) Snapshot(ctx context.Context) (dom.DocumentView, error) {
	if err := t.Inject(ctx); err != nil {
		return nil, err
	}
	view, err := dom.Parse(string(t.page.Body), t.page.URL)
	if err != nil {
		return nil, err
	}
	return view, nil
}
