// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/pdiddy/pliegos/internal/dom"
	"github.com/pdiddy/pliegos/pkg/types"
)

// Chrome opens tabs in a Chrome instance controlled over DevTools.
type Chrome struct {
	logger *log.Logger
	pacer  *rate.Limiter

	browserCtx context.Context
	cancel     context.CancelFunc

	nextID atomic.Int64

	mu      sync.Mutex
	cancels []context.CancelFunc

	// onClose runs after the browser is gone.
	onClose []func()
}

// NewChrome launches the browser. The browser lives until Close or until
// ctx is done.
func NewChrome(ctx context.Context, cfg types.BrowserConfig, logger *log.Logger) (*Chrome, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	return attach(allocCtx, cancelAlloc, cfg, logger)
}

// NewRemoteChrome attaches to a browser already listening for DevTools
// connections at endpoint, e.g. "ws://127.0.0.1:9222/".
func NewRemoteChrome(ctx context.Context, endpoint string, cfg types.BrowserConfig, logger *log.Logger) (*Chrome, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, endpoint)
	return attach(allocCtx, cancelAlloc, cfg, logger)
}

func attach(allocCtx context.Context, cancelAlloc context.CancelFunc, cfg types.BrowserConfig, logger *log.Logger) (*Chrome, error) {
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Debugf))
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}
	return &Chrome{
		logger:     logger,
		pacer:      newPacer(cfg.TabDelay),
		browserCtx: browserCtx,
		cancel:     cancel,
	}, nil
}

// Open implements Provider. Each tab starts navigating as soon as it is
// created; creations are paced by the configured tab delay.
func (c *Chrome) Open(ctx context.Context, urls []string, newWindow bool) ([]Tab, error) {
	parent := c.browserCtx
	tabs := make([]Tab, 0, len(urls))

	for i, u := range urls {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("opening tab %d: %w", i+1, err)
		}

		var opts []chromedp.ContextOption
		if newWindow && i == 0 {
			opts = append(opts, chromedp.WithNewBrowserContext())
		}
		tabCtx, cancel := chromedp.NewContext(parent, opts...)
		if err := chromedp.Run(tabCtx); err != nil {
			cancel()
			return nil, fmt.Errorf("opening tab for %s: %w", u, err)
		}
		c.track(cancel)
		if newWindow && i == 0 {
			// Later tabs inherit the new browser context.
			parent = tabCtx
		}

		t := &chromeTab{
			id:     int(c.nextID.Add(1)),
			url:    u,
			ctx:    tabCtx,
			loaded: make(chan struct{}),
		}
		go t.navigate(c.logger)
		tabs = append(tabs, t)
	}
	return tabs, nil
}

func (c *Chrome) track(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels = append(c.cancels, cancel)
}

// Close shuts every tab and the browser down.
func (c *Chrome) Close() error {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
	}
	c.cancel()

	c.mu.Lock()
	hooks := c.onClose
	c.onClose = nil
	c.mu.Unlock()
	for _, f := range hooks {
		f()
	}
	return nil
}

type chromeTab struct {
	id  int
	url string
	ctx context.Context

	loaded  chan struct{}
	loadErr error
}

func (t *chromeTab) ID() int     { return t.id }
func (t *chromeTab) URL() string { return t.url }

func (t *chromeTab) navigate(logger *log.Logger) {
	defer close(t.loaded)
	if err := chromedp.Run(t.ctx, chromedp.Navigate(t.url)); err != nil {
		t.loadErr = fmt.Errorf("loading %s: %w", t.url, err)
		logger.Warn("tab load failed", "tab", t.id, "url", t.url, "err", err)
	}
}

func (t *chromeTab) WaitLoaded(ctx context.Context) error {
	select {
	case <-t.loaded:
		return t.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes actions in the tab, bounded by ctx as well as the tab.
func (t *chromeTab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Inject checks that the page accepts script evaluation.
func (t *chromeTab) Inject(ctx context.Context) error {
	var state string
	if err := t.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return err
	}
	if state == "" {
		return fmt.Errorf("tab %d: document not available", t.id)
	}
	return nil
}

// Snapshot fetches the whole DOM with shadow roots pierced.
func (t *chromeTab) Snapshot(ctx context.Context) (dom.DocumentView, error) {
	var (
		location string
		root     *cdp.Node
	)
	err := t.run(ctx,
		chromedp.Location(&location),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			root, err = cdpdom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot of tab %d: %w", t.id, err)
	}
	view, err := dom.Parse(Serialize(root), location)
	if err != nil {
		return nil, err
	}
	return view, nil
}
