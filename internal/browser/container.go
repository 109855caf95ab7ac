// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browser

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pdiddy/pliegos/internal/container"
	"github.com/pdiddy/pliegos/pkg/types"
)

// devtoolsPort is where headless-shell images listen inside the container.
const devtoolsPort = 9222

// Readiness polling for a freshly started container.
var (
	readyInterval = 250 * time.Millisecond
	readyAttempts = 40
)

// NewContainerChrome starts cfg.Image under docker or podman and attaches
// to its DevTools endpoint. Close stops the container.
func NewContainerChrome(ctx context.Context, cfg types.BrowserConfig, logger *log.Logger) (*Chrome, error) {
	rt, err := container.DetectRuntime()
	if err != nil {
		return nil, err
	}
	return startContainerChrome(ctx, rt, cfg, logger, NewRemoteChrome)
}

type remoteAttacher func(ctx context.Context, endpoint string, cfg types.BrowserConfig, logger *log.Logger) (*Chrome, error)

func startContainerChrome(ctx context.Context, rt container.Runtime, cfg types.BrowserConfig, logger *log.Logger, attachTo remoteAttacher) (*Chrome, error) {
	if err := rt.ImageExists(cfg.Image); err != nil {
		return nil, fmt.Errorf("%w (pull it with: %s pull %s)", err, rt.Name(), cfg.Image)
	}
	port := cfg.DebugPort
	if port == 0 {
		port = devtoolsPort
	}

	id, err := rt.Start(cfg.Image, port, devtoolsPort)
	if err != nil {
		return nil, err
	}
	logger.Info("started chrome container", "runtime", rt.Name(), "image", cfg.Image, "id", shortID(id))

	stop := func() {
		if err := rt.Stop(id); err != nil {
			logger.Warn("could not stop chrome container", "id", shortID(id), "err", err)
		}
	}

	host := "127.0.0.1:" + strconv.Itoa(port)
	if err := waitDevTools(ctx, "http://"+host); err != nil {
		stop()
		return nil, err
	}

	c, err := attachTo(ctx, "ws://"+host+"/", cfg, logger)
	if err != nil {
		stop()
		return nil, err
	}
	c.mu.Lock()
	c.onClose = append(c.onClose, stop)
	c.mu.Unlock()
	return c, nil
}

// waitDevTools polls the /json/version endpoint until the browser answers.
func waitDevTools(ctx context.Context, base string) error {
	client := &http.Client{Timeout: time.Second}
	var lastErr error
	for attempt := 0; attempt < readyAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readyInterval):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json/version", nil)
		if err != nil {
			return fmt.Errorf("creating readiness request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("devtools at %s not ready after %d attempts: %w", base, readyAttempts, lastErr)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
