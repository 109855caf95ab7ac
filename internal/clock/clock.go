// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package clock holds the time helpers shared by the page agents and the
// completion poller. Time itself comes from clockwork so that settle
// delays and per-tab deadlines run on a fake clock in tests.
package clock

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Sleep waits for d on c or until ctx is done.
func Sleep(ctx context.Context, c clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-c.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
