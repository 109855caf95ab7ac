// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pdiddy/pliegos/internal/clock"
	"github.com/pdiddy/pliegos/pkg/types"
)

// ErrPollExhausted is returned when no new result appeared within the
// allowed number of checks.
var ErrPollExhausted = errors.New("no new result")

// ResultReader is the part of Store the poller needs.
type ResultReader interface {
	LastResult(ctx context.Context) (types.RunResult, bool, error)
}

// Poller watches the store for a finished run, the way a display surface
// learns that a search is done.
type Poller struct {
	Reader    ResultReader
	Interval  time.Duration
	MaxChecks int
	Clock     clockwork.Clock
}

// NewPoller returns a Poller using cfg's interval and check limit.
func NewPoller(r ResultReader, cfg types.SinkConfig, c clockwork.Clock) *Poller {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Poller{Reader: r, Interval: cfg.PollInterval, MaxChecks: cfg.MaxChecks, Clock: c}
}

// Baseline returns the timestamp of the stored result, or 0.
func (p *Poller) Baseline(ctx context.Context) (types.Millis, error) {
	r, ok, err := p.Reader.LastResult(ctx)
	if err != nil || !ok {
		return 0, err
	}
	return r.Timestamp, nil
}

// WaitNewer checks every Interval, up to MaxChecks times, for a stored
// result whose timestamp is newer than since.
func (p *Poller) WaitNewer(ctx context.Context, since types.Millis) (types.RunResult, error) {
	for check := 0; check < p.MaxChecks; check++ {
		if err := clock.Sleep(ctx, p.Clock, p.Interval); err != nil {
			return types.RunResult{}, err
		}
		r, ok, err := p.Reader.LastResult(ctx)
		if err != nil {
			return types.RunResult{}, err
		}
		if ok && IsNewer(r, since) {
			return r, nil
		}
	}
	return types.RunResult{}, ErrPollExhausted
}

// IsNewer is the completion rule used by WaitNewer.
func IsNewer(r types.RunResult, since types.Millis) bool {
	return r.Timestamp > since
}

// FreshWithin is the alternative completion rule that accepts any result
// finished within window of now. It misses runs that finished before the
// watcher started looking more than window ago; WaitNewer does not use it.
func FreshWithin(r types.RunResult, now time.Time, window time.Duration) bool {
	return now.Sub(r.Timestamp.Time()) < window
}
