// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package notify renders run progress and completion for the terminal.
// Badge is the progress counter shown while a run is active and Notifier
// announces the summary once it finalizes.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
)

// Badge shows "completed/expected" next to a spinner.
type Badge struct {
	mu      sync.Mutex
	s       *spinner.Spinner
	text    string
	started bool
}

// NewBadge creates a badge writing to w.
func NewBadge(w io.Writer) *Badge {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w))
	return &Badge{s: s}
}

// BadgeText formats the progress counter.
func BadgeText(completed, expected int) string {
	return fmt.Sprintf("%d/%d", completed, expected)
}

// Update sets the counter and starts the spinner on first use.
func (b *Badge) Update(completed, expected int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.text = BadgeText(completed, expected)
	b.s.Lock()
	b.s.Suffix = " " + b.text
	b.s.Unlock()

	if !b.started {
		b.s.Start()
		b.started = true
	}
}

// Clear stops the spinner and empties the counter.
func (b *Badge) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.text = ""
	if b.started {
		b.s.Stop()
		b.started = false
	}
}

// Text returns the current counter, or "" when cleared.
func (b *Badge) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}
