// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/pdiddy/pliegos/pkg/types"
)

// DismissAfter is how long a completion notice stays current.
const DismissAfter = 5 * time.Second

// Title heads every completion notice.
const Title = "Búsqueda completada"

// Message returns the completion text for s.
func Message(s types.Summary) string {
	if s.Failed == 0 {
		return fmt.Sprintf("Se encontraron %d resultados en %d fuentes", s.TotalRecords, s.Succeeded)
	}
	return fmt.Sprintf("%d resultados (%d fuentes OK, %d fallidas)", s.TotalRecords, s.Succeeded, s.Failed)
}

// Notifier announces finished runs. Each notice is written once to the
// output writer and dismissed after DismissAfter.
type Notifier struct {
	w      io.Writer
	logger *log.Logger
	clock  clockwork.Clock

	mu      sync.Mutex
	seq     int
	current string
}

// NewNotifier creates a Notifier. A nil clock uses the wall clock.
func NewNotifier(w io.Writer, logger *log.Logger, c clockwork.Clock) *Notifier {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{w: w, logger: logger, clock: c}
}

// Notify shows the summary of a finished run.
func (n *Notifier) Notify(_ context.Context, s types.Summary) {
	msg := Message(s)

	n.logger.Debug("showing notice",
		"query", s.Query,
		"message", msg,
		"dismiss_after", DismissAfter,
	)

	n.mu.Lock()
	n.seq++
	id := n.seq
	n.current = msg
	n.mu.Unlock()

	if n.w != nil {
		fmt.Fprintf(n.w, "%s: %s\n", Title, msg)
	}

	n.clock.AfterFunc(DismissAfter, func() { n.dismiss(id) })
}

// dismiss clears the notice unless a newer one replaced it.
func (n *Notifier) dismiss(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seq == id {
		n.current = ""
	}
}

// Current returns the notice still on display, or "".
func (n *Notifier) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}
