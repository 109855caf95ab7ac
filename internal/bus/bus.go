// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bus carries requests and job reports between the page agents,
// the orchestrator and outside callers. Field names on the wire match the
// popup protocol of the original browser extension surface.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/pdiddy/pliegos/pkg/types"
)

// ErrNoReceiver is returned when nothing is serving the bus.
var ErrNoReceiver = errors.New("no receiver")

// Action names a message type.
type Action string

const (
	ActionOpenTabs  Action = "openTabs"
	ActionSearch    Action = "searchWithScraping"
	ActionCompleted Action = "scrapingCompleto"
	ActionFailed    Action = "scrapingError"
)

// SourceInfo describes one target of a search request.
type SourceInfo struct {
	ID   types.SourceID `json:"id"`
	Name string         `json:"nombre"`
	URL  string         `json:"url"`
	Page int            `json:"pagina,omitempty"`
}

// Message is a request on the bus. Which fields are set depends on Action.
type Message struct {
	Action Action `json:"action"`

	// openTabs and searchWithScraping.
	URLs      []string     `json:"urls,omitempty"`
	NewWindow bool         `json:"newWindow,omitempty"`
	Query     string       `json:"query,omitempty"`
	Sources   []SourceInfo `json:"fuentesInfo,omitempty"`

	// scrapingCompleto and scrapingError.
	RunID      string         `json:"runId,omitempty"`
	TabID      int            `json:"tabId,omitempty"`
	SourceName string         `json:"fuente,omitempty"`
	SourceID   types.SourceID `json:"sourceId,omitempty"`
	Hostname   string         `json:"hostname,omitempty"`
	Records    []types.Record `json:"resultados,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  types.Millis   `json:"timestamp,omitempty"`
}

// Response answers a Message.
type Response struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	TabsOpened int    `json:"tabsAbiertos,omitempty"`
	Message    string `json:"message,omitempty"`
	RunID      string `json:"runId,omitempty"`
}

// Fail builds an unsuccessful Response from err.
func Fail(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// Handler processes one message.
type Handler func(ctx context.Context, msg Message) Response

// Bus is a request/reply channel.
type Bus interface {
	// Send delivers msg and waits for the reply.
	Send(ctx context.Context, msg Message) (Response, error)

	// Serve installs h as the receiver. The returned stop func removes it.
	Serve(h Handler) (func(), error)
}

// Local is an in-process Bus. Send runs the handler on the caller's
// goroutine.
type Local struct {
	mu      sync.RWMutex
	handler Handler
}

// NewLocal returns an empty Local bus.
func NewLocal() *Local {
	return &Local{}
}

// Send implements Bus.
func (l *Local) Send(ctx context.Context, msg Message) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	l.mu.RLock()
	h := l.handler
	l.mu.RUnlock()
	if h == nil {
		return Response{}, ErrNoReceiver
	}
	return h(ctx, msg), nil
}

// Serve implements Bus. A second Serve replaces the first receiver.
func (l *Local) Serve(h Handler) (func(), error) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.handler = nil
		l.mu.Unlock()
	}, nil
}
