// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns a rendered catalog results page into records.
// Dispatch is closed over types.SourceID: three catalogs use the generic
// selector heuristic, funjdiaz uses link-listing extraction and bne walks
// a waterfall of shadow-tree strategies before falling back to the
// heuristic.
package extract

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/pdiddy/pliegos/internal/dom"
	"github.com/pdiddy/pliegos/internal/sources"
	"github.com/pdiddy/pliegos/pkg/types"
)

// ErrUnknownSource is returned for a source outside the known catalogs.
var ErrUnknownSource = errors.New("unknown source")

const (
	// MinItemText is the visible text length a candidate element must
	// exceed for its selector to be chosen.
	MinItemText = 20

	// MaxTitle bounds the title length, in characters.
	MaxTitle = 200
)

// Extractor produces records from documents. The zero value is usable.
type Extractor struct {
	// Logger receives per-element failures at debug level.
	Logger *log.Logger
}

// New returns an Extractor logging to logger.
func New(logger *log.Logger) *Extractor {
	return &Extractor{Logger: logger}
}

// Extract returns the records of doc in document order. IDs are drawn
// from seq.
func (e *Extractor) Extract(doc dom.DocumentView, src types.SourceID, seq *types.Sequence) ([]types.Record, error) {
	if !src.Known() {
		return nil, fmt.Errorf("extracting %q: %w", src, ErrUnknownSource)
	}
	if doc == nil {
		return nil, fmt.Errorf("extracting %s: no document", src)
	}
	if seq == nil {
		seq = &types.Sequence{}
	}

	x := &run{
		doc:    doc,
		src:    src,
		name:   sources.Name(src),
		seq:    seq,
		logger: e.logger(),
	}
	switch src {
	case types.SourceFunjdiaz:
		if recs := x.linkListing(); len(recs) > 0 {
			return recs, nil
		}
		return x.generic(profiles[src]), nil
	case types.SourceBNE:
		return x.waterfall(bneSteps), nil
	default:
		return x.generic(profiles[src]), nil
	}
}

func (e *Extractor) logger() *log.Logger {
	if e == nil || e.Logger == nil {
		return log.Default()
	}
	return e.Logger
}

// run carries the state of one Extract call.
type run struct {
	doc    dom.DocumentView
	src    types.SourceID
	name   string
	seq    *types.Sequence
	logger *log.Logger
}

// guard runs fn, turning a panic into a skipped element.
func (x *run) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Debug("skipping element", "source", x.src, "step", what, "panic", r)
		}
	}()
	fn()
}

func (x *run) record(title, url string) types.Record {
	return types.Record{
		ID:     x.seq.Next(x.src),
		Title:  truncate(title, MaxTitle),
		URL:    url,
		Source: x.name,
	}
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func textLen(s string) int {
	return len([]rune(s))
}
