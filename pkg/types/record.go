// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the pliegos scraping
// pipeline: records extracted from catalog pages, per-tab job outcomes,
// finalized run results, and configuration.
package types

import (
	"fmt"
	"sync/atomic"
	"time"
)

// SourceID identifies one of the known bibliographic catalogs. The set is
// closed; anything else resolves to SourceUnknown.
type SourceID string

const (
	SourceUnknown  SourceID = ""
	SourceBNE      SourceID = "bne"
	SourceCordel   SourceID = "cordel"
	SourceMapping  SourceID = "mapping"
	SourceAracne   SourceID = "aracne"
	SourceFunjdiaz SourceID = "funjdiaz"
)

// AllSources lists the known catalogs in display order.
var AllSources = []SourceID{SourceBNE, SourceCordel, SourceMapping, SourceAracne, SourceFunjdiaz}

// Known reports whether id is one of the closed set of catalogs.
func (id SourceID) Known() bool {
	for _, s := range AllSources {
		if s == id {
			return true
		}
	}
	return false
}

// Record is one bibliographic entry extracted from a results page.
// Records are immutable once produced. JSON keys follow the wire format
// shared with the popup surface.
type Record struct {
	// ID is unique within a run: source tag plus a monotonic counter.
	ID string `json:"id" yaml:"id"`

	// Title is required; records without one are never emitted.
	Title string `json:"titulo" yaml:"titulo"`

	// Author is the free-text author line, if any.
	Author string `json:"autor,omitempty" yaml:"autor,omitempty"`

	// Date is the unnormalized date text as shown by the catalog.
	Date string `json:"fecha,omitempty" yaml:"fecha,omitempty"`

	// URL is the absolute item address, or empty when unresolved.
	URL string `json:"url" yaml:"url"`

	// Source is the human-readable catalog name.
	Source string `json:"fuente" yaml:"fuente"`

	// Description, Printer and Image are filled only by catalogs that
	// show them on the results page.
	Description string `json:"descripcion,omitempty" yaml:"descripcion,omitempty"`
	Printer     string `json:"impresor,omitempty" yaml:"impresor,omitempty"`
	Image       string `json:"imagen,omitempty" yaml:"imagen,omitempty"`
}

// Sequence hands out record IDs for one run. It is safe for concurrent use
// by the page agents of a run.
type Sequence struct {
	n atomic.Uint64
}

// Next returns "<tag>_<n>" with n starting at 1.
func (s *Sequence) Next(tag SourceID) string {
	return fmt.Sprintf("%s_%d", tag, s.n.Add(1))
}

// Millis is a Unix timestamp in milliseconds, the unit used by the
// persisted result layout.
type Millis int64

// MillisOf converts t to Millis.
func MillisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time converts m back to a time.Time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}
