// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"strings"

	"github.com/pdiddy/pliegos/internal/dom"
	"github.com/pdiddy/pliegos/pkg/types"
)

const (
	// ResultsElement is the custom element hosting bne results.
	ResultsElement = "bne-results"

	// shadowLinkSelector matches item links inside a shadow tree.
	shadowLinkSelector = `a[href*="/card"]`

	// plainLinkSelector matches item links in the light DOM.
	plainLinkSelector = `a[href*="/card?"]`

	// MinPlainLinkText is the text a light-DOM item link must exceed.
	MinPlainLinkText = 10

	searchPagePath = "/results?"
)

// AlternateResultsElements are tried when ResultsElement yields nothing.
var AlternateResultsElements = []string{"bne-search-results", "bd-results-list", "results-list"}

// step is one strategy of a waterfall.
type step struct {
	name string
	run  func(x *run) []types.Record
}

var bneSteps = []step{
	{"named-element", func(x *run) []types.Record {
		return x.fromElements(ResultsElement)
	}},
	{"alternate-elements", func(x *run) []types.Record {
		for _, tag := range AlternateResultsElements {
			if recs := x.fromElements(tag); len(recs) > 0 {
				return recs
			}
		}
		return nil
	}},
	{"any-shadow-host", func(x *run) []types.Record {
		for _, host := range x.doc.ShadowHosts() {
			if recs := x.fromShadow(host.ShadowRoot()); len(recs) > 0 {
				return recs
			}
		}
		return nil
	}},
	{"plain-links", func(x *run) []types.Record {
		return x.plainLinks()
	}},
	{"generic", func(x *run) []types.Record {
		return x.generic(profiles[x.src])
	}},
}

// waterfall runs steps in order and returns the first non-empty result.
func (x *run) waterfall(steps []step) []types.Record {
	for _, s := range steps {
		var recs []types.Record
		x.guard(s.name, func() { recs = s.run(x) })
		if len(recs) > 0 {
			x.logger.Debug("waterfall step matched", "source", x.src, "step", s.name, "records", len(recs))
			return recs
		}
	}
	return nil
}

// fromElements collects item links from the shadow trees of every
// element named tag.
func (x *run) fromElements(tag string) []types.Record {
	var out []types.Record
	for _, host := range x.doc.Find(tag) {
		out = append(out, x.fromShadow(host.ShadowRoot())...)
	}
	return out
}

// fromShadow collects item links from a shadow tree and, recursively,
// from the shadow trees nested inside it.
func (x *run) fromShadow(root dom.DocumentView) []types.Record {
	if root == nil {
		return nil
	}
	var out []types.Record
	for _, a := range root.Find(shadowLinkSelector) {
		x.guard("shadow-link", func() {
			text := a.Text()
			if textLen(text) <= MinLinkText {
				return
			}
			out = append(out, x.record(text, root.Resolve(a.Attr("href"))))
		})
	}
	for _, host := range root.ShadowHosts() {
		out = append(out, x.fromShadow(host.ShadowRoot())...)
	}
	return out
}

func (x *run) plainLinks() []types.Record {
	var out []types.Record
	for _, a := range x.doc.Find(plainLinkSelector) {
		x.guard("plain-link", func() {
			href := a.Attr("href")
			if strings.Contains(href, searchPagePath) {
				return
			}
			text := a.Text()
			if textLen(text) <= MinPlainLinkText {
				return
			}
			out = append(out, x.record(text, x.doc.Resolve(href)))
		})
	}
	return out
}
