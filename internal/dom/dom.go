// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dom provides a read-only view of a rendered page. A
// DocumentView answers selector queries over the light DOM and exposes
// shadow roots only through their hosts, so encapsulated content is never
// matched by an ordinary query on the outer document.
package dom

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node is one element of a DocumentView.
type Node interface {
	// Tag is the lower-case element name.
	Tag() string

	// Text is the visible text with whitespace collapsed.
	Text() string

	Attr(name string) string

	// Find returns the descendants matching a CSS selector, in document
	// order. It does not cross into shadow roots.
	Find(selector string) []Node

	// ShadowRoot returns the element's shadow tree, or nil.
	ShadowRoot() DocumentView
}

// DocumentView is a queryable page or shadow tree.
type DocumentView interface {
	// URL is the address of the page the view was taken from.
	URL() string

	Find(selector string) []Node

	// Resolve turns an href into an absolute URL against the page
	// address. It returns "" when no absolute URL can be formed.
	Resolve(href string) string

	// ShadowHosts returns the elements of this tree that carry a shadow
	// root, in document order.
	ShadowHosts() []Node
}

// ShadowRootAttr marks a <template> element holding the shadow tree of
// its parent, following the declarative shadow DOM serialization.
const ShadowRootAttr = "shadowrootmode"

// HTMLView is a DocumentView backed by a parsed HTML tree.
type HTMLView struct {
	doc     *goquery.Document
	base    *url.URL
	rawURL  string
	shadows map[*html.Node]*HTMLView
}

// Parse builds a view from serialized HTML. Declarative shadow roots
// (<template shadowrootmode>) are detached from their hosts and kept as
// separate trees reachable only through Node.ShadowRoot.
func Parse(src, pageURL string) (*HTMLView, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return FromNode(root, pageURL), nil
}

// FromNode builds a view over an already-parsed tree. The tree is
// modified: shadow templates are removed from it.
func FromNode(root *html.Node, pageURL string) *HTMLView {
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		base = nil
	}
	shadows := make(map[*html.Node]*HTMLView)
	v := &HTMLView{
		doc:     goquery.NewDocumentFromNode(root),
		base:    base,
		rawURL:  pageURL,
		shadows: shadows,
	}

	for _, tmpl := range collectTemplates(root) {
		host := tmpl.Parent
		if host == nil || host.Type != html.ElementNode {
			continue
		}
		host.RemoveChild(tmpl)

		shadowRoot := &html.Node{Type: html.DocumentNode}
		for c := tmpl.FirstChild; c != nil; {
			next := c.NextSibling
			tmpl.RemoveChild(c)
			shadowRoot.AppendChild(c)
			c = next
		}
		shadows[host] = &HTMLView{
			doc:     goquery.NewDocumentFromNode(shadowRoot),
			base:    base,
			rawURL:  pageURL,
			shadows: shadows,
		}
	}
	return v
}

// collectTemplates returns shadow templates in document order, outer
// templates before the ones nested inside them.
func collectTemplates(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "template" && hasAttr(n, ShadowRootAttr) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// URL implements DocumentView.
func (v *HTMLView) URL() string { return v.rawURL }

// Find implements DocumentView.
func (v *HTMLView) Find(selector string) []Node {
	return v.wrap(v.doc.Find(selector))
}

// Resolve implements DocumentView.
func (v *HTMLView) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if v.base != nil {
		ref = v.base.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return ""
	}
	return ref.String()
}

// ShadowHosts implements DocumentView.
func (v *HTMLView) ShadowHosts() []Node {
	var hosts []Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if _, ok := v.shadows[n]; ok {
			hosts = append(hosts, &element{sel: v.doc.FindNodes(n), view: v})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range v.doc.Nodes {
		walk(n)
	}
	return hosts
}

func (v *HTMLView) wrap(sel *goquery.Selection) []Node {
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &element{sel: s, view: v})
	})
	return nodes
}

type element struct {
	sel  *goquery.Selection
	view *HTMLView
}

func (e *element) Tag() string { return goquery.NodeName(e.sel) }

func (e *element) Text() string {
	if len(e.sel.Nodes) == 0 {
		return ""
	}
	return VisibleText(e.sel.Nodes[0])
}

func (e *element) Attr(name string) string {
	val, _ := e.sel.Attr(name)
	return val
}

func (e *element) Find(selector string) []Node {
	return e.view.wrap(e.sel.Find(selector))
}

func (e *element) ShadowRoot() DocumentView {
	if len(e.sel.Nodes) == 0 {
		return nil
	}
	if sr, ok := e.view.shadows[e.sel.Nodes[0]]; ok {
		return sr
	}
	return nil
}

// VisibleText returns the text content of n with script, style and
// template contents dropped and runs of whitespace collapsed to one space.
func VisibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte(' ')
		}
	}
	walk(n)
	return Normalize(b.String())
}

var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "td": true, "th": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"article": true, "section": true, "header": true, "footer": true,
}

// Normalize collapses whitespace runs and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
