// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browser

import (
	"html"
	"strings"

	"github.com/chromedp/cdproto/cdp"

	"github.com/pdiddy/pliegos/internal/dom"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true,
	"track": true, "wbr": true,
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

// Serialize writes a pierced DevTools node tree as HTML. Open and closed
// shadow roots become declarative <template shadowrootmode> children of
// their hosts so dom.Parse can rebuild the encapsulation. User-agent
// shadow roots, iframe documents and script content are dropped.
func Serialize(root *cdp.Node) string {
	var b strings.Builder
	writeNode(&b, root)
	return b.String()
}

func writeNode(b *strings.Builder, n *cdp.Node) {
	if n == nil {
		return
	}
	switch n.NodeType {
	case cdp.NodeTypeText:
		b.WriteString(html.EscapeString(n.NodeValue))
	case cdp.NodeTypeDocument, cdp.NodeTypeDocumentFragment:
		writeChildren(b, n)
	case cdp.NodeTypeElement:
		writeElement(b, n)
	}
}

func writeChildren(b *strings.Builder, n *cdp.Node) {
	for _, c := range n.Children {
		writeNode(b, c)
	}
}

func writeElement(b *strings.Builder, n *cdp.Node) {
	name := strings.ToLower(n.LocalName)
	if name == "" {
		name = strings.ToLower(n.NodeName)
	}
	if skippedElements[name] {
		return
	}

	b.WriteByte('<')
	b.WriteString(name)
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		b.WriteByte(' ')
		b.WriteString(n.Attributes[i])
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(n.Attributes[i+1]))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	if voidElements[name] {
		return
	}

	for _, sr := range n.ShadowRoots {
		mode := "open"
		switch sr.ShadowRootType {
		case cdp.ShadowRootTypeUserAgent:
			continue
		case cdp.ShadowRootTypeClosed:
			mode = "closed"
		}
		b.WriteString(`<template ` + dom.ShadowRootAttr + `="` + mode + `">`)
		writeChildren(b, sr)
		b.WriteString(`</template>`)
	}
	writeChildren(b, n)

	b.WriteString("</")
	b.WriteString(name)
	b.WriteByte('>')
}
