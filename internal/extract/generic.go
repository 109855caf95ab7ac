// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"github.com/pdiddy/pliegos/internal/dom"
	"github.com/pdiddy/pliegos/pkg/types"
)

// profile is the selector set the generic heuristic uses for one catalog.
// Item selectors run from most to least specific; field selectors are
// tried in order and the first non-empty match wins.
type profile struct {
	Items       []string
	Title       []string
	Author      []string
	Date        []string
	Description []string
	Printer     []string

	// Cells reads title, author, date and printer from the first four td
	// cells of a table row. Rows without cells use the field selectors.
	Cells bool
}

var profiles = map[types.SourceID]profile{
	types.SourceBNE: {
		Items:  []string{".resultado", ".item-resultado", ".documento", "article.resultado", ".search-result"},
		Title:  []string{".titulo", "h2", "h3", ".title"},
		Author: []string{".autor", ".author", ".creator"},
		Date:   []string{".fecha", ".date", ".year"},
	},
	types.SourceCordel: {
		Items:  []string{".search-result", ".result-item", ".cordel-item", "article"},
		Title:  []string{".title", "h2", "h3", ".titulo"},
		Author: []string{".author", ".autor", ".creator"},
		Date:   []string{".date", ".fecha", ".year"},
	},
	types.SourceMapping: {
		Items:  []string{"table tr", ".resultado", ".item"},
		Title:  []string{".titulo", "h2", "h3"},
		Author: []string{".autor", ".author"},
		Date:   []string{".fecha", ".date"},
		Cells:  true,
	},
	types.SourceAracne: {
		Items:       []string{".registro", ".resultado", ".result-item", "article"},
		Title:       []string{"h3", "h2", ".titulo", ".title"},
		Author:      []string{".autor", ".author"},
		Date:        []string{".fecha", ".date"},
		Description: []string{".descripcion", ".description", "p"},
	},
	types.SourceFunjdiaz: {
		Items:       []string{".pliego-item", ".item", ".resultado", "article", "tr"},
		Title:       []string{".titulo", "h2", "h3", ".title"},
		Date:        []string{".fecha", ".date"},
		Description: []string{".descripcion", "p", ".description"},
	},
}

// generic runs the selector heuristic against the top-level document.
func (x *run) generic(p profile) []types.Record {
	items := chooseItems(x.doc, p.Items)

	var out []types.Record
	for _, item := range items {
		x.guard("generic", func() {
			var f fields
			if cells := item.Find("td"); p.Cells && len(cells) > 0 {
				f = cellFields(cells)
			} else {
				f = fields{
					title:       firstText(item, p.Title),
					author:      firstText(item, p.Author),
					date:        firstText(item, p.Date),
					description: firstText(item, p.Description),
					printer:     firstText(item, p.Printer),
				}
			}
			if f.title == "" {
				return
			}
			rec := x.record(f.title, firstURL(x.doc, item))
			rec.Author = f.author
			rec.Date = f.date
			rec.Description = f.description
			rec.Printer = f.printer
			rec.Image = firstImage(x.doc, item)
			out = append(out, rec)
		})
	}
	return out
}

type fields struct {
	title, author, date, description, printer string
}

// cellFields maps row cells to fields by position. Missing cells leave
// their field empty.
func cellFields(cells []dom.Node) fields {
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i].Text()
		}
		return ""
	}
	return fields{title: cell(0), author: cell(1), date: cell(2), printer: cell(3)}
}

// chooseItems returns the elements of the first selector that matches at
// least one element with more than MinItemText characters of text.
func chooseItems(doc dom.DocumentView, selectors []string) []dom.Node {
	for _, sel := range selectors {
		nodes := doc.Find(sel)
		for _, n := range nodes {
			if textLen(n.Text()) > MinItemText {
				return nodes
			}
		}
	}
	return nil
}

func firstText(n dom.Node, selectors []string) string {
	for _, sel := range selectors {
		if m := n.Find(sel); len(m) > 0 {
			if t := m[0].Text(); t != "" {
				return t
			}
		}
	}
	return ""
}

func firstURL(doc dom.DocumentView, n dom.Node) string {
	for _, a := range n.Find("a[href]") {
		if u := doc.Resolve(a.Attr("href")); u != "" {
			return u
		}
	}
	return ""
}

func firstImage(doc dom.DocumentView, n dom.Node) string {
	imgs := n.Find("img[src]")
	if len(imgs) == 0 {
		return ""
	}
	return doc.Resolve(imgs[0].Attr("src"))
}
