// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sources describes the known bibliographic catalogs: their
// display names, search URL templates, pagination schemes, and the host
// patterns used to recognize their pages.
package sources

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/pliegos/pkg/types"
)

// PaginationType selects how follow-up result pages are addressed.
type PaginationType string

const (
	// PageNumber addresses pages as 1, 2, 3...
	PageNumber PaginationType = "page"
	// StartOffset addresses pages by the index of their first result.
	StartOffset PaginationType = "start"
)

// Pagination describes how a catalog pages its results. A nil
// *Pagination means the catalog returns everything on one page.
type Pagination struct {
	Type           PaginationType
	Param          string
	ResultsPerPage int

	// OneBased marks start offsets that count from 1 (1, 11, 21...)
	// instead of 0 (0, 10, 20...).
	OneBased bool

	// Template is the URL for pages after the first. It contains {query}
	// and either {page} or {start}.
	Template string
}

// Source is one catalog definition.
type Source struct {
	ID   types.SourceID
	Name string

	// Host is matched as a substring of the page hostname.
	Host string

	// SearchURL is the first results page; it contains {query}.
	SearchURL  string
	Pagination *Pagination
}

var catalog = map[types.SourceID]Source{
	types.SourceBNE: {
		ID:        types.SourceBNE,
		Name:      "BNE Digital",
		Host:      "bnedigital.bne.es",
		SearchURL: "https://bnedigital.bne.es/bd/es/results?y=s&w={query}&f=ficha&g=ws",
		Pagination: &Pagination{
			Type:           StartOffset,
			Param:          "s",
			ResultsPerPage: 10,
			Template:       "https://bnedigital.bne.es/bd/es/results?y=s&w={query}&f=ficha&g=ws&s={start}",
		},
	},
	types.SourceCordel: {
		ID:        types.SourceCordel,
		Name:      "Desenrollando el cordel",
		Host:      "desenrollandoelcordel",
		SearchURL: "https://desenrollandoelcordel.unige.ch/search.html?query={query}&start=1",
		Pagination: &Pagination{
			Type:           StartOffset,
			Param:          "start",
			ResultsPerPage: 10,
			OneBased:       true,
			Template:       "https://desenrollandoelcordel.unige.ch/search.html?query={query}&start={start}",
		},
	},
	types.SourceMapping: {
		ID:        types.SourceMapping,
		Name:      "Mapping Pliegos",
		Host:      "biblioteca.cchs.csic.es",
		SearchURL: "https://biblioteca.cchs.csic.es/MappingPliegos/resultadobusquedavanzada.php?TITULO={query}",
	},
	types.SourceAracne: {
		ID:        types.SourceAracne,
		Name:      "Red-aracne",
		Host:      "red-aracne",
		SearchURL: "https://www.red-aracne.es/busqueda/resultados.htm?av=true&tituloDescricion={query}",
		Pagination: &Pagination{
			Type:           PageNumber,
			Param:          "paxina",
			ResultsPerPage: 10,
			Template:       "https://www.red-aracne.es/busqueda/resultados.htm?paxina={page}&tituloDescricion={query}&av=true",
		},
	},
	types.SourceFunjdiaz: {
		ID:        types.SourceFunjdiaz,
		Name:      "Fundación Joaquín Díaz",
		Host:      "funjdiaz",
		SearchURL: "https://funjdiaz.net/pliegos-listado.php?t={query}",
		Pagination: &Pagination{
			Type:           PageNumber,
			Param:          "pag",
			ResultsPerPage: 20,
			Template:       "https://funjdiaz.net/pliegos-listado.php?t={query}&pag={page}",
		},
	},
}

// Get returns the definition for id.
func Get(id types.SourceID) (Source, bool) {
	s, ok := catalog[id]
	return s, ok
}

// All returns every catalog in display order.
func All() []Source {
	out := make([]Source, 0, len(types.AllSources))
	for _, id := range types.AllSources {
		out = append(out, catalog[id])
	}
	return out
}

// Name returns the display name for id, or the raw id when unknown.
func Name(id types.SourceID) string {
	if s, ok := catalog[id]; ok {
		return s.Name
	}
	return string(id)
}

// Resolve maps a page hostname to its catalog. Unrecognized hosts
// resolve to types.SourceUnknown.
func Resolve(hostname string) types.SourceID {
	h := strings.ToLower(hostname)
	if h == "" {
		return types.SourceUnknown
	}
	for _, id := range types.AllSources {
		if strings.Contains(h, catalog[id].Host) {
			return id
		}
	}
	return types.SourceUnknown
}

// ResolveURL maps a page address to its catalog.
func ResolveURL(rawURL string) types.SourceID {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.SourceUnknown
	}
	return Resolve(u.Hostname())
}

// ParseIDs converts a comma-separated list of catalog ids. An empty
// string selects every catalog.
func ParseIDs(list string) ([]types.SourceID, error) {
	if strings.TrimSpace(list) == "" {
		return append([]types.SourceID(nil), types.AllSources...), nil
	}
	var ids []types.SourceID
	for _, part := range strings.Split(list, ",") {
		id := types.SourceID(strings.ToLower(strings.TrimSpace(part)))
		if id == "" {
			continue
		}
		if !id.Known() {
			return nil, fmt.Errorf("unknown source %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no sources selected")
	}
	return ids, nil
}

// Target is one URL to open, tagged with the catalog it belongs to.
type Target struct {
	Source types.SourceID
	Page   int
	URL    string
}

// BuildURLs expands the query into the ordered list of result pages to
// visit. Each catalog contributes its first page followed by pages
// 2..pages when it paginates.
func BuildURLs(ids []types.SourceID, query string, pages int) []Target {
	if pages < 1 {
		pages = 1
	}
	q := escapeQuery(query)

	var targets []Target
	for _, id := range ids {
		src, ok := catalog[id]
		if !ok {
			continue
		}
		targets = append(targets, Target{
			Source: id,
			Page:   1,
			URL:    strings.ReplaceAll(src.SearchURL, "{query}", q),
		})

		if src.Pagination == nil {
			continue
		}
		for page := 2; page <= pages; page++ {
			targets = append(targets, Target{
				Source: id,
				Page:   page,
				URL:    src.Pagination.pageURL(q, page),
			})
		}
	}
	return targets
}

// escapeQuery percent-encodes the query the way browsers encode a URI
// component: spaces become %20 rather than '+'.
func escapeQuery(query string) string {
	return strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
}

func (p *Pagination) pageURL(escapedQuery string, page int) string {
	u := strings.ReplaceAll(p.Template, "{query}", escapedQuery)
	switch p.Type {
	case PageNumber:
		return strings.ReplaceAll(u, "{page}", strconv.Itoa(page))
	default:
		start := (page - 1) * p.ResultsPerPage
		if p.OneBased {
			start++
		}
		return strings.ReplaceAll(u, "{start}", strconv.Itoa(start))
	}
}

// URLs flattens targets into their addresses.
func URLs(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.URL
	}
	return out
}
