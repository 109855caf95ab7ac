// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pliegos/pkg/types"
)

// CSLItem is a bibliographic entry in CSL-YAML form, consumable by Pandoc
// and reference managers.
type CSLItem struct {
	ID        string    `yaml:"id"`
	Type      string    `yaml:"type"`
	Title     string    `yaml:"title"`
	Author    []CSLName `yaml:"author,omitempty"`
	Issued    *CSLDate  `yaml:"issued,omitempty"`
	Publisher string    `yaml:"publisher,omitempty"`
	Abstract  string    `yaml:"abstract,omitempty"`
	Archive   string    `yaml:"archive,omitempty"`
	URL       string    `yaml:"URL,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a date in CSL date-parts form.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// yearRe finds a plausible printing year inside free-text catalog dates
// such as "[Madrid, ca. 1780]" or "s. XVIII (1765?)".
var yearRe = regexp.MustCompile(`\b1[4-9]\d{2}\b`)

// WriteCSL writes every record of r as a CSL-YAML list.
func WriteCSL(w io.Writer, r types.RunResult) error {
	var items []CSLItem
	for _, jr := range r.Results {
		for _, rec := range jr.Records {
			items = append(items, toCSLItem(rec))
		}
	}
	if items == nil {
		items = []CSLItem{}
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

func toCSLItem(rec types.Record) CSLItem {
	item := CSLItem{
		ID:        rec.ID,
		Type:      "book",
		Title:     rec.Title,
		Publisher: rec.Printer,
		Abstract:  rec.Description,
		Archive:   rec.Source,
		URL:       rec.URL,
	}
	if rec.Author != "" {
		item.Author = []CSLName{parseAuthorName(rec.Author)}
	}
	if y := yearRe.FindString(rec.Date); y != "" {
		year, _ := strconv.Atoi(y)
		item.Issued = &CSLDate{DateParts: [][]int{{year}}}
	}
	return item
}

// parseAuthorName splits a catalog heading "Family, Given" into CSL parts.
// Anything without a comma is kept whole as a literal.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	family, given, ok := strings.Cut(name, ",")
	if !ok {
		return CSLName{Literal: name}
	}
	family = strings.TrimSpace(family)
	given = strings.TrimSpace(given)
	if family == "" || given == "" {
		return CSLName{Literal: name}
	}
	return CSLName{Family: family, Given: given}
}
