// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders finished runs for export: the plain-text summary
// the popup offered for download, JSON and YAML dumps of the stored
// aggregate, and a CSL-YAML bibliography for reference managers.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pliegos/pkg/types"
)

// Format names an export format.
type Format string

const (
	FormatTXT  Format = "txt"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSL  Format = "csl"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatTXT, FormatJSON, FormatYAML, FormatCSL}

// ErrUnknownFormat is returned for a format not in Formats.
var ErrUnknownFormat = errors.New("unknown export format")

// maxQueryInName bounds the query part of an export file name.
const maxQueryInName = 30

// Write renders r to w in the given format. now stamps the TXT header.
func Write(w io.Writer, f Format, r types.RunResult, now time.Time) error {
	switch f {
	case FormatTXT:
		return WriteTXT(w, r, now)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatYAML:
		return WriteYAML(w, r)
	case FormatCSL:
		return WriteCSL(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// WriteJSON writes r as indented JSON using the stored field names.
func WriteJSON(w io.Writer, r types.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes r as a YAML document.
func WriteYAML(w io.Writer, r types.RunResult) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// FileName returns the download name for an export of query at now,
// e.g. "pliegos-romance-de-ciego-2026-10-19T14-03-05.txt". The query keeps
// only ASCII letters, digits and spaces, with space runs turned into
// dashes, cut to 30 characters.
func FileName(query string, now time.Time, f Format) string {
	var b strings.Builder
	inSpace := false
	for _, r := range query {
		switch {
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
		case isASCIIAlnum(r):
			b.WriteRune(r)
			inSpace = false
		}
	}
	name := b.String()
	if len(name) > maxQueryInName {
		name = name[:maxQueryInName]
	}

	ext := string(f)
	if f == FormatCSL {
		ext = "yaml"
	}
	return fmt.Sprintf("pliegos-%s-%s.%s", name, now.UTC().Format("2006-01-02T15-04-05"), ext)
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
