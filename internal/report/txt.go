// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/pliegos/pkg/types"
)

const rule = "═══════════════════════════════════════════════════════════"

// Footer lines close every TXT export.
const (
	GeneratedBy = "Generado por Metabuscador de Pliegos v2.0"
	ProjectURL  = "https://github.com/Rafav/pliegos"
)

// WriteTXT writes the human-readable summary of r: a header with the
// query and counts, one section per successful source listing its
// records, and a section for failed sources.
func WriteTXT(w io.Writer, r types.RunResult, now time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, "      METABUSCADOR DE PLIEGOS - RESULTADOS SCRAPING         ")
	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Búsqueda:          \"%s\"\n", r.Query)
	fmt.Fprintf(bw, "Fecha:             %s\n", now.Format("02/01/2006, 15:04:05"))
	fmt.Fprintf(bw, "Total resultados:  %d\n", r.TotalRecords())
	fmt.Fprintf(bw, "Tiempo:            %.1fs\n", float64(r.Elapsed)/1000)
	fmt.Fprintf(bw, "Fuentes exitosas:  %d\n", len(r.Results))
	fmt.Fprintf(bw, "Fuentes con error: %d\n", len(r.Errors))
	fmt.Fprintln(bw)

	for _, jr := range r.Results {
		writeSource(bw, jr)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(bw, rule)
		fmt.Fprintln(bw, "  FUENTES CON ERRORES  ")
		fmt.Fprintln(bw, rule)
		fmt.Fprintln(bw)
		for _, je := range r.Errors {
			fmt.Fprintf(bw, "❌ %s\n", orDefault(je.Source, "Desconocida"))
			fmt.Fprintf(bw, "   Error: %s\n\n", orDefault(je.Error, "Error desconocido"))
		}
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, GeneratedBy)
	fmt.Fprintln(bw, ProjectURL)
	fmt.Fprintln(bw, rule)

	return bw.Flush()
}

func writeSource(w io.Writer, jr types.JobResult) {
	name := strings.ToUpper(jr.Source)
	sep := strings.Repeat("=", utf8.RuneCountInString(name)+4)

	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "  %s  \n", name)
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "Resultados encontrados: %d\n\n", len(jr.Records))

	if len(jr.Records) == 0 {
		fmt.Fprint(w, "(Sin resultados)\n\n")
	}
	for i, rec := range jr.Records {
		fmt.Fprintf(w, "%d. %s\n", i+1, rec.Title)
		fmt.Fprintf(w, "   URL: %s\n", rec.URL)
		if rec.Author != "" {
			fmt.Fprintf(w, "   Autor: %s\n", rec.Author)
		}
		if rec.Date != "" {
			fmt.Fprintf(w, "   Fecha: %s\n", rec.Date)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
