// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pdiddy/pliegos/internal/sink"
)

// WriteHistory writes past runs as a table, newest first as given.
func WriteHistory(w io.Writer, runs []sink.RunSummary, loc *time.Location) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No searches recorded.")
		return err
	}
	if loc == nil {
		loc = time.Local
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "RUN\tFINISHED\tQUERY\tRECORDS\tOK\tFAILED\tTIME")
	fmt.Fprintln(tw, strings.Join([]string{
		strings.Repeat("─", 8), strings.Repeat("─", 19), strings.Repeat("─", 30),
		strings.Repeat("─", 7), strings.Repeat("─", 2), strings.Repeat("─", 6), strings.Repeat("─", 6),
	}, "\t"))
	for _, rs := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.1fs\n",
			shortID(rs.RunID),
			rs.FinishedAt.Time().In(loc).Format("2006-01-02 15:04:05"),
			truncateQuery(rs.Query, 30),
			rs.TotalRecords,
			rs.Succeeded,
			rs.Failed,
			float64(rs.ElapsedMS)/1000,
		)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateQuery(q string, n int) string {
	r := []rune(q)
	if len(r) <= n {
		return q
	}
	return string(r[:n-3]) + "..."
}
