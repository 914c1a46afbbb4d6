//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

// WriteSummary renders a run result as tables.
func WriteSummary(w io.Writer, res *Result) {
	c := res.Counts

	fmt.Fprintf(w, "Run %s finished in %s\n\n", res.RunID, res.Duration.Round(time.Millisecond))

	sources := newTable(w, []string{"Source", "Extracted", "Reconciled"})
	sources.Append([]string{model.SourceStore, itoa(c.StoresExtracted), itoa(c.StoresReconciled)})
	sources.Append([]string{model.SourceSales, itoa(c.SalesExtracted), itoa(c.SalesReconciled)})
	sources.Render()
	fmt.Fprintln(w)

	dims := newTable(w, []string{"Dimension", "Created", "Reused"})
	for _, name := range warehouse.Dimensions {
		s := res.Dimensions[name]
		dims.Append([]string{name, itoa(s.Created), itoa(s.Reused)})
	}
	dims.Render()
	fmt.Fprintln(w)

	totals := newTable(w, []string{"Total", "Rows"})
	totals.Append([]string{"facts inserted", itoa(c.FactsInserted)})
	totals.Append([]string{"sales skipped", itoa(c.SalesSkipped)})
	screens := make([]string, 0, len(res.Screens))
	for name := range res.Screens {
		screens = append(screens, name)
	}
	sort.Strings(screens)
	for _, name := range screens {
		totals.Append([]string{"screen " + name, itoa(res.Screens[name])})
	}
	totals.Render()
}

// WriteHistory renders run log entries, newest first.
func WriteHistory(w io.Writer, records []warehouse.RunRecord) {
	table := newTable(w, []string{"Run", "Started", "Status", "Duration", "Facts", "Skipped", "Screens", "Error"})
	for _, r := range records {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		table.Append([]string{
			r.RunID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			duration,
			itoa(r.Counts.FactsInserted),
			itoa(r.Counts.SalesSkipped),
			itoa(r.Counts.ScreenFindings),
			r.Error,
		})
	}
	table.Render()
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
