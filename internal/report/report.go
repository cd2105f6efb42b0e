// Package report renders ledger and verification results as text tables
// for the status, verify and prepare commands.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/pdiddy/satfetch/internal/inspect"
	"github.com/pdiddy/satfetch/internal/ledger"
	"github.com/pdiddy/satfetch/internal/prepare"
	"github.com/pdiddy/satfetch/pkg/types"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	return table
}

// Status prints image counts by status and the most recent run.
func Status(w io.Writer, s ledger.Summary) {
	table := newTable(w, "Status", "Count")
	table.Append([]string{string(types.StatusDownloaded), strconv.Itoa(s.Downloaded)})
	table.Append([]string{string(types.StatusSkipped), strconv.Itoa(s.Skipped)})
	table.Append([]string{string(types.StatusFailed), strconv.Itoa(s.Failed)})
	table.Append([]string{"blank", strconv.Itoa(s.Blank)})
	table.SetFooter([]string{"Total", strconv.Itoa(s.Total())})
	table.Render()

	if s.LastRun == nil {
		fmt.Fprintf(w, "\nNo runs recorded.\n")
		return
	}
	r := s.LastRun
	fmt.Fprintf(w, "\nRuns: %d\n", s.Runs)
	fmt.Fprintf(w, "Last run %s started %s", r.ID, r.StartedAt.Local().Format(timeLayout))
	switch {
	case r.FinishedAt.IsZero():
		fmt.Fprintf(w, " (unfinished)\n")
	case r.Aborted:
		fmt.Fprintf(w, " (aborted after %s)\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	default:
		fmt.Fprintf(w, " (took %s)\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(w, "  total %d, downloaded %d, skipped %d, failed %d\n",
		r.Total, r.Downloaded, r.Skipped, r.Failed)
}

// Failures prints one row per failed property.
func Failures(w io.Writer, recs []types.ImageRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No failures recorded.")
		return
	}
	table := newTable(w, "ID", "HTTP", "Error", "Updated")
	for _, r := range recs {
		code := "-"
		if r.HTTPStatus != 0 {
			code = strconv.Itoa(r.HTTPStatus)
		}
		table.Append([]string{r.PropertyID, code, r.Error, r.UpdatedAt.Local().Format(timeLayout)})
	}
	table.Render()
}

// Record prints one manifest entry as field/value rows. Empty fields are left out.
func Record(w io.Writer, r types.ImageRecord) {
	table := newTable(w, "Field", "Value")
	add := func(field, value string) {
		if value != "" {
			table.Append([]string{field, value})
		}
	}
	add("id", r.PropertyID)
	add("status", string(r.Status))
	add("location", strconv.FormatFloat(r.Lat, 'f', -1, 64)+", "+strconv.FormatFloat(r.Lon, 'f', -1, 64))
	if r.HTTPStatus != 0 {
		add("http", strconv.Itoa(r.HTTPStatus))
	}
	add("path", r.Path)
	if r.Width > 0 {
		add("size", fmt.Sprintf("%dx%d (%d bytes)", r.Width, r.Height, r.Bytes))
	}
	if r.Blank {
		add("blank", "yes, mean "+r.MeanColor)
	}
	add("error", r.Error)
	add("run", r.RunID)
	if !r.UpdatedAt.IsZero() {
		add("updated", r.UpdatedAt.Local().Format(timeLayout))
	}
	table.Render()
}

// VerifyCounts tallies a verify pass.
type VerifyCounts struct {
	Checked int
	OK      int
	Blank   int
	Corrupt int
}

// Verify prints the images that failed to decode or look blank, followed
// by a summary line, and returns the tallies.
func Verify(w io.Writer, reports []inspect.FileReport) VerifyCounts {
	var c VerifyCounts
	table := newTable(w, "File", "Problem", "Detail")
	for _, r := range reports {
		c.Checked++
		name := filepath.Base(r.Path)
		switch {
		case r.Err != nil:
			c.Corrupt++
			table.Append([]string{name, "corrupt", r.Err.Error()})
		case r.Info.Blank:
			c.Blank++
			table.Append([]string{name, "blank", "mean " + r.Info.MeanColor})
		default:
			c.OK++
		}
	}
	if c.Corrupt+c.Blank > 0 {
		table.Render()
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Checked %d images: %d ok, %d blank, %d corrupt\n", c.Checked, c.OK, c.Blank, c.Corrupt)
	return c
}

// Prepare prints what a cleaning pass kept and dropped.
func Prepare(w io.Writer, r prepare.Report) {
	table := newTable(w, "Rows", "Count")
	table.Append([]string{"read", strconv.Itoa(r.Read)})
	table.Append([]string{"empty id", strconv.Itoa(r.EmptyID)})
	table.Append([]string{"invalid id", strconv.Itoa(r.BadID)})
	table.Append([]string{"duplicate id", strconv.Itoa(r.DuplicateID)})
	table.Append([]string{"bad coordinate", strconv.Itoa(r.BadCoordinate)})
	if r.HasPrice {
		table.Append([]string{"bad price", strconv.Itoa(r.BadPrice)})
	}
	table.SetFooter([]string{"Kept", strconv.Itoa(r.Kept)})
	table.Render()
}
