package commands

import (
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/models"
	"github.com/maltedev/basket-harvester/internal/profile"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderProfiles(w io.Writer, profiles []*profile.Profile) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Mode", "Pages", "Columns", "Start URL"})
	for _, p := range profiles {
		t.AppendRow(table.Row{p.Name, p.Mode, p.Pages, strings.Join(p.Columns, ", "), p.StartURL})
	}
	t.Render()
}

func renderRunSummary(w io.Writer, run *models.HarvestRun) {
	t := newTable(w)
	t.SetTitle("Harvest " + run.ID.String())
	t.AppendRows([]table.Row{
		{"Profile", run.Profile},
		{"Outcome", run.Outcome},
		{"Pages visited", run.PagesVisited},
		{"Page errors", run.PageErrors},
		{"Records", run.RecordCount},
		{"Artifact", run.Artifact},
		{"Duration", run.Duration().Round(time.Millisecond)},
	})
	if run.Error != "" {
		t.AppendRow(table.Row{"Error", run.Error})
	}
	t.Render()
}

func renderRuns(w io.Writer, runs []*models.HarvestRun) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Profile", "Outcome", "Pages", "Records", "Started"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.ID, r.Profile, r.Outcome, r.PagesVisited, r.RecordCount, r.StartedAt.Format(time.DateTime)})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(runs)})
	t.Render()
}

func renderListings(w io.Writer, columns []string, records []models.ProductRecord) {
	if len(columns) == 0 {
		columns = models.DefaultColumns
	}

	header := table.Row{"#"}
	for _, c := range columns {
		header = append(header, c)
	}

	t := newTable(w)
	t.AppendHeader(header)
	for i := range records {
		row := table.Row{i + 1}
		for _, v := range records[i].Row(columns) {
			row = append(row, v)
		}
		t.AppendRow(row)
	}
	t.Render()
}

func renderRelayResult(w io.Writer, res database.BatchResult, backlog database.Backlog) {
	t := newTable(w)
	t.SetTitle("Outbox relay")
	t.AppendHeader(table.Row{"", "This batch", "Outbox"})
	t.AppendRows([]table.Row{
		{"Relayed", res.Relayed, ""},
		{"Retrying", res.Retrying, backlog.Retrying},
		{"Pending", "", backlog.Pending},
		{"Dead letter", res.DeadLettered, backlog.DeadLetter},
	})
	t.Render()
}
