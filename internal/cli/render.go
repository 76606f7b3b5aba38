package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JonMunkholm/modreview/internal/core"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case formatTable, formatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("invalid --output %q (want table or json)", s)
	}
}

func renderReport(w io.Writer, rep *core.ImportReport, format outputFormat) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	title := rep.Summary()
	if rep.DryRun {
		title += " (dry run, nothing written)"
	}
	_, _ = fmt.Fprintln(w, title)

	stats := table.NewWriter()
	stats.SetOutputMirror(w)
	stats.SetStyle(table.StyleLight)
	stats.AppendHeader(table.Row{"Academic year", "Rows", "Modules added", "Leads added", "Warnings", "Errors"})
	stats.AppendRow(table.Row{
		rep.Stats.AcademicYear,
		rep.Stats.TotalProcessed,
		rep.Stats.ModulesAdded,
		rep.Stats.UsersAdded,
		len(rep.Warnings),
		len(rep.Errors),
	})
	stats.Render()

	if len(rep.Warnings) == 0 && len(rep.Errors) == 0 {
		return nil
	}

	issues := table.NewWriter()
	issues.SetOutputMirror(w)
	issues.SetStyle(table.StyleLight)
	issues.AppendHeader(table.Row{"Level", "Message"})
	for _, msg := range rep.Errors {
		issues.AppendRow(table.Row{text.FgRed.Sprint("error"), msg})
	}
	for _, msg := range rep.Warnings {
		issues.AppendRow(table.Row{text.FgYellow.Sprint("warning"), msg})
	}
	issues.Render()
	return nil
}
