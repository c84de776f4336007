// Package report renders episode history for people who were not watching
// the live status: a spreadsheet of all episodes and a one page PDF per
// incident.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/errors"
)

const (
	episodesSheet = "episodes"
	summarySheet  = "summary"
)

var episodeColumns = []string{
	"Episode", "Started", "Ended", "Outcome", "Emergency", "Triggered",
	"Accident time (s)", "Audio alerts", "Frames", "Corroborating frames",
}

// WriteEpisodesXLSX writes episodes as a spreadsheet with a summary sheet.
func WriteEpisodesXLSX(w io.Writer, episodes []accident.Episode) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", episodesSheet); err != nil {
		return exportError(err, "xlsx")
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return exportError(err, "xlsx")
	}

	header := make([]any, len(episodeColumns))
	for i, c := range episodeColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(episodesSheet, "A1", &header); err != nil {
		return exportError(err, "xlsx")
	}

	emergencies := 0
	for i := range episodes {
		ep := &episodes[i]
		if ep.EmergencyTriggered {
			emergencies++
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return exportError(err, "xlsx")
		}
		row := []any{
			ep.ID,
			formatTime(ep.StartedAt),
			formatTime(ep.EndedAt),
			outcomeLabel(ep.Outcome),
			ep.EmergencyTriggered,
			formatTime(ep.TriggeredAt),
			accident.RoundSeconds(ep.AccidentSeconds),
			ep.AlertCount,
			ep.FramesProcessed,
			ep.CorroboratingFrames,
		}
		if err := f.SetSheetRow(episodesSheet, cell, &row); err != nil {
			return exportError(err, "xlsx")
		}
	}

	summary := [][]any{
		{"Episodes", len(episodes)},
		{"Emergencies", emergencies},
		{"Generated", time.Now().Format(time.DateTime)},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return exportError(err, "xlsx")
		}
	}

	if err := f.Write(w); err != nil {
		return exportError(err, "xlsx")
	}
	return nil
}

// WriteIncidentPDF writes a single page report of one episode.
func WriteIncidentPDF(w io.Writer, ep *accident.Episode, node string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Fall incident "+ep.ID, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	title := "Fall incident report"
	if !ep.EmergencyTriggered {
		title = "Suspected fall report"
	}
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	rows := [][2]string{
		{"Location", node},
		{"Episode", ep.ID},
		{"Started", formatTime(ep.StartedAt)},
		{"Ended", formatTime(ep.EndedAt)},
		{"Outcome", outcomeLabel(ep.Outcome)},
		{"Emergency action", yesNo(ep.EmergencyTriggered)},
		{"Emergency at", formatTime(ep.TriggeredAt)},
		{"Accident time", fmt.Sprintf("%.2f s", accident.RoundSeconds(ep.AccidentSeconds))},
		{"Audio alerts", fmt.Sprintf("%d", ep.AlertCount)},
		{"Frames analyzed", fmt.Sprintf("%d", ep.FramesProcessed)},
		{"Person lying", fmt.Sprintf("%d frames", ep.CorroboratingFrames)},
	}
	for _, r := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(50, 8, r[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(120, 8, r[1], "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return exportError(err, "pdf")
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

func outcomeLabel(o accident.Outcome) string {
	if o == accident.OutcomeOpen {
		return "open"
	}
	return string(o)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func exportError(err error, format string) error {
	return errors.New(err).
		Component("report").
		Category(errors.CategoryFileIO).
		Context("format", format).
		Build()
}
