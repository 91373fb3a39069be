// Package export renders finished documents and job reports as office files.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"video-docs-go/internal/types"
)

const (
	overviewSheet = "Overview"
	stepsSheet    = "Steps"
	reportSheet   = "Jobs"
)

// WriteXLSX writes doc as a workbook with an Overview sheet and a Steps sheet.
func WriteXLSX(w io.Writer, doc types.Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", overviewSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	overview := [][]any{
		{"Title", doc.Title},
		{"Summary", doc.Summary},
		{"Difficulty", doc.Difficulty},
		{"Time estimate", doc.TimeEstimate},
		{"Keywords", strings.Join(doc.Keywords, ", ")},
	}
	for _, m := range doc.Materials {
		overview = append(overview, []any{"Material", materialLine(m)})
	}
	if err := writeRows(f, overviewSheet, overview); err != nil {
		return err
	}

	if _, err := f.NewSheet(stepsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	rows := [][]any{{"Section", "Step", "Title", "Description", "Details", "Duration", "Materials"}}
	for _, s := range doc.Sections {
		if len(s.Steps) == 0 {
			rows = append(rows, []any{s.Title, "", "", s.Content, "", "", ""})
			continue
		}
		for i, st := range s.Steps {
			rows = append(rows, []any{s.Title, i + 1, st.Title, st.Description, st.Details, st.Duration, strings.Join(st.Materials, ", ")})
		}
	}
	if err := writeRows(f, stepsSheet, rows); err != nil {
		return err
	}
	boldHeader(f, stepsSheet, len(rows[0]))

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteReport writes one row per job, for batch runs.
func WriteReport(w io.Writer, jobs []types.Job) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := [][]any{{"Job ID", "Source", "Title", "State", "Progress", "Error kind", "Error", "Sections", "Updated"}}
	for _, j := range jobs {
		var kind, msg string
		if j.Error != nil {
			kind, msg = string(j.Error.Kind), j.Error.Message
		}
		sections := 0
		title := j.Title
		if j.Content != nil {
			doc := j.Content.Document()
			sections = len(doc.Sections)
			if doc.Title != "" {
				title = doc.Title
			}
		}
		rows = append(rows, []any{j.ID, j.SourceRef, title, string(j.State), j.Progress, kind, msg, sections, j.UpdatedAt.Format("2006-01-02 15:04:05")})
	}
	if err := writeRows(f, reportSheet, rows); err != nil {
		return err
	}
	boldHeader(f, reportSheet, len(rows[0]))

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func boldHeader(f *excelize.File, sheet string, cols int) {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return
	}
	end, _ := excelize.CoordinatesToCellName(cols, 1)
	_ = f.SetCellStyle(sheet, "A1", end, style)
}

func materialLine(m types.Material) string {
	parts := []string{m.Name}
	if m.Quantity != "" {
		parts = append(parts, m.Quantity)
	}
	if m.Notes != "" {
		parts = append(parts, "("+m.Notes+")")
	}
	return strings.Join(parts, " ")
}
