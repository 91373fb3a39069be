package export

import (
	"archive/zip"
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"video-docs-go/internal/types"
)

func sampleDoc() types.Document {
	return types.Document{
		Title:      "Sourdough",
		Summary:    "Bake a loaf.",
		Difficulty: "intermediate",
		Keywords:   []string{"bread", "baking"},
		Materials:  []types.Material{{Name: "flour", Quantity: "500g"}},
		Sections: []types.Section{
			{Title: "Mix", Content: "Combine.", Steps: []types.Step{
				{Description: "Add water", Details: "Warm water", Duration: "5m"},
				{Description: "Knead", Details: "Ten minutes", Materials: []string{"bowl"}},
			}},
			{Title: "Rest", Content: "Let it rise."},
		},
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleDoc()); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	title, _ := f.GetCellValue(overviewSheet, "B1")
	if title != "Sourdough" {
		t.Fatalf("title = %q", title)
	}
	rows, err := f.GetRows(stepsSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	// header + 2 steps + 1 step-less section
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[2][3] != "Knead" || rows[2][6] != "bowl" {
		t.Fatalf("row = %v", rows[2])
	}
}

func TestWriteReport(t *testing.T) {
	jobs := []types.Job{
		{ID: "1", SourceRef: "https://v/1", State: types.StateCompleted, Progress: 100, Content: types.Content{"title": "Done", "sections": []any{map[string]any{}, map[string]any{}}}, UpdatedAt: time.Now()},
		{ID: "2", SourceRef: "https://v/2", State: types.StateError, Progress: 60, Error: &types.ErrorInfo{Kind: types.KindTranscriptionFailed, Message: "audio unintelligible"}},
	}
	var buf bytes.Buffer
	if err := WriteReport(&buf, jobs); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows(reportSheet)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[1][2] != "Done" || rows[1][7] != "2" {
		t.Fatalf("row 1 = %v", rows[1])
	}
	if rows[2][5] != "transcription_failed" || rows[2][6] != "audio unintelligible" {
		t.Fatalf("row 2 = %v", rows[2])
	}
}

func TestWriteDOCX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.docx")
	if err := WriteDOCX(path, sampleDoc()); err != nil {
		t.Fatalf("WriteDOCX() error = %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open docx: %v", err)
	}
	defer zr.Close()

	var body string
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open part: %v", err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		body = string(data)
	}
	for _, want := range []string{"Sourdough", "Bake a loaf.", "Mix", "Knead", "Ten minutes", "flour 500g"} {
		if !strings.Contains(body, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
}
