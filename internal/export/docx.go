package export

import (
	"fmt"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"

	"video-docs-go/internal/types"
)

const (
	fontName = "Calibri"
	fontSize = 11
)

// WriteDOCX saves doc as a Word document at path: title, summary, then one heading
// per section with numbered steps.
func WriteDOCX(path string, doc types.Document) error {
	d, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	addRun(d.AddParagraph(""), doc.Title, true, 18)
	if doc.Summary != "" {
		addRun(d.AddParagraph(""), doc.Summary, false, fontSize)
	}

	var meta []string
	if doc.Difficulty != "" {
		meta = append(meta, "Difficulty: "+doc.Difficulty)
	}
	if doc.TimeEstimate != "" {
		meta = append(meta, "Time: "+doc.TimeEstimate)
	}
	if len(doc.Keywords) > 0 {
		meta = append(meta, "Keywords: "+strings.Join(doc.Keywords, ", "))
	}
	if len(meta) > 0 {
		addRun(d.AddParagraph(""), strings.Join(meta, " | "), false, 10)
	}

	if len(doc.Materials) > 0 {
		addRun(d.AddParagraph(""), "Materials", true, 14)
		for _, m := range doc.Materials {
			addRun(d.AddParagraph(""), "• "+materialLine(m), false, fontSize)
		}
	}

	for _, s := range doc.Sections {
		addRun(d.AddParagraph(""), s.Title, true, 14)
		if s.Content != "" {
			addRun(d.AddParagraph(""), s.Content, false, fontSize)
		}
		for i, st := range s.Steps {
			p := d.AddParagraph("")
			label := fmt.Sprintf("%d. ", i+1)
			if st.Title != "" {
				label += st.Title + ": "
			}
			p.AddText(label).Font(fontName).Size(fontSize).Bold(true)
			p.AddText(st.Description).Font(fontName).Size(fontSize)
			if st.Details != "" {
				addRun(d.AddParagraph(""), st.Details, false, fontSize)
			}
			if st.Duration != "" || len(st.Materials) > 0 {
				var extra []string
				if st.Duration != "" {
					extra = append(extra, "Duration: "+st.Duration)
				}
				if len(st.Materials) > 0 {
					extra = append(extra, "Materials: "+strings.Join(st.Materials, ", "))
				}
				addRun(d.AddParagraph(""), strings.Join(extra, " | "), false, 10)
			}
		}
	}

	if err := d.SaveTo(path); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func addRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(text).Font(fontName).Size(size).Color("000000")
	if bold {
		run.Bold(true)
	}
}
