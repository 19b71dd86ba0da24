package report

import (
	"context"
	"fmt"

	"codeberg.org/go-pdf/fpdf"
)

// PDFRenderer lays the report lines out on A4 pages.
type PDFRenderer struct {
	Dir string
}

func (PDFRenderer) Name() string { return "pdf" }

func (p PDFRenderer) Render(_ context.Context, s Summary, lines []string) (string, error) {
	path, err := artifactPath(p.Dir, s, ".pdf")
	if err != nil {
		return "", err
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(fmt.Sprintf("Detection report %s", s.Location), true)
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Helvetica", "B", 14)
	doc.CellFormat(0, 10, tr(fmt.Sprintf("Exam hall %s, camera %d", s.Location, s.CameraID)), "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	if !s.StartedAt.IsZero() {
		doc.CellFormat(0, 6, fmt.Sprintf("Session: %s - %s",
			s.StartedAt.Format("2006-01-02 15:04:05"), s.EndedAt.Format("15:04:05")), "", 1, "L", false, 0, "")
	}
	doc.Ln(4)

	doc.SetFont("Helvetica", "", 11)
	for _, line := range lines {
		doc.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
	}

	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}
