package attendance

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/go-pdf/fpdf"
)

const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

// Row is one line of the attendance sheet.
type Row struct {
	Name     string
	Identity string
	Date     string
	Time     string
	Status   string
}

// Rows lists present students in the order they were recognized, then
// the absent ones stamped with the end of the run.
func (r Result) Rows() []Row {
	rows := make([]Row, 0, len(r.Present)+len(r.Absent))
	for _, m := range r.Present {
		rows = append(rows, Row{
			Name:     m.Name,
			Identity: m.Identity,
			Date:     m.At.Format("2006-01-02"),
			Time:     m.At.Format("15:04:05"),
			Status:   StatusPresent,
		})
	}
	for _, st := range r.Absent {
		rows = append(rows, Row{
			Name:     st.Name,
			Identity: st.Identity,
			Date:     r.EndedAt.Format("2006-01-02"),
			Time:     r.EndedAt.Format("15:04:05"),
			Status:   StatusAbsent,
		})
	}
	return rows
}

var columns = []struct {
	title string
	width float64
}{
	{"Name", 60}, {"Academic ID", 35}, {"Date", 30}, {"Time", 25}, {"Status", 25},
}

// WriteReport renders the attendance sheet as a PDF under dir and returns
// its path.
func WriteReport(dir string, r Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	hall := strings.ReplaceAll(r.Location, string(filepath.Separator), "_")
	path := filepath.Join(dir, fmt.Sprintf("%s__%s.pdf", hall, r.EndedAt.Format("2006-01-02__15-04-05")))

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Attendance "+r.Location, true)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Helvetica", "B", 14)
	doc.CellFormat(0, 10, tr("Attendance, "+r.Location), "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 6, fmt.Sprintf("Present %d, absent %d", len(r.Present), len(r.Absent)), "", 1, "L", false, 0, "")
	doc.Ln(3)

	doc.SetFont("Helvetica", "B", 10)
	for _, c := range columns {
		doc.CellFormat(c.width, 7, c.title, "1", 0, "C", false, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 10)
	for _, row := range r.Rows() {
		cells := []string{row.Name, row.Identity, row.Date, row.Time, row.Status}
		for i, c := range columns {
			doc.CellFormat(c.width, 7, tr(cells[i]), "1", 0, "C", false, 0, "")
		}
		doc.Ln(-1)
	}

	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write attendance pdf: %w", err)
	}
	return path, nil
}
