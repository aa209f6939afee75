// Package xlsxexport renders the delivery overview as an Excel
// workbook for offline reporting.
package xlsxexport

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"gioland/internal/service"
)

const sheetName = "Overview"

// columns defines the overview header row.
var columns = []string{
	"Product",
	"Delivery",
	"Country",
	"Lot",
	"Resolution",
	"Extent",
	"Coverage",
	"Reference",
	"Stage",
	"Uploading",
	"Last Modified",
}

// Writer builds an overview workbook.
type Writer struct {
	f   *excelize.File
	row int
}

// NewWriter creates a Writer with the header row in place.
func NewWriter() (*Writer, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}
	w := &Writer{f: f, row: 1}
	if err := w.writeRow(columns); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteOverview appends one row per delivery, group by group.
func (w *Writer) WriteOverview(groups []service.OverviewGroup) error {
	for _, g := range groups {
		for _, p := range g.Parcels {
			row := []string{
				g.Label,
				p.Name,
				p.Metadata["country"],
				p.Metadata["lot"],
				p.Metadata["resolution"],
				p.Metadata["extent"],
				p.Metadata["coverage"],
				p.Metadata["reference"],
				p.Metadata["stage"],
				formatBool(p.Uploading),
				formatTime(p.LastModified),
			}
			if err := w.writeRow(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteTo serializes the workbook.
func (w *Writer) WriteTo(out io.Writer) error {
	defer w.f.Close()
	return w.f.Write(out)
}

func (w *Writer) writeRow(values []string) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.f.SetCellValue(sheetName, cell, v); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

func formatBool(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in Content-Disposition.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns the attachment name for an overview export.
// Format: {sanitized_prefix}_{YYYY-MM-DD}.xlsx
func BuildFilename(prefix string) string {
	sanitized := SanitizeFilename(prefix)
	date := time.Now().Format("2006-01-02")
	return fmt.Sprintf("%s_%s.xlsx", sanitized, date)
}
