package trends

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/water-quality-server/internal/domain"
)

const sheetName = "Water Quality"

// ExportHeader is the column layout shared by CSV and Excel exports.
var ExportHeader = append(append(
	[]string{"id", "location", "timestamp", domain.FieldLatitude, domain.FieldLongitude},
	domain.FeatureOrder...),
	"is_potable", "confidence", "model_version")

// ContentType returns the MIME type and file extension for a format.
func ContentType(format string) (string, string, error) {
	switch normalizeFormat(format) {
	case domain.ExportCSV:
		return "text/csv", "csv", nil
	case domain.ExportExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", nil
	default:
		return "", "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

func normalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "xlsx" {
		return domain.ExportExcel
	}
	return f
}

func exportRow(r domain.HistoryRecord) []string {
	m := r.Measurement
	row := []string{
		strconv.FormatInt(m.ID, 10),
		m.Location,
		m.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
		formatFloat(m.Latitude),
		formatFloat(m.Longitude),
	}
	for _, reading := range m.Readings() {
		row = append(row, formatFloat(reading.Value))
	}
	if r.Prediction == nil {
		return append(row, "", "", "")
	}
	return append(row,
		strconv.FormatBool(r.Prediction.IsPotable),
		formatFloat(r.Prediction.Confidence),
		r.Prediction.ModelVersion)
}

// numericColumn reports whether an export column holds a number: the id,
// the coordinates, the readings and the confidence.
func numericColumn(i int) bool {
	last := 5 + len(domain.FeatureOrder)
	return i == 0 || (i >= 3 && i < last) || i == last+1
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Export renders records as CSV or an Excel workbook.
func (a *Analyzer) Export(records []domain.HistoryRecord, format string) ([]byte, error) {
	switch normalizeFormat(format) {
	case domain.ExportCSV:
		return exportCSV(records)
	case domain.ExportExcel:
		return exportExcel(records)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

func exportCSV(records []domain.HistoryRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ExportHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := w.Write(exportRow(r)); err != nil {
			return nil, fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

func exportExcel(records []domain.HistoryRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	write := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
			if rowNum > 1 && numericColumn(i) {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					row[i] = f
				}
			}
		}
		return f.SetSheetRow(sheetName, cell, &row)
	}

	if err := write(1, ExportHeader); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	for i, r := range records {
		if err := write(i+2, exportRow(r)); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}
	return buf.Bytes(), nil
}
