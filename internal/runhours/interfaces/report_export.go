package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"asset-runhours/internal/runhours/domain"
)

var reportHeader = []string{"asset_id", "local_date", "on_duration_ms", "off_duration_ms", "on_hours"}

// AssetTotal sums one asset's records in a report.
type AssetTotal struct {
	AssetID string
	Days    int
	OnMs    int64
}

// OnHours returns the summed ON hours.
func (t AssetTotal) OnHours() float64 {
	return float64(t.OnMs) / float64(3_600_000)
}

// SummarizeRecords groups records per asset, ordered by asset id.
func SummarizeRecords(records []domain.RunHourRecord) []AssetTotal {
	index := make(map[string]int)
	var totals []AssetTotal
	for _, rec := range records {
		i, ok := index[rec.AssetID]
		if !ok {
			i = len(totals)
			index[rec.AssetID] = i
			totals = append(totals, AssetTotal{AssetID: rec.AssetID})
		}
		totals[i].Days++
		totals[i].OnMs += rec.OnDurationMs
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].AssetID < totals[j].AssetID })
	return totals
}

// BuildReportCSV renders records as CSV with a header row.
func BuildReportCSV(records []domain.RunHourRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, rec := range records {
		row := []string{
			rec.AssetID,
			rec.LocalDate.String(),
			strconv.FormatInt(rec.OnDurationMs, 10),
			strconv.FormatInt(rec.OffDurationMs, 10),
			strconv.FormatFloat(rec.OnHours(), 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX renders a records sheet and a per-asset summary sheet.
func BuildReportXLSX(records []domain.RunHourRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	recordsSheet := "records"
	summarySheet := "summary"
	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	for i, title := range reportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(recordsSheet, cell, title)
	}
	for i, rec := range records {
		row := i + 2
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("A%d", row), rec.AssetID)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("B%d", row), rec.LocalDate.String())
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("C%d", row), rec.OnDurationMs)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("D%d", row), rec.OffDurationMs)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("E%d", row), rec.OnHours())
	}

	_ = f.SetCellValue(summarySheet, "A1", "asset_id")
	_ = f.SetCellValue(summarySheet, "B1", "days")
	_ = f.SetCellValue(summarySheet, "C1", "on_hours")
	for i, total := range SummarizeRecords(records) {
		row := i + 2
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), total.AssetID)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), total.Days)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), total.OnHours())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportPDF renders a minimal run-hour report.
func BuildReportPDF(title string, records []domain.RunHourRecord) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	if title == "" {
		title = "Asset Run Hours"
	}
	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Asset", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Days", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "ON hours", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, total := range SummarizeRecords(records) {
		pdf.CellFormat(50, 6, total.AssetID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, strconv.Itoa(total.Days), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", total.OnHours()), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Asset", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "ON hours", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "OFF hours", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, rec := range records {
		pdf.CellFormat(50, 6, rec.AssetID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, rec.LocalDate.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", rec.OnHours()), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", float64(rec.OffDurationMs)/3_600_000), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteReport writes records to path; the format follows the extension
// (.csv, .xlsx or .pdf).
func WriteReport(path, title string, records []domain.RunHourRecord) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		data, err = BuildReportCSV(records)
	case ".xlsx":
		data, err = BuildReportXLSX(records)
	case ".pdf":
		data, err = BuildReportPDF(title, records)
	default:
		return fmt.Errorf("runhours report: unsupported format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("runhours report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
