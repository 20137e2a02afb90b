package export

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"label-processor/internal/database"
)

// SheetName is the worksheet holding the ledger rows.
const SheetName = "Labels"

var headers = []string{
	"File",
	"Status",
	"Order Number",
	"Tracking Number",
	"Tracking Source",
	"Missing",
	"Error",
	"Processed At",
	"Run",
}

// BuildXLSX renders ledger entries into an XLSX workbook.
func BuildXLSX(docs []database.Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, bold)
	}

	for i, d := range docs {
		row := i + 2
		values := []any{
			d.Filename,
			d.Status,
			d.OrderNumber,
			d.TrackingNumber,
			d.TrackingSource,
			strings.Join(d.Missing, ", "),
			truncate(d.ErrorMessage, 200),
			d.ProcessedAt.UTC().Format(time.RFC3339),
			d.RunID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	// tracking numbers are 22 digits, keep them as text-width columns
	_ = f.SetColWidth(SheetName, "A", "A", 32)
	_ = f.SetColWidth(SheetName, "B", "B", 12)
	_ = f.SetColWidth(SheetName, "C", "C", 18)
	_ = f.SetColWidth(SheetName, "D", "D", 26)
	_ = f.SetColWidth(SheetName, "E", "F", 16)
	_ = f.SetColWidth(SheetName, "G", "G", 48)
	_ = f.SetColWidth(SheetName, "H", "H", 22)
	_ = f.SetColWidth(SheetName, "I", "I", 38)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteXLSX writes the workbook for docs to path.
func WriteXLSX(docs []database.Document, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	data, err := BuildXLSX(docs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	logger.Info("export written",
		"path", path,
		"rows", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
