// Package export writes stored batch summaries to spreadsheet workbooks.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"ingest/internal/logger"
	"ingest/internal/record"
	"ingest/pkg/models"
)

// SheetName is the worksheet holding exported addresses.
const SheetName = "Addresses"

var headers = []string{
	"Batch",
	"Created (UTC)",
	"Item",
	"Address",
	"Record ID",
}

// BatchesXLSX lists up to limit summaries from store and returns them as
// an XLSX workbook.
func BatchesXLSX(ctx context.Context, store record.Store, limit int) ([]byte, int, error) {
	start := time.Now()
	log := logger.WithComponent("export")

	recs, err := store.List(ctx, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	data, err := WriteXLSX(recs)
	if err != nil {
		return nil, 0, err
	}

	log.Info().
		Int("batches", len(recs)).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("XLSX export complete")
	return data, len(recs), nil
}

// WriteXLSX renders one row per address. Items without an address keep
// the "null" marker so row counts match batch sizes.
func WriteXLSX(recs []models.BatchSummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet instead of leaving an empty Sheet1 behind.
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	row := 2
	for _, r := range recs {
		for item, addr := range r.Addresses {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(SheetName, cell, v)
			}

			write(1, r.BatchName)
			write(2, r.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
			write(3, item+1)
			write(4, addr)
			write(5, r.ID)
			row++
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 36) // batch
	_ = f.SetColWidth(SheetName, "B", "B", 20) // created
	_ = f.SetColWidth(SheetName, "C", "C", 6)  // item
	_ = f.SetColWidth(SheetName, "D", "D", 48) // address
	_ = f.SetColWidth(SheetName, "E", "E", 38) // id

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
