// Package report exports the watch-list and the last cycle as an XLSX
// workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"cardwatch/internal/models"
	"cardwatch/internal/monitor"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	WatchlistSheet = "Watchlist"
	CycleSheet     = "Last cycle"
)

var (
	watchlistHeader = []interface{}{"Card", "Version", "Expansion", "Collector #", "Blueprint", "Target price"}
	cycleHeader     = []interface{}{"Card", "Version", "Expansion", "Outcome", "Attempts", "Target", "Price", "New target", "Alerted", "Error"}
)

// Build returns a workbook with the watch-list and, when last is non-nil,
// the per-item results of that cycle. The caller closes the file.
func Build(items []models.WatchItem, last *monitor.CycleReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", WatchlistSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(CycleSheet); err != nil {
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00
	if err != nil {
		return nil, err
	}

	if err := writeRow(f, WatchlistSheet, 1, watchlistHeader); err != nil {
		return nil, err
	}
	f.SetCellStyle(WatchlistSheet, "A1", "F1", header)
	for i, it := range items {
		row := i + 2
		blueprint := interface{}(nil)
		if it.BlueprintID > 0 {
			blueprint = it.BlueprintID
		}
		if err := writeRow(f, WatchlistSheet, row, []interface{}{
			it.ItemName, it.VariantKey, it.GroupKey, it.DisplayID, blueprint, amount(it.TargetPrice),
		}); err != nil {
			return nil, err
		}
		f.SetCellStyle(WatchlistSheet, cell(6, row), cell(6, row), money)
	}
	f.SetColWidth(WatchlistSheet, "A", "C", 32)
	f.SetColWidth(WatchlistSheet, "D", "F", 14)

	if last == nil {
		f.SetCellValue(CycleSheet, "A1", "No cycle has run yet")
		return f, nil
	}
	f.SetCellValue(CycleSheet, "A1", fmt.Sprintf("Cycle %s", last.ID))
	f.SetCellValue(CycleSheet, "A2", fmt.Sprintf("Started %s, %d items, %d alerts", last.StartedAt.Format(time.RFC3339), last.Items, last.Alerts))
	if err := writeRow(f, CycleSheet, 4, cycleHeader); err != nil {
		return nil, err
	}
	f.SetCellStyle(CycleSheet, "A4", "J4", header)
	for i, r := range last.Results {
		row := i + 5
		var price interface{}
		if r.Outcome == models.OutcomeSuccess {
			price = amount(r.Price)
		}
		if err := writeRow(f, CycleSheet, row, []interface{}{
			r.Key.Name, r.Key.Variant, r.Key.Group, r.Outcome.String(), r.Attempts,
			amount(r.Target), price, amount(r.NewTarget), r.Alerted, r.Error,
		}); err != nil {
			return nil, err
		}
		f.SetCellStyle(CycleSheet, cell(6, row), cell(8, row), money)
	}
	f.SetColWidth(CycleSheet, "A", "C", 32)
	f.SetColWidth(CycleSheet, "J", "J", 60)
	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, items []models.WatchItem, last *monitor.CycleReport) error {
	f, err := Build(items, last)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// Save builds the workbook and stores it at path.
func Save(path string, items []models.WatchItem, last *monitor.CycleReport) error {
	f, err := Build(items, last)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	return f.SetSheetRow(sheet, cell(1, row), &values)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// amount is for display; cells hold floats.
func amount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
