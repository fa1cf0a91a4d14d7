// Package extract reads values out of a grid through a coordinate map.
// No document understanding call happens here: given the same map and grid
// the output is always the same.
package extract

import (
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"portfolio_metrics/pkg/core/docservice"
	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/numeric"
	"portfolio_metrics/pkg/models"
)

const (
	// CellConfidence is attached to values read from an exact cell.
	CellConfidence = 1.0
	// SummaryConfidence is attached to whole-document fallback values.
	SummaryConfidence = 0.5

	summaryNote = "whole-document summary"

	maxReportedCells = 20
)

// Summary counts what happened to every addressed cell.
type Summary struct {
	Items              int      `json:"items"`
	SkippedEmpty       int      `json:"skipped_empty"`
	SkippedUnparseable int      `json:"skipped_unparseable"`
	SkippedUndated     int      `json:"skipped_undated"`
	MissingSheets      []string `json:"missing_sheets,omitempty"`
	// UnparseableCells lists the first few offending cell refs ("Revenue!J29").
	UnparseableCells []string `json:"unparseable_cells,omitempty"`
}

// Extractor is the deterministic value reader.
type Extractor struct {
	DefaultCurrency string
	// LabelColumns is how many left-most columns are searched for a row's label.
	LabelColumns int
	Logger       *zap.Logger
}

func New(defaultCurrency string, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{DefaultCurrency: defaultCurrency, LabelColumns: 3, Logger: logger}
}

// Extract walks every sheet of cmap, every tagged column and every metric
// row, and emits one line item per readable cell. Sheets, columns and
// metrics are visited in sorted order. currency overrides DefaultCurrency
// when set and is also the hint for ambiguous separators.
func (e *Extractor) Extract(cmap *models.CoordinateMap, wb *grid.Workbook, currency string) ([]models.LineItem, Summary) {
	var sum Summary
	if cmap == nil || wb == nil {
		return nil, sum
	}
	if currency == "" {
		currency = e.DefaultCurrency
	}
	currency = strings.ToUpper(currency)

	var items []models.LineItem
	for _, name := range cmap.SheetNames() {
		sm := cmap.Sheets[name]
		sheet, err := wb.Sheet(name)
		if err != nil {
			sum.MissingSheets = append(sum.MissingSheets, name)
			continue
		}

		metrics := make([]string, 0, len(sm.MetricRows))
		for id := range sm.MetricRows {
			metrics = append(metrics, id)
		}
		sort.Strings(metrics)

		for _, col := range sm.Columns() {
			scenario := sm.ColumnScenarios[col]
			date, dated := sm.ColumnDates[col]
			colIdx, err := grid.ColumnIndex(col)
			if err != nil {
				continue
			}

			for _, id := range metrics {
				row := sm.MetricRows[id]
				if !dated {
					sum.SkippedUndated++
					continue
				}
				ref := grid.CellRef(row-1, colIdx)
				cell := sheet.Cell(row-1, colIdx)

				amount, err := cellAmount(cell, currency)
				if err != nil {
					if errors.Is(err, numeric.ErrEmpty) {
						sum.SkippedEmpty++
						continue
					}
					sum.SkippedUnparseable++
					if len(sum.UnparseableCells) < maxReportedCells {
						sum.UnparseableCells = append(sum.UnparseableCells, name+"!"+ref)
					}
					continue
				}

				items = append(items, models.LineItem{
					MetricID:   id,
					Label:      rowLabel(sheet, row, e.labelColumns()),
					Amount:     amount,
					PeriodDate: models.MonthStart(date),
					Scenario:   scenario,
					Currency:   currency,
					Confidence: CellConfidence,
					Source: models.SourceLocation{
						FileType: wb.FileType,
						Sheet:    name,
						Cell:     ref,
					},
				})
			}
		}
	}
	sum.Items = len(items)

	if sum.SkippedUnparseable > 0 {
		e.logger().Debug("skipped unparseable cells",
			zap.String("file", wb.Name),
			zap.Int("count", sum.SkippedUnparseable),
			zap.Strings("cells", sum.UnparseableCells),
		)
	}
	return items, sum
}

// FromSummary turns a whole-document summary into line items with reduced
// confidence and no cell reference. Items without a metric, period or
// scenario are dropped.
func (e *Extractor) FromSummary(resp docservice.SummaryResponse, filename, currency string) []models.LineItem {
	if resp.Currency != "" {
		currency = resp.Currency
	}
	if currency == "" {
		currency = e.DefaultCurrency
	}
	currency = strings.ToUpper(currency)

	var items []models.LineItem
	for _, it := range resp.Items {
		if it.Metric == "" || it.Period.IsZero() || it.Scenario == "" {
			continue
		}
		note := summaryNote
		if it.Note != "" {
			note = summaryNote + ": " + it.Note
		}
		items = append(items, models.LineItem{
			MetricID:   it.Metric,
			Amount:     it.Amount,
			PeriodDate: models.MonthStart(it.Period),
			Scenario:   it.Scenario,
			Currency:   currency,
			Confidence: SummaryConfidence,
			Source: models.SourceLocation{
				FileType: grid.FileType(filename),
				Page:     it.Page,
				Note:     note,
			},
		})
	}
	return items
}

func (e *Extractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// cellAmount reads a numeric cell directly; text goes through the numeric
// normalizer.
func cellAmount(cell grid.Cell, currency string) (float64, error) {
	switch cell.Kind {
	case grid.Number:
		return cell.Number, nil
	case grid.Text:
		return numeric.Parse(cell.Text, currency)
	}
	return 0, numeric.ErrEmpty
}

func (e *Extractor) labelColumns() int {
	if e.LabelColumns <= 0 {
		return 3
	}
	return e.LabelColumns
}

// rowLabel returns the first text cell of the row's label columns.
func rowLabel(sheet *grid.Sheet, row, columns int) string {
	for c := 0; c < columns; c++ {
		cell := sheet.Cell(row-1, c)
		if cell.Kind == grid.Text {
			if s := cell.String(); s != "" {
				return s
			}
		}
	}
	return ""
}
