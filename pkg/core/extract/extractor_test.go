package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_metrics/pkg/core/docservice"
	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/models"
)

var sep2024 = time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)

// revenueWorkbook puts "Total MRR" on row 29 with the September actual in J.
func revenueWorkbook() *grid.Workbook {
	rows := make([][]string, 29)
	rows[28] = []string{"Total MRR", "", "", "", "", "", "", "", "", "1.234,56", "(2.000,00)", "n/a", ""}
	return &grid.Workbook{
		Name:     "acme.xlsx",
		FileType: grid.FileTypeXLSX,
		Sheets:   []*grid.Sheet{grid.NewSheetFromStrings("Revenue", rows)},
	}
}

func revenueMap() *models.CoordinateMap {
	cm := models.NewCoordinateMap()
	sm := cm.Sheet("Revenue")
	sm.MetricRows["mrr"] = 29
	for _, col := range []string{"J", "K", "L", "M"} {
		sm.ColumnScenarios[col] = models.ScenarioActual
		sm.ColumnDates[col] = sep2024.AddDate(0, len(sm.ColumnDates), 0)
	}
	sm.ColumnScenarios["N"] = models.ScenarioBudget
	return cm
}

func TestExtract_DecimalCommaCell(t *testing.T) {
	items, sum := New("USD", nil).Extract(revenueMap(), revenueWorkbook(), "EUR")

	require.Len(t, items, 2)
	first := items[0]
	assert.Equal(t, "mrr", first.MetricID)
	assert.Equal(t, "Total MRR", first.Label)
	assert.InDelta(t, 1234.56, first.Amount, 1e-9)
	assert.Equal(t, sep2024, first.PeriodDate)
	assert.Equal(t, models.ScenarioActual, first.Scenario)
	assert.Equal(t, "EUR", first.Currency)
	assert.Equal(t, CellConfidence, first.Confidence)
	assert.Equal(t, models.SourceLocation{FileType: "xlsx", Sheet: "Revenue", Cell: "J29"}, first.Source)

	assert.InDelta(t, -2000.0, items[1].Amount, 1e-9)
	assert.Equal(t, "K29", items[1].Source.Cell)

	assert.Equal(t, 2, sum.Items)
	assert.Equal(t, 1, sum.SkippedUnparseable)
	assert.Equal(t, []string{"Revenue!L29"}, sum.UnparseableCells)
	assert.Equal(t, 1, sum.SkippedEmpty)
	assert.Equal(t, 1, sum.SkippedUndated)
}

func TestExtract_IsDeterministic(t *testing.T) {
	ex := New("EUR", nil)
	a, _ := ex.Extract(revenueMap(), revenueWorkbook(), "")
	b, _ := ex.Extract(revenueMap(), revenueWorkbook(), "")
	assert.Equal(t, a, b)
	assert.Equal(t, "EUR", a[0].Currency)
}

func TestExtract_MissingSheet(t *testing.T) {
	cm := revenueMap()
	cm.Sheet("Costs").MetricRows["opex"] = 3
	cm.Sheet("Costs").ColumnScenarios["B"] = models.ScenarioActual

	_, sum := New("USD", nil).Extract(cm, revenueWorkbook(), "")
	assert.Equal(t, []string{"Costs"}, sum.MissingSheets)
}

func TestExtract_NumberCellsBypassNormalizer(t *testing.T) {
	wb := &grid.Workbook{Name: "m.csv", FileType: grid.FileTypeCSV, Sheets: []*grid.Sheet{
		grid.NewSheetFromStrings("m", [][]string{{"Cash", "1234.5"}}),
	}}
	cm := models.NewCoordinateMap()
	sm := cm.Sheet("m")
	sm.MetricRows["cash_balance"] = 1
	sm.ColumnScenarios["B"] = models.ScenarioActual
	sm.ColumnDates["B"] = sep2024

	// With a decimal-comma hint a text "1234.5" would still be 1234.5, but a
	// number cell never reaches the normalizer at all.
	items, _ := New("", nil).Extract(cm, wb, "EUR")
	require.Len(t, items, 1)
	assert.Equal(t, 1234.5, items[0].Amount)
}

func TestExtract_LabelColumns(t *testing.T) {
	wb := &grid.Workbook{Name: "m.csv", FileType: grid.FileTypeCSV, Sheets: []*grid.Sheet{
		grid.NewSheetFromStrings("m", [][]string{{"", "", "", "", "Total MRR", "1200"}}),
	}}
	cm := models.NewCoordinateMap()
	sm := cm.Sheet("m")
	sm.MetricRows["mrr"] = 1
	sm.ColumnScenarios["F"] = models.ScenarioActual
	sm.ColumnDates["F"] = sep2024

	ex := New("USD", nil)
	items, _ := ex.Extract(cm, wb, "")
	require.Len(t, items, 1)
	assert.Empty(t, items[0].Label)

	ex.LabelColumns = 5
	items, _ = ex.Extract(cm, wb, "")
	require.Len(t, items, 1)
	assert.Equal(t, "Total MRR", items[0].Label)
}

func TestFromSummary(t *testing.T) {
	resp := docservice.SummaryResponse{
		Currency: "gbp",
		Items: []docservice.SummaryItem{
			{Metric: "arr", Amount: 1.2e6, Period: time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC), Scenario: models.ScenarioActual, Page: 4},
			{Metric: "", Amount: 1},
			{Metric: "mrr", Amount: 1, Scenario: models.ScenarioActual},
		},
	}
	items := New("USD", nil).FromSummary(resp, "board_deck.pdf", "")

	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, SummaryConfidence, it.Confidence)
	assert.Equal(t, sep2024, it.PeriodDate)
	assert.Equal(t, "GBP", it.Currency)
	assert.Equal(t, "pdf", it.Source.FileType)
	assert.Equal(t, 4, it.Source.Page)
	assert.Empty(t, it.Source.Cell)
	assert.Equal(t, "whole-document summary", it.Source.Note)
}
