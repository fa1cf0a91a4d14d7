package docservice

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio_metrics/pkg/core/grid"
)

func TestBuildDigest(t *testing.T) {
	rows := [][]string{
		{"ACME", "", "", ""},
	}
	for i := 1; i < 40; i++ {
		rows = append(rows, []string{fmt.Sprintf("Line %d", i+1), "", "", "10"})
	}
	// Header row deep in the sheet.
	rows[20] = []string{"", "Actual", "Actual", "Budget", "Forecast"}
	wb := &grid.Workbook{Sheets: []*grid.Sheet{grid.NewSheetFromStrings("Revenue", rows)}}

	d := BuildDigest("model.xlsx", wb, 4)
	assert.Equal(t, []string{"Revenue"}, d.Sheets)
	assert.Contains(t, d.Text, `Sheet "Revenue" (40 rows x 5 columns)`)
	assert.Contains(t, d.Text, "Row 1: A1=ACME")
	assert.Contains(t, d.Text, "Row 4: A4=Line 4 | D4=10")
	assert.NotContains(t, d.Text, "Row 5:")
	assert.Contains(t, d.Text, "Row 21: B21=Actual | C21=Actual | D21=Budget | E21=Forecast")
	assert.Contains(t, d.Text, "rows 5-20 omitted")
	assert.Contains(t, d.Text, "Row 39:")
	assert.Contains(t, d.Text, "Row 40:")
	assert.NotContains(t, d.Text, "Row 38:")
}

func TestRenderWorkbook_Truncates(t *testing.T) {
	wb := &grid.Workbook{Sheets: []*grid.Sheet{grid.NewSheetFromStrings("S", [][]string{{"a"}, {"b"}, {"c"}})}}
	out := RenderWorkbook(wb, 2)
	assert.Contains(t, out, "Row 2: A2=b")
	assert.NotContains(t, out, "A3=c")
	assert.Contains(t, out, "truncated")
}
