package docservice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestParseStructural_Complete(t *testing.T) {
	raw := "```json\n" + `{"schema_version":"1","sheets":[{"sheet":"Revenue","dateHeaderRow":3,"scenarioLabelRow":2,
"actualColumns":["d","E"],"budgetColumns":["P"],
"columnDates":{"D":"2024-03-01","E":"2024-04","P":"Mar-25"},
"metricRows":{"mrr":29},"unknownField":true}]}` + "\n```"

	res, err := ParseStructural(raw)
	require.NoError(t, err)
	assert.Equal(t, StructuralComplete, res.Tag)
	require.Len(t, res.Sheets, 1)
	s := res.Sheets[0]
	assert.Equal(t, "Revenue", s.Sheet)
	assert.Equal(t, 3, s.DateHeaderRow)
	assert.Equal(t, 2, s.ScenarioLabelRow)
	assert.Equal(t, []string{"D", "E"}, s.ActualColumns)
	assert.Equal(t, []string{"P"}, s.BudgetColumns)
	assert.Equal(t, month(2024, time.April), s.ColumnDates["E"])
	assert.Equal(t, month(2025, time.March), s.ColumnDates["P"])
	assert.Equal(t, 29, s.MetricRows["mrr"])
	assert.Empty(t, res.Dropped)
}

func TestParseStructural_Partial(t *testing.T) {
	raw := `{"sheets":{
"Revenue":{"dateHeaderRow":"3","actualColumns":["D","E"],"columnDates":{"D":"2024-03-01"}},
"Notes":{"actualColumns":["B"]},
"Costs":{"dateHeaderRow":4,"actualColumns":["1X"],"budgetColumns":[]}
}}`
	res, err := ParseStructural(raw)
	require.NoError(t, err)
	assert.Equal(t, StructuralPartial, res.Tag)
	require.Len(t, res.Sheets, 1)
	assert.Equal(t, "Revenue", res.Sheets[0].Sheet)
	assert.Equal(t, 3, res.Sheets[0].DateHeaderRow)
	assert.Len(t, res.Dropped, 3)
}

func TestParseStructural_Empty(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"prose", "I am unable to analyse this file.", ErrMalformedResponse},
		{"no sheets field", `{"schema_version":"1"}`, ErrMalformedResponse},
		{"future version", `{"schema_version":"2","sheets":[]}`, ErrSchemaVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseStructural(tt.raw)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StructuralEmpty, res.Tag)
			assert.Empty(t, res.Sheets)
		})
	}

	res, err := ParseStructural(`{"schema_version":1,"sheets":[]}`)
	require.NoError(t, err)
	assert.Equal(t, StructuralEmpty, res.Tag)
}

func TestParseMatches(t *testing.T) {
	res, err := ParseMatches(`{"matches":{"mrr":{"sheet":"Revenue","row":29},"arr":{"sheet":"","row":3},"cash_balance":{"sheet":"BS","row":"12"}}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]RowRef{
		"mrr":          {Sheet: "Revenue", Row: 29},
		"cash_balance": {Sheet: "BS", Row: 12},
	}, res.Matches)

	res, err = ParseMatches(`{"matches":{}}`)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)

	_, err = ParseMatches(`{"result":"none"}`)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParseSummary(t *testing.T) {
	raw := `{"currency":"eur","items":[
{"metric":"revenue","amount":100000,"period":"2024-09-01","scenario":"actual","page":2},
{"metric":"burn","amount":"-25000.5","period":"Sep-24","scenario":"forecast"},
{"metric":"ebitda","amount":"1.234,56","period":"2024-09"},
{"metric":"","amount":1,"period":"2024-09"},
{"metric":"cash","amount":1,"period":"soon"}
]}`
	res, err := ParseSummary(raw)
	require.NoError(t, err)
	assert.Equal(t, "EUR", res.Currency)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "revenue", res.Items[0].Metric)
	assert.Equal(t, 2, res.Items[0].Page)
	assert.Equal(t, -25000.5, res.Items[1].Amount)
	assert.Equal(t, "budget", string(res.Items[1].Scenario))
	assert.Equal(t, month(2024, time.September), res.Items[1].Period)
}

func TestParseClassification(t *testing.T) {
	c, err := ParseClassification(`{"metric_id":" MRR ","confidence":1.7}`)
	require.NoError(t, err)
	assert.Equal(t, Classification{MetricID: "mrr", Confidence: 1}, c)

	c, err = ParseClassification(`{"metric_id":"","confidence":0}`)
	require.NoError(t, err)
	assert.Empty(t, c.MetricID)

	_, err = ParseClassification(`{"confidence":0.9}`)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
