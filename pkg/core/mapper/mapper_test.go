package mapper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_metrics/pkg/core/docservice"
	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/labelindex"
	"portfolio_metrics/pkg/models"
)

func testWorkbook() *grid.Workbook {
	return &grid.Workbook{
		Name:     "acme_monthly.xlsx",
		FileType: "xlsx",
		Sheets: []*grid.Sheet{
			grid.NewSheetFromStrings("Revenue", [][]string{
				{"ACME Monthly"},
				{"", "Sep-24", "Oct-24", "Oct-24"},
				{"", "Actual", "Actual", "Budget"},
				{"Total MRR", "1000", "1100", "1200"},
				{"Headcount", "10", "11", "12"},
			}),
		},
	}
}

func month2024(month time.Month) time.Time {
	return time.Date(2024, month, 1, 0, 0, 0, 0, time.UTC)
}

func newTestMapper(svc docservice.Service) *Mapper {
	m := New(svc, nil)
	m.CallTimeout = time.Second
	return m
}

func TestMap_MatchingRowsOverrideStructural(t *testing.T) {
	var asked []docservice.MatchTarget
	svc := &docservice.FakeService{
		SketchFunc: func(ctx context.Context, d docservice.Digest) (docservice.StructuralResult, error) {
			return docservice.StructuralResult{
				Tag: docservice.StructuralPartial,
				Sheets: []docservice.SheetStructure{{
					Sheet:            "Revenue",
					DateHeaderRow:    2,
					ScenarioLabelRow: 3,
					ActualColumns:    []string{"B", "C"},
					BudgetColumns:    []string{"D"},
					ColumnDates:      map[string]time.Time{"B": month2024(time.September)},
					MetricRows:       map[string]int{"mrr": 5},
				}},
			}, nil
		},
		MatchFunc: func(ctx context.Context, req docservice.MatchRequest) (docservice.MatchResponse, error) {
			asked = req.Targets
			return docservice.MatchResponse{Matches: map[string]docservice.RowRef{
				"mrr": {Sheet: "Revenue", Row: 4},
			}}, nil
		},
	}

	wb := testWorkbook()
	idx := labelindex.Build(wb, labelindex.DefaultOptions())
	cm, sum := newTestMapper(svc).Map(context.Background(), wb, idx, nil, []string{"mrr", "headcount"})

	sm := cm.Sheets["Revenue"]
	require.NotNil(t, sm)
	assert.Equal(t, 4, sm.MetricRows["mrr"])
	assert.Equal(t, 5, sm.MetricRows["headcount"])
	assert.Equal(t, models.ScenarioActual, sm.ColumnScenarios["C"])
	assert.Equal(t, models.ScenarioBudget, sm.ColumnScenarios["D"])
	assert.Equal(t, month2024(time.October), sm.ColumnDates["C"])
	assert.Equal(t, month2024(time.October), sm.ColumnDates["D"])

	require.Len(t, asked, 1, "pre-pass resolved headcount, only mrr goes to matching")
	assert.Equal(t, "mrr", asked[0].MetricID)

	assert.Equal(t, OutcomeOK, sum.StructuralOutcome)
	assert.Equal(t, OutcomeOK, sum.MatchingOutcome)
	assert.Equal(t, 1, sum.PrepassMatches)
	assert.Equal(t, 1, sum.ServiceMatches)
	assert.Equal(t, 2, sum.FilledDates)
	assert.Equal(t, []string{"headcount", "mrr"}, sum.Resolved)
}

func TestMap_ServiceFailuresDegradeToDeterministicPasses(t *testing.T) {
	svc := &docservice.FakeService{}
	wb := testWorkbook()
	idx := labelindex.Build(wb, labelindex.DefaultOptions())

	cm, sum := newTestMapper(svc).Map(context.Background(), wb, idx, nil, []string{"mrr", "headcount"})

	assert.Equal(t, OutcomeFailed, sum.StructuralOutcome)
	assert.Equal(t, OutcomeFailed, sum.MatchingOutcome)
	assert.Len(t, sum.Warnings, 2)

	sm := cm.Sheets["Revenue"]
	require.NotNil(t, sm)
	assert.Equal(t, 5, sm.MetricRows["headcount"])
	assert.Equal(t, 4, sm.MetricRows["mrr"], "Total MRR resolves through the synonym table")
	assert.Equal(t, 1, sum.StaticMatches)
	assert.Equal(t, 3, sm.ScenarioLabelRow)
	assert.Equal(t, models.ScenarioBudget, sm.ColumnScenarios["D"])
	assert.Equal(t, month2024(time.September), sm.ColumnDates["B"])
	assert.False(t, cm.IsEmpty())
}

func TestMap_NothingResolvedIsEmpty(t *testing.T) {
	wb := testWorkbook()
	cm, sum := newTestMapper(&docservice.FakeService{}).Map(context.Background(), wb, nil, nil, []string{"arr"})

	assert.True(t, cm.IsEmpty())
	assert.Empty(t, sum.Resolved)
}

func TestMap_RejectsRowsOutsideIndex(t *testing.T) {
	svc := &docservice.FakeService{
		MatchFunc: func(ctx context.Context, req docservice.MatchRequest) (docservice.MatchResponse, error) {
			return docservice.MatchResponse{Matches: map[string]docservice.RowRef{
				"arr":  {Sheet: "Revenue", Row: 40},
				"cogs": {Sheet: "Revenue", Row: 4},
			}}, nil
		},
	}
	wb := testWorkbook()
	cm, sum := newTestMapper(svc).Map(context.Background(), wb, nil, nil, []string{"arr"})

	assert.Equal(t, []string{"arr -> Revenue!40"}, sum.RejectedMatches)
	_, ok := cm.Sheets["Revenue"]
	assert.False(t, ok, "neither an invented row nor an unrequested metric is kept")
	assert.Equal(t, OutcomeOK, sum.MatchingOutcome)
}

func TestMap_StaticSynonymsWhenMatchingFails(t *testing.T) {
	svc := &docservice.FakeService{
		SketchFunc: func(ctx context.Context, d docservice.Digest) (docservice.StructuralResult, error) {
			return docservice.StructuralResult{
				Tag: docservice.StructuralPartial,
				Sheets: []docservice.SheetStructure{{
					Sheet:            "Revenue",
					DateHeaderRow:    2,
					ScenarioLabelRow: 3,
					ActualColumns:    []string{"B", "C"},
					BudgetColumns:    []string{"D"},
				}},
			}, nil
		},
	}
	wb := testWorkbook()
	cm, sum := newTestMapper(svc).Map(context.Background(), wb, nil, nil, []string{"arr", "mrr"})

	assert.Equal(t, OutcomeOK, sum.StructuralOutcome)
	assert.Equal(t, OutcomeFailed, sum.MatchingOutcome)
	assert.Equal(t, 0, sum.PrepassMatches)
	assert.Equal(t, 1, sum.StaticMatches)
	assert.Equal(t, []string{"mrr"}, sum.Resolved)

	sm := cm.Sheets["Revenue"]
	require.NotNil(t, sm)
	assert.Equal(t, map[string]int{"mrr": 4}, sm.MetricRows)
	assert.Equal(t, month2024(time.September), sm.ColumnDates["B"])
	assert.False(t, cm.IsEmpty())
}

func TestMap_StaticSynonymsNeverOverrideResolvedRows(t *testing.T) {
	svc := &docservice.FakeService{
		MatchFunc: func(ctx context.Context, req docservice.MatchRequest) (docservice.MatchResponse, error) {
			return docservice.MatchResponse{Matches: map[string]docservice.RowRef{
				"mrr": {Sheet: "Revenue", Row: 5},
			}}, nil
		},
	}
	cm, sum := newTestMapper(svc).Map(context.Background(), testWorkbook(), nil, nil, []string{"mrr"})

	assert.Equal(t, 0, sum.StaticMatches)
	assert.Equal(t, 5, cm.Sheets["Revenue"].MetricRows["mrr"])
}

func TestStaticMatches(t *testing.T) {
	wb := &grid.Workbook{
		Name: "kpis.xlsx",
		Sheets: []*grid.Sheet{
			grid.NewSheetFromStrings("Summary", [][]string{
				{"Monthly Recurring Revenue", "100"},
				{"Total Actual MRR", "100"},
				{"Employees", "12"},
				{"Widgets", "3"},
			}),
		},
	}
	idx := labelindex.Build(wb, labelindex.DefaultOptions())

	refs := StaticMatches(idx, []string{"mrr", "arr"})
	assert.Equal(t, map[string]docservice.RowRef{"mrr": {Sheet: "Summary", Row: 1}}, refs)
}

func TestFindDateRow(t *testing.T) {
	t.Run("serial header beats a row of amounts", func(t *testing.T) {
		sheet := grid.NewSheetFromStrings("Revenue", [][]string{
			{"ACME Monthly"},
			{"", "45536", "45566", "45597"},
			{"Total MRR", "45012", "45210", "45499", "45610"},
		})
		assert.Equal(t, 2, findDateRow(sheet))
	})
	t.Run("amounts alone are no header", func(t *testing.T) {
		sheet := grid.NewSheetFromStrings("Revenue", [][]string{
			{"Total MRR", "45012", "45210", "45499", "45610"},
			{"Headcount", "12", "13", "14", "15"},
		})
		assert.Equal(t, 0, findDateRow(sheet))
	})
	t.Run("text header", func(t *testing.T) {
		sheet := grid.NewSheetFromStrings("Revenue", [][]string{
			{"Total MRR", "45012", "45210", "45499", "45610"},
			{"", "Sep-24", "Oct-24", "Nov-24"},
		})
		assert.Equal(t, 2, findDateRow(sheet))
	})
}

func TestMap_ExcludesColumnsTaggedBothWays(t *testing.T) {
	svc := &docservice.FakeService{
		SketchFunc: func(ctx context.Context, d docservice.Digest) (docservice.StructuralResult, error) {
			return docservice.StructuralResult{
				Tag: docservice.StructuralComplete,
				Sheets: []docservice.SheetStructure{{
					Sheet:         "Revenue",
					DateHeaderRow: 2,
					ActualColumns: []string{"B", "C"},
					BudgetColumns: []string{"C", "D"},
				}},
			}, nil
		},
	}
	wb := testWorkbook()
	cm, sum := newTestMapper(svc).Map(context.Background(), wb, nil, nil, []string{"mrr"})

	sm := cm.Sheets["Revenue"]
	require.NotNil(t, sm)
	_, tagged := sm.ColumnScenarios["C"]
	assert.False(t, tagged)
	assert.Equal(t, []string{"Revenue!C"}, sum.ExcludedColumns)
}

func TestMap_StructuralTimeout(t *testing.T) {
	svc := &docservice.FakeService{
		SketchFunc: func(ctx context.Context, d docservice.Digest) (docservice.StructuralResult, error) {
			<-ctx.Done()
			return docservice.StructuralResult{}, ctx.Err()
		},
	}
	m := New(svc, nil)
	m.CallTimeout = 20 * time.Millisecond

	_, sum := m.Map(context.Background(), testWorkbook(), nil, nil, []string{"headcount"})
	assert.Equal(t, OutcomeTimeout, sum.StructuralOutcome)
	assert.Equal(t, OutcomeSkipped, sum.MatchingOutcome)
}

func TestMap_PanickingServiceIsContained(t *testing.T) {
	svc := &docservice.FakeService{
		MatchFunc: func(ctx context.Context, req docservice.MatchRequest) (docservice.MatchResponse, error) {
			panic("boom")
		},
	}
	_, sum := newTestMapper(svc).Map(context.Background(), testWorkbook(), nil, nil, []string{"arr"})
	assert.Equal(t, OutcomeFailed, sum.MatchingOutcome)
	assert.Contains(t, sum.Warnings, "matching phase panicked: boom")
}

func TestPrepass_UsesGuideSynonyms(t *testing.T) {
	wb := testWorkbook()
	idx := labelindex.Build(wb, labelindex.DefaultOptions())
	guide := &models.ExtractionGuide{Synonyms: map[string][]string{"mrr": {"total mrr"}}}

	refs := Prepass(idx, guide, []string{"mrr", "arr"})
	assert.Equal(t, map[string]docservice.RowRef{"mrr": {Sheet: "Revenue", Row: 4}}, refs)
}

func TestScenarioOf(t *testing.T) {
	tests := []struct {
		in   string
		want models.Scenario
		ok   bool
	}{
		{"Actual", models.ScenarioActual, true},
		{"Forecast", models.ScenarioBudget, true},
		{"FY24 Budget", models.ScenarioBudget, true},
		{"Actuals", models.ScenarioActual, true},
		{"Forecast/Budget", models.ScenarioBudget, true},
		{"Plan", models.ScenarioBudget, true},
		{"Actual vs Budget", "", true},
		{"Revenue", "", false},
		{"Explanation", "", false},
		{"Planned capex notes", "", false},
		{"Factual", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := scenarioOf(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
