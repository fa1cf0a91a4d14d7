package mapper

import (
	"strings"
	"time"
	"unicode"

	"portfolio_metrics/pkg/core/canon"
	"portfolio_metrics/pkg/core/docservice"
	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/labelindex"
	"portfolio_metrics/pkg/core/period"
	"portfolio_metrics/pkg/models"
)

// Prepass resolves targets whose guide synonyms or canonical id appear
// verbatim (case-insensitive) as a row label. The first indexed hit wins.
func Prepass(idx *labelindex.Index, guide *models.ExtractionGuide, targets []string) map[string]docservice.RowRef {
	out := make(map[string]docservice.RowRef)
	for _, id := range targets {
		candidates := append([]string{}, synonymsFor(guide, id)...)
		candidates = append(candidates, id, strings.ReplaceAll(id, "_", " "))
		for _, label := range candidates {
			hits := idx.Lookup(label)
			if len(hits) == 0 {
				continue
			}
			out[id] = docservice.RowRef{Sheet: hits[0].Sheet, Row: hits[0].Row}
			break
		}
	}
	return out
}

// StaticMatches resolves targets through the canonical synonym table:
// "Total MRR" or "Monthly Recurring Revenue" claims mrr. The first indexed
// hit wins.
func StaticMatches(idx *labelindex.Index, targets []string) map[string]docservice.RowRef {
	wanted := make(map[string]bool, len(targets))
	for _, id := range targets {
		wanted[id] = true
	}
	out := make(map[string]docservice.RowRef)
	for _, e := range idx.Entries {
		id, ok := canon.Static(e.Label)
		if !ok || !wanted[id] {
			continue
		}
		if _, done := out[id]; done {
			continue
		}
		out[id] = docservice.RowRef{Sheet: e.Sheet, Row: e.Row}
	}
	return out
}

// detectScenarios tags columns from a labeled scenario row when a sheet has
// metric rows but no tagged columns. Columns are only tagged from explicit
// labels, never by position. It returns the number of columns tagged.
func detectScenarios(sheet *grid.Sheet, sm *models.SheetMap, ambiguous map[string]map[string]bool) int {
	if len(sm.ColumnScenarios) > 0 || len(sm.MetricRows) == 0 {
		return 0
	}
	row := sm.ScenarioLabelRow
	if row == 0 {
		row = findScenarioRow(sheet)
		if row == 0 {
			return 0
		}
		sm.ScenarioLabelRow = row
	}

	tagged := 0
	cells := sheet.Rows[row-1]
	for c, cell := range cells {
		if cell.Kind != grid.Text {
			continue
		}
		sc, ok := scenarioOf(cell.String())
		if !ok {
			continue
		}
		col := grid.ColumnLetter(c)
		if sc == "" {
			if ambiguous[sheet.Name] == nil {
				ambiguous[sheet.Name] = make(map[string]bool)
			}
			ambiguous[sheet.Name][col] = true
			continue
		}
		sm.ColumnScenarios[col] = sc
		tagged++
	}
	return tagged
}

// findScenarioRow returns the first 1-based row with at least two scenario labels.
func findScenarioRow(sheet *grid.Sheet) int {
	for r, cells := range sheet.Rows {
		n := 0
		for _, cell := range cells {
			if cell.Kind != grid.Text {
				continue
			}
			if _, ok := scenarioOf(cell.String()); ok {
				n++
			}
		}
		if n >= 2 {
			return r + 1
		}
	}
	return 0
}

// scenarioOf reads a scenario header word by word. A label naming both
// scenarios ("Actual vs Budget") reports ok with an empty scenario.
func scenarioOf(s string) (models.Scenario, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" || len(t) > 30 {
		return "", false
	}
	if sc, ok := models.ParseScenario(t); ok {
		return sc, true
	}
	var actual, budget bool
	for _, w := range strings.FieldsFunc(t, func(r rune) bool { return !unicode.IsLetter(r) }) {
		switch w {
		case "actual", "actuals":
			actual = true
		case "budget", "budgets", "forecast", "forecasts", "fcst", "plan":
			budget = true
		}
	}
	switch {
	case actual && budget:
		return "", true
	case actual:
		return models.ScenarioActual, true
	case budget:
		return models.ScenarioBudget, true
	}
	return "", false
}

// fillDates resolves dates for tagged columns the structural answer left
// undated, reading the date header row. The header row is located when it
// is unknown. It returns the number of columns filled.
func fillDates(sheet *grid.Sheet, sm *models.SheetMap) int {
	var missing []string
	for _, col := range sm.Columns() {
		if _, ok := sm.ColumnDates[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return 0
	}

	if sm.DateHeaderRow == 0 {
		sm.DateHeaderRow = findDateRow(sheet)
		if sm.DateHeaderRow == 0 {
			return 0
		}
	}

	filled := 0
	for _, col := range missing {
		cell, err := sheet.At(sm.DateHeaderRow, col)
		if err != nil {
			continue
		}
		if d, ok := cellDate(cell); ok {
			sm.ColumnDates[col] = d
			filled++
		}
	}
	return filled
}

// findDateRow returns the 1-based row that reads most like a date header,
// at least two dates. Text dates always count. Numeric cells count only as
// month header serials running forward one month at a time, so a row of
// amounts near 45000 is not taken for a header.
func findDateRow(sheet *grid.Sheet) int {
	best, bestCount := 0, 1
	for r, cells := range sheet.Rows {
		n := 0
		for _, cell := range cells {
			if cell.Kind != grid.Text {
				continue
			}
			if _, ok := period.ParseText(cell.String()); ok {
				n++
			}
		}
		n += serialRun(cells)
		if n > bestCount {
			best, bestCount = r+1, n
		}
	}
	return best
}

// serialRun returns the longest run of consecutive-month header serials in
// cells, or 0 when no two line up.
func serialRun(cells []grid.Cell) int {
	longest, run := 0, 0
	var prev time.Time
	for _, cell := range cells {
		if cell.Kind != grid.Number {
			continue
		}
		if !period.IsHeaderSerial(cell.Number) {
			run = 0
			continue
		}
		d, _ := period.ParseSerial(cell.Number)
		if run > 0 && d.Equal(prev.AddDate(0, 1, 0)) {
			run++
		} else {
			run = 1
		}
		prev = d
		if run > longest {
			longest = run
		}
	}
	if longest < 2 {
		return 0
	}
	return longest
}

func cellDate(cell grid.Cell) (time.Time, bool) {
	switch cell.Kind {
	case grid.Number:
		return period.ParseSerial(cell.Number)
	case grid.Text:
		return period.ParseText(cell.String())
	}
	return time.Time{}, false
}
