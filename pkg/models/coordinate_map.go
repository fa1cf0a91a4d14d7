package models

import (
	"sort"
	"time"
)

// SheetMap is the resolved coordinate structure of one sheet.
// Rows are 1-based; columns are spreadsheet letters.
type SheetMap struct {
	DateHeaderRow    int                  `json:"date_header_row,omitempty"`
	ScenarioLabelRow int                  `json:"scenario_label_row,omitempty"`
	MetricRows       map[string]int       `json:"metric_rows"`
	ColumnDates      map[string]time.Time `json:"column_dates"`
	ColumnScenarios  map[string]Scenario  `json:"column_scenarios"`
}

func NewSheetMap() *SheetMap {
	return &SheetMap{
		MetricRows:      make(map[string]int),
		ColumnDates:     make(map[string]time.Time),
		ColumnScenarios: make(map[string]Scenario),
	}
}

// Columns returns the scenario-tagged columns in sheet order.
func (sm *SheetMap) Columns() []string {
	cols := make([]string, 0, len(sm.ColumnScenarios))
	for c := range sm.ColumnScenarios {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		if len(cols[i]) != len(cols[j]) {
			return len(cols[i]) < len(cols[j])
		}
		return cols[i] < cols[j]
	})
	return cols
}

// CoordinateMap maps (sheet, row, column) to (metric, period, scenario).
type CoordinateMap struct {
	Sheets map[string]*SheetMap `json:"sheets"`
}

func NewCoordinateMap() *CoordinateMap {
	return &CoordinateMap{Sheets: make(map[string]*SheetMap)}
}

// Sheet returns the map for name, creating it when absent.
func (cm *CoordinateMap) Sheet(name string) *SheetMap {
	if sm, ok := cm.Sheets[name]; ok {
		return sm
	}
	sm := NewSheetMap()
	cm.Sheets[name] = sm
	return sm
}

// IsEmpty reports whether nothing extractable was resolved: no sheet has
// both a metric row and a tagged column.
func (cm *CoordinateMap) IsEmpty() bool {
	if cm == nil {
		return true
	}
	for _, sm := range cm.Sheets {
		if len(sm.MetricRows) > 0 && len(sm.ColumnScenarios) > 0 {
			return false
		}
	}
	return true
}

// SheetNames returns sheet names sorted for deterministic iteration.
func (cm *CoordinateMap) SheetNames() []string {
	names := make([]string, 0, len(cm.Sheets))
	for n := range cm.Sheets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
