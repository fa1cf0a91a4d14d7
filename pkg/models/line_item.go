package models

import (
	"strings"
	"time"
)

// Scenario tells whether a figure is historical performance or a projection.
type Scenario string

const (
	ScenarioActual Scenario = "actual"
	ScenarioBudget Scenario = "budget"
)

// ParseScenario maps free-form scenario labels to a Scenario.
func ParseScenario(s string) (Scenario, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "actual", "actuals":
		return ScenarioActual, true
	case "budget", "forecast", "plan":
		return ScenarioBudget, true
	}
	return "", false
}

// SourceLocation records where a value was read from.
type SourceLocation struct {
	FileType    string      `json:"file_type"`
	Sheet       string      `json:"sheet,omitempty"`
	Cell        string      `json:"cell,omitempty"`
	Page        int         `json:"page,omitempty"`
	BoundingBox *[4]float64 `json:"bounding_box,omitempty"`
	Note        string      `json:"note,omitempty"`
}

// LineItem is a single normalized value extracted from a document.
// Items are never mutated after creation; stages copy and replace.
type LineItem struct {
	MetricID   string         `json:"metric_id"`
	Label      string         `json:"label,omitempty"`
	Amount     float64        `json:"amount"`
	PeriodDate time.Time      `json:"period_date"`
	Scenario   Scenario       `json:"scenario"`
	Currency   string         `json:"currency,omitempty"`
	Confidence float64        `json:"confidence"`
	Source     SourceLocation `json:"source_location"`
}

// Key returns the ledger key for the item.
func (li LineItem) Key() FactKey {
	return NewFactKey(li.MetricID, li.PeriodDate, li.Scenario)
}

// WithMetric returns a copy of the item carrying a different metric id.
func (li LineItem) WithMetric(metricID string) LineItem {
	if li.Label == "" {
		li.Label = li.MetricID
	}
	li.MetricID = metricID
	return li
}

// MonthStart normalizes a date to the first day of its month (UTC).
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
