package docservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/period"
	"portfolio_metrics/pkg/core/utils"
	"portfolio_metrics/pkg/models"
)

// schemaVersion accepts "1" or 1.
type schemaVersion string

func (v *schemaVersion) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = schemaVersion(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = schemaVersion(n.String())
	return nil
}

func (v schemaVersion) check() error {
	if v == "" || string(v) == SchemaVersion || string(v) == SchemaVersion+".0" {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrSchemaVersion, string(v))
}

// flexInt accepts 29, 29.0 and "29".
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil // wrong type is treated as absent
	}
	f.Value, f.Set = int(v), true
	return nil
}

type sheetWire struct {
	Sheet            string             `json:"sheet"`
	DateHeaderRow    flexInt            `json:"dateHeaderRow"`
	ScenarioLabelRow flexInt            `json:"scenarioLabelRow"`
	ActualColumns    []string           `json:"actualColumns"`
	BudgetColumns    []string           `json:"budgetColumns"`
	ColumnDates      map[string]string  `json:"columnDates"`
	MetricRows       map[string]flexInt `json:"metricRows"`
}

type structuralWire struct {
	SchemaVersion schemaVersion   `json:"schema_version"`
	Sheets        json.RawMessage `json:"sheets"`
}

// ParseStructural validates a structural answer. Invalid sheet entries are
// dropped; the error is non-nil only when nothing usable could be read.
func ParseStructural(raw string) (StructuralResult, error) {
	var wire structuralWire
	if _, err := utils.SmartParse(raw, &wire); err != nil {
		return StructuralResult{Tag: StructuralEmpty}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := wire.SchemaVersion.check(); err != nil {
		return StructuralResult{Tag: StructuralEmpty}, err
	}

	entries, err := decodeSheets(wire.Sheets)
	if err != nil {
		return StructuralResult{Tag: StructuralEmpty}, err
	}

	result := StructuralResult{}
	complete := true
	for _, e := range entries {
		sheet, problems, ok := validateSheet(e)
		result.Dropped = append(result.Dropped, problems...)
		if !ok {
			complete = false
			continue
		}
		if len(problems) > 0 || !datesCover(sheet) {
			complete = false
		}
		result.Sheets = append(result.Sheets, sheet)
	}

	switch {
	case len(result.Sheets) == 0:
		result.Tag = StructuralEmpty
	case complete:
		result.Tag = StructuralComplete
	default:
		result.Tag = StructuralPartial
	}
	return result, nil
}

// decodeSheets accepts either a list of sheet entries or an object keyed by sheet name.
func decodeSheets(raw json.RawMessage) ([]sheetWire, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, fmt.Errorf("%w: missing required field sheets", ErrMalformedResponse)
	}

	if trimmed[0] == '[' {
		var list []sheetWire
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: sheets: %v", ErrMalformedResponse, err)
		}
		return list, nil
	}

	var byName map[string]sheetWire
	if err := json.Unmarshal(trimmed, &byName); err != nil {
		return nil, fmt.Errorf("%w: sheets: %v", ErrMalformedResponse, err)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]sheetWire, 0, len(names))
	for _, name := range names {
		e := byName[name]
		if e.Sheet == "" {
			e.Sheet = name
		}
		list = append(list, e)
	}
	return list, nil
}

func validateSheet(e sheetWire) (SheetStructure, []string, bool) {
	var problems []string
	name := strings.TrimSpace(e.Sheet)
	if name == "" {
		return SheetStructure{}, []string{"sheet entry without a name"}, false
	}
	if !e.DateHeaderRow.Set || e.DateHeaderRow.Value <= 0 {
		return SheetStructure{}, []string{fmt.Sprintf("sheet %q: missing dateHeaderRow", name)}, false
	}

	s := SheetStructure{
		Sheet:         name,
		DateHeaderRow: e.DateHeaderRow.Value,
		ColumnDates:   make(map[string]time.Time),
		MetricRows:    make(map[string]int),
	}
	if e.ScenarioLabelRow.Set && e.ScenarioLabelRow.Value > 0 {
		s.ScenarioLabelRow = e.ScenarioLabelRow.Value
	}

	var bad []string
	s.ActualColumns, bad = normalizeColumns(e.ActualColumns)
	problems = append(problems, badColumns(name, bad)...)
	s.BudgetColumns, bad = normalizeColumns(e.BudgetColumns)
	problems = append(problems, badColumns(name, bad)...)
	if len(s.ActualColumns) == 0 && len(s.BudgetColumns) == 0 {
		return SheetStructure{}, append(problems, fmt.Sprintf("sheet %q: no scenario columns", name)), false
	}

	for col, raw := range e.ColumnDates {
		letter, ok := normalizeColumn(col)
		if !ok {
			problems = append(problems, fmt.Sprintf("sheet %q: bad columnDates key %q", name, col))
			continue
		}
		d, ok := parseDate(raw)
		if !ok {
			problems = append(problems, fmt.Sprintf("sheet %q: bad date %q for column %s", name, raw, letter))
			continue
		}
		s.ColumnDates[letter] = d
	}
	for id, row := range e.MetricRows {
		id = strings.TrimSpace(id)
		if id == "" || !row.Set || row.Value <= 0 {
			problems = append(problems, fmt.Sprintf("sheet %q: bad metric row for %q", name, id))
			continue
		}
		s.MetricRows[id] = row.Value
	}
	sort.Strings(problems)
	return s, problems, true
}

func datesCover(s SheetStructure) bool {
	for _, cols := range [][]string{s.ActualColumns, s.BudgetColumns} {
		for _, c := range cols {
			if _, ok := s.ColumnDates[c]; !ok {
				return false
			}
		}
	}
	return true
}

func normalizeColumns(in []string) ([]string, []string) {
	var out, bad []string
	seen := make(map[string]bool)
	for _, c := range in {
		letter, ok := normalizeColumn(c)
		if !ok {
			bad = append(bad, c)
			continue
		}
		if !seen[letter] {
			seen[letter] = true
			out = append(out, letter)
		}
	}
	return out, bad
}

func normalizeColumn(c string) (string, bool) {
	letter := strings.ToUpper(strings.TrimSpace(c))
	if letter == "" {
		return "", false
	}
	for _, r := range letter {
		if r < 'A' || r > 'Z' {
			return "", false
		}
	}
	if _, err := grid.ColumnIndex(letter); err != nil {
		return "", false
	}
	return letter, true
}

func badColumns(sheet string, bad []string) []string {
	out := make([]string, len(bad))
	for i, b := range bad {
		out[i] = fmt.Sprintf("sheet %q: bad column %q", sheet, b)
	}
	return out
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return models.MonthStart(t), true
		}
	}
	return period.ParseText(s)
}

type matchWire struct {
	SchemaVersion schemaVersion `json:"schema_version"`
	Matches       map[string]struct {
		Sheet string  `json:"sheet"`
		Row   flexInt `json:"row"`
	} `json:"matches"`
}

// ParseMatches validates a matching answer. A missing matches object is
// malformed; an empty one is a valid "nothing found".
func ParseMatches(raw string) (MatchResponse, error) {
	var wire matchWire
	if _, err := utils.SmartParse(raw, &wire); err != nil {
		return MatchResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := wire.SchemaVersion.check(); err != nil {
		return MatchResponse{}, err
	}
	if wire.Matches == nil {
		return MatchResponse{}, fmt.Errorf("%w: missing required field matches", ErrMalformedResponse)
	}

	out := MatchResponse{Matches: make(map[string]RowRef, len(wire.Matches))}
	for id, m := range wire.Matches {
		id = strings.TrimSpace(id)
		sheet := strings.TrimSpace(m.Sheet)
		if id == "" || sheet == "" || !m.Row.Set || m.Row.Value <= 0 {
			continue
		}
		out.Matches[id] = RowRef{Sheet: sheet, Row: m.Row.Value}
	}
	return out, nil
}

type summaryWire struct {
	SchemaVersion schemaVersion `json:"schema_version"`
	Currency      string        `json:"currency"`
	Items         []struct {
		Metric   string          `json:"metric"`
		Amount   json.RawMessage `json:"amount"`
		Period   string          `json:"period"`
		Scenario string          `json:"scenario"`
		Page     flexInt         `json:"page"`
		Note     string          `json:"note"`
	} `json:"items"`
}

// ParseSummary validates a whole-document summary. Items missing a metric,
// a numeric amount or a resolvable period are dropped.
func ParseSummary(raw string) (SummaryResponse, error) {
	var wire summaryWire
	if _, err := utils.SmartParse(raw, &wire); err != nil {
		return SummaryResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := wire.SchemaVersion.check(); err != nil {
		return SummaryResponse{}, err
	}
	if wire.Items == nil {
		return SummaryResponse{}, fmt.Errorf("%w: missing required field items", ErrMalformedResponse)
	}

	out := SummaryResponse{Currency: strings.ToUpper(strings.TrimSpace(wire.Currency))}
	for _, it := range wire.Items {
		metric := strings.TrimSpace(it.Metric)
		amount, ok := parseAmount(it.Amount)
		if metric == "" || !ok {
			continue
		}
		d, ok := parseDate(it.Period)
		if !ok {
			continue
		}
		scenario, ok := models.ParseScenario(it.Scenario)
		if !ok {
			scenario = models.ScenarioActual
		}
		out.Items = append(out.Items, SummaryItem{
			Metric:   metric,
			Amount:   amount,
			Period:   d,
			Scenario: scenario,
			Page:     it.Page.Value,
			Note:     it.Note,
		})
	}
	return out, nil
}

// parseAmount only accepts JSON numbers or plain machine-formatted numeric
// strings; localized strings are the normalizer's business on real cells.
func parseAmount(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type classifyWire struct {
	SchemaVersion schemaVersion `json:"schema_version"`
	MetricID      *string       `json:"metric_id"`
	Confidence    float64       `json:"confidence"`
}

// ParseClassification validates a classification answer. metric_id is required
// (it may be empty to signal "no fit").
func ParseClassification(raw string) (Classification, error) {
	var wire classifyWire
	if _, err := utils.SmartParse(raw, &wire); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := wire.SchemaVersion.check(); err != nil {
		return Classification{}, err
	}
	if wire.MetricID == nil {
		return Classification{}, fmt.Errorf("%w: missing required field metric_id", ErrMalformedResponse)
	}
	c := Classification{
		MetricID:   strings.ToLower(strings.TrimSpace(*wire.MetricID)),
		Confidence: wire.Confidence,
	}
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	return c, nil
}
