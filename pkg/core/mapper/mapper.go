// Package mapper resolves where each metric, period and scenario lives in a
// workbook. The document understanding service is consulted in two narrow
// phases; every answer it gives is validated against the grid before use.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"portfolio_metrics/pkg/core/docservice"
	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/labelindex"
	"portfolio_metrics/pkg/models"
)

// PhaseOutcome reports how a service phase ended.
type PhaseOutcome string

const (
	OutcomeOK      PhaseOutcome = "ok"
	OutcomeEmpty   PhaseOutcome = "empty"
	OutcomeFailed  PhaseOutcome = "failed"
	OutcomeTimeout PhaseOutcome = "timeout"
	OutcomeSkipped PhaseOutcome = "skipped"
)

// Summary describes one mapping run. It is built once and never changed.
type Summary struct {
	Structural        docservice.StructuralTag `json:"-"`
	StructuralOutcome PhaseOutcome             `json:"structural_outcome"`
	MatchingOutcome   PhaseOutcome             `json:"matching_outcome"`
	PrepassMatches    int                      `json:"prepass_matches"`
	ServiceMatches    int                      `json:"service_matches"`
	StaticMatches     int                      `json:"static_matches"`
	RejectedMatches   []string                 `json:"rejected_matches,omitempty"`
	FilledDates       int                      `json:"filled_dates"`
	DetectedColumns   int                      `json:"detected_columns"`
	ExcludedColumns   []string                 `json:"excluded_columns,omitempty"`
	Resolved          []string                 `json:"resolved,omitempty"`
	Warnings          []string                 `json:"warnings,omitempty"`
}

// Mapper builds coordinate maps. Service may be nil, in which case only the
// deterministic passes run.
type Mapper struct {
	Service           docservice.Service
	Logger            *zap.Logger
	CallTimeout       time.Duration
	MaxLabelsPerSheet int
	SampleRows        int
}

func New(svc docservice.Service, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{
		Service:           svc,
		Logger:            logger,
		CallTimeout:       60 * time.Second,
		MaxLabelsPerSheet: 400,
		SampleRows:        8,
	}
}

type structuralAnswer struct {
	result  docservice.StructuralResult
	outcome PhaseOutcome
	warning string
}

type matchAnswer struct {
	matches map[string]docservice.RowRef
	outcome PhaseOutcome
	warning string
}

// Map resolves the coordinate map of wb for the given metric ids plus the
// ids named by guide. It never returns an error: service failures degrade
// the affected phase to an empty contribution and are listed as warnings.
func (m *Mapper) Map(ctx context.Context, wb *grid.Workbook, idx *labelindex.Index, guide *models.ExtractionGuide, targets []string) (*models.CoordinateMap, Summary) {
	logger := m.logger().With(zap.String("file", wb.Name))
	if idx == nil {
		idx = labelindex.Build(wb, labelindex.DefaultOptions())
	}
	targets = mergeTargets(targets, guide.Targets())

	var sum Summary
	prepass := Prepass(idx, guide, targets)
	sum.PrepassMatches = len(prepass)

	var pending []docservice.MatchTarget
	for _, id := range targets {
		if _, ok := prepass[id]; ok {
			continue
		}
		pending = append(pending, docservice.MatchTarget{MetricID: id, Synonyms: synonymsFor(guide, id)})
	}

	var (
		structural structuralAnswer
		matched    matchAnswer
		g          errgroup.Group
	)
	g.Go(func() error {
		structural = m.sketch(ctx, wb)
		return nil
	})
	g.Go(func() error {
		matched = m.match(ctx, wb.Name, idx, pending)
		return nil
	})
	_ = g.Wait()

	sum.Structural = structural.result.Tag
	sum.StructuralOutcome = structural.outcome
	sum.MatchingOutcome = matched.outcome
	for _, w := range []string{structural.warning, matched.warning} {
		if w != "" {
			sum.Warnings = append(sum.Warnings, w)
		}
	}
	sum.Warnings = append(sum.Warnings, structural.result.Dropped...)

	cm := models.NewCoordinateMap()
	ambiguous := make(map[string]map[string]bool)
	m.applyStructure(cm, wb, structural.result, ambiguous, &sum)

	for id, ref := range prepass {
		cm.Sheet(ref.Sheet).MetricRows[id] = ref.Row
	}
	for _, id := range sortedKeys(matched.matches) {
		ref := matched.matches[id]
		if !idx.Contains(ref.Sheet, ref.Row) {
			sum.RejectedMatches = append(sum.RejectedMatches, fmt.Sprintf("%s -> %s!%d", id, ref.Sheet, ref.Row))
			continue
		}
		cm.Sheet(ref.Sheet).MetricRows[id] = ref.Row
		sum.ServiceMatches++
	}
	if len(sum.RejectedMatches) > 0 {
		logger.Warn("dropped matches outside the label index", zap.Strings("matches", sum.RejectedMatches))
	}

	// Targets nobody placed fall back to the canonical synonym table.
	static := StaticMatches(idx, unresolved(cm, targets))
	for id, ref := range static {
		cm.Sheet(ref.Sheet).MetricRows[id] = ref.Row
	}
	sum.StaticMatches = len(static)

	for _, name := range cm.SheetNames() {
		sheet, err := wb.Sheet(name)
		if err != nil {
			continue
		}
		sm := cm.Sheets[name]
		sum.DetectedColumns += detectScenarios(sheet, sm, ambiguous)
		sum.FilledDates += fillDates(sheet, sm)
	}

	sum.ExcludedColumns = excludeAmbiguous(cm, ambiguous)
	if len(sum.ExcludedColumns) > 0 {
		logger.Warn("excluded columns tagged both actual and budget", zap.Strings("columns", sum.ExcludedColumns))
	}

	seen := make(map[string]bool)
	for _, name := range cm.SheetNames() {
		for id := range cm.Sheets[name].MetricRows {
			if !seen[id] {
				seen[id] = true
				sum.Resolved = append(sum.Resolved, id)
			}
		}
	}
	sort.Strings(sum.Resolved)

	logger.Info("coordinate map resolved",
		zap.String("structural", sum.StructuralOutcome.String()),
		zap.String("matching", sum.MatchingOutcome.String()),
		zap.Int("prepass", sum.PrepassMatches),
		zap.Int("matches", sum.ServiceMatches),
		zap.Int("static", sum.StaticMatches),
		zap.Int("resolved", len(sum.Resolved)),
		zap.Int("filled_dates", sum.FilledDates),
	)
	return cm, sum
}

func (o PhaseOutcome) String() string { return string(o) }

func (m *Mapper) sketch(ctx context.Context, wb *grid.Workbook) (ans structuralAnswer) {
	if m.Service == nil {
		return structuralAnswer{outcome: OutcomeSkipped}
	}
	defer func() {
		if r := recover(); r != nil {
			ans = structuralAnswer{outcome: OutcomeFailed, warning: fmt.Sprintf("structural phase panicked: %v", r)}
		}
	}()

	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	digest := docservice.BuildDigest(wb.Name, wb, m.SampleRows)
	res, err := m.Service.SketchStructure(callCtx, digest)
	if err != nil {
		outcome := outcomeFor(err)
		m.logger().Warn("structural phase degraded", zap.String("file", wb.Name), zap.Error(err))
		return structuralAnswer{outcome: outcome, warning: fmt.Sprintf("structural phase %s: %v", outcome, err)}
	}
	if res.Tag == docservice.StructuralEmpty {
		return structuralAnswer{result: res, outcome: OutcomeEmpty}
	}
	return structuralAnswer{result: res, outcome: OutcomeOK}
}

func (m *Mapper) match(ctx context.Context, filename string, idx *labelindex.Index, targets []docservice.MatchTarget) (ans matchAnswer) {
	if m.Service == nil || len(targets) == 0 || idx.Len() == 0 {
		return matchAnswer{outcome: OutcomeSkipped}
	}
	defer func() {
		if r := recover(); r != nil {
			ans = matchAnswer{outcome: OutcomeFailed, warning: fmt.Sprintf("matching phase panicked: %v", r)}
		}
	}()

	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	resp, err := m.Service.MatchRows(callCtx, docservice.MatchRequest{
		Filename: filename,
		Targets:  targets,
		Labels:   idx.GroupBySheet(m.MaxLabelsPerSheet),
	})
	if err != nil {
		outcome := outcomeFor(err)
		m.logger().Warn("matching phase degraded", zap.String("file", filename), zap.Error(err))
		return matchAnswer{outcome: outcome, warning: fmt.Sprintf("matching phase %s: %v", outcome, err)}
	}

	// Only requested metrics are accepted.
	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t.MetricID] = true
	}
	out := make(map[string]docservice.RowRef)
	for id, ref := range resp.Matches {
		if wanted[id] {
			out[id] = ref
		}
	}
	if len(out) == 0 {
		return matchAnswer{outcome: OutcomeEmpty}
	}
	return matchAnswer{matches: out, outcome: OutcomeOK}
}

func (m *Mapper) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.CallTimeout)
}

func (m *Mapper) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

func outcomeFor(err error) PhaseOutcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeFailed
}

// applyStructure copies validated structural sheets into cm. Sheets the
// workbook does not have and rows past the end of a sheet are ignored.
func (m *Mapper) applyStructure(cm *models.CoordinateMap, wb *grid.Workbook, res docservice.StructuralResult, ambiguous map[string]map[string]bool, sum *Summary) {
	for _, st := range res.Sheets {
		sheet, err := wb.Sheet(st.Sheet)
		if err != nil {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("structural answer names unknown sheet %q", st.Sheet))
			continue
		}
		sm := cm.Sheet(st.Sheet)
		if inRange(sheet, st.DateHeaderRow) {
			sm.DateHeaderRow = st.DateHeaderRow
		}
		if inRange(sheet, st.ScenarioLabelRow) {
			sm.ScenarioLabelRow = st.ScenarioLabelRow
		}
		for _, col := range st.ActualColumns {
			tagColumn(sm, st.Sheet, col, models.ScenarioActual, ambiguous)
		}
		for _, col := range st.BudgetColumns {
			tagColumn(sm, st.Sheet, col, models.ScenarioBudget, ambiguous)
		}
		for col, d := range st.ColumnDates {
			sm.ColumnDates[strings.ToUpper(col)] = models.MonthStart(d)
		}
		for id, row := range st.MetricRows {
			if inRange(sheet, row) {
				sm.MetricRows[id] = row
			}
		}
	}
}

func tagColumn(sm *models.SheetMap, sheet, col string, sc models.Scenario, ambiguous map[string]map[string]bool) {
	col = strings.ToUpper(strings.TrimSpace(col))
	if col == "" {
		return
	}
	if prev, ok := sm.ColumnScenarios[col]; ok && prev != sc {
		if ambiguous[sheet] == nil {
			ambiguous[sheet] = make(map[string]bool)
		}
		ambiguous[sheet][col] = true
		return
	}
	sm.ColumnScenarios[col] = sc
}

func excludeAmbiguous(cm *models.CoordinateMap, ambiguous map[string]map[string]bool) []string {
	var out []string
	for sheet, cols := range ambiguous {
		sm, ok := cm.Sheets[sheet]
		if !ok {
			continue
		}
		for col := range cols {
			delete(sm.ColumnScenarios, col)
			out = append(out, sheet+"!"+col)
		}
	}
	sort.Strings(out)
	return out
}

func inRange(sheet *grid.Sheet, row int) bool {
	return row >= 1 && row <= len(sheet.Rows)
}

func mergeTargets(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// unresolved returns the targets no sheet of cm has a row for.
func unresolved(cm *models.CoordinateMap, targets []string) []string {
	var out []string
	for _, id := range targets {
		found := false
		for _, sm := range cm.Sheets {
			if _, ok := sm.MetricRows[id]; ok {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}

func synonymsFor(guide *models.ExtractionGuide, id string) []string {
	if guide == nil {
		return nil
	}
	return guide.Synonyms[id]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
