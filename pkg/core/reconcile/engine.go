// Package reconcile merges incoming line items into a company's fact ledger.
//
// Every (metric, period, scenario) key carries at most one current fact. An
// incoming candidate is compared against it and the engine decides:
//  1. Insert: no current fact. The change log is seeded with "Initial import".
//  2. No-op: same amount. Nothing is logged.
//  3. Overwrite: higher effective priority, a rounding correction, or an
//     equal-priority newer value (flagged for review when unexplained).
//  4. Discard: lower effective priority. Explained discards are surfaced as
//     low-severity conflicts.
//
// The engine is pure: the input ledger is never mutated and persistence is
// left to the caller.
package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"portfolio_metrics/pkg/models"
)

// =============================================================================
// TYPES
// =============================================================================

// Candidate is one incoming line item with the provenance reconciliation needs.
type Candidate struct {
	Item         models.LineItem
	SourceFile   string
	DocumentType models.DocumentType
	Explanation  *models.Explanation
}

// Action is what happened to a candidate.
type Action string

const (
	ActionInserted    Action = "inserted"
	ActionOverwritten Action = "overwritten"
	ActionUnchanged   Action = "unchanged"
	ActionDiscarded   Action = "discarded"
	ActionReplayed    Action = "replayed"
)

// Change reports the decision for one candidate, in arrival order.
type Change struct {
	Key        models.FactKey `json:"key"`
	Action     Action         `json:"action"`
	OldValue   *float64       `json:"old_value,omitempty"`
	NewValue   float64        `json:"new_value"`
	Reason     string         `json:"reason,omitempty"`
	SourceFile string         `json:"source_file"`
	Priority   int            `json:"priority"`
}

// Summary counts candidates per action.
type Summary struct {
	Inserted    int `json:"inserted"`
	Overwritten int `json:"overwritten"`
	Unchanged   int `json:"unchanged"`
	Discarded   int `json:"discarded"`
	Replayed    int `json:"replayed"`
	Conflicts   int `json:"conflicts"`
}

// Add folds other into s.
func (s Summary) Add(other Summary) Summary {
	s.Inserted += other.Inserted
	s.Overwritten += other.Overwritten
	s.Unchanged += other.Unchanged
	s.Discarded += other.Discarded
	s.Replayed += other.Replayed
	s.Conflicts += other.Conflicts
	return s
}

// Result is the reconciled ledger plus what changed.
type Result struct {
	Ledger    map[models.FactKey]models.FactRecord
	Changes   []Change
	Conflicts []models.Conflict
	Summary   Summary
}

// Updated returns the records whose state changed: inserted or overwritten.
func (r Result) Updated() map[models.FactKey]models.FactRecord {
	out := make(map[models.FactKey]models.FactRecord)
	for _, c := range r.Changes {
		if c.Action == ActionInserted || c.Action == ActionOverwritten {
			out[c.Key] = r.Ledger[c.Key]
		}
	}
	return out
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine holds the reconciliation settings.
type Engine struct {
	// VarianceThreshold is the relative difference at or below which an
	// equal-priority change is a rounding correction (0.01 = 1%).
	VarianceThreshold decimal.Decimal
	Now               func() time.Time
	NewID             func() string
}

// NewEngine creates an engine with a 1% rounding threshold.
func NewEngine() *Engine {
	return &Engine{
		VarianceThreshold: decimal.NewFromFloat(0.01),
		Now:               time.Now,
		NewID:             uuid.NewString,
	}
}

// Reconcile applies incoming to a copy of existing. Candidates are processed
// in slice order, each against the ledger as updated by its predecessors, so
// a later candidate is always the newer one for tie-breaks.
func (e *Engine) Reconcile(company string, existing map[models.FactKey]models.FactRecord, incoming []Candidate) Result {
	res := Result{Ledger: make(map[models.FactKey]models.FactRecord, len(existing))}
	for k, rec := range existing {
		res.Ledger[k] = rec.Clone()
	}
	for _, c := range incoming {
		e.apply(company, &res, c)
	}
	res.Summary.Conflicts = len(res.Conflicts)
	return res
}

func (e *Engine) apply(company string, res *Result, c Candidate) {
	key := c.Item.Key()
	amount := round6(c.Item.Amount)
	priority := EffectivePriority(c.DocumentType, key.Scenario, c.Explanation)
	change := Change{Key: key, NewValue: amount, SourceFile: c.SourceFile, Priority: priority}

	cur, ok := res.Ledger[key]
	if !ok {
		rec := models.FactRecord{
			Company:    company,
			MetricID:   key.MetricID,
			PeriodDate: key.Period,
			Scenario:   key.Scenario,
		}
		change.Action = ActionInserted
		change.Reason = "Initial import"
		res.Ledger[key] = e.write(rec, c, amount, priority, change.Reason)
		res.Changes = append(res.Changes, change)
		res.Summary.Inserted++
		return
	}

	old := cur.Amount
	change.OldValue = &old
	if sameAmount(old, amount) {
		change.Action = ActionUnchanged
		res.Changes = append(res.Changes, change)
		res.Summary.Unchanged++
		return
	}

	// A value this source already contributed cannot displace the current
	// fact unless it now outranks it.
	if priority <= cur.Priority && replayed(cur, amount, c.SourceFile) {
		change.Action = ActionReplayed
		res.Changes = append(res.Changes, change)
		res.Summary.Replayed++
		return
	}

	switch {
	case priority > cur.Priority:
		change.Action = ActionOverwritten
		change.Reason = overrideReason(c, priority, cur.Priority)

	case priority < cur.Priority:
		change.Action = ActionDiscarded
		res.Changes = append(res.Changes, change)
		res.Summary.Discarded++
		if c.Explanation != nil {
			res.Conflicts = append(res.Conflicts, e.conflict(cur, c, amount, models.SeverityLow,
				fmt.Sprintf("Kept %s value from a higher-priority source (%d > %d); review the %s explanation before replacing it.",
					cur.DocumentType, cur.Priority, priority, c.Explanation.Type)))
		}
		return

	case e.isRounding(old, amount):
		change.Action = ActionOverwritten
		change.Reason = "Rounding correction"

	case c.Explanation.IsOverride():
		change.Action = ActionOverwritten
		change.Reason = explanationReason(c.Explanation)
		res.Conflicts = append(res.Conflicts, e.conflict(cur, c, amount, models.SeverityMedium,
			"Applied the explained restatement at equal source priority; confirm the revised figure with the company."))

	case c.Explanation != nil:
		change.Action = ActionOverwritten
		change.Reason = explanationReason(c.Explanation)
		res.Conflicts = append(res.Conflicts, e.conflict(cur, c, amount, models.SeverityMedium,
			"Applied the newer explained value at equal source priority; confirm the revision with the company."))

	default:
		change.Action = ActionOverwritten
		change.Reason = "Newer source at equal priority (unexplained)"
		res.Conflicts = append(res.Conflicts, e.conflict(cur, c, amount, models.SeverityHigh,
			"Unexplained change at equal source priority; the newest value was applied and needs manual review."))
	}

	res.Ledger[key] = e.write(cur, c, amount, priority, change.Reason)
	res.Changes = append(res.Changes, change)
	res.Summary.Overwritten++
}

// write returns rec carrying the candidate's value with one more change-log entry.
func (e *Engine) write(rec models.FactRecord, c Candidate, amount float64, priority int, reason string) models.FactRecord {
	now := e.now()
	entry := models.ChangeLogEntry{
		ID:         e.newID(),
		Timestamp:  now,
		NewValue:   amount,
		Reason:     reason,
		SourceFile: c.SourceFile,
	}
	if len(rec.ChangeLog) > 0 {
		old := rec.Amount
		entry.OldValue = &old
	}

	rec.Amount = amount
	rec.SourceFile = c.SourceFile
	rec.DocumentType = documentType(c.DocumentType)
	rec.Priority = priority
	rec.Explanation = nil
	if c.Explanation != nil {
		expl := *c.Explanation
		rec.Explanation = &expl
	}
	rec.ChangeLog = append(rec.ChangeLog, entry)
	rec.UpdatedAt = now
	return rec
}

func (e *Engine) conflict(cur models.FactRecord, c Candidate, amount float64, sev models.Severity, recommendation string) models.Conflict {
	return models.Conflict{
		ID:             e.newID(),
		MetricID:       cur.MetricID,
		Period:         cur.PeriodDate,
		Scenario:       cur.Scenario,
		ExistingValue:  cur.Amount,
		ExistingSource: cur.SourceFile,
		NewValue:       amount,
		NewSource:      c.SourceFile,
		Severity:       sev,
		Recommendation: recommendation,
	}
}

// isRounding reports whether old -> next is a rounding correction: the
// relative variance is within the threshold. Small values get no whole-number
// leeway, so 2 -> 2.4 is a real change.
func (e *Engine) isRounding(old, next float64) bool {
	return Variance(old, next).LessThanOrEqual(e.VarianceThreshold)
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Engine) newID() string {
	if e.NewID == nil {
		return uuid.NewString()
	}
	return e.NewID()
}

// =============================================================================
// HELPERS
// =============================================================================

// Variance is |next-old| / max(|old|, |next|), rounded to 6 places.
func Variance(old, next float64) decimal.Decimal {
	o, n := decimal.NewFromFloat(old), decimal.NewFromFloat(next)
	denom := decimal.Max(o.Abs(), n.Abs())
	if denom.IsZero() {
		return decimal.Zero
	}
	return n.Sub(o).Abs().DivRound(denom, 6)
}

func round6(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(6).Float64()
	return f
}

func sameAmount(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(6).Equal(decimal.NewFromFloat(b).Round(6))
}

func replayed(rec models.FactRecord, amount float64, source string) bool {
	for _, entry := range rec.ChangeLog {
		if entry.SourceFile == source && sameAmount(entry.NewValue, amount) {
			return true
		}
	}
	return false
}

func overrideReason(c Candidate, priority, existing int) string {
	if c.Explanation != nil && (c.Explanation.IsOverride() || c.Explanation.Type == models.ExplainForecastRevision) {
		return explanationReason(c.Explanation)
	}
	return fmt.Sprintf("Higher source priority: %s (%d > %d)", documentType(c.DocumentType), priority, existing)
}

func explanationReason(expl *models.Explanation) string {
	switch expl.Type {
	case models.ExplainRestatement:
		return withText("Restatement", expl.Text)
	case models.ExplainCorrection:
		return withText("Correction", expl.Text)
	case models.ExplainForecastRevision:
		return "Forecast revision"
	}
	return withText("Explained change", expl.Text)
}

func withText(prefix, text string) string {
	if text == "" {
		return prefix
	}
	return prefix + ": " + text
}

func documentType(t models.DocumentType) models.DocumentType {
	if t == "" {
		return models.DocUnknown
	}
	return t
}
