package models

import (
	"fmt"
	"strings"
	"time"
)

const PeriodLayout = "2006-01-02"

// DocumentType classifies a source document for priority purposes.
type DocumentType string

const (
	DocBoardDeck      DocumentType = "board_deck"
	DocInvestorReport DocumentType = "investor_report"
	DocMonthlyReport  DocumentType = "monthly_report"
	DocBudget         DocumentType = "budget"
	DocFinancialModel DocumentType = "financial_model"
	DocRawExport      DocumentType = "raw_export"
	DocUnknown        DocumentType = "unknown"
)

// ExplanationType is the kind of commentary attached to a submitted figure.
type ExplanationType string

const (
	ExplainRestatement      ExplanationType = "restatement"
	ExplainCorrection       ExplanationType = "correction"
	ExplainForecastRevision ExplanationType = "forecast_revision"
	ExplainOther            ExplanationType = "other"
)

type Explanation struct {
	Type ExplanationType `json:"type"`
	Text string          `json:"text,omitempty"`
}

// IsOverride reports whether the explanation is authoritative regardless of document type.
func (e *Explanation) IsOverride() bool {
	return e != nil && (e.Type == ExplainRestatement || e.Type == ExplainCorrection)
}

// FactKey identifies at most one current FactRecord per company.
type FactKey struct {
	MetricID string   `json:"metric_id"`
	Period   string   `json:"period"`
	Scenario Scenario `json:"scenario"`
}

func NewFactKey(metricID string, period time.Time, scenario Scenario) FactKey {
	return FactKey{MetricID: metricID, Period: period.Format(PeriodLayout), Scenario: scenario}
}

func (k FactKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.MetricID, k.Period, k.Scenario)
}

// ParseFactKey is the inverse of FactKey.String.
func ParseFactKey(s string) (FactKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return FactKey{}, fmt.Errorf("invalid fact key %q", s)
	}
	if _, err := time.Parse(PeriodLayout, parts[1]); err != nil {
		return FactKey{}, fmt.Errorf("invalid fact key period %q: %w", parts[1], err)
	}
	return FactKey{MetricID: parts[0], Period: parts[1], Scenario: Scenario(parts[2])}, nil
}

// ChangeLogEntry is one accepted state transition of a FactRecord.
type ChangeLogEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	OldValue   *float64  `json:"old_value,omitempty"`
	NewValue   float64   `json:"new_value"`
	Reason     string    `json:"reason"`
	SourceFile string    `json:"source_file"`
}

// FactRecord is the current value for a FactKey plus its full history.
type FactRecord struct {
	Company      string           `json:"company"`
	MetricID     string           `json:"metric_id"`
	PeriodDate   string           `json:"period_date"`
	Scenario     Scenario         `json:"scenario"`
	Amount       float64          `json:"amount"`
	SourceFile   string           `json:"source_file"`
	DocumentType DocumentType     `json:"document_type"`
	Priority     int              `json:"priority"`
	Explanation  *Explanation     `json:"explanation,omitempty"`
	ChangeLog    []ChangeLogEntry `json:"change_log"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (r FactRecord) Key() FactKey {
	return FactKey{MetricID: r.MetricID, Period: r.PeriodDate, Scenario: r.Scenario}
}

// Clone returns a deep copy so callers can never alias another snapshot's history.
func (r FactRecord) Clone() FactRecord {
	out := r
	if r.Explanation != nil {
		e := *r.Explanation
		out.Explanation = &e
	}
	out.ChangeLog = make([]ChangeLogEntry, len(r.ChangeLog))
	for i, entry := range r.ChangeLog {
		if entry.OldValue != nil {
			v := *entry.OldValue
			entry.OldValue = &v
		}
		out.ChangeLog[i] = entry
	}
	return out
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Conflict is surfaced to a reviewer and never written to the ledger.
type Conflict struct {
	ID             string   `json:"id"`
	MetricID       string   `json:"metric_id"`
	Period         string   `json:"period"`
	Scenario       Scenario `json:"scenario"`
	ExistingValue  float64  `json:"existing_value"`
	ExistingSource string   `json:"existing_source"`
	NewValue       float64  `json:"new_value"`
	NewSource      string   `json:"new_source"`
	Severity       Severity `json:"severity"`
	Recommendation string   `json:"recommendation"`
}
