package models

import (
	"time"
)

// ExtractionGuide carries company-specific hints for a document.
// Synonyms maps a canonical metric id to the exact labels expected in source files.
type ExtractionGuide struct {
	Company       string              `json:"company" yaml:"company"`
	BusinessModel string              `json:"business_model,omitempty" yaml:"business_model"`
	Currency      string              `json:"currency,omitempty" yaml:"currency"`
	Synonyms      map[string][]string `json:"synonyms,omitempty" yaml:"synonyms"`
}

// Targets returns the canonical metric ids named by the guide.
func (g *ExtractionGuide) Targets() []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.Synonyms))
	for id := range g.Synonyms {
		out = append(out, id)
	}
	return out
}

type MappingStatus string

const (
	MappingPending  MappingStatus = "pending"
	MappingApproved MappingStatus = "approved"
	MappingRejected MappingStatus = "rejected"
)

// MetricMapping is a company-specific raw label to canonical id mapping.
type MetricMapping struct {
	ID         string        `json:"id"`
	Company    string        `json:"company"`
	RawLabel   string        `json:"raw_label"`
	MetricID   string        `json:"metric_id"`
	Confidence float64       `json:"confidence"`
	Status     MappingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}
