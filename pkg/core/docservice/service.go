// Package docservice is the boundary to the LLM-backed document
// understanding collaborator. Everything that crosses it is parsed into
// strict, versioned types; nothing else leaves this package.
package docservice

import (
	"context"
	"errors"
	"time"

	"portfolio_metrics/pkg/core/labelindex"
	"portfolio_metrics/pkg/models"
)

var (
	ErrServiceUnavailable = errors.New("document understanding service unavailable")
	ErrMalformedResponse  = errors.New("malformed document understanding response")
	ErrSchemaVersion      = errors.New("unsupported response schema version")
)

// SchemaVersion is the only response version this package accepts.
const SchemaVersion = "1"

// Service is the document understanding contract used by the mapper,
// the summary fallback and the canonicalizer.
type Service interface {
	SketchStructure(ctx context.Context, digest Digest) (StructuralResult, error)
	MatchRows(ctx context.Context, req MatchRequest) (MatchResponse, error)
	Summarize(ctx context.Context, req SummaryRequest) (SummaryResponse, error)
	Classify(ctx context.Context, req ClassifyRequest) (Classification, error)
}

// Digest is the bounded textual sketch of a workbook sent for structure detection.
type Digest struct {
	Filename string
	Sheets   []string
	Text     string
}

// StructuralTag says how much of a structural answer survived validation.
type StructuralTag int

const (
	StructuralEmpty StructuralTag = iota
	StructuralPartial
	StructuralComplete
)

func (t StructuralTag) String() string {
	switch t {
	case StructuralPartial:
		return "partial"
	case StructuralComplete:
		return "complete"
	}
	return "empty"
}

// SheetStructure is one validated sheet of a structural answer. Rows are 1-based.
type SheetStructure struct {
	Sheet            string
	DateHeaderRow    int
	ScenarioLabelRow int
	ActualColumns    []string
	BudgetColumns    []string
	ColumnDates      map[string]time.Time
	MetricRows       map[string]int
}

type StructuralResult struct {
	Tag    StructuralTag
	Sheets []SheetStructure
	// Dropped explains every sheet entry or field rejected during validation.
	Dropped []string
}

// MatchTarget is a metric to locate, with the labels it is known under.
type MatchTarget struct {
	MetricID string
	Synonyms []string
}

type MatchRequest struct {
	Filename string
	Targets  []MatchTarget
	Labels   map[string][]labelindex.Entry
}

type RowRef struct {
	Sheet string `json:"sheet"`
	Row   int    `json:"row"`
}

type MatchResponse struct {
	Matches map[string]RowRef
}

// SummaryRequest asks for a whole-document best-effort reading. Content is
// text; Attachment carries raw bytes for providers that read documents natively.
type SummaryRequest struct {
	Filename       string
	Company        string
	Currency       string
	Content        string
	Attachment     []byte
	AttachmentMIME string
}

type SummaryItem struct {
	Metric   string
	Amount   float64
	Period   time.Time
	Scenario models.Scenario
	Page     int
	Note     string
}

type SummaryResponse struct {
	Currency string
	Items    []SummaryItem
}

type ClassifyRequest struct {
	Label         string
	BusinessModel string
	Vocabulary    []string
}

type Classification struct {
	MetricID   string
	Confidence float64
}
