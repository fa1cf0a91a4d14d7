package docservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/llm"
)

// OutcomeKind is the uniform result of one extraction strategy attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	}
	return "fatal"
}

type Outcome struct {
	Kind    OutcomeKind
	Summary SummaryResponse
	Err     error
}

func Success(s SummaryResponse) Outcome { return Outcome{Kind: OutcomeSuccess, Summary: s} }
func Retryable(err error) Outcome       { return Outcome{Kind: OutcomeRetryable, Err: err} }
func Fatal(err error) Outcome           { return Outcome{Kind: OutcomeFatal, Err: err} }

// ClassifyError maps a service error to an outcome: malformed answers and
// transient provider failures are retryable, anything else is fatal.
func ClassifyError(err error) Outcome {
	if errors.Is(err, ErrMalformedResponse) || llm.IsRetryable(err) {
		return Retryable(err)
	}
	return Fatal(err)
}

// Document is the input of the summary fallback.
type Document struct {
	Filename string
	Company  string
	Currency string
	Content  []byte
	Workbook *grid.Workbook // nil for non-grid documents
}

type Strategy struct {
	Name string
	Run  func(ctx context.Context, doc Document) Outcome
}

// Attempt records one strategy run for the stage summary.
type Attempt struct {
	Strategy string
	Attempt  int
	Kind     OutcomeKind
	Err      string
}

// Chain tries strategies in order and stops at the first success.
type Chain struct {
	Strategies  []Strategy
	MaxAttempts int
	Logger      *zap.Logger
}

// Run never fails: when every strategy is exhausted it returns an empty summary.
func (c *Chain) Run(ctx context.Context, doc Document) (SummaryResponse, []Attempt) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var trail []Attempt
	for _, strategy := range c.Strategies {
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if ctx.Err() != nil {
				trail = append(trail, Attempt{Strategy: strategy.Name, Attempt: attempt, Kind: OutcomeFatal, Err: ctx.Err().Error()})
				return SummaryResponse{}, trail
			}
			out := strategy.Run(ctx, doc)
			rec := Attempt{Strategy: strategy.Name, Attempt: attempt, Kind: out.Kind}
			if out.Err != nil {
				rec.Err = out.Err.Error()
			}
			trail = append(trail, rec)

			if out.Kind == OutcomeSuccess {
				return out.Summary, trail
			}
			logger.Warn("summary strategy failed",
				zap.String("file", doc.Filename),
				zap.String("strategy", strategy.Name),
				zap.Int("attempt", attempt),
				zap.Stringer("outcome", out.Kind),
				zap.Error(out.Err))
			if out.Kind == OutcomeFatal {
				break
			}
		}
	}
	return SummaryResponse{}, trail
}

const maxRenderedRows = 2000

// DefaultStrategies returns native document reading, decoded text and raw
// printable text, in that order. With a nil svc every strategy ends fatally
// with ErrServiceUnavailable.
func DefaultStrategies(svc Service) []Strategy {
	summarize := func(ctx context.Context, req SummaryRequest) Outcome {
		if svc == nil {
			return Fatal(ErrServiceUnavailable)
		}
		resp, err := svc.Summarize(ctx, req)
		if err != nil {
			return ClassifyError(err)
		}
		return Success(resp)
	}
	request := func(doc Document) SummaryRequest {
		return SummaryRequest{Filename: doc.Filename, Company: doc.Company, Currency: doc.Currency}
	}

	return []Strategy{
		{
			Name: "native",
			Run: func(ctx context.Context, doc Document) Outcome {
				mime := attachmentMIME(doc.Filename)
				if mime == "" || len(doc.Content) == 0 {
					return Fatal(fmt.Errorf("no native reader for %s", filepath.Ext(doc.Filename)))
				}
				req := request(doc)
				req.Attachment = doc.Content
				req.AttachmentMIME = mime
				return summarize(ctx, req)
			},
		},
		{
			Name: "text",
			Run: func(ctx context.Context, doc Document) Outcome {
				req := request(doc)
				switch {
				case doc.Workbook != nil:
					req.Content = RenderWorkbook(doc.Workbook, maxRenderedRows)
				case isText(doc.Content):
					req.Content = string(doc.Content)
				default:
					return Fatal(errors.New("content is not text"))
				}
				return summarize(ctx, req)
			},
		},
		{
			Name: "raw",
			Run: func(ctx context.Context, doc Document) Outcome {
				text := printableRuns(doc.Content, 4, maxSummaryContentRunes)
				if strings.TrimSpace(text) == "" {
					return Fatal(errors.New("no printable text"))
				}
				req := request(doc)
				req.Content = text
				return summarize(ctx, req)
			},
		},
	}
}

func attachmentMIME(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	}
	return ""
}

func isText(b []byte) bool {
	return len(b) > 0 && utf8.Valid(b) && !bytes.ContainsRune(b, 0)
}

// printableRuns keeps runs of at least minRun printable ASCII characters,
// similar to strings(1).
func printableRuns(b []byte, minRun, maxLen int) string {
	var out, run strings.Builder
	flush := func() {
		if run.Len() >= minRun {
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.WriteString(run.String())
		}
		run.Reset()
	}
	for _, c := range b {
		if out.Len() >= maxLen {
			break
		}
		if c >= 0x20 && c < 0x7f {
			run.WriteByte(c)
			continue
		}
		flush()
	}
	flush()
	s := out.String()
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
