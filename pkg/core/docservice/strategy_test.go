package docservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/llm"
)

func TestChain_StopsAtFirstSuccess(t *testing.T) {
	var ran []string
	chain := &Chain{
		MaxAttempts: 2,
		Strategies: []Strategy{
			{Name: "a", Run: func(ctx context.Context, doc Document) Outcome {
				ran = append(ran, "a")
				return Fatal(errors.New("no reader"))
			}},
			{Name: "b", Run: func(ctx context.Context, doc Document) Outcome {
				ran = append(ran, "b")
				if len(ran) < 3 {
					return Retryable(errors.New("rate limited"))
				}
				return Success(SummaryResponse{Currency: "EUR"})
			}},
			{Name: "c", Run: func(ctx context.Context, doc Document) Outcome {
				ran = append(ran, "c")
				return Success(SummaryResponse{})
			}},
		},
	}

	resp, trail := chain.Run(context.Background(), Document{Filename: "deck.pdf"})
	assert.Equal(t, "EUR", resp.Currency)
	assert.Equal(t, []string{"a", "b", "b"}, ran)
	require.Len(t, trail, 3)
	assert.Equal(t, OutcomeFatal, trail[0].Kind)
	assert.Equal(t, OutcomeRetryable, trail[1].Kind)
	assert.Equal(t, 2, trail[2].Attempt)
	assert.Equal(t, OutcomeSuccess, trail[2].Kind)
}

func TestChain_AllFail(t *testing.T) {
	chain := &Chain{
		MaxAttempts: 3,
		Strategies: []Strategy{
			{Name: "flaky", Run: func(ctx context.Context, doc Document) Outcome {
				return Retryable(errors.New("timeout"))
			}},
		},
	}
	resp, trail := chain.Run(context.Background(), Document{})
	assert.Empty(t, resp.Items)
	assert.Len(t, trail, 3)
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, OutcomeRetryable, ClassifyError(ErrMalformedResponse).Kind)
	assert.Equal(t, OutcomeRetryable, ClassifyError(context.DeadlineExceeded).Kind)
	assert.Equal(t, OutcomeFatal, ClassifyError(llm.ErrMissingAPIKey).Kind)
	assert.Equal(t, OutcomeFatal, ClassifyError(ErrServiceUnavailable).Kind)
}

func TestDefaultStrategies(t *testing.T) {
	var requests []SummaryRequest
	svc := &FakeService{
		SummarizeFunc: func(ctx context.Context, req SummaryRequest) (SummaryResponse, error) {
			requests = append(requests, req)
			if len(req.Attachment) > 0 {
				return SummaryResponse{}, llm.ErrAttachmentUnsupported
			}
			return SummaryResponse{Items: []SummaryItem{{Metric: "revenue", Amount: 1, Period: time.Now()}}}, nil
		},
	}
	chain := &Chain{Strategies: DefaultStrategies(svc), MaxAttempts: 2}

	pdf := []byte("%PDF-1.7\x00\x01Revenue 100000\x00")
	resp, trail := chain.Run(context.Background(), Document{Filename: "board_deck.pdf", Content: pdf})
	require.Len(t, resp.Items, 1)
	require.Len(t, trail, 3)
	assert.Equal(t, "native", trail[0].Strategy)
	assert.Equal(t, "text", trail[1].Strategy)
	assert.Equal(t, OutcomeFatal, trail[1].Kind)
	assert.Equal(t, "raw", trail[2].Strategy)
	require.Len(t, requests, 2)
	assert.Equal(t, "application/pdf", requests[0].AttachmentMIME)
	assert.Contains(t, requests[1].Content, "Revenue 100000")

	requests = nil
	wb := &grid.Workbook{Sheets: []*grid.Sheet{grid.NewSheetFromStrings("KPIs", [][]string{{"Revenue", "100"}})}}
	_, trail = chain.Run(context.Background(), Document{Filename: "kpis.xlsx", Content: []byte("PK\x03\x04"), Workbook: wb})
	require.Len(t, trail, 2)
	assert.Equal(t, "native", trail[0].Strategy)
	assert.Equal(t, OutcomeFatal, trail[0].Kind)
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].Content, "A1=Revenue | B1=100")
}

func TestPrintableRuns(t *testing.T) {
	assert.Equal(t, "hello\nworld", printableRuns([]byte("hello\x00ab\x01world"), 4, 100))
	assert.Equal(t, "hel", printableRuns([]byte("hello"), 4, 3))
}

func TestDefaultStrategies_NilService(t *testing.T) {
	chain := &Chain{Strategies: DefaultStrategies(nil), MaxAttempts: 2}

	var resp SummaryResponse
	var trail []Attempt
	require.NotPanics(t, func() {
		resp, trail = chain.Run(context.Background(), Document{Filename: "board_deck.pdf", Content: []byte("%PDF-1.7 MRR 5000")})
	})
	assert.Empty(t, resp.Items)
	require.Len(t, trail, 3)
	for _, a := range trail {
		assert.Equal(t, OutcomeFatal, a.Kind, a.Strategy)
	}
	assert.Equal(t, ErrServiceUnavailable.Error(), trail[0].Err)
}
