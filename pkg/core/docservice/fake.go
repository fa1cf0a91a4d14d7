package docservice

import (
	"context"
	"sync"
)

// FakeService is a programmable Service for tests and offline runs.
// A nil func answers ErrServiceUnavailable.
type FakeService struct {
	SketchFunc    func(ctx context.Context, digest Digest) (StructuralResult, error)
	MatchFunc     func(ctx context.Context, req MatchRequest) (MatchResponse, error)
	SummarizeFunc func(ctx context.Context, req SummaryRequest) (SummaryResponse, error)
	ClassifyFunc  func(ctx context.Context, req ClassifyRequest) (Classification, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ Service = (*FakeService)(nil)

func (f *FakeService) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

// Calls returns how often op ("sketch", "match", "summarize", "classify") was invoked.
func (f *FakeService) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeService) SketchStructure(ctx context.Context, digest Digest) (StructuralResult, error) {
	f.record("sketch")
	if f.SketchFunc == nil {
		return StructuralResult{}, ErrServiceUnavailable
	}
	return f.SketchFunc(ctx, digest)
}

func (f *FakeService) MatchRows(ctx context.Context, req MatchRequest) (MatchResponse, error) {
	f.record("match")
	if f.MatchFunc == nil {
		return MatchResponse{}, ErrServiceUnavailable
	}
	return f.MatchFunc(ctx, req)
}

func (f *FakeService) Summarize(ctx context.Context, req SummaryRequest) (SummaryResponse, error) {
	f.record("summarize")
	if f.SummarizeFunc == nil {
		return SummaryResponse{}, ErrServiceUnavailable
	}
	return f.SummarizeFunc(ctx, req)
}

func (f *FakeService) Classify(ctx context.Context, req ClassifyRequest) (Classification, error) {
	f.record("classify")
	if f.ClassifyFunc == nil {
		return Classification{}, ErrServiceUnavailable
	}
	return f.ClassifyFunc(ctx, req)
}
