package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"portfolio_metrics/pkg/core/canon"
	"portfolio_metrics/pkg/core/docservice"
	"portfolio_metrics/pkg/core/extract"
	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/labelindex"
	"portfolio_metrics/pkg/core/mapper"
	"portfolio_metrics/pkg/core/reconcile"
	"portfolio_metrics/pkg/core/store"
	"portfolio_metrics/pkg/models"
)

// Document is one submitted file.
type Document struct {
	Company     string
	Filename    string
	Content     []byte
	Guide       *models.ExtractionGuide
	Explanation *models.Explanation
	// DocumentType overrides detection from the filename when set.
	DocumentType models.DocumentType
}

// StageSummaries holds the summary value each stage returned for one document.
type StageSummaries struct {
	FileType  string               `json:"file_type"`
	Sheets    int                  `json:"sheets"`
	Labels    int                  `json:"labels"`
	Mapper    *mapper.Summary      `json:"mapper,omitempty"`
	Extract   extract.Summary      `json:"extract"`
	Fallback  []docservice.Attempt `json:"fallback,omitempty"`
	Canon     canon.Summary        `json:"canon"`
	Reconcile reconcile.Summary    `json:"reconcile"`
	Duration  time.Duration        `json:"duration"`
}

// DocumentResult is the extraction output of one document, before reconciliation.
type DocumentResult struct {
	Company      string              `json:"company"`
	Filename     string              `json:"filename"`
	DocumentType models.DocumentType `json:"document_type"`
	Items        []models.LineItem   `json:"items"`
	Unresolved   []canon.Unresolved  `json:"unresolved,omitempty"`
	// Fallback is set when the items come from the whole-document summary.
	Fallback bool           `json:"fallback"`
	Summary  StageSummaries `json:"summary"`
}

// IngestResult is a DocumentResult plus what reconciliation did to the ledger.
type IngestResult struct {
	DocumentResult
	Changes   []reconcile.Change `json:"changes"`
	Conflicts []models.Conflict  `json:"conflicts"`
}

// Failure records a document the batch could not process.
type Failure struct {
	Company  string `json:"company"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type BatchResult struct {
	Results  []IngestResult `json:"results"`
	Failures []Failure      `json:"failures,omitempty"`
}

// Totals folds the per-document summaries of a batch.
type Totals struct {
	Documents  int               `json:"documents"`
	Failed     int               `json:"failed"`
	Fallbacks  int               `json:"fallbacks"`
	Items      int               `json:"items"`
	Unresolved int               `json:"unresolved"`
	Reconcile  reconcile.Summary `json:"reconcile"`
}

func (b BatchResult) Totals() Totals {
	t := Totals{Documents: len(b.Results) + len(b.Failures), Failed: len(b.Failures)}
	for _, r := range b.Results {
		if r.Fallback {
			t.Fallbacks++
		}
		t.Items += len(r.Items)
		t.Unresolved += len(r.Unresolved)
		t.Reconcile = t.Reconcile.Add(r.Summary.Reconcile)
	}
	return t
}

// Orchestrator runs the document-to-fact pipeline:
// Grid -> Label Index -> Mapper -> Extractor (or summary fallback) -> Canonicalizer -> Reconciler -> Ledger
type Orchestrator struct {
	Mapper        *mapper.Mapper
	Extractor     *extract.Extractor
	Canonicalizer *canon.Canonicalizer
	Reconciler    *reconcile.Engine
	Ledger        store.Ledger
	// Fallback reads non-grid documents and grids the mapper could not map.
	Fallback *docservice.Chain
	Logger   *zap.Logger

	Workers         int
	DefaultCurrency string
	LabelColumns    int
}

// NewOrchestrator wires the stages around one document understanding service.
func NewOrchestrator(svc docservice.Service, mappings canon.MappingStore, ledger store.Ledger, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Mapper:        mapper.New(svc, logger.Named("mapper")),
		Extractor:     extract.New("USD", logger.Named("extract")),
		Canonicalizer: canon.New(mappings, svc, 0.9, logger.Named("canon")),
		Reconciler:    reconcile.NewEngine(),
		Ledger:        ledger,
		Fallback: &docservice.Chain{
			Strategies:  docservice.DefaultStrategies(svc),
			MaxAttempts: 2,
			Logger:      logger.Named("fallback"),
		},
		Logger:          logger,
		Workers:         4,
		DefaultCurrency: "USD",
		LabelColumns:    3,
	}
}

// Extract runs every stage up to, but not including, reconciliation.
// A grid file that cannot be read is an error; an unsupported format is
// read through the fallback instead.
func (o *Orchestrator) Extract(ctx context.Context, doc Document) (DocumentResult, error) {
	start := time.Now()
	if doc.Company == "" {
		return DocumentResult{}, fmt.Errorf("document %s has no company", doc.Filename)
	}
	res := DocumentResult{
		Company:      doc.Company,
		Filename:     doc.Filename,
		DocumentType: o.documentType(doc),
	}
	res.Summary.FileType = grid.FileType(doc.Filename)
	currency := o.currency(doc)

	var (
		wb    *grid.Workbook
		items []models.LineItem
	)
	if grid.IsGridFile(doc.Filename) {
		var err error
		wb, err = grid.Load(doc.Filename, doc.Content)
		switch {
		case errors.Is(err, grid.ErrUnsupportedFormat):
			wb = nil
		case err != nil:
			return res, err
		}
	}

	if wb != nil {
		opts := labelindex.DefaultOptions()
		if o.LabelColumns > 0 {
			opts.LabelColumns = o.LabelColumns
		}
		idx := labelindex.Build(wb, opts)
		res.Summary.Sheets = len(wb.Sheets)
		res.Summary.Labels = idx.Len()

		cmap, msum := o.Mapper.Map(ctx, wb, idx, doc.Guide, canon.Vocabulary())
		res.Summary.Mapper = &msum
		if !cmap.IsEmpty() {
			ex := *o.Extractor
			ex.LabelColumns = opts.LabelColumns
			items, res.Summary.Extract = ex.Extract(cmap, wb, currency)
		} else {
			res.Fallback = true
		}
	} else {
		res.Fallback = true
	}

	if res.Fallback && o.Fallback != nil {
		summary, trail := o.Fallback.Run(ctx, docservice.Document{
			Filename: doc.Filename,
			Company:  doc.Company,
			Currency: currency,
			Content:  doc.Content,
			Workbook: wb,
		})
		res.Summary.Fallback = trail
		items = o.Extractor.FromSummary(summary, doc.Filename, currency)
		res.Summary.Extract.Items = len(items)
	}

	res.Items, res.Unresolved, res.Summary.Canon = o.Canonicalizer.CanonicalizeItems(ctx, doc.Company, doc.Guide, items)
	res.Summary.Duration = time.Since(start)
	return res, nil
}

// Ingest extracts doc and reconciles its items into the ledger.
func (o *Orchestrator) Ingest(ctx context.Context, doc Document) (IngestResult, error) {
	extracted, err := o.Extract(ctx, doc)
	if err != nil {
		return IngestResult{DocumentResult: extracted}, err
	}
	return o.commit(ctx, doc, extracted)
}

// IngestBatch extracts documents in parallel, then reconciles them one by
// one in input order. A failing document is recorded and skipped. The
// error is non-nil only when ctx ends.
func (o *Orchestrator) IngestBatch(ctx context.Context, docs []Document) (BatchResult, error) {
	extracted := make([]DocumentResult, len(docs))
	errs := make([]error, len(docs))

	var g errgroup.Group
	g.SetLimit(o.workers())
	for i := range docs {
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return nil
			}
			extracted[i], errs[i] = o.Extract(ctx, docs[i])
			return nil
		})
	}
	_ = g.Wait()

	var out BatchResult
	for i, doc := range docs {
		if errs[i] == nil {
			var res IngestResult
			res, errs[i] = o.commit(ctx, doc, extracted[i])
			if errs[i] == nil {
				out.Results = append(out.Results, res)
				continue
			}
		}
		o.logger().Warn("document failed",
			zap.String("company", doc.Company),
			zap.String("file", doc.Filename),
			zap.Error(errs[i]))
		out.Failures = append(out.Failures, Failure{Company: doc.Company, Filename: doc.Filename, Error: errs[i].Error()})
	}
	return out, ctx.Err()
}

func (o *Orchestrator) commit(ctx context.Context, doc Document, extracted DocumentResult) (IngestResult, error) {
	res := IngestResult{DocumentResult: extracted}
	if len(extracted.Items) == 0 {
		o.logDone(res)
		return res, nil
	}

	candidates := make([]reconcile.Candidate, len(extracted.Items))
	keys := make([]models.FactKey, len(extracted.Items))
	for i, it := range extracted.Items {
		candidates[i] = reconcile.Candidate{
			Item:         it,
			SourceFile:   doc.Filename,
			DocumentType: extracted.DocumentType,
			Explanation:  doc.Explanation,
		}
		keys[i] = it.Key()
	}

	var result reconcile.Result
	err := o.Ledger.Apply(ctx, doc.Company, keys, func(current map[models.FactKey]models.FactRecord) (map[models.FactKey]models.FactRecord, error) {
		result = o.Reconciler.Reconcile(doc.Company, current, candidates)
		return result.Updated(), nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to reconcile %s: %w", doc.Filename, err)
	}

	res.Changes = result.Changes
	res.Conflicts = result.Conflicts
	res.Summary.Reconcile = result.Summary
	o.logDone(res)
	return res, nil
}

func (o *Orchestrator) logDone(res IngestResult) {
	o.logger().Info("document ingested",
		zap.String("company", res.Company),
		zap.String("file", res.Filename),
		zap.String("document_type", string(res.DocumentType)),
		zap.Bool("fallback", res.Fallback),
		zap.Int("items", len(res.Items)),
		zap.Int("unresolved", len(res.Unresolved)),
		zap.Int("inserted", res.Summary.Reconcile.Inserted),
		zap.Int("overwritten", res.Summary.Reconcile.Overwritten),
		zap.Int("conflicts", len(res.Conflicts)),
		zap.Duration("duration", res.Summary.Duration))
}

func (o *Orchestrator) documentType(doc Document) models.DocumentType {
	if doc.DocumentType != "" {
		return doc.DocumentType
	}
	return reconcile.DetectDocumentType(doc.Filename)
}

func (o *Orchestrator) currency(doc Document) string {
	if doc.Guide != nil && doc.Guide.Currency != "" {
		return doc.Guide.Currency
	}
	return o.DefaultCurrency
}

func (o *Orchestrator) workers() int {
	if o.Workers <= 0 {
		return 1
	}
	return o.Workers
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
