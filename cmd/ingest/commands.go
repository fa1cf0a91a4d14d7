package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"portfolio_metrics/pkg/core/canon"
	"portfolio_metrics/pkg/core/pipeline"
	"portfolio_metrics/pkg/core/reconcile"
	"portfolio_metrics/pkg/models"
)

func newIngestCmd() *cobra.Command {
	var (
		guidePath   string
		explainType string
		explainText string
		docType     string
		asJSON      bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <company> <file>...",
		Short: "Extract metrics from documents and reconcile them into the ledger",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			company := args[0]

			guide, err := loadGuide(guidePath, company)
			if err != nil {
				return err
			}
			explanation, err := parseExplanation(explainType, explainText)
			if err != nil {
				return err
			}
			var dt models.DocumentType
			if docType != "" {
				var ok bool
				if dt, ok = reconcile.ParseDocumentType(docType); !ok {
					return fmt.Errorf("unknown document type %q", docType)
				}
			}

			docs := make([]pipeline.Document, 0, len(args)-1)
			for _, path := range args[1:] {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				docs = append(docs, pipeline.Document{
					Company:      company,
					Filename:     filepath.Base(path),
					Content:      content,
					Guide:        guide,
					Explanation:  explanation,
					DocumentType: dt,
				})
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			o, err := a.orchestrator()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				return runDryRun(ctx, o, docs, out, asJSON)
			}

			batch, err := o.IngestBatch(ctx, docs)
			if err != nil {
				return err
			}
			a.logger.Info("ingest finished",
				zap.String("company", company),
				zap.Any("totals", batch.Totals()))

			if asJSON {
				err = writeJSON(out, struct {
					pipeline.BatchResult
					Totals pipeline.Totals `json:"totals"`
				}{batch, batch.Totals()})
				if err != nil {
					return err
				}
			} else {
				printBatch(out, batch)
			}
			if len(batch.Failures) > 0 {
				return fmt.Errorf("%d of %d documents failed", len(batch.Failures), len(docs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&guidePath, "guide", "", "Extraction guide YAML (business model, currency, synonyms)")
	cmd.Flags().StringVar(&explainType, "explanation-type", "", "restatement, correction, forecast_revision or other")
	cmd.Flags().StringVar(&explainText, "explanation", "", "Commentary attached to the submitted figures")
	cmd.Flags().StringVar(&docType, "doc-type", "", "Document type override (board_deck, investor_report, ...)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Extract only; do not touch the ledger")
	return cmd
}

func runDryRun(ctx context.Context, o *pipeline.Orchestrator, docs []pipeline.Document, out io.Writer, asJSON bool) error {
	results := make([]pipeline.DocumentResult, 0, len(docs))
	for _, doc := range docs {
		res, err := o.Extract(ctx, doc)
		if err != nil {
			return fmt.Errorf("%s: %w", doc.Filename, err)
		}
		results = append(results, res)
	}
	if asJSON {
		return writeJSON(out, results)
	}
	for _, res := range results {
		printDocument(out, res)
	}
	return nil
}

func newFactsCmd() *cobra.Command {
	var (
		metric string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "facts <company>",
		Short: "List the current facts of a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ledger, err := a.ledger.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			records := make([]models.FactRecord, 0, len(ledger))
			for _, r := range ledger {
				if metric == "" || r.MetricID == metric {
					records = append(records, r)
				}
			}
			sort.Slice(records, func(i, j int) bool {
				return records[i].Key().String() < records[j].Key().String()
			})

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METRIC\tPERIOD\tSCENARIO\tAMOUNT\tSOURCE\tTYPE\tCHANGES")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
					r.MetricID, r.PeriodDate, r.Scenario, formatAmount(r.Amount),
					r.SourceFile, r.DocumentType, len(r.ChangeLog))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "Only show this canonical metric")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print facts as JSON")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history <company> <metric> <period> <scenario>",
		Short:   "Show the change log of one fact",
		Example: "  ingest history acme mrr 2024-09-01 actual",
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, ok := models.ParseScenario(args[3])
			if !ok {
				return fmt.Errorf("unknown scenario %q", args[3])
			}
			key, err := models.ParseFactKey(args[1] + "|" + args[2] + "|" + string(scenario))
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.ledger.History(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tOLD\tNEW\tSOURCE\tREASON")
			for _, e := range entries {
				old := "-"
				if e.OldValue != nil {
					old = formatAmount(*e.OldValue)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), old, formatAmount(e.NewValue), e.SourceFile, e.Reason)
			}
			return w.Flush()
		},
	}
	return cmd
}

func newSuggestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggestions <company>",
		Short: "List label mappings waiting for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.mappings.Pending(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending suggestions")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tSUGGESTED\tCONFIDENCE\tCREATED")
			for _, m := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
					m.ID, m.RawLabel, m.MetricID, m.Confidence, m.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func newApproveCmd() *cobra.Command {
	var (
		metric string
		reject bool
	)
	cmd := &cobra.Command{
		Use:   "approve <mapping-id>",
		Short: "Approve or reject a suggested label mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := models.MappingApproved
			if reject {
				status = models.MappingRejected
			}
			if metric != "" && !canon.IsCanonical(metric) {
				return fmt.Errorf("%w: %s", canon.ErrUnknownMetric, metric)
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.mappings.Review(cmd.Context(), args[0], status, metric)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q -> %s (%s)\n", m.Company, m.RawLabel, m.MetricID, m.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "Canonical metric to map to instead of the suggestion")
	cmd.Flags().BoolVar(&reject, "reject", false, "Reject the suggestion")
	return cmd
}

// loadGuide reads an extraction guide; the company argument wins over the file.
func loadGuide(path, company string) (*models.ExtractionGuide, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guide: %w", err)
	}
	var g models.ExtractionGuide
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse guide %s: %w", path, err)
	}
	g.Company = company
	return &g, nil
}

func parseExplanation(kind, text string) (*models.Explanation, error) {
	if kind == "" && text == "" {
		return nil, nil
	}
	t := models.ExplanationType(strings.ToLower(strings.TrimSpace(kind)))
	switch t {
	case models.ExplainRestatement, models.ExplainCorrection, models.ExplainForecastRevision, models.ExplainOther:
	case "":
		t = models.ExplainOther
	default:
		return nil, fmt.Errorf("unknown explanation type %q", kind)
	}
	return &models.Explanation{Type: t, Text: text}, nil
}

func printBatch(out io.Writer, batch pipeline.BatchResult) {
	for _, res := range batch.Results {
		printDocument(out, res.DocumentResult)

		if len(res.Changes) > 0 {
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  KEY\tACTION\tOLD\tNEW\tREASON")
			for _, c := range res.Changes {
				old := "-"
				if c.OldValue != nil {
					old = formatAmount(*c.OldValue)
				}
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", c.Key, c.Action, old, formatAmount(c.NewValue), c.Reason)
			}
			w.Flush()
		}
		for _, c := range res.Conflicts {
			fmt.Fprintf(out, "  CONFLICT [%s] %s %s %s: %s (%s) vs %s (%s). %s\n",
				c.Severity, c.MetricID, c.Period, c.Scenario,
				formatAmount(c.ExistingValue), c.ExistingSource,
				formatAmount(c.NewValue), c.NewSource, c.Recommendation)
		}
		fmt.Fprintln(out)
	}

	for _, f := range batch.Failures {
		fmt.Fprintf(out, "FAILED %s: %s\n", f.Filename, f.Error)
	}

	t := batch.Totals()
	fmt.Fprintf(out, "%d documents (%d failed, %d via fallback), %d items, %d unresolved labels\n",
		t.Documents, t.Failed, t.Fallbacks, t.Items, t.Unresolved)
	fmt.Fprintf(out, "inserted %d, overwritten %d, unchanged %d, discarded %d, replayed %d, conflicts %d\n",
		t.Reconcile.Inserted, t.Reconcile.Overwritten, t.Reconcile.Unchanged,
		t.Reconcile.Discarded, t.Reconcile.Replayed, t.Reconcile.Conflicts)
}

func printDocument(out io.Writer, res pipeline.DocumentResult) {
	via := res.Summary.FileType
	if res.Fallback {
		via += ", document summary"
	}
	fmt.Fprintf(out, "%s (%s, %s)\n", res.Filename, res.DocumentType, via)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  METRIC\tPERIOD\tSCENARIO\tAMOUNT\tCUR\tCONF\tSOURCE")
	for _, it := range res.Items {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			it.MetricID, it.PeriodDate.Format(models.PeriodLayout), it.Scenario,
			formatAmount(it.Amount), it.Currency, it.Confidence, sourceRef(it.Source))
	}
	w.Flush()

	for _, u := range res.Unresolved {
		line := fmt.Sprintf("  unresolved %q (%s, %d items)", u.Label, u.Reason, u.Items)
		if u.Suggested != "" {
			line += fmt.Sprintf(": suggested %s at %.2f, mapping %s", u.Suggested, u.Confidence, u.MappingID)
		}
		fmt.Fprintln(out, line)
	}
}

func sourceRef(s models.SourceLocation) string {
	switch {
	case s.Cell != "":
		return s.Sheet + "!" + s.Cell
	case s.Page > 0:
		return fmt.Sprintf("page %d", s.Page)
	}
	return s.FileType
}

func formatAmount(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
