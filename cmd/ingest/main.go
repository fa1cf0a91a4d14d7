// Command ingest reads portfolio company reports into the metrics ledger.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"portfolio_metrics/pkg/core/agent"
	"portfolio_metrics/pkg/core/canon"
	"portfolio_metrics/pkg/core/config"
	"portfolio_metrics/pkg/core/docservice"
	"portfolio_metrics/pkg/core/llm"
	"portfolio_metrics/pkg/core/logging"
	"portfolio_metrics/pkg/core/pipeline"
	"portfolio_metrics/pkg/core/prompt"
	"portfolio_metrics/pkg/core/store"
)

var (
	configPath string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract and reconcile portfolio company metrics",
		Long: `ingest reads spreadsheets and reports submitted by portfolio companies,
maps them to canonical metrics and reconciles the values into a per-company ledger.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: "+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	rootCmd.AddCommand(
		newIngestCmd(),
		newFactsCmd(),
		newHistoryCmd(),
		newSuggestionsCmd(),
		newApproveCmd(),
	)
	return rootCmd
}

// app holds everything a command needs. Close releases the database pool.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	ledger   store.Ledger
	mappings canon.MappingStore
	pool     *pgxpool.Pool
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		a.ledger = store.NewMemoryLedger()
		a.mappings = canon.NewMemoryMappings()
	case config.BackendFile:
		if a.ledger, err = store.NewFileLedger(cfg.Ledger.Dir); err != nil {
			return nil, err
		}
		if a.mappings, err = store.NewFileMappings(cfg.Ledger.Dir); err != nil {
			return nil, err
		}
	case config.BackendPostgres:
		if a.pool, err = store.Open(ctx, cfg.Ledger.DatabaseURL); err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, a.pool); err != nil {
			a.pool.Close()
			return nil, err
		}
		a.ledger = store.NewPostgresLedger(a.pool)
		a.mappings = store.NewPostgresMappings(a.pool)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	logger.Debug("configuration loaded",
		zap.String("ledger", cfg.Ledger.Backend),
		zap.String("provider", cfg.LLM.ActiveProvider))
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}

// orchestrator wires providers, prompts and the document understanding
// service into a pipeline configured from a.cfg.
func (a *app) orchestrator() (*pipeline.Orchestrator, error) {
	cfg := a.cfg
	providers := []llm.Provider{
		llm.NewGeminiProvider(cfg.LLM.GeminiAPIKey, cfg.LLM.Models["gemini"]),
		llm.NewDeepSeekProvider(cfg.LLM.DeepSeekAPIKey, cfg.LLM.Models["deepseek"]),
		llm.NewQwenProvider(cfg.LLM.QwenAPIKey, cfg.LLM.Models["qwen"]),
	}
	manager := agent.NewManager(cfg.LLM.Config, providers, a.logger.Named("agent"))

	prompts := prompt.NewWithDefaults()
	n, err := prompt.LoadFromDirectory(prompts, cfg.LLM.PromptsDir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if n > 0 {
		a.logger.Info("loaded prompt overrides", zap.Int("count", n), zap.String("dir", cfg.LLM.PromptsDir))
	}

	svc := docservice.NewLLMService(manager, prompts, a.logger.Named("docservice"))
	o := pipeline.NewOrchestrator(svc, a.mappings, a.ledger, a.logger)

	o.Mapper.CallTimeout = cfg.Mapper.CallTimeout
	o.Mapper.MaxLabelsPerSheet = cfg.Mapper.MaxLabelsPerSheet
	o.Mapper.SampleRows = cfg.Mapper.DigestSampleRows
	o.Extractor.DefaultCurrency = cfg.Pipeline.DefaultCurrency
	o.Canonicalizer.AutoApproveThreshold = cfg.Canon.AutoApproveThreshold
	o.Reconciler.VarianceThreshold = decimal.NewFromFloat(cfg.Reconcile.VarianceThreshold)
	o.Fallback.MaxAttempts = cfg.DocService.MaxAttempts
	o.Workers = cfg.Pipeline.Workers
	o.DefaultCurrency = cfg.Pipeline.DefaultCurrency
	o.LabelColumns = cfg.Mapper.LabelColumns
	return o, nil
}
