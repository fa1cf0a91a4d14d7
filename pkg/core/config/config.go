// Package config loads the YAML configuration of the ingestion pipeline
// and applies environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"portfolio_metrics/pkg/core/agent"
	"portfolio_metrics/pkg/core/logging"
)

// DefaultPath is read when no explicit path is given and the file exists.
const DefaultPath = "config/config.yaml"

var (
	ErrInvalidConfig  = errors.New("config: invalid configuration")
	ErrConfigNotFound = errors.New("config: configuration file not found")
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	Log        logging.Config   `yaml:"log"`
	LLM        LLMConfig        `yaml:"llm"`
	Mapper     MapperConfig     `yaml:"mapper"`
	DocService DocServiceConfig `yaml:"docservice"`
	Canon      CanonConfig      `yaml:"canon"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// LLMConfig routes document understanding roles to providers. API keys are
// only read from the environment.
type LLMConfig struct {
	agent.Config `yaml:",inline"`
	// Models holds the default model per provider name.
	Models     map[string]string `yaml:"models"`
	PromptsDir string            `yaml:"prompts_dir"`

	GeminiAPIKey   string `yaml:"-"`
	DeepSeekAPIKey string `yaml:"-"`
	QwenAPIKey     string `yaml:"-"`
}

type MapperConfig struct {
	CallTimeout       time.Duration `yaml:"call_timeout"`
	MaxLabelsPerSheet int           `yaml:"max_labels_per_sheet"`
	LabelColumns      int           `yaml:"label_columns"`
	DigestSampleRows  int           `yaml:"digest_sample_rows"`
}

type DocServiceConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

type CanonConfig struct {
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold"`
}

type ReconcileConfig struct {
	VarianceThreshold float64 `yaml:"variance_threshold"`
}

type LedgerConfig struct {
	Backend     string `yaml:"backend"`
	Dir         string `yaml:"dir"`
	DatabaseURL string `yaml:"database_url"`
}

type PipelineConfig struct {
	Workers         int    `yaml:"workers"`
	DefaultCurrency string `yaml:"default_currency"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log: logging.DefaultConfig(),
		LLM: LLMConfig{
			Config: agent.Config{ActiveProvider: "gemini"},
			Models: map[string]string{
				"gemini":   "gemini-2.5-flash",
				"deepseek": "deepseek-chat",
				"qwen":     "qwen-plus",
			},
		},
		Mapper: MapperConfig{
			CallTimeout:       60 * time.Second,
			MaxLabelsPerSheet: 400,
			LabelColumns:      3,
			DigestSampleRows:  8,
		},
		DocService: DocServiceConfig{MaxAttempts: 2},
		Canon:      CanonConfig{AutoApproveThreshold: 0.9},
		Reconcile:  ReconcileConfig{VarianceThreshold: 0.01},
		Ledger:     LedgerConfig{Backend: BackendFile, Dir: ".cache/ledger"},
		Pipeline:   PipelineConfig{Workers: 4, DefaultCurrency: "USD"},
	}
}

// Load reads .env, the YAML file at path (DefaultPath when empty and
// present) and the environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if cfg, err = LoadFromBytes(data); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses YAML over the defaults. It does not read the
// environment or validate.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Ledger.DatabaseURL, "DATABASE_URL")
	setString(&c.Ledger.Dir, "LEDGER_DIR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Pipeline.DefaultCurrency, "DEFAULT_CURRENCY")
	setString(&c.LLM.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.LLM.DeepSeekAPIKey, "DEEPSEEK_API_KEY")
	setString(&c.LLM.QwenAPIKey, "QWEN_API_KEY")
	setString(&c.LLM.QwenAPIKey, "DASHSCOPE_API_KEY")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Mapper.CallTimeout > 0, "mapper.call_timeout must be positive")
	check(c.Mapper.MaxLabelsPerSheet > 0, "mapper.max_labels_per_sheet must be positive")
	check(c.Mapper.LabelColumns > 0, "mapper.label_columns must be positive")
	check(c.Mapper.DigestSampleRows > 0, "mapper.digest_sample_rows must be positive")
	check(c.DocService.MaxAttempts > 0, "docservice.max_attempts must be positive")
	check(inUnit(c.Canon.AutoApproveThreshold), "canon.auto_approve_threshold must be within [0,1]")
	check(inUnit(c.Reconcile.VarianceThreshold), "reconcile.variance_threshold must be within [0,1]")
	check(c.Pipeline.Workers > 0, "pipeline.workers must be positive")
	check(len(strings.TrimSpace(c.Pipeline.DefaultCurrency)) == 3, "pipeline.default_currency must be an ISO 4217 code")

	switch c.Ledger.Backend {
	case BackendMemory, BackendFile:
	case BackendPostgres:
		check(c.Ledger.DatabaseURL != "", "ledger.database_url (or DATABASE_URL) is required for the postgres backend")
	default:
		check(false, "ledger.backend %q is not one of memory, file, postgres", c.Ledger.Backend)
	}

	switch c.LLM.ActiveProvider {
	case "gemini", "deepseek", "qwen":
	default:
		check(false, "llm.active_provider %q is not one of gemini, deepseek, qwen", c.LLM.ActiveProvider)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }
