package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log:
  level: debug
  format: json
llm:
  active_provider: deepseek
  agents:
    classify:
      provider: qwen
      model: qwen-max
  models:
    deepseek: deepseek-reasoner
mapper:
  call_timeout: 45s
  label_columns: 2
canon:
  auto_approve_threshold: 0.85
ledger:
  backend: memory
pipeline:
  workers: 8
  default_currency: EUR
`

func TestLoadFromBytes(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Equal(t, "deepseek", cfg.LLM.ActiveProvider)
	assert.Equal(t, "qwen", cfg.LLM.Agents["classify"].Provider)
	assert.Equal(t, "deepseek-reasoner", cfg.LLM.Models["deepseek"])
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Models["gemini"])
	assert.Equal(t, 45*time.Second, cfg.Mapper.CallTimeout)
	assert.Equal(t, 2, cfg.Mapper.LabelColumns)
	assert.Equal(t, 400, cfg.Mapper.MaxLabelsPerSheet)
	assert.Equal(t, 0.85, cfg.Canon.AutoApproveThreshold)
	assert.Equal(t, 0.01, cfg.Reconcile.VarianceThreshold)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, "EUR", cfg.Pipeline.DefaultCurrency)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DEFAULT_CURRENCY", "GBP")
	t.Setenv("LEDGER_DIR", "/var/lib/ledger")
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "GBP", cfg.Pipeline.DefaultCurrency)
	assert.Equal(t, "/var/lib/ledger", cfg.Ledger.Dir)
	assert.Equal(t, "sk-test", cfg.LLM.QwenAPIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("mapper: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.Canon.AutoApproveThreshold = 1.5 }},
		{"negative variance", func(c *Config) { c.Reconcile.VarianceThreshold = -0.1 }},
		{"zero timeout", func(c *Config) { c.Mapper.CallTimeout = 0 }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "sqlite" }},
		{"postgres without url", func(c *Config) { c.Ledger.Backend = BackendPostgres }},
		{"unknown provider", func(c *Config) { c.LLM.ActiveProvider = "gpt" }},
		{"bad currency", func(c *Config) { c.Pipeline.DefaultCurrency = "euro" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, Default().Validate())
}
