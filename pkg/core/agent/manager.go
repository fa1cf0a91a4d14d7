package agent

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"portfolio_metrics/pkg/core/llm"
)

// Roles used by the document understanding service.
const (
	RoleStructure = "structure"
	RoleMatch     = "match"
	RoleSummary   = "summary"
	RoleClassify  = "classify"
)

type Config struct {
	ActiveProvider string                 `yaml:"active_provider"`
	Agents         map[string]AgentConfig `yaml:"agents"`
}

type AgentConfig struct {
	Provider    string `yaml:"provider"` // Optional override
	Model       string `yaml:"model"`
	Description string `yaml:"description"`
}

// Manager routes each role to a configured provider.
type Manager struct {
	config    Config
	providers map[string]llm.Provider
	logger    *zap.Logger
}

func NewManager(config Config, providers []llm.Provider, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		config:    config,
		providers: make(map[string]llm.Provider, len(providers)),
		logger:    logger,
	}
	for _, p := range providers {
		m.providers[p.Name()] = p
	}
	return m
}

// GetProvider resolves the provider for a role: the role override first,
// then the global active provider.
func (m *Manager) GetProvider(role string) (llm.Provider, error) {
	if agentConfig, ok := m.config.Agents[role]; ok && agentConfig.Provider != "" {
		if p, ok := m.providers[agentConfig.Provider]; ok {
			return p, nil
		}
		return nil, fmt.Errorf("provider %q for role %q not registered (have %v)", agentConfig.Provider, role, m.ProviderNames())
	}
	if p, ok := m.providers[m.config.ActiveProvider]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("active provider %q not registered (have %v)", m.config.ActiveProvider, m.ProviderNames())
}

// ExecutePrompt handles instruction adaptation before sending to the model.
func (m *Manager) ExecutePrompt(ctx context.Context, role string, rawPrompt string, rawSystemPrompt string, options map[string]interface{}) (string, error) {
	provider, err := m.GetProvider(role)
	if err != nil {
		return "", err
	}

	opts := make(map[string]interface{}, len(options)+1)
	for k, v := range options {
		opts[k] = v
	}
	if ac, ok := m.config.Agents[role]; ok && ac.Model != "" {
		if _, set := opts[llm.OptModel]; !set {
			opts[llm.OptModel] = ac.Model
		}
	}

	m.logger.Debug("execute prompt",
		zap.String("role", role),
		zap.String("provider", provider.Name()),
		zap.Int("prompt_bytes", len(rawPrompt)))

	return provider.GenerateResponse(ctx, rawPrompt, provider.AdaptInstructions(rawSystemPrompt), opts)
}

func (m *Manager) SetGlobalProvider(newProvider string) error {
	if _, ok := m.providers[newProvider]; !ok {
		return fmt.Errorf("provider %s not found", newProvider)
	}
	m.config.ActiveProvider = newProvider
	return nil
}

func (m *Manager) GetActiveProvider() string {
	return m.config.ActiveProvider
}

func (m *Manager) ProviderNames() []string {
	names := make([]string, 0, len(m.providers))
	for k := range m.providers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
