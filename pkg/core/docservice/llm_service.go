package docservice

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"portfolio_metrics/pkg/core/agent"
	"portfolio_metrics/pkg/core/llm"
	"portfolio_metrics/pkg/core/prompt"
)

// Executor runs a prompt for a role. *agent.Manager implements it.
type Executor interface {
	ExecutePrompt(ctx context.Context, role string, rawPrompt string, rawSystemPrompt string, options map[string]interface{}) (string, error)
}

const maxSummaryContentRunes = 200000

// LLMService implements Service on top of role-routed LLM providers.
type LLMService struct {
	exec    Executor
	prompts *prompt.Registry
	logger  *zap.Logger
}

var _ Service = (*LLMService)(nil)

func NewLLMService(exec Executor, prompts *prompt.Registry, logger *zap.Logger) *LLMService {
	if prompts == nil {
		prompts = prompt.NewWithDefaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMService{exec: exec, prompts: prompts, logger: logger}
}

func (s *LLMService) call(ctx context.Context, role, promptID string, pctx *prompt.PromptExecutionContext, options map[string]interface{}) (string, error) {
	if s.exec == nil {
		return "", ErrServiceUnavailable
	}
	system, user, err := s.prompts.Render(promptID, pctx)
	if err != nil {
		return "", err
	}
	if options == nil {
		options = map[string]interface{}{}
	}
	options[llm.OptJSONMode] = true
	out, err := s.exec.ExecutePrompt(ctx, role, user, system, options)
	if err != nil {
		return "", fmt.Errorf("%s call: %w", role, err)
	}
	return out, nil
}

func (s *LLMService) SketchStructure(ctx context.Context, digest Digest) (StructuralResult, error) {
	raw, err := s.call(ctx, agent.RoleStructure, prompt.IDStructure, prompt.NewContext().
		Set("Filename", digest.Filename).
		Set("Digest", digest.Text), nil)
	if err != nil {
		return StructuralResult{Tag: StructuralEmpty}, err
	}
	result, err := ParseStructural(raw)
	if len(result.Dropped) > 0 {
		s.logger.Warn("structural answer partially rejected",
			zap.String("file", digest.Filename),
			zap.Strings("dropped", result.Dropped))
	}
	return result, err
}

func (s *LLMService) MatchRows(ctx context.Context, req MatchRequest) (MatchResponse, error) {
	raw, err := s.call(ctx, agent.RoleMatch, prompt.IDMatch, prompt.NewContext().
		Set("Targets", renderTargets(req.Targets)).
		Set("Labels", renderLabels(req)), nil)
	if err != nil {
		return MatchResponse{}, err
	}
	return ParseMatches(raw)
}

func (s *LLMService) Summarize(ctx context.Context, req SummaryRequest) (SummaryResponse, error) {
	content := req.Content
	if runes := []rune(content); len(runes) > maxSummaryContentRunes {
		content = string(runes[:maxSummaryContentRunes])
	}
	if content == "" && len(req.Attachment) > 0 {
		content = "(see attached document)"
	}
	var options map[string]interface{}
	if len(req.Attachment) > 0 {
		options = map[string]interface{}{
			llm.OptAttachment:     req.Attachment,
			llm.OptAttachmentMIME: req.AttachmentMIME,
		}
	}
	raw, err := s.call(ctx, agent.RoleSummary, prompt.IDSummary, prompt.NewContext().
		Set("Filename", req.Filename).
		Set("Company", req.Company).
		Set("Currency", req.Currency).
		Set("Content", content), options)
	if err != nil {
		return SummaryResponse{}, err
	}
	return ParseSummary(raw)
}

func (s *LLMService) Classify(ctx context.Context, req ClassifyRequest) (Classification, error) {
	raw, err := s.call(ctx, agent.RoleClassify, prompt.IDClassify, prompt.NewContext().
		Set("Label", req.Label).
		Set("BusinessModel", req.BusinessModel).
		Set("Vocabulary", strings.Join(req.Vocabulary, ", ")), nil)
	if err != nil {
		return Classification{}, err
	}
	c, err := ParseClassification(raw)
	if err != nil {
		return Classification{}, err
	}
	if c.MetricID != "" && !contains(req.Vocabulary, c.MetricID) {
		s.logger.Warn("classification outside vocabulary",
			zap.String("label", req.Label),
			zap.String("metric_id", c.MetricID))
		return Classification{}, nil
	}
	return c, nil
}

func renderTargets(targets []MatchTarget) string {
	var b strings.Builder
	for _, t := range targets {
		b.WriteString("- ")
		b.WriteString(t.MetricID)
		if len(t.Synonyms) > 0 {
			fmt.Fprintf(&b, " (known as: %s)", strings.Join(t.Synonyms, "; "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderLabels(req MatchRequest) string {
	sheets := make([]string, 0, len(req.Labels))
	for name := range req.Labels {
		sheets = append(sheets, name)
	}
	sort.Strings(sheets)

	var b strings.Builder
	for _, name := range sheets {
		fmt.Fprintf(&b, "Sheet %q:\n", name)
		for _, e := range req.Labels[name] {
			fmt.Fprintf(&b, "  %d: %s\n", e.Row, e.Label)
		}
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
