package llm

import (
	"context"
	"fmt"
	"net/http"
)

const deepSeekURL = "https://api.deepseek.com/chat/completions"

// DeepSeekProvider talks to the OpenAI-compatible DeepSeek chat endpoint.
// It reads text only.
type DeepSeekProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

var _ Provider = (*DeepSeekProvider)(nil)

func NewDeepSeekProvider(apiKey, model string) *DeepSeekProvider {
	return &DeepSeekProvider{APIKey: apiKey, Model: model}
}

type DeepSeekRequest struct {
	Messages       []chatMessage  `json:"messages"`
	Model          string         `json:"model"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat ResponseFormat `json:"response_format"`
	Stream         bool           `json:"stream"`
	Temperature    float64        `json:"temperature"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type DeepSeekResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *DeepSeekProvider) Name() string { return "deepseek" }

func (p *DeepSeekProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("deepseek: %w", ErrMissingAPIKey)
	}
	if data, _ := attachment(options); len(data) > 0 {
		return "", fmt.Errorf("deepseek: %w", ErrAttachmentUnsupported)
	}

	model := p.Model
	if model == "" {
		model = "deepseek-chat"
	}
	format := "text"
	if jsonMode(options) {
		format = "json_object"
	}
	url := p.BaseURL
	if url == "" {
		url = deepSeekURL
	}

	req := DeepSeekRequest{
		Messages:       chatMessages(systemPrompt, prompt),
		Model:          modelOption(options, model),
		MaxTokens:      4096,
		ResponseFormat: ResponseFormat{Type: format},
	}
	var res DeepSeekResponse
	if err := postJSON(ctx, p.Client, "deepseek", url, p.APIKey, req, &res); err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("deepseek returned no choices")
	}
	return res.Choices[0].Message.Content, nil
}

func (p *DeepSeekProvider) AdaptInstructions(raw string) string {
	return raw
}
