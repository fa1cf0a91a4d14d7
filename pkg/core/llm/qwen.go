package llm

import (
	"context"
	"fmt"
	"net/http"
)

const dashScopeURL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

// QwenProvider uses the native DashScope generation API.
type QwenProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

var _ Provider = (*QwenProvider)(nil)

func NewQwenProvider(apiKey, model string) *QwenProvider {
	return &QwenProvider{APIKey: apiKey, Model: model}
}

type dashScopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []chatMessage `json:"messages"`
	} `json:"input"`
	Parameters map[string]interface{} `json:"parameters"`
}

type dashScopeResponse struct {
	Output struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
		// older models answer with plain text
		Text string `json:"text"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *QwenProvider) Name() string { return "qwen" }

func (p *QwenProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("qwen: %w", ErrMissingAPIKey)
	}
	if data, _ := attachment(options); len(data) > 0 {
		return "", fmt.Errorf("qwen: %w", ErrAttachmentUnsupported)
	}

	model := p.Model
	if model == "" {
		model = "qwen-max"
	}
	url := p.BaseURL
	if url == "" {
		url = dashScopeURL
	}

	var req dashScopeRequest
	req.Model = modelOption(options, model)
	req.Input.Messages = chatMessages(systemPrompt, prompt)
	req.Parameters = map[string]interface{}{"result_format": "message"}
	if jsonMode(options) {
		req.Parameters["response_format"] = map[string]string{"type": "json_object"}
	}

	var res dashScopeResponse
	if err := postJSON(ctx, p.Client, "qwen", url, p.APIKey, req, &res); err != nil {
		return "", err
	}
	switch {
	case res.Code != "":
		return "", fmt.Errorf("qwen api error: %s - %s", res.Code, res.Message)
	case len(res.Output.Choices) > 0:
		return res.Output.Choices[0].Message.Content, nil
	case res.Output.Text != "":
		return res.Output.Text, nil
	}
	return "", fmt.Errorf("empty response from qwen api")
}

func (p *QwenProvider) AdaptInstructions(raw string) string {
	return raw
}
