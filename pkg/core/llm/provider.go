package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrMissingAPIKey is returned when a provider has no credentials configured.
	ErrMissingAPIKey = errors.New("llm: api key not configured")
	// ErrAttachmentUnsupported is returned by text-only providers asked to read raw document bytes.
	ErrAttachmentUnsupported = errors.New("llm: provider cannot read document attachments")
)

// Provider is the interface for all LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error)
	// AdaptInstructions transforms raw instructions into model-specific formats
	AdaptInstructions(rawInstructions string) string
	Name() string
}

// Common option keys understood by every provider.
const (
	OptModel          = "model"
	OptJSONMode       = "json_mode"
	OptAttachment     = "attachment"      // []byte
	OptAttachmentMIME = "attachment_mime" // string
)

// APIError is a non-2xx answer from a provider's HTTP API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsRetryable reports whether err is worth another attempt: rate limits,
// server errors, timeouts and transport failures. Missing credentials and
// client errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrAttachmentUnsupported) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func jsonMode(options map[string]interface{}) bool {
	v, ok := options[OptJSONMode].(bool)
	return ok && v
}

func attachment(options map[string]interface{}) ([]byte, string) {
	data, _ := options[OptAttachment].([]byte)
	mime, _ := options[OptAttachmentMIME].(string)
	return data, mime
}

func modelOption(options map[string]interface{}, fallback string) string {
	if val, ok := options[OptModel].(string); ok && val != "" {
		return val
	}
	return fallback
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}
