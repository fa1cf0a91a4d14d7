package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepSeekProvider_GenerateResponse(t *testing.T) {
	var got DeepSeekRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`)
	}))
	defer srv.Close()

	p := &DeepSeekProvider{APIKey: "test-key", BaseURL: srv.URL}
	out, err := p.GenerateResponse(context.Background(), "user", "system", map[string]interface{}{OptJSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Equal(t, "deepseek-chat", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestDeepSeekProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "slow down")
	}))
	defer srv.Close()

	p := &DeepSeekProvider{APIKey: "k", BaseURL: srv.URL}
	_, err := p.GenerateResponse(context.Background(), "u", "s", nil)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestQwenProvider_GenerateResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen-plus", body["model"])
		fmt.Fprint(w, `{"output":{"choices":[{"message":{"content":"hello"}}]}}`)
	}))
	defer srv.Close()

	p := &QwenProvider{APIKey: "k", Model: "qwen-plus", BaseURL: srv.URL}
	out, err := p.GenerateResponse(context.Background(), "u", "s", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestQwenProvider_BadRequestNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := &QwenProvider{APIKey: "k", BaseURL: srv.URL}
	_, err := p.GenerateResponse(context.Background(), "u", "s", nil)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestMissingAPIKey(t *testing.T) {
	providers := []Provider{
		NewGeminiProvider("", ""),
		NewDeepSeekProvider("", ""),
		NewQwenProvider("", ""),
	}
	for _, p := range providers {
		t.Run(p.Name(), func(t *testing.T) {
			_, err := p.GenerateResponse(context.Background(), "u", "s", nil)
			assert.ErrorIs(t, err, ErrMissingAPIKey)
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &APIError{StatusCode: 503})))
	assert.False(t, IsRetryable(&APIError{StatusCode: 401}))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestTextProviders_RejectAttachments(t *testing.T) {
	opts := map[string]interface{}{OptAttachment: []byte("%PDF"), OptAttachmentMIME: "application/pdf"}
	for _, p := range []Provider{NewDeepSeekProvider("k", ""), NewQwenProvider("k", "")} {
		_, err := p.GenerateResponse(context.Background(), "u", "s", opts)
		assert.ErrorIs(t, err, ErrAttachmentUnsupported, p.Name())
		assert.False(t, IsRetryable(err))
	}
}
