// Package llms provides chat completion providers for answer
// generation and reranking.
package llms

import (
	"context"
	"errors"
	"net/http"

	"github.com/docsage/docsage/pkg/httpclient"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of provider input.
type Message struct {
	Role    Role
	Content string
}

// Request is a provider-agnostic completion request. Temperature and
// MaxTokens override the provider defaults when set.
type Request struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// StreamChunk is one unit of streaming output.
type StreamChunk struct {
	// Type is "text", "done", or "error".
	Type string
	Text string
	// Tokens carries the total usage on the "done" chunk when the
	// provider reports it.
	Tokens int
	Error  error
}

// Provider generates completions. Implementations are safe for
// concurrent use.
type Provider interface {
	// Complete returns the full response text in one shot.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream emits chunks on the returned channel. The channel closes
	// after a "done" or "error" chunk.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	ModelName() string
	Close() error
}

// APIError is a non-2xx response from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Provider + " API error (status " + http.StatusText(e.StatusCode) + "): " + e.Message
	}
	return e.Provider + " API error: " + http.StatusText(e.StatusCode)
}

// IsRateLimit reports whether err is a throttling failure. Throttled
// streams must not be retried.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return httpclient.IsRateLimitStatus(apiErr.StatusCode)
	}
	var retryErr *httpclient.RetryableError
	if errors.As(err, &retryErr) {
		return httpclient.IsRateLimitStatus(retryErr.StatusCode)
	}
	return false
}

// IsAuth reports whether err is an authentication or authorization
// failure.
func IsAuth(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return httpclient.IsAuthStatus(apiErr.StatusCode)
	}
	var retryErr *httpclient.RetryableError
	if errors.As(err, &retryErr) {
		return httpclient.IsAuthStatus(retryErr.StatusCode)
	}
	return false
}
