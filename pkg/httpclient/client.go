// Package httpclient provides the retrying HTTP client used by the LLM
// and embedding providers, with provider-aware rate-limit parsing.
package httpclient

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// RetryStrategy classifies how a failed request may be retried.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

// RateLimitInfo carries provider rate-limit hints parsed from response
// headers.
type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64
	RequestsRemaining int
	TokensRemaining   int
}

// RateLimitHeaderParser extracts rate-limit hints from headers.
type RateLimitHeaderParser func(http.Header) RateLimitInfo

// RetryStrategyFunc maps a status code to a retry strategy.
type RetryStrategyFunc func(int) RetryStrategy

// Client wraps http.Client with bounded, strategy-driven retries.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
	strategyFunc RetryStrategyFunc
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

func WithMaxRetries(max int) Option {
	return func(c *Client) { c.maxRetries = max }
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) { c.baseDelay = delay }
}

func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) { c.headerParser = parser }
}

func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) { c.strategyFunc = strategyFunc }
}

// New creates a Client with sane defaults for API traffic.
func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   3,
		baseDelay:    2 * time.Second,
		strategyFunc: DefaultRetryStrategy,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// DefaultRetryStrategy retries throttling and transient server errors;
// everything else fails fast.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// IsRateLimitStatus reports whether a status signals throttling.
// Rate-limited streams are never retried by the transport.
func IsRateLimitStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests
}

// IsAuthStatus reports whether a status signals an auth failure.
func IsAuthStatus(statusCode int) bool {
	return statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden
}

// IsTransientStatus reports whether a status may be retried before the
// first token reaches the client: gateway 5xx and timeouts, but never
// throttling or auth failures.
func IsTransientStatus(statusCode int) bool {
	if IsRateLimitStatus(statusCode) || IsAuthStatus(statusCode) {
		return false
	}
	return statusCode == http.StatusRequestTimeout || statusCode >= 500
}

// Do executes the request, retrying per the configured strategy.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, strategy, retryInfo, err := c.attemptRequest(req)
		if strategy == NoRetry || err == nil {
			return resp, err
		}
		lastErr = err

		if attempt >= c.maxRetries {
			break
		}

		delay := c.calculateDelay(strategy, attempt, retryInfo)
		slog.Debug("retrying request",
			"url", req.URL.String(), "attempt", attempt+1, "delay", delay)

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) attemptRequest(req *http.Request) (*http.Response, RetryStrategy, RateLimitInfo, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		// Transport errors get a conservative retry.
		return nil, ConservativeRetry, RateLimitInfo{}, err
	}

	strategy := c.strategyFunc(resp.StatusCode)
	if strategy == NoRetry {
		return resp, NoRetry, RateLimitInfo{}, nil
	}

	var info RateLimitInfo
	if c.headerParser != nil {
		info = c.headerParser(resp.Header)
	}

	// Drain so the connection can be reused across attempts.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return resp, strategy, info, &RetryableError{
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		RetryAfter: info.RetryAfter,
	}
}

func (c *Client) calculateDelay(strategy RetryStrategy, attempt int, info RateLimitInfo) time.Duration {
	if strategy == SmartRetry && info.RetryAfter > 0 {
		return info.RetryAfter
	}
	// Exponential backoff capped at one minute.
	delay := time.Duration(float64(c.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}
