package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docsage/docsage/pkg/document"
	"github.com/docsage/docsage/pkg/embedders"
	"github.com/docsage/docsage/pkg/llms"
	"github.com/docsage/docsage/pkg/markdown"
	"github.com/docsage/docsage/pkg/memory"
	"github.com/docsage/docsage/pkg/metrics"
	"github.com/docsage/docsage/pkg/rerank"
	"github.com/docsage/docsage/pkg/search"
)

// Service answers chat queries over the event stream and serves the
// standalone citation lookup.
type Service struct {
	orchestrator *Orchestrator
	provider     llms.Provider
	sessions     *memory.Service
	processor    markdown.Processor
	transport    *Transport
	retries      int
	metrics      *metrics.Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStreamRetries bounds pre-first-token retries of the model
// stream.
func WithStreamRetries(n int) ServiceOption {
	return func(s *Service) { s.retries = n }
}

func WithTransport(t *Transport) ServiceOption {
	return func(s *Service) { s.transport = t }
}

func WithServiceMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(orchestrator *Orchestrator, provider llms.Provider, sessions *memory.Service, processor markdown.Processor, opts ...ServiceOption) *Service {
	s := &Service{
		orchestrator: orchestrator,
		provider:     provider,
		sessions:     sessions,
		processor:    processor,
		retries:      1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = NewTransport()
	}
	return s
}

// Sessions exposes the session store for the ancillary endpoints.
func (s *Service) Sessions() *memory.Service {
	return s.sessions
}

// Ask streams the answer for one query. Retrieval failures produce a
// single error event and no text stream. Once the stream completes the
// processed assistant turn is persisted and exactly one citation event
// is emitted before done.
func (s *Service) Ask(ctx context.Context, sessionID, query string, w EventWriter) error {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.ActiveStreams.Inc()
		defer s.metrics.ActiveStreams.Dec()
	}

	history := s.sessions.History(sessionID)
	s.sessions.Append(sessionID, llms.Message{Role: llms.RoleUser, Content: query})

	retrieval, err := s.orchestrator.Retrieve(ctx, query, history, s.provider.ModelName())
	if err != nil {
		slog.Error("retrieval failed", "session", sessionID, "error", err)
		s.writeError(w, err)
		return err
	}

	for _, notice := range retrieval.Notices {
		_ = w.Event("status", StatusPayload{Message: notice})
	}
	if retrieval.Prompt.Warning != nil {
		_ = w.Event("status", StatusPayload{
			Message: "prompt budget exceeded, answering without context or history",
			Details: retrieval.Prompt.Warning.Error(),
		})
	} else if retrieval.Prompt.Minimal {
		_ = w.Event("status", StatusPayload{
			Message: "context and history dropped to fit the model budget",
		})
	}

	raw, firstToken, err := s.streamWithRetry(ctx, retrieval, w)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			if s.metrics != nil {
				s.metrics.ClientDisconnects.Inc()
			}
			return err
		}
		slog.Error("stream failed", "session", sessionID, "error", err)
		s.writeError(w, err)
		return err
	}
	if s.metrics != nil && !firstToken.IsZero() {
		s.metrics.TimeToFirstToken.Observe(firstToken.Sub(start).Seconds())
	}

	processed := s.processor.Process(raw)
	s.sessions.Append(sessionID, llms.Message{Role: llms.RoleAssistant, Content: processed})

	if err := w.Event("citation", retrieval.Citations); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.StreamEvents.WithLabelValues("citation").Inc()
	}
	return w.Done()
}

// Citations runs retrieval and reranking for a standalone query, with
// no generation.
func (s *Service) Citations(ctx context.Context, query string) ([]document.Citation, error) {
	retrieval, err := s.orchestrator.Retrieve(ctx, query, nil, s.provider.ModelName())
	if err != nil {
		return nil, err
	}
	return retrieval.Citations, nil
}

// streamWithRetry opens the model stream and pumps it. A failure is
// retried only while no text event has reached the client, within the
// configured bound, and never for throttling or auth failures.
func (s *Service) streamWithRetry(ctx context.Context, retrieval *Retrieval, w EventWriter) (string, time.Time, error) {
	var firstToken time.Time
	var lastErr error

	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying model stream", "attempt", attempt, "error", lastErr)
		}

		chunks, err := s.provider.Stream(ctx, llms.Request{Messages: retrieval.Prompt.Messages})
		if err != nil {
			lastErr = err
			if !retryable(ctx, err) {
				return "", firstToken, err
			}
			continue
		}

		text, emitted, err := s.transport.Pump(ctx, chunks, w)
		if emitted && firstToken.IsZero() {
			firstToken = time.Now()
		}
		if err == nil {
			return text, firstToken, nil
		}
		lastErr = err
		if emitted || !retryable(ctx, err) {
			return "", firstToken, err
		}
	}
	return "", firstToken, lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !llms.IsRateLimit(err) && !llms.IsAuth(err)
}

func (s *Service) writeError(w EventWriter, err error) {
	_ = w.Event("error", errorPayload(err))
	if s.metrics != nil {
		s.metrics.StreamEvents.WithLabelValues("error").Inc()
	}
}

// errorPayload maps pipeline failures to client-facing messages
// without leaking upstream internals.
func errorPayload(err error) ErrorPayload {
	var unavailable *embedders.UnavailableError
	if errors.As(err, &unavailable) {
		return ErrorPayload{
			Message: "embedding provider unavailable",
			Details: unavailable.Message,
		}
	}
	var partial *search.PartialFailureError
	if errors.As(err, &partial) {
		return ErrorPayload{
			Message: "search failed for one or more collections",
			Details: fmt.Sprintf("failed collections: %v", partial.Collections),
		}
	}
	var timeout *search.TimeoutError
	if errors.As(err, &timeout) {
		return ErrorPayload{
			Message: "search timed out",
			Details: fmt.Sprintf("deadline: %s", timeout.Timeout),
		}
	}
	var rerankErr *rerank.Error
	if errors.As(err, &rerankErr) {
		return ErrorPayload{
			Message: "result ranking failed",
			Details: rerankErr.Detail,
		}
	}
	return ErrorPayload{Message: "request failed", Details: err.Error()}
}
