// Package server exposes the chat service over HTTP: the SSE streaming
// endpoint, session and citation endpoints, health, and metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// SSEWriter frames server-sent events onto an HTTP response and flushes
// after every write. Safe for concurrent use.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter wraps a ResponseWriter for event streaming. The writer
// requires http.Flusher support.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// setSSEHeaders must run before the first body write.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Event writes one typed event. The JSON payload goes out as one data
// field per line, terminated by a blank line.
func (s *SSEWriter) Event(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if eventType != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", eventType); err != nil {
			return fmt.Errorf("write event type: %w", err)
		}
	}
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write event data: %w", err)
		}
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return fmt.Errorf("terminate event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Comment writes a comment-only line, invisible to event listeners but
// enough to keep intermediaries from closing an idle connection.
func (s *SSEWriter) Comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("write comment: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Done writes the terminal done event. It carries no data line.
func (s *SSEWriter) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, "event: done\n\n"); err != nil {
		return fmt.Errorf("write done: %w", err)
	}
	s.flusher.Flush()
	return nil
}
