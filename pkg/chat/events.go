// Package chat orchestrates retrieval and runs the streaming answer
// pipeline: search, dedup, rerank, prompt assembly, token streaming
// with coalescing and heartbeats, persistence, and citations.
package chat

// EventWriter frames outbound server-sent events. The HTTP layer
// implements it; tests use an in-memory recorder.
type EventWriter interface {
	// Event emits one typed event whose payload is JSON-encoded.
	Event(eventType string, payload interface{}) error

	// Comment emits a comment-only line, used for heartbeats.
	Comment(text string) error

	// Done emits the terminal done event. It carries no data line.
	Done() error
}

// StatusPayload is an informational event.
type StatusPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TextPayload carries a coalesced batch of answer text.
type TextPayload struct {
	Text string `json:"text"`
}

// ErrorPayload is a terminal failure report.
type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
