// Package embedders maps text to dense vectors via an external
// embedding provider. A provider failure is terminal for the request;
// there is no fallback embedding.
package embedders

import (
	"context"
	"fmt"

	"github.com/docsage/docsage/pkg/config"
)

// Provider produces dense embeddings of a fixed dimension.
type Provider interface {
	// Embed returns the dense vector for text, or *UnavailableError.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the vector size every Embed result has.
	Dimension() int
	ModelName() string
	Close() error
}

// UnavailableError is an upstream embedding failure or an invalid
// response payload. It always aborts the request.
type UnavailableError struct {
	Provider string
	Message  string
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding unavailable (%s): %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("embedding unavailable (%s): %s", e.Provider, e.Message)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// New constructs a provider from config, dispatching on Type.
func New(cfg *config.EmbedderConfig) (Provider, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedder type: %q", cfg.Type)
	}
}
