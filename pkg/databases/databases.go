// Package databases provides the vector store client. The store
// executes hybrid queries: per-collection dense and sparse prefetch
// stages fused server-side by reciprocal rank fusion.
package databases

import (
	"context"
	"fmt"

	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/document"
	"github.com/docsage/docsage/pkg/sparse"
)

// HybridQuery describes one collection query: a dense stage, an
// optional sparse stage (skipped when Sparse is empty), and the fusion
// parameters.
type HybridQuery struct {
	// Dense is the query embedding for the dense named vector.
	Dense []float32
	// Sparse is the BM25-style query vector for the sparse named
	// vector. An empty vector omits the sparse prefetch stage.
	Sparse sparse.Vector
	// DenseVectorName and SparseVectorName are the named vectors to
	// query.
	DenseVectorName  string
	SparseVectorName string
	// PrefetchLimit bounds each prefetch stage.
	PrefetchLimit int
	// RRFK is the reciprocal-rank-fusion constant the fusion stage is
	// configured with.
	RRFK int
	// TopK bounds the fused result.
	TopK int
	// Filter restricts candidates server-side by exact keyword match,
	// field name to value. Nil means unfiltered.
	Filter map[string]string
}

// VectorStore executes hybrid queries against named collections.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Query runs one hybrid query against collection. Every returned
	// point has a UUID and the full ingestion payload.
	Query(ctx context.Context, collection string, q *HybridQuery) ([]document.ScoredPoint, error)
	Close() error
}

// New constructs a store from config, dispatching on Type.
func New(cfg *config.VectorStoreConfig) (VectorStore, error) {
	switch cfg.Type {
	case "qdrant", "":
		return NewQdrantStore(cfg)
	default:
		return nil, fmt.Errorf("unknown vector store type: %q", cfg.Type)
	}
}
