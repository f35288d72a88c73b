// Package search implements hybrid retrieval: a parallel dense+sparse
// fan-out across a fixed set of collections, UUID-keyed merging,
// content deduplication, and search-quality tagging.
package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/databases"
	"github.com/docsage/docsage/pkg/document"
	"github.com/docsage/docsage/pkg/embedders"
	"github.com/docsage/docsage/pkg/sparse"
	"github.com/docsage/docsage/pkg/versionhint"
)

// Result is the outcome of one hybrid search.
type Result struct {
	Documents []document.Document
	// Notices lists collections that failed in lenient mode.
	Notices []string
}

// Searcher fans a query across the configured collections. Safe for
// concurrent use.
type Searcher struct {
	store    databases.VectorStore
	embedder embedders.Provider
	encoder  *sparse.Encoder
	cfg      config.SearchConfig
}

// NewSearcher wires the hybrid searcher.
func NewSearcher(store databases.VectorStore, embedder embedders.Provider, encoder *sparse.Encoder, cfg config.SearchConfig) *Searcher {
	return &Searcher{
		store:    store,
		embedder: embedder,
		encoder:  encoder,
		cfg:      cfg,
	}
}

// Search runs the full fan-out for a query. The hint's boosted query is
// what gets embedded and sparse-encoded; its filter restricts
// candidates server-side or, when the store-side filter is disabled,
// client-side after merging. limit truncates the merged list; 0 means
// the configured TopK.
func (s *Searcher) Search(ctx context.Context, hint versionhint.Hint, limit int) (*Result, error) {
	if limit <= 0 {
		limit = s.cfg.TopK
	}

	query := preprocess(hint.BoostedQuery)

	dense, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	sparseVec := s.encoder.Encode(query)
	if sparseVec.IsEmpty() {
		slog.Debug("empty sparse vector, dense-only prefetch", "query", query)
	}

	var filter map[string]string
	if hint.Filter != nil && s.cfg.UseServerSideFilter() {
		filter = map[string]string{hint.Filter.Field: hint.Filter.Value}
	}

	perCollection, notices, err := s.fanOut(ctx, dense, sparseVec, filter)
	if err != nil {
		return nil, err
	}

	merged := s.merge(perCollection)
	if hint.Filter != nil && !s.cfg.UseServerSideFilter() {
		merged = filterClientSide(merged, hint.Filter)
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}

	return &Result{Documents: merged, Notices: notices}, nil
}

// fanOut issues one query per collection under a single deadline.
// Output is indexed by the configured collection order so the merge is
// deterministic regardless of completion order.
func (s *Searcher) fanOut(ctx context.Context, dense []float32, sparseVec sparse.Vector, filter map[string]string) ([][]document.ScoredPoint, []string, error) {
	timeout := s.cfg.QueryTimeout()
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([][]document.ScoredPoint, len(s.cfg.Collections))
	failures := make([]error, len(s.cfg.Collections))

	var g errgroup.Group
	var mu sync.Mutex
	for i, collection := range s.cfg.Collections {
		g.Go(func() error {
			points, err := s.store.Query(queryCtx, collection, &databases.HybridQuery{
				Dense:            dense,
				Sparse:           sparseVec,
				DenseVectorName:  s.cfg.DenseVectorName,
				SparseVectorName: s.cfg.SparseVectorName,
				PrefetchLimit:    s.cfg.PrefetchLimit,
				RRFK:             s.cfg.RRFK,
				TopK:             s.cfg.TopK,
				Filter:           filter,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = points
			return nil
		})
	}
	// Goroutines record failures instead of returning them so strict
	// mode can name every failed collection, not just the first.
	_ = g.Wait()

	var failedCollections []string
	var errs []error
	deadlineExpired := false
	for i, err := range failures {
		if err == nil {
			continue
		}
		failedCollections = append(failedCollections, s.cfg.Collections[i])
		errs = append(errs, err)
		if errors.Is(err, context.DeadlineExceeded) {
			deadlineExpired = true
		}
	}

	if len(failedCollections) == 0 {
		return results, nil, nil
	}

	if s.cfg.Strict() {
		if deadlineExpired && len(failedCollections) == len(s.cfg.Collections) {
			return nil, nil, &TimeoutError{Timeout: timeout.String()}
		}
		return nil, nil, &PartialFailureError{Collections: failedCollections, Errs: errs}
	}

	slog.Warn("collections failed, continuing with partial results",
		"failed", failedCollections)
	notices := make([]string, len(failedCollections))
	for i, name := range failedCollections {
		notices[i] = "collection unavailable: " + name
	}
	return results, notices, nil
}

// merge flattens per-collection results into an insertion-ordered list
// keyed by point UUID. The iteration follows the configured collection
// order, so the output is independent of fan-out completion order. On
// UUID collision the higher score wins but the first-observed position
// is kept.
func (s *Searcher) merge(perCollection [][]document.ScoredPoint) []document.Document {
	type slot struct {
		doc      document.Document
		score    float32
		position int
	}

	slots := make(map[string]*slot)
	order := 0
	for i, points := range perCollection {
		collection := s.cfg.Collections[i]
		for _, point := range points {
			if existing, ok := slots[point.ID]; ok {
				if point.Score > existing.score {
					existing.doc = point.ToDocument(collection)
					existing.score = point.Score
				}
				continue
			}
			slots[point.ID] = &slot{
				doc:      point.ToDocument(collection),
				score:    point.Score,
				position: order,
			}
			order++
		}
	}

	merged := make([]*slot, 0, len(slots))
	for _, sl := range slots {
		merged = append(merged, sl)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].position < merged[j].position })

	docs := make([]document.Document, len(merged))
	for i, sl := range merged {
		docs[i] = sl.doc
	}
	return docs
}

func filterClientSide(docs []document.Document, filter *versionhint.Filter) []document.Document {
	kept := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		if filter.Matches(doc.URL(), doc.Title(), doc.Text) {
			kept = append(kept, doc)
		}
	}
	return kept
}

// preprocess trims and collapses whitespace. Case is preserved for code
// identifiers; the sparse encoder folds case on its own.
func preprocess(query string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(query)), " ")
}
