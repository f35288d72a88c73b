// Package rerank reorders retrieved documents with a relevance model.
// A failed or unparseable rerank is an error; callers never fall back
// to the pre-rerank order.
package rerank

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docsage/docsage/pkg/document"
	"github.com/docsage/docsage/pkg/llms"
	"github.com/docsage/docsage/pkg/metrics"
)

const (
	defaultTimeout = 12 * time.Second
	// snippetLimit bounds each candidate excerpt shown to the model.
	snippetLimit = 500
)

// Error is a reranking failure.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reranking failed: %s: %v", e.Detail, e.Err)
	}
	return "reranking failed: " + e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reranker orders candidates by asking a model for a ranked index
// list. Results are cached per query and candidate set.
type Reranker struct {
	provider llms.Provider
	cache    *Cache
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// Option configures a Reranker.
type Option func(*Reranker)

func WithTimeout(timeout time.Duration) Option {
	return func(r *Reranker) { r.timeout = timeout }
}

func WithCache(cache *Cache) Option {
	return func(r *Reranker) { r.cache = cache }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reranker) { r.metrics = m }
}

// NewReranker builds a reranker over the given completion provider.
func NewReranker(provider llms.Provider, opts ...Option) *Reranker {
	r := &Reranker{
		provider: provider,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewCache(0, 0)
	}
	return r
}

// Rerank returns the top returnK documents in model-ranked order. An
// empty candidate list short-circuits without a model call.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []document.Document, returnK int) ([]document.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if returnK <= 0 || returnK > len(docs) {
		returnK = len(docs)
	}

	ids := identifiers(docs)
	key := cacheKey(query, ids, returnK)

	if cachedIDs, ok := r.cache.Get(key); ok {
		if reranked, ok := project(cachedIDs, ids, docs); ok {
			if r.metrics != nil {
				r.metrics.RerankCacheHits.Inc()
			}
			return reranked, nil
		}
	}
	if r.metrics != nil {
		r.metrics.RerankCacheMisses.Inc()
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	temperature := 0.0
	response, err := r.provider.Complete(callCtx, llms.Request{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: systemInstruction},
			{Role: llms.RoleUser, Content: buildPrompt(query, docs)},
		},
		Temperature: &temperature,
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			r.observe("timeout", time.Since(start))
			return nil, &Error{Detail: fmt.Sprintf("model call exceeded %s", r.timeout), Err: err}
		}
		r.observe("error", time.Since(start))
		return nil, &Error{Detail: "model call failed", Err: err}
	}

	order, err := ParseOrder(response)
	if err != nil {
		r.observe("parse_error", time.Since(start))
		slog.Warn("unparseable rerank response", "response_len", len(response))
		return nil, &Error{Detail: "unparseable model response", Err: err}
	}

	reranked, err := apply(order, docs, returnK)
	if err != nil {
		r.observe("parse_error", time.Since(start))
		return nil, err
	}
	r.observe("success", time.Since(start))

	r.cache.Add(key, identifiers(reranked))
	return reranked, nil
}

func (r *Reranker) observe(outcome string, d time.Duration) {
	if r.metrics != nil && d > 0 {
		r.metrics.RerankDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// apply materializes a ranked index list. Negative, out-of-range, and
// duplicate indices are skipped, not fatal; the surviving prefix is
// emitted, at most returnK entries. Only an order with no usable index
// fails.
func apply(order []int, docs []document.Document, returnK int) ([]document.Document, error) {
	seen := make(map[int]struct{}, len(order))
	reranked := make([]document.Document, 0, returnK)
	for _, idx := range order {
		if idx < 0 || idx >= len(docs) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		reranked = append(reranked, docs[idx])
		if len(reranked) == returnK {
			break
		}
	}
	if len(reranked) == 0 {
		return nil, &Error{Detail: fmt.Sprintf("no usable index in model order %v for %d candidates", order, len(docs))}
	}
	return reranked, nil
}

// project maps a cached identifier order onto the current candidate
// set. A stale entry that references an unknown document misses.
func project(cachedIDs, ids []string, docs []document.Document) ([]document.Document, bool) {
	byID := make(map[string]document.Document, len(docs))
	for i, id := range ids {
		byID[id] = docs[i]
	}

	reranked := make([]document.Document, 0, len(cachedIDs))
	for _, id := range cachedIDs {
		doc, ok := byID[id]
		if !ok {
			return nil, false
		}
		reranked = append(reranked, doc)
	}
	return reranked, true
}

// identifiers returns a stable per-document key: URL when present,
// content hash otherwise, digest of the text as a last resort.
func identifiers(docs []document.Document) []string {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		switch {
		case doc.URL() != "":
			ids[i] = doc.URL()
		case doc.Hash() != "":
			ids[i] = doc.Hash()
		default:
			sum := sha256.Sum256([]byte(doc.Text))
			ids[i] = hex.EncodeToString(sum[:])
		}
	}
	return ids
}

const systemInstruction = `You rank documentation excerpts by how well they answer a question. ` +
	`Prioritize, in order: relevance to the question's technical domain, match with the version ` +
	`the question targets, source authority (official documentation over vendor material over ` +
	`everything else), stable content over preview or early-access content, and pedagogical value. ` +
	`Respond with only a JSON object of the form {"order": [..]} listing every candidate index ` +
	`from most to least relevant. Do not add commentary.`

// buildPrompt renders the query and numbered candidates. Snippets are
// whitespace-collapsed and capped so one oversized chunk cannot crowd
// out the rest.
func buildPrompt(query string, docs []document.Document) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nCandidates:\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s | %s\n", i, sanitize(doc.Title()), doc.URL())
		b.WriteString(snippet(doc.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

func sanitize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func snippet(text string) string {
	collapsed := sanitize(text)
	runes := []rune(collapsed)
	if len(runes) > snippetLimit {
		return string(runes[:snippetLimit])
	}
	return collapsed
}
