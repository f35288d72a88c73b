package chat

import (
	"context"
	"time"

	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/document"
	"github.com/docsage/docsage/pkg/llms"
	"github.com/docsage/docsage/pkg/metrics"
	"github.com/docsage/docsage/pkg/prompt"
	"github.com/docsage/docsage/pkg/rerank"
	"github.com/docsage/docsage/pkg/search"
	"github.com/docsage/docsage/pkg/versionhint"
)

// Retrieval is everything the streaming layer needs for one query.
type Retrieval struct {
	Prompt    *prompt.Result
	Citations []document.Citation
	Notices   []string
	Quality   search.Quality
}

// Orchestrator runs the retrieval pipeline: version hint, hybrid
// search, dedup, rerank, quality tagging, prompt assembly.
type Orchestrator struct {
	searcher  *search.Searcher
	reranker  *rerank.Reranker
	assembler *prompt.Assembler
	system    string
	cfg       config.SearchConfig
	metrics   *metrics.Metrics
}

func NewOrchestrator(searcher *search.Searcher, reranker *rerank.Reranker, assembler *prompt.Assembler, system string, cfg config.SearchConfig) *Orchestrator {
	return &Orchestrator{
		searcher:  searcher,
		reranker:  reranker,
		assembler: assembler,
		system:    system,
		cfg:       cfg,
	}
}

// WithMetrics attaches pipeline instrumentation.
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Retrieve runs the full pipeline for a query. Any stage failure
// aborts; no stage substitutes a default for a failed upstream.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, history []llms.Message, model string) (*Retrieval, error) {
	hint := versionhint.Extract(query)

	start := time.Now()
	result, err := o.searcher.Search(ctx, hint, o.cfg.TopK)
	if err != nil {
		o.observeSearch("error", time.Since(start))
		return nil, err
	}
	status := "success"
	if len(result.Notices) > 0 {
		status = "partial"
	}
	o.observeSearch(status, time.Since(start))

	docs := search.Dedupe(result.Documents)

	reranked, err := o.reranker.Rerank(ctx, query, docs, o.cfg.ReturnK)
	if err != nil {
		return nil, err
	}

	quality := search.AssessQuality(reranked)

	assembled := o.assembler.Assemble(model, prompt.Input{
		System:  o.system,
		Query:   query,
		History: history,
		Context: reranked,
		Quality: quality,
	})

	return &Retrieval{
		Prompt:    assembled,
		Citations: document.Citations(reranked, o.cfg.Citations),
		Notices:   result.Notices,
		Quality:   quality,
	}, nil
}

func (o *Orchestrator) observeSearch(status string, d time.Duration) {
	if o.metrics != nil {
		o.metrics.SearchDuration.WithLabelValues(status).Observe(d.Seconds())
	}
}
