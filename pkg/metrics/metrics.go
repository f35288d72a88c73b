// Package metrics exposes Prometheus instrumentation for the retrieval
// and streaming pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsage"

// Metrics holds the pipeline collectors. Create one per process with
// New; pass a fresh registry in tests to avoid duplicate registration.
type Metrics struct {
	// SearchDuration measures the collection fan-out, merge included.
	// Labels: status (success, partial, error).
	SearchDuration *prometheus.HistogramVec

	// RerankDuration measures one rerank model call.
	// Labels: outcome (success, parse_error, timeout, error).
	RerankDuration *prometheus.HistogramVec

	// RerankCacheHits and RerankCacheMisses count reranker cache
	// lookups.
	RerankCacheHits   prometheus.Counter
	RerankCacheMisses prometheus.Counter

	// StreamEvents counts outbound SSE events by type.
	StreamEvents *prometheus.CounterVec

	// TimeToFirstToken measures latency from request to first token.
	TimeToFirstToken prometheus.Histogram

	// ActiveStreams tracks open streaming connections.
	ActiveStreams prometheus.Gauge

	// ClientDisconnects counts streams dropped by the client.
	ClientDisconnects prometheus.Counter
}

// New registers the collectors on reg and returns the handle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SearchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Hybrid search fan-out duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),
		RerankDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rerank_duration_seconds",
				Help:      "Rerank model call duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 12},
			},
			[]string{"outcome"},
		),
		RerankCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_cache_hits_total",
			Help:      "Rerank cache lookups that returned a stored order",
		}),
		RerankCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_cache_misses_total",
			Help:      "Rerank cache lookups that fell through to the model",
		}),
		StreamEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_events_total",
				Help:      "Outbound SSE events by type",
			},
			[]string{"type"},
		),
		TimeToFirstToken: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_first_token_seconds",
			Help:      "Time from request to first streamed token in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Currently open streaming connections",
		}),
		ClientDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_disconnects_total",
			Help:      "Streams terminated by client disconnect",
		}),
	}
}

// Default registers on the global registry.
func Default() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// Handler serves the global registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
