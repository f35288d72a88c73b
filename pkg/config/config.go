// Package config defines the service configuration: the YAML schema,
// defaults, and validation. Values may reference environment variables
// with ${VAR} syntax; the loader expands them before decoding.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	LLM         LLMProviderConfig `yaml:"llm" mapstructure:"llm"`
	RerankerLLM LLMProviderConfig `yaml:"reranker_llm" mapstructure:"reranker_llm"`
	Embedder    EmbedderConfig    `yaml:"embedder" mapstructure:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vectorstore" mapstructure:"vectorstore"`
	Search      SearchConfig      `yaml:"search" mapstructure:"search"`
	Session     SessionConfig     `yaml:"session" mapstructure:"session"`
	Prompt      PromptConfig      `yaml:"prompt" mapstructure:"prompt"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// Address returns the listen address.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LLMProviderConfig configures a chat/completion model provider.
// Timeout and RetryDelay are in seconds.
type LLMProviderConfig struct {
	Type        string   `yaml:"type" mapstructure:"type"`
	Model       string   `yaml:"model" mapstructure:"model"`
	APIKey      string   `yaml:"api_key" mapstructure:"api_key"`
	Host        string   `yaml:"host" mapstructure:"host"`
	Temperature *float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int      `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout     int      `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries  int      `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay  int      `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// EmbedderConfig configures the dense embedding provider.
type EmbedderConfig struct {
	Type      string `yaml:"type" mapstructure:"type"`
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Host      string `yaml:"host" mapstructure:"host"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"`
}

// VectorStoreConfig configures the qdrant connection.
type VectorStoreConfig struct {
	Type      string `yaml:"type" mapstructure:"type"`
	Host      string `yaml:"host" mapstructure:"host"`
	Port      int    `yaml:"port" mapstructure:"port"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	EnableTLS bool   `yaml:"enable_tls" mapstructure:"enable_tls"`
}

// SearchConfig configures the hybrid retrieval pipeline.
type SearchConfig struct {
	// Collections is the fixed set of collections the fan-out queries.
	Collections []string `yaml:"collections" mapstructure:"collections"`
	// DenseVectorName and SparseVectorName are the named vectors in
	// every collection.
	DenseVectorName  string `yaml:"dense_vector_name" mapstructure:"dense_vector_name"`
	SparseVectorName string `yaml:"sparse_vector_name" mapstructure:"sparse_vector_name"`
	// PrefetchLimit bounds each dense/sparse prefetch stage.
	PrefetchLimit int `yaml:"prefetch_limit" mapstructure:"prefetch_limit"`
	// RRFK is the reciprocal-rank-fusion constant.
	RRFK int `yaml:"rrf_k" mapstructure:"rrf_k"`
	// QueryTimeoutSeconds covers the whole collection fan-out.
	QueryTimeoutSeconds int `yaml:"query_timeout" mapstructure:"query_timeout"`
	// FailOnPartialSearchError aborts the search when any collection
	// fails. Defaults to true (strict mode).
	FailOnPartialSearchError *bool `yaml:"fail_on_partial_search_error" mapstructure:"fail_on_partial_search_error"`
	// TopK is fetched per collection; ReturnK survives reranking;
	// Citations bounds the terminal citation list.
	TopK      int `yaml:"top_k" mapstructure:"top_k"`
	ReturnK   int `yaml:"return_k" mapstructure:"return_k"`
	Citations int `yaml:"citations" mapstructure:"citations"`
	// ServerSideFilter pushes version filters into the store as
	// keyword conditions. When false the fan-out runs unfiltered and
	// the version hint is applied client-side on URL and text
	// substrings. Defaults to true.
	ServerSideFilter *bool `yaml:"server_side_filter" mapstructure:"server_side_filter"`
	// RerankerTimeoutSeconds bounds each rerank model call.
	RerankerTimeoutSeconds int `yaml:"reranker_timeout" mapstructure:"reranker_timeout"`
	// StreamRetries bounds pre-first-token retries of the chat stream.
	StreamRetries *int `yaml:"stream_retries" mapstructure:"stream_retries"`
}

// QueryTimeout returns the fan-out deadline as a duration.
func (c SearchConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// RerankerTimeout returns the rerank call deadline as a duration.
func (c SearchConfig) RerankerTimeout() time.Duration {
	return time.Duration(c.RerankerTimeoutSeconds) * time.Second
}

// Strict reports whether a failed collection aborts the search.
func (c SearchConfig) Strict() bool {
	return c.FailOnPartialSearchError == nil || *c.FailOnPartialSearchError
}

// UseServerSideFilter reports whether version filters are pushed into
// the store.
func (c SearchConfig) UseServerSideFilter() bool {
	return c.ServerSideFilter == nil || *c.ServerSideFilter
}

// SessionConfig bounds per-session history.
type SessionConfig struct {
	MaxTurns  int `yaml:"max_turns" mapstructure:"max_turns"`
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PromptConfig configures the system instructions and token budget.
type PromptConfig struct {
	// System is the base system instruction for answer generation.
	System string `yaml:"system" mapstructure:"system"`
	// ConstrainedModels are model-name substrings that select the
	// constrained budget.
	ConstrainedModels []string `yaml:"constrained_models" mapstructure:"constrained_models"`
	ConstrainedBudget int      `yaml:"constrained_budget" mapstructure:"constrained_budget"`
	DefaultBudget     int      `yaml:"default_budget" mapstructure:"default_budget"`
}

// SetDefaults fills unset fields with working defaults.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	c.LLM.setDefaults()
	if c.RerankerLLM.Type == "" {
		c.RerankerLLM = c.LLM
	}
	c.RerankerLLM.setDefaults()

	if c.Embedder.Type == "" {
		c.Embedder.Type = "openai"
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = "text-embedding-3-small"
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 1536
	}
	if c.Embedder.Timeout == 0 {
		c.Embedder.Timeout = 30
	}

	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "qdrant"
	}
	if c.VectorStore.Host == "" {
		c.VectorStore.Host = "localhost"
	}
	if c.VectorStore.Port == 0 {
		c.VectorStore.Port = 6334
	}

	if c.Search.DenseVectorName == "" {
		c.Search.DenseVectorName = "dense"
	}
	if c.Search.SparseVectorName == "" {
		c.Search.SparseVectorName = "bm25"
	}
	if c.Search.PrefetchLimit == 0 {
		c.Search.PrefetchLimit = 20
	}
	if c.Search.RRFK == 0 {
		c.Search.RRFK = 60
	}
	if c.Search.QueryTimeoutSeconds == 0 {
		c.Search.QueryTimeoutSeconds = 5
	}
	if c.Search.TopK == 0 {
		c.Search.TopK = 30
	}
	if c.Search.ReturnK == 0 {
		c.Search.ReturnK = 8
	}
	if c.Search.Citations == 0 {
		c.Search.Citations = 5
	}
	if c.Search.RerankerTimeoutSeconds == 0 {
		c.Search.RerankerTimeoutSeconds = 12
	}
	if c.Search.StreamRetries == nil {
		retries := 1
		c.Search.StreamRetries = &retries
	}

	if c.Session.MaxTurns == 0 {
		c.Session.MaxTurns = 40
	}
	if c.Session.MaxTokens == 0 {
		c.Session.MaxTokens = 24000
	}

	if c.Prompt.System == "" {
		c.Prompt.System = "You are a documentation assistant. Answer from the provided " +
			"documentation context and cite the [CTX n] entries you rely on. " +
			"If the context does not cover the question, say so."
	}
	if c.Prompt.ConstrainedBudget == 0 {
		c.Prompt.ConstrainedBudget = 7000
	}
	if c.Prompt.DefaultBudget == 0 {
		c.Prompt.DefaultBudget = 100000
	}
}

func (c *LLMProviderConfig) setDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if len(c.Search.Collections) == 0 {
		return fmt.Errorf("search.collections: at least one collection is required")
	}
	for _, name := range c.Search.Collections {
		if name == "" {
			return fmt.Errorf("search.collections: collection names must be non-empty")
		}
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model: model name is required")
	}
	if c.RerankerLLM.Model == "" {
		return fmt.Errorf("reranker_llm.model: model name is required")
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedder.dimension: must be positive, got %d", c.Embedder.Dimension)
	}
	if c.Search.PrefetchLimit <= 0 {
		return fmt.Errorf("search.prefetch_limit: must be positive, got %d", c.Search.PrefetchLimit)
	}
	if c.Search.ReturnK > c.Search.TopK {
		return fmt.Errorf("search.return_k: must not exceed search.top_k (%d > %d)", c.Search.ReturnK, c.Search.TopK)
	}
	if r := *c.Search.StreamRetries; r < 0 || r > 3 {
		return fmt.Errorf("search.stream_retries: must be between 0 and 3, got %d", r)
	}
	return nil
}
