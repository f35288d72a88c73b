package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
llm:
  model: gpt-4o
embedder:
  api_key: test
search:
  collections: [javadocs, jls, tutorials]
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, []string{"javadocs", "jls", "tutorials"}, cfg.Search.Collections)
	assert.Equal(t, "dense", cfg.Search.DenseVectorName)
	assert.Equal(t, "bm25", cfg.Search.SparseVectorName)
	assert.Equal(t, 20, cfg.Search.PrefetchLimit)
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.Equal(t, 5, cfg.Search.QueryTimeoutSeconds)
	assert.True(t, cfg.Search.Strict(), "strict mode is the default")
	assert.Equal(t, 12, cfg.Search.RerankerTimeoutSeconds)
	assert.Equal(t, 1, *cfg.Search.StreamRetries)
	assert.Equal(t, 1536, cfg.Embedder.Dimension)
	assert.Equal(t, 7000, cfg.Prompt.ConstrainedBudget)
	assert.Equal(t, 100000, cfg.Prompt.DefaultBudget)

	// Reranker falls back to the chat provider config.
	assert.Equal(t, "gpt-4o", cfg.RerankerLLM.Model)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("DOCSAGE_TEST_KEY", "sk-abc")

	cfg, err := Parse([]byte(`
llm:
  model: gpt-4o
  api_key: ${DOCSAGE_TEST_KEY}
embedder:
  host: ${DOCSAGE_TEST_MISSING:-http://localhost:11434}
search:
  collections: [javadocs]
`))
	require.NoError(t, err)

	assert.Equal(t, "sk-abc", cfg.LLM.APIKey)
	assert.Equal(t, "http://localhost:11434", cfg.Embedder.Host)
}

func TestParse_PartialFailureSwitch(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
  fail_on_partial_search_error: false
`))
	require.NoError(t, err)
	assert.False(t, cfg.Search.Strict())
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no collections",
			yaml: "llm:\n  model: gpt-4o\n",
			want: "search.collections",
		},
		{
			name: "missing model",
			yaml: "search:\n  collections: [javadocs]\n",
			want: "llm.model",
		},
		{
			name: "return_k above top_k",
			yaml: minimalYAML + "  top_k: 5\n  return_k: 10\n",
			want: "search.return_k",
		},
		{
			name: "stream retries out of range",
			yaml: minimalYAML + "  stream_retries: 7\n",
			want: "search.stream_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
