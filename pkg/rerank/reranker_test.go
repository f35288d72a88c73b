package rerank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsage/docsage/pkg/document"
	"github.com/docsage/docsage/pkg/llms"
)

// scriptedProvider returns canned responses and records the prompts it
// received.
type scriptedProvider struct {
	response string
	err      error
	calls    int
	prompts  []llms.Request
}

func (s *scriptedProvider) Complete(ctx context.Context, req llms.Request) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, req)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *scriptedProvider) Stream(ctx context.Context, req llms.Request) (<-chan llms.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedProvider) ModelName() string { return "scripted" }
func (s *scriptedProvider) Close() error      { return nil }

func rerankDoc(i int) document.Document {
	return document.Document{
		Text: fmt.Sprintf("content of document %d with enough text to matter", i),
		Metadata: map[string]interface{}{
			"url":   fmt.Sprintf("https://docs.example.com/%d", i),
			"title": fmt.Sprintf("Doc %d", i),
		},
	}
}

func rerankDocs(n int) []document.Document {
	docs := make([]document.Document, n)
	for i := range docs {
		docs[i] = rerankDoc(i)
	}
	return docs
}

func TestReranker_OrdersByModelResponse(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [2, 0, 3, 1]}`}
	reranker := NewReranker(provider)

	out, err := reranker.Rerank(context.Background(), "query", rerankDocs(4), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "https://docs.example.com/2", out[0].URL())
	assert.Equal(t, "https://docs.example.com/0", out[1].URL())
}

func TestReranker_PromptListsCandidates(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [0, 1]}`}
	reranker := NewReranker(provider)

	docs := rerankDocs(2)
	_, err := reranker.Rerank(context.Background(), "how do streams work", docs, 2)
	require.NoError(t, err)

	require.Len(t, provider.prompts, 1)
	req := provider.prompts[0]
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.0, *req.Temperature, "ranking must be deterministic")

	var user string
	for _, msg := range req.Messages {
		if msg.Role == llms.RoleUser {
			user = msg.Content
		}
	}
	assert.Contains(t, user, "how do streams work")
	assert.Contains(t, user, "[0] Doc 0 | https://docs.example.com/0")
	assert.Contains(t, user, "[1] Doc 1 | https://docs.example.com/1")
}

func TestReranker_SnippetCapped(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [0]}`}
	reranker := NewReranker(provider)

	doc := rerankDoc(0)
	doc.Text = strings.Repeat("verylongword ", 200)

	_, err := reranker.Rerank(context.Background(), "q", []document.Document{doc}, 1)
	require.NoError(t, err)

	user := provider.prompts[0].Messages[1].Content
	for _, line := range strings.Split(user, "\n") {
		assert.LessOrEqual(t, len([]rune(line)), snippetLimit+len("[0] Doc 0 | https://docs.example.com/0"))
	}
}

func TestReranker_EmptyCandidatesSkipModel(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": []}`}
	reranker := NewReranker(provider)

	out, err := reranker.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, provider.calls)
}

func TestReranker_NoFallbackOnModelError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("upstream down")}
	reranker := NewReranker(provider)

	out, err := reranker.Rerank(context.Background(), "query", rerankDocs(3), 2)
	var rerankErr *Error
	require.ErrorAs(t, err, &rerankErr)
	assert.Nil(t, out, "a failed rerank must not return the input order")
}

func TestReranker_UnparseableResponse(t *testing.T) {
	provider := &scriptedProvider{response: "I think document two is best."}
	reranker := NewReranker(provider)

	out, err := reranker.Rerank(context.Background(), "query", rerankDocs(3), 2)
	var rerankErr *Error
	require.ErrorAs(t, err, &rerankErr)
	assert.Nil(t, out)
}

func TestReranker_OutOfRangeIndicesSkipped(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [9, 0, 1]}`}
	reranker := NewReranker(provider)

	out, err := reranker.Rerank(context.Background(), "query", rerankDocs(3), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "https://docs.example.com/0", out[0].URL())
	assert.Equal(t, "https://docs.example.com/1", out[1].URL())
}

func TestReranker_NegativeIndicesSkipped(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [-1, 2, 0]}`}
	reranker := NewReranker(provider)

	out, err := reranker.Rerank(context.Background(), "query", rerankDocs(3), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "https://docs.example.com/2", out[0].URL())
	assert.Equal(t, "https://docs.example.com/0", out[1].URL())
}

func TestReranker_NoUsableIndices(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [7, 8, -2]}`}
	reranker := NewReranker(provider)

	out, err := reranker.Rerank(context.Background(), "query", rerankDocs(3), 2)
	var rerankErr *Error
	require.ErrorAs(t, err, &rerankErr)
	assert.Nil(t, out)
}

func TestReranker_DuplicateIndicesDropped(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [1, 1, 0, 2]}`}
	reranker := NewReranker(provider)

	out, err := reranker.Rerank(context.Background(), "query", rerankDocs(3), 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "https://docs.example.com/1", out[0].URL())
	assert.Equal(t, "https://docs.example.com/0", out[1].URL())
	assert.Equal(t, "https://docs.example.com/2", out[2].URL())
}

func TestReranker_ShortOrderReturnsSurvivors(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [2]}`}
	reranker := NewReranker(provider)

	// The order names fewer documents than requested; the survivors
	// are returned rather than failing the request.
	out, err := reranker.Rerank(context.Background(), "query", rerankDocs(4), 3)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "https://docs.example.com/2", out[0].URL())
}

func TestReranker_NullIndicesSkipped(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [1, null, 2]}`}
	reranker := NewReranker(provider)

	out, err := reranker.Rerank(context.Background(), "query", rerankDocs(3), 3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "https://docs.example.com/1", out[0].URL())
	assert.Equal(t, "https://docs.example.com/2", out[1].URL())
}

func TestReranker_InstructionNamesRankingCriteria(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [0]}`}
	reranker := NewReranker(provider)

	_, err := reranker.Rerank(context.Background(), "query", rerankDocs(1), 1)
	require.NoError(t, err)

	require.Len(t, provider.prompts, 1)
	system := provider.prompts[0].Messages[0].Content
	assert.Contains(t, system, "version")
	assert.Contains(t, system, "official documentation over vendor material")
	assert.Contains(t, system, "stable content over preview")
	assert.Contains(t, system, "pedagogical value")
}

func TestReranker_CacheHitSkipsModel(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [1, 0]}`}
	reranker := NewReranker(provider, WithCache(NewCache(10, time.Minute)))

	docs := rerankDocs(2)
	first, err := reranker.Rerank(context.Background(), "query", docs, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)

	second, err := reranker.Rerank(context.Background(), "query", docs, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls, "identical request must be served from cache")
	assert.Equal(t, first, second)
}

func TestReranker_CacheKeyedByCandidateSet(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [0, 1]}`}
	reranker := NewReranker(provider, WithCache(NewCache(10, time.Minute)))

	_, err := reranker.Rerank(context.Background(), "query", rerankDocs(2), 2)
	require.NoError(t, err)

	other := []document.Document{rerankDoc(5), rerankDoc(6)}
	_, err = reranker.Rerank(context.Background(), "query", other, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls, "different candidates must not share a cache entry")
}

func TestReranker_HashIdentifierFallback(t *testing.T) {
	provider := &scriptedProvider{response: `{"order": [1, 0]}`}
	reranker := NewReranker(provider, WithCache(NewCache(10, time.Minute)))

	// No URLs: identity falls back to the content digest.
	docs := []document.Document{
		{Text: "first chunk", Metadata: map[string]interface{}{}},
		{Text: "second chunk", Metadata: map[string]interface{}{}},
	}

	first, err := reranker.Rerank(context.Background(), "query", docs, 2)
	require.NoError(t, err)
	assert.Equal(t, "second chunk", first[0].Text)

	_, err = reranker.Rerank(context.Background(), "query", docs, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}
