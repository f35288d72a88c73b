package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsage/docsage/pkg/chat"
	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/databases"
	"github.com/docsage/docsage/pkg/document"
	"github.com/docsage/docsage/pkg/llms"
	"github.com/docsage/docsage/pkg/markdown"
	"github.com/docsage/docsage/pkg/memory"
	"github.com/docsage/docsage/pkg/prompt"
	"github.com/docsage/docsage/pkg/rerank"
	"github.com/docsage/docsage/pkg/search"
	"github.com/docsage/docsage/pkg/sparse"
)

type stubStore struct {
	points []document.ScoredPoint
}

func (s *stubStore) Query(ctx context.Context, collection string, q *databases.HybridQuery) ([]document.ScoredPoint, error) {
	return s.points, nil
}

func (s *stubStore) Close() error { return nil }

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.5, 0.5}, nil
}

func (stubEmbedder) Dimension() int    { return 2 }
func (stubEmbedder) ModelName() string { return "stub-embed" }
func (stubEmbedder) Close() error      { return nil }

type stubLLM struct {
	tokens []string
}

func (s *stubLLM) Complete(ctx context.Context, req llms.Request) (string, error) {
	return `{"order": [0, 1]}`, nil
}

func (s *stubLLM) Stream(ctx context.Context, req llms.Request) (<-chan llms.StreamChunk, error) {
	ch := make(chan llms.StreamChunk, len(s.tokens)+1)
	for _, tok := range s.tokens {
		ch <- llms.StreamChunk{Type: "text", Text: tok}
	}
	ch <- llms.StreamChunk{Type: "done"}
	close(ch)
	return ch, nil
}

func (s *stubLLM) ModelName() string { return "stub-model" }
func (s *stubLLM) Close() error      { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store := &stubStore{
		points: []document.ScoredPoint{
			{
				ID:    "11111111-1111-1111-1111-111111111111",
				Score: 0.9,
				Payload: map[string]interface{}{
					"text":       "Records are immutable data carriers.",
					"url":        "https://docs.example/records",
					"title":      "Records",
					"hash":       "hash-1",
					"sourceKind": "official",
				},
			},
			{
				ID:    "22222222-2222-2222-2222-222222222222",
				Score: 0.8,
				Payload: map[string]interface{}{
					"text":       "Sealed classes restrict subtyping.",
					"url":        "https://docs.example/sealed",
					"title":      "Sealed Classes",
					"hash":       "hash-2",
					"sourceKind": "official",
				},
			},
		},
	}
	llm := &stubLLM{tokens: []string{"Records", " are", " immutable", " ."}}

	scfg := config.SearchConfig{
		Collections: []string{"docs"},
		TopK:        10,
		ReturnK:     2,
		Citations:   3,
	}

	searcher := search.NewSearcher(store, stubEmbedder{}, sparse.NewEncoder(), scfg)
	reranker := rerank.NewReranker(llm)
	assembler := prompt.NewAssembler(config.PromptConfig{DefaultBudget: 100000})
	orch := chat.NewOrchestrator(searcher, reranker, assembler, "Answer from the documentation.", scfg)
	sessions := memory.NewService(config.SessionConfig{MaxTurns: 20, MaxTokens: 100000})

	svc := chat.NewService(orch, llm, sessions, markdown.Passthrough{},
		chat.WithTransport(chat.NewTransport(chat.WithHeartbeatInterval(time.Hour))))

	return New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, svc).Router()
}

func postStream(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStream_EmitsEventsAndTerminalFrames(t *testing.T) {
	router := newTestRouter(t)

	rec := postStream(t, router, `{"sessionId": "s1", "latest": "What are records?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: text")
	assert.Contains(t, body, "Records are immutable.")
	assert.Equal(t, 1, strings.Count(body, "event: citation"))
	assert.Contains(t, body, "https://docs.example/records")
	assert.Contains(t, body, "event: done")
	assert.NotContains(t, body, "data: [DONE]")

	// The done frame carries no payload.
	assert.True(t, strings.HasSuffix(strings.TrimRight(body, "\n"), "event: done"))
}

func TestStream_RejectsBadRequests(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing sessionId", `{"latest": "q"}`},
		{"missing latest", `{"sessionId": "s1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postStream(t, router, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCitations_ReturnsRankedSources(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/citations?q=records", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var citations []document.Citation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &citations))
	require.Len(t, citations, 2)
	assert.Equal(t, "https://docs.example/records", citations[0].URL)
}

func TestCitations_BlankQueryRejected(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/citations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidate_NeverCreatesSessions(t *testing.T) {
	router := newTestRouter(t)

	validate := func(id string) validateResponse {
		req := httptest.NewRequest(http.MethodGet, "/api/chat/session/validate?sessionId="+id, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp validateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := validate("ghost")
	assert.False(t, resp.Exists)
	assert.Equal(t, "session not found", resp.Message)

	// A validate lookup must not create the session.
	resp = validate("ghost")
	assert.False(t, resp.Exists)

	postStream(t, router, `{"sessionId": "ghost", "latest": "What are records?"}`)
	resp = validate("ghost")
	assert.True(t, resp.Exists)
	assert.Equal(t, "session found", resp.Message)
}

func TestValidate_BlankSessionRejected(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/session/validate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClear_RemovesSession(t *testing.T) {
	router := newTestRouter(t)

	postStream(t, router, `{"sessionId": "s1", "latest": "What are records?"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/clear?sessionId=s1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/chat/session/validate?sessionId=s1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Exists)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
