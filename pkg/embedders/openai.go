package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/httpclient"
)

// OpenAIEmbedder implements Provider against the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *httpclient.Client
	apiKey    string
	baseURL   string
	model     string
	dimension int
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIEmbedder creates an embedder from config.
func NewOpenAIEmbedder(cfg *config.EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}

	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)

	return &OpenAIEmbedder{
		client:    client,
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

// Embed returns the dense vector for text. Any transport failure,
// non-200 status, empty payload, or dimension mismatch is an
// *UnavailableError.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, e.unavailable("failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, e.unavailable("failed to create request", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(reqBody)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, e.unavailable("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.unavailable("failed to read response", err)
	}

	var response openAIEmbedResponse
	if jsonErr := json.Unmarshal(body, &response); jsonErr != nil {
		return nil, e.unavailable(fmt.Sprintf("invalid response (status %d)", resp.StatusCode), jsonErr)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("API returned status %d", resp.StatusCode)
		if response.Error != nil {
			msg = fmt.Sprintf("API error: %s (type: %s)", response.Error.Message, response.Error.Type)
		}
		return nil, e.unavailable(msg, nil)
	}

	if len(response.Data) == 0 {
		return nil, e.unavailable("empty embedding payload", nil)
	}

	vector := response.Data[0].Embedding
	if e.dimension > 0 && len(vector) != e.dimension {
		return nil, e.unavailable(
			fmt.Sprintf("dimension mismatch: want %d, got %d", e.dimension, len(vector)), nil)
	}

	return vector, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func (e *OpenAIEmbedder) Close() error {
	return nil
}

func (e *OpenAIEmbedder) unavailable(message string, err error) *UnavailableError {
	return &UnavailableError{Provider: "openai", Message: message, Err: err}
}
