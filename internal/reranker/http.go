// Package reranker implements rag.Reranker backends: a cross-encoder served
// over HTTP, an LLM asked for a score per passage, and a rank-preserving
// fallback for local development.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMissingScore is returned when a backend omits a score for a candidate.
var ErrMissingScore = errors.New("reranker: missing score")

const (
	defaultHTTPTimeout = 60 * time.Second
	maxResponseBytes   = 16 << 20
)

// HTTPConfig configures an HTTPReranker.
type HTTPConfig struct {
	// URL is the full rerank endpoint, e.g. http://localhost:8080/rerank.
	URL string
	// Model is sent as the "model" field. Servers that host one model ignore it.
	Model string
	// APIKey, when set, is sent as a Bearer token.
	APIKey string
	// Client overrides the HTTP client. Defaults to a client with a 60s timeout.
	Client *http.Client
}

// HTTPReranker calls a cross-encoder rerank endpoint in the Jina/Cohere
// request shape. Both the {"results": [...]} envelope and the bare array
// returned by text-embeddings-inference are accepted.
type HTTPReranker struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPReranker returns an HTTPReranker for cfg.
func NewHTTPReranker(cfg HTTPConfig) (*HTTPReranker, error) {
	if cfg.URL == "" {
		return nil, errors.New("reranker: http: URL is required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPReranker{cfg: cfg, client: client}, nil
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Texts     []string `json:"texts"`
	TopN      int      `json:"top_n"`
}

type rerankResult struct {
	Index          int      `json:"index"`
	RelevanceScore *float64 `json:"relevance_score"`
	Score          *float64 `json:"score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Score implements rag.Reranker.
func (r *HTTPReranker) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return []float32{}, nil
	}
	body, err := json.Marshal(rerankRequest{
		Model:     r.cfg.Model,
		Query:     query,
		Documents: texts,
		Texts:     texts,
		TopN:      len(texts),
	})
	if err != nil {
		return nil, fmt.Errorf("reranker: http: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reranker: http: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reranker: http: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reranker: http: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker: http: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	results, err := decodeResults(raw)
	if err != nil {
		return nil, err
	}
	return scatter(results, len(texts))
}

func decodeResults(raw []byte) ([]rerankResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var results []rerankResult
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("reranker: http: decode: %w", err)
		}
		return results, nil
	}
	var resp rerankResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("reranker: http: decode: %w", err)
	}
	return resp.Results, nil
}

// scatter maps index-tagged results back to input order.
func scatter(results []rerankResult, n int) ([]float32, error) {
	scores := make([]float32, n)
	seen := make([]bool, n)
	for _, res := range results {
		if res.Index < 0 || res.Index >= n {
			return nil, fmt.Errorf("reranker: http: result index %d out of range [0,%d)", res.Index, n)
		}
		switch {
		case res.RelevanceScore != nil:
			scores[res.Index] = float32(*res.RelevanceScore)
		case res.Score != nil:
			scores[res.Index] = float32(*res.Score)
		default:
			return nil, fmt.Errorf("%w: result %d has no score", ErrMissingScore, res.Index)
		}
		seen[res.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: document %d", ErrMissingScore, i)
		}
	}
	return scores, nil
}
