package reranker

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/docpack-go/internal/provider"
	"github.com/54b3r/docpack-go/internal/rag"
)

// Providers selectable through RERANK_PROVIDER.
const (
	ProviderHTTP = "http"
	ProviderLLM  = "llm"
	ProviderNone = "none"
)

// NewFromEnv constructs a reranker from environment variables.
//
//	RERANK_PROVIDER = http | llm | none (default: http)
//
//	http: RERANK_URL (default: http://localhost:8080/rerank), RERANK_MODEL, RERANK_API_KEY
//	llm:  chat model from MODEL_PROVIDER (see provider.NewFromEnv),
//	      RERANK_BATCH_SIZE (default: 10), RERANK_MAX_TOKENS (default: 6000)
//	none: recall order, no network calls
func NewFromEnv(ctx context.Context) (rag.Reranker, error) {
	switch p := getEnvOrDefault("RERANK_PROVIDER", ProviderHTTP); p {
	case ProviderHTTP:
		return NewHTTPReranker(HTTPConfig{
			URL:    getEnvOrDefault("RERANK_URL", "http://localhost:8080/rerank"),
			Model:  os.Getenv("RERANK_MODEL"),
			APIKey: os.Getenv("RERANK_API_KEY"),
		})
	case ProviderLLM:
		m, err := provider.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("reranker: llm: %w", err)
		}
		return NewLLMReranker(m, LLMConfig{
			BatchSize:        getEnvInt("RERANK_BATCH_SIZE", DefaultLLMBatchSize),
			MaxContextTokens: getEnvInt("RERANK_MAX_TOKENS", 0),
		})
	case ProviderNone:
		return RankReranker{}, nil
	default:
		return nil, fmt.Errorf("reranker: unknown RERANK_PROVIDER %q (valid: http, llm, none)", p)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
