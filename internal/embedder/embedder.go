// Package embedder provides rag.Embedder implementations that turn passages
// and queries into dense vectors. Ollama, OpenAI and Azure OpenAI are spoken
// to over their JSON REST APIs; Gemini goes through the google.golang.org/genai
// SDK. NewFromEnv picks a backend from the environment.
package embedder

import (
	"context"
	"fmt"

	"github.com/54b3r/docpack-go/internal/index"
	"github.com/54b3r/docpack-go/internal/rag"
)

// defaultBatchSize is how many texts go into one embedding request.
const defaultBatchSize = 64

// embedBatches calls fn on consecutive slices of texts of at most size
// elements and concatenates the results in order.
func embedBatches(ctx context.Context, texts []string, size int, fn func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if size <= 0 {
		size = defaultBatchSize
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// ProbeDimensions embeds a short probe text and checks the vector length
// against want. A mismatch wraps index.ErrDimensionMismatch so startup can
// fail before any pack is built with the wrong index size.
func ProbeDimensions(ctx context.Context, e rag.Embedder, want int) error {
	vecs, err := e.Embed(ctx, []string{index.QueryPrefix + "dimension probe"})
	if err != nil {
		return fmt.Errorf("embedder: probe failed: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embedder: probe returned %d vectors", len(vecs))
	}
	if got := len(vecs[0]); got != want {
		return fmt.Errorf("%w: embedder produces %d, configured %d (set EMBEDDING_DIMENSIONS)", index.ErrDimensionMismatch, got, want)
	}
	return nil
}
