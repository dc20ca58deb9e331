// Package index implements the per-pack vector index. Documents are embedded
// as passages, L2-normalised and appended at permanent offsets; queries are
// embedded with a distinct prefix by the same model so the two spaces remain
// comparable. Because every stored vector has unit length, inner product
// equals cosine similarity.
//
// Storage is delegated to a Backend: an in-process append-only store by
// default, or a shared Qdrant collection partitioned by pack key.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/54b3r/docpack-go/internal/rag"
)

const (
	// PassagePrefix marks text embedded for storage.
	PassagePrefix = "passage: "
	// QueryPrefix marks text embedded for lookup.
	QueryPrefix = "query: "
)

// ErrDimensionMismatch is returned when the embedder produces vectors whose
// length differs from the configured index dimension. It indicates a
// configuration error, not a transient failure.
var ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")

// Match is one search hit.
type Match struct {
	// Offset is the permanent position of the document within its pack.
	Offset int
	// Score is the inner product between the query and the stored vector.
	Score float32
	// Document is the metadata stored at Offset.
	Document rag.Document
}

// Stats reports the size of one pack's index.
type Stats struct {
	// Vectors is the number of stored vectors.
	Vectors int `json:"vectors"`
	// Metadata is the number of stored document records.
	Metadata int `json:"metadata"`
}

// Backend stores normalised vectors and their documents per pack key.
// Implementations must be safe to call from multiple goroutines, must
// serialise Append calls for the same key, and must never expose a
// partially appended batch to Search.
type Backend interface {
	// Append stores vectors[i] with docs[i] at the next offsets for key.
	Append(ctx context.Context, key string, vectors [][]float32, docs []rag.Document) error
	// Search returns at most topN matches for key, best first.
	Search(ctx context.Context, key string, query []float32, topN int) ([]Match, error)
	// Stats returns the size of the index for key.
	Stats(ctx context.Context, key string) (Stats, error)
	// Close releases any resources held by the backend.
	Close() error
}

// Index embeds documents and queries and delegates storage to a Backend.
type Index struct {
	// embedder converts passages and queries to vectors.
	embedder rag.Embedder
	// backend stores vectors per pack key.
	backend Backend
	// dim is the fixed vector length every pack must use.
	dim int
}

// New constructs an Index over the given embedder and backend. dim is the
// fixed embedding dimension; it must match what the embedder produces.
func New(embedder rag.Embedder, backend Backend, dim int) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("index: embedder must not be nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("index: backend must not be nil")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("index: dimension must be positive, got %d", dim)
	}
	return &Index{embedder: embedder, backend: backend, dim: dim}, nil
}

// Dimension returns the fixed embedding dimension.
func (x *Index) Dimension() int { return x.dim }

// Upsert embeds docs as passages and appends them to the index for key.
// Offsets are assigned in order and never reused. An empty batch is a no-op.
func (x *Index) Upsert(ctx context.Context, key string, docs []rag.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = PassagePrefix + d.Text
	}

	vecs, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("index: embedding passages failed: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("index: embedder returned %d vectors for %d passages", len(vecs), len(docs))
	}
	for i, v := range vecs {
		if len(v) != x.dim {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), x.dim)
		}
		vecs[i] = Normalize(v)
	}

	if err := x.backend.Append(ctx, key, vecs, docs); err != nil {
		return fmt.Errorf("index: append failed: %w", err)
	}
	return nil
}

// EmbedQuery embeds query with the query prefix and normalises the result.
func (x *Index) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := x.embedder.Embed(ctx, []string{QueryPrefix + query})
	if err != nil {
		return nil, fmt.Errorf("index: embedding query failed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("index: embedder returned empty result for query")
	}
	if len(vecs[0]) != x.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vecs[0]), x.dim)
	}
	return Normalize(vecs[0]), nil
}

// Search returns at most min(topN, size) matches for key, highest score
// first. An empty index yields an empty result.
func (x *Index) Search(ctx context.Context, key string, query []float32, topN int) ([]Match, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(query), x.dim)
	}
	if topN <= 0 {
		return nil, nil
	}
	matches, err := x.backend.Search(ctx, key, query, topN)
	if err != nil {
		return nil, fmt.Errorf("index: search failed: %w", err)
	}
	return matches, nil
}

// Stats returns the vector and metadata counts for key.
func (x *Index) Stats(ctx context.Context, key string) (Stats, error) {
	st, err := x.backend.Stats(ctx, key)
	if err != nil {
		return Stats{}, fmt.Errorf("index: stats failed: %w", err)
	}
	return st, nil
}

// Close releases the backend.
func (x *Index) Close() error {
	return x.backend.Close()
}

// Normalize scales v to unit length in place and returns it. The epsilon
// keeps an all-zero vector at zero instead of dividing by zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	n := math.Sqrt(sum) + 1e-12
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}

// dot returns the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
