package index

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/54b3r/docpack-go/internal/rag"
)

// MemoryBackend is an exact inner-product store held in process memory.
// Each pack key owns an append-only pair of parallel slices; writers take
// the pack's write lock, readers snapshot the slice length under the read
// lock and scan without holding it. Elements below a snapshot length are
// never modified, so a scan cannot observe a torn record.
type MemoryBackend struct {
	// mu guards the packs map.
	mu sync.Mutex
	// packs maps a pack key to its lazily created store.
	packs map[string]*memoryPack
}

// memoryPack is the storage for a single pack key.
type memoryPack struct {
	mu      sync.RWMutex
	vectors [][]float32
	docs    []rag.Document
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{packs: make(map[string]*memoryPack)}
}

// pack returns the store for key, creating it on first access.
func (m *MemoryBackend) pack(key string) *memoryPack {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.packs[key]
	if !ok {
		p = &memoryPack{}
		m.packs[key] = p
	}
	return p
}

// Append implements Backend.
func (m *MemoryBackend) Append(_ context.Context, key string, vectors [][]float32, docs []rag.Document) error {
	p := m.pack(key)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.vectors = append(p.vectors, vectors...)
	p.docs = append(p.docs, docs...)
	return nil
}

// Search implements Backend. Ties keep offset order.
func (m *MemoryBackend) Search(ctx context.Context, key string, query []float32, topN int) ([]Match, error) {
	p := m.pack(key)

	p.mu.RLock()
	vectors := p.vectors[:len(p.vectors):len(p.vectors)]
	docs := p.docs[:len(vectors):len(vectors)]
	p.mu.RUnlock()

	if len(vectors) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches := make([]Match, len(vectors))
	for i, v := range vectors {
		matches[i] = Match{Offset: i, Score: dot(query, v)}
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})

	matches = matches[:min(topN, len(matches))]
	for i := range matches {
		matches[i].Document = docs[matches[i].Offset]
	}
	return matches, nil
}

// Stats implements Backend.
func (m *MemoryBackend) Stats(_ context.Context, key string) (Stats, error) {
	p := m.pack(key)

	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{Vectors: len(p.vectors), Metadata: len(p.docs)}, nil
}

// Close implements Backend. It is a no-op.
func (m *MemoryBackend) Close() error { return nil }
