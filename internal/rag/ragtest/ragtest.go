// Package ragtest provides deterministic in-memory implementations of the
// rag collaborator interfaces for use in tests.
package ragtest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/54b3r/docpack-go/internal/rag"
)

// ErrNotFound is returned by StaticFetcher for URLs it does not know.
var ErrNotFound = errors.New("ragtest: page not found")

// HashEmbedder is a bag-of-words embedder: every lowercase token is hashed
// into one of Dim buckets. A leading "passage: " or "query: " marker is
// dropped so passages and queries with the same words embed identically.
type HashEmbedder struct {
	// Dim is the output dimension. Defaults to 32 when zero.
	Dim int
	// Err, when set, is returned by every Embed call.
	Err error

	mu    sync.Mutex
	calls int
	texts []string
}

// Embed implements rag.Embedder.
func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts = append(e.texts, texts...)
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	dim := e.Dim
	if dim == 0 {
		dim = 32
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.TrimPrefix(t, "passage: ")
		t = strings.TrimPrefix(t, "query: ")
		v := make([]float32, dim)
		for _, tok := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			v[h.Sum32()%uint32(dim)]++
		}
		// Keep the zero vector out of the index so normalisation is defined.
		v[dim-1] += 0.01
		out[i] = v
	}
	return out, nil
}

// Calls returns how many times Embed was invoked.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Texts returns every text passed to Embed, in call order.
func (e *HashEmbedder) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

// StaticFetcher serves pages from an in-memory map and counts calls per URL.
type StaticFetcher struct {
	// Pages maps a URL to the page returned for it.
	Pages map[string]*rag.Page
	// Block, when non-nil, is received from before every fetch returns.
	Block chan struct{}

	mu    sync.Mutex
	calls map[string]int
}

// Fetch implements rag.Fetcher.
func (f *StaticFetcher) Fetch(ctx context.Context, url string) (*rag.Page, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p, ok := f.Pages[url]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	if cp.URL == "" {
		cp.URL = url
	}
	return &cp, nil
}

// Calls returns the number of fetches made for url.
func (f *StaticFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// TotalCalls returns the number of fetches made for any URL.
func (f *StaticFetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// FuncReranker adapts a plain function to rag.Reranker.
type FuncReranker func(query string, texts []string) ([]float32, error)

// Score implements rag.Reranker.
func (f FuncReranker) Score(_ context.Context, query string, texts []string) ([]float32, error) {
	return f(query, texts)
}

// OverlapReranker scores each text by the number of query tokens it contains.
var OverlapReranker = FuncReranker(func(query string, texts []string) ([]float32, error) {
	terms := strings.Fields(strings.ToLower(query))
	out := make([]float32, len(texts))
	for i, t := range texts {
		lt := strings.ToLower(t)
		for _, term := range terms {
			if strings.Contains(lt, term) {
				out[i]++
			}
		}
	}
	return out, nil
})
