package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/docpack-go/internal/index"
	"github.com/54b3r/docpack-go/internal/rag"
	"github.com/54b3r/docpack-go/internal/rag/ragtest"
)

func newIndex(t *testing.T, emb rag.Embedder) *index.Index {
	t.Helper()
	x, err := index.New(emb, index.NewMemoryBackend(), 32)
	if err != nil {
		t.Fatalf("index.New: %v", err)
	}
	return x
}

func newEngine(t *testing.T, s Searcher, r rag.Reranker) *Engine {
	t.Helper()
	e, err := New(s, r, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func seed(t *testing.T, x *index.Index, key string, n int) {
	t.Helper()
	docs := make([]rag.Document, n)
	for i := range docs {
		docs[i] = rag.Document{
			Title: fmt.Sprintf("Doc %d", i),
			URL:   fmt.Sprintf("https://example.com/%d", i),
			Text:  fmt.Sprintf("document number %d about topic%d", i, i),
		}
	}
	if err := x.Upsert(context.Background(), key, docs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func Test_RecallSize(t *testing.T) {
	t.Parallel()
	cases := []struct{ k, size, want int }{
		{5, 10, 10},
		{5, 100, 30},
		{20, 100, 60},
		{8, 0, 0},
		{1, 31, 30},
	}
	for _, tc := range cases {
		if got := RecallSize(tc.k, tc.size); got != tc.want {
			t.Errorf("RecallSize(%d, %d) = %d, want %d", tc.k, tc.size, got, tc.want)
		}
	}
}

func Test_Retrieve_EmptyIndex(t *testing.T) {
	t.Parallel()
	emb := &ragtest.HashEmbedder{}
	calls := 0
	rr := ragtest.FuncReranker(func(string, []string) ([]float32, error) {
		calls++
		return nil, nil
	})
	e := newEngine(t, newIndex(t, emb), rr)

	for _, k := range []int{1, 5, 50} {
		res, err := e.Retrieve(context.Background(), "empty", "anything", k)
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if res.Context == nil || res.Citations == nil {
			t.Error("empty results must be non-nil slices")
		}
		if len(res.Context) != 0 || len(res.Citations) != 0 {
			t.Errorf("k=%d: got %d/%d", k, len(res.Context), len(res.Citations))
		}
	}
	if emb.Calls() != 0 || calls != 0 {
		t.Errorf("collaborators called: embed=%d rerank=%d", emb.Calls(), calls)
	}
	if got := testutil.ToFloat64(e.requestsTotal.WithLabelValues("empty")); got != 3 {
		t.Errorf("empty outcome count = %v, want 3", got)
	}
}

func Test_Retrieve_TenDocsKFive(t *testing.T) {
	t.Parallel()
	x := newIndex(t, &ragtest.HashEmbedder{})
	seed(t, x, "k", 10)

	var reranked int
	rr := ragtest.FuncReranker(func(q string, texts []string) ([]float32, error) {
		reranked = len(texts)
		return ragtest.OverlapReranker(q, texts)
	})
	res, err := newEngine(t, x, rr).Retrieve(context.Background(), "k", "X", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if reranked != 10 {
		t.Errorf("reranked %d passages, want 10", reranked)
	}
	if len(res.Context) != 5 {
		t.Errorf("context = %d, want 5", len(res.Context))
	}
	if len(res.Citations) != 4 {
		t.Errorf("citations = %d, want 4", len(res.Citations))
	}
}

func Test_Retrieve_BoundsRespected(t *testing.T) {
	t.Parallel()
	x := newIndex(t, &ragtest.HashEmbedder{})
	seed(t, x, "k", 3)
	e := newEngine(t, x, ragtest.OverlapReranker)

	for _, k := range []int{1, 2, 3, 10} {
		res, err := e.Retrieve(context.Background(), "k", "document", k)
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(res.Context) > k || len(res.Context) > 3 {
			t.Errorf("k=%d: context = %d", k, len(res.Context))
		}
		if len(res.Citations) > min(k, 4) {
			t.Errorf("k=%d: citations = %d", k, len(res.Citations))
		}
	}
}

func Test_Retrieve_ExactTextRanksFirst(t *testing.T) {
	t.Parallel()
	x := newIndex(t, &ragtest.HashEmbedder{})
	text := "ingress controllers route external traffic"
	if err := x.Upsert(context.Background(), "k", []rag.Document{{Title: "Ingress", URL: "https://k8s/ingress", Text: text}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	res, err := newEngine(t, x, ragtest.OverlapReranker).Retrieve(context.Background(), "k", text, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Context) != 1 || res.Context[0].Text != text {
		t.Fatalf("context = %+v", res.Context)
	}
	if res.Citations[0].URL != "https://k8s/ingress" || res.Citations[0].Title != "Ingress" {
		t.Errorf("citation = %+v", res.Citations[0])
	}
}

func Test_Retrieve_RerankOrderWithStableTies(t *testing.T) {
	t.Parallel()
	x := newIndex(t, &ragtest.HashEmbedder{})
	seed(t, x, "k", 6)
	ctx := context.Background()

	// Recall order for this query.
	qv, _ := x.EmbedQuery(ctx, "document")
	hits, _ := x.Search(ctx, "k", qv, 6)

	// Boost the last recalled passage; every other passage ties.
	last := hits[len(hits)-1].Document.Text
	rr := ragtest.FuncReranker(func(_ string, texts []string) ([]float32, error) {
		out := make([]float32, len(texts))
		for i, s := range texts {
			if s == last {
				out[i] = 10
			}
		}
		return out, nil
	})
	res, err := newEngine(t, x, rr).Retrieve(ctx, "k", "document", 6)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Context[0].Text != last {
		t.Errorf("top = %q, want %q", res.Context[0].Text, last)
	}
	for i := 1; i < len(res.Context); i++ {
		if res.Context[i].Text != hits[i-1].Document.Text {
			t.Errorf("rank %d = %q, want recall order %q", i, res.Context[i].Text, hits[i-1].Document.Text)
		}
	}
	if res.Citations[0].Score != 10 || res.Citations[1].Score != 0 {
		t.Errorf("citation scores = %v, %v", res.Citations[0].Score, res.Citations[1].Score)
	}
}

func Test_Retrieve_RerankerErrorPropagates(t *testing.T) {
	t.Parallel()
	x := newIndex(t, &ragtest.HashEmbedder{})
	seed(t, x, "k", 2)
	boom := errors.New("reranker down")
	rr := ragtest.FuncReranker(func(string, []string) ([]float32, error) { return nil, boom })

	e := newEngine(t, x, rr)
	if _, err := e.Retrieve(context.Background(), "k", "q", 3); !errors.Is(err, boom) {
		t.Fatalf("want reranker error, got %v", err)
	}
	if got := testutil.ToFloat64(e.requestsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error outcome count = %v, want 1", got)
	}
}

func Test_Retrieve_ScoreCountMismatch(t *testing.T) {
	t.Parallel()
	x := newIndex(t, &ragtest.HashEmbedder{})
	seed(t, x, "k", 2)
	rr := ragtest.FuncReranker(func(string, []string) ([]float32, error) { return []float32{1}, nil })
	if _, err := newEngine(t, x, rr).Retrieve(context.Background(), "k", "q", 3); err == nil {
		t.Fatal("want error for short score slice")
	}
}

// brokenEmbedder fails only for queries, so documents can be seeded.
type brokenEmbedder struct{ ragtest.HashEmbedder }

func (b *brokenEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 1 && strings.HasPrefix(texts[0], index.QueryPrefix) {
		return nil, errors.New("embedder down")
	}
	return b.HashEmbedder.Embed(ctx, texts)
}

func Test_Retrieve_EmbedderErrorPropagates(t *testing.T) {
	t.Parallel()
	x := newIndex(t, &brokenEmbedder{})
	seed(t, x, "k", 2)
	if _, err := newEngine(t, x, ragtest.OverlapReranker).Retrieve(context.Background(), "k", "q", 3); err == nil {
		t.Fatal("want embedder error")
	}
}

func Test_Retrieve_DefaultK(t *testing.T) {
	t.Parallel()
	x := newIndex(t, &ragtest.HashEmbedder{})
	seed(t, x, "k", 12)
	res, err := newEngine(t, x, ragtest.OverlapReranker).Retrieve(context.Background(), "k", "document", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Context) != DefaultK {
		t.Errorf("context = %d, want %d", len(res.Context), DefaultK)
	}
}
