// Package retrieval answers queries against a pack in two stages: a dense
// inner-product recall over the pack's index, then a rerank of the recalled
// passages by a Reranker. The top k reranked passages become grounding
// context; the best few of them become citations.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docpack-go/internal/index"
	"github.com/54b3r/docpack-go/internal/logging"
	"github.com/54b3r/docpack-go/internal/rag"
)

const (
	// DefaultK is the number of context passages returned when k is unset.
	DefaultK = 8
	// DefaultGroundingK is the k used when retrieving grounding material
	// for answer generation.
	DefaultGroundingK = 20
	// DefaultCitations is the maximum number of citations returned.
	DefaultCitations = 4
	// minRecall is the smallest dense recall size.
	minRecall = 30
)

// Searcher is the read side of the vector index.
type Searcher interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Search(ctx context.Context, key string, query []float32, topN int) ([]index.Match, error)
	Stats(ctx context.Context, key string) (index.Stats, error)
}

// Passage is one grounding passage.
type Passage struct {
	Text  string `json:"text"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Citation attributes an answer to a source.
type Citation struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float32 `json:"score"`
}

// Result is the outcome of Retrieve.
type Result struct {
	// Context holds up to k passages in rank order.
	Context []Passage `json:"context"`
	// Citations holds the top passages' sources, at most Config.Citations.
	Citations []Citation `json:"citations"`
}

// Config holds the configuration for an Engine.
type Config struct {
	// Citations is the maximum number of citations. Defaults to 4 if zero.
	Citations int

	// Registerer receives the retrieval metrics. If nil, a private
	// registry is used.
	Registerer prometheus.Registerer
}

// Engine runs dense recall followed by reranking.
type Engine struct {
	// searcher embeds queries and searches the index.
	searcher Searcher

	// reranker scores recalled passages against the query.
	reranker rag.Reranker

	// cfg holds the resolved configuration.
	cfg *Config

	// requestsTotal counts Retrieve calls by outcome.
	requestsTotal *prometheus.CounterVec

	// durationSeconds records Retrieve latency.
	durationSeconds prometheus.Histogram
}

// New constructs an Engine.
func New(searcher Searcher, reranker rag.Reranker, cfg *Config) (*Engine, error) {
	if searcher == nil {
		return nil, fmt.Errorf("retrieval: searcher must not be nil")
	}
	if reranker == nil {
		return nil, fmt.Errorf("retrieval: reranker must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Citations <= 0 {
		cfg.Citations = DefaultCitations
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registerer)

	return &Engine{
		searcher: searcher,
		reranker: reranker,
		cfg:      cfg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpack",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of retrievals, partitioned by outcome: ok, empty or error.",
		}, []string{"outcome"}),
		durationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docpack",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of retrievals including embedding and reranking.",
			Buckets:   prometheus.DefBuckets,
		}),
	}, nil
}

// RecallSize returns how many neighbours dense recall asks for:
// min(max(3k, 30), size).
func RecallSize(k, size int) int {
	return min(max(3*k, minRecall), size)
}

// Retrieve returns up to k passages for query from the pack at key. An empty
// index yields an empty Result and no collaborator calls. Embedder and
// Reranker failures are returned as errors. k <= 0 selects DefaultK.
func (e *Engine) Retrieve(ctx context.Context, key, query string, k int) (Result, error) {
	start := time.Now()
	res, err := e.retrieve(ctx, key, query, k)
	e.durationSeconds.Observe(time.Since(start).Seconds())

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(res.Context) == 0:
		outcome = "empty"
	}
	e.requestsTotal.WithLabelValues(outcome).Inc()
	return res, err
}

func (e *Engine) retrieve(ctx context.Context, key, query string, k int) (Result, error) {
	empty := Result{Context: []Passage{}, Citations: []Citation{}}
	if k <= 0 {
		k = DefaultK
	}

	st, err := e.searcher.Stats(ctx, key)
	if err != nil {
		return empty, fmt.Errorf("retrieval: stats: %w", err)
	}
	preK := RecallSize(k, st.Vectors)
	if preK == 0 {
		return empty, nil
	}

	qv, err := e.searcher.EmbedQuery(ctx, query)
	if err != nil {
		return empty, fmt.Errorf("retrieval: embed query: %w", err)
	}
	hits, err := e.searcher.Search(ctx, key, qv, preK)
	if err != nil {
		return empty, fmt.Errorf("retrieval: search: %w", err)
	}
	if len(hits) == 0 {
		return empty, nil
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Document.Text
	}
	scores, err := e.reranker.Score(ctx, query, texts)
	if err != nil {
		return empty, fmt.Errorf("retrieval: rerank: %w", err)
	}
	if len(scores) != len(hits) {
		return empty, fmt.Errorf("retrieval: reranker returned %d scores for %d passages", len(scores), len(hits))
	}

	type ranked struct {
		doc   rag.Document
		score float32
	}
	rs := make([]ranked, len(hits))
	for i, h := range hits {
		rs[i] = ranked{doc: h.Document, score: scores[i]}
	}
	// Stable, so equal scores keep recall order.
	slices.SortStableFunc(rs, func(a, b ranked) int {
		return cmp.Compare(b.score, a.score)
	})
	rs = rs[:min(k, len(rs))]

	res := Result{
		Context:   make([]Passage, len(rs)),
		Citations: make([]Citation, min(e.cfg.Citations, len(rs))),
	}
	for i, r := range rs {
		res.Context[i] = Passage{Text: r.doc.Text, URL: r.doc.URL, Title: r.doc.Title}
		if i < len(res.Citations) {
			res.Citations[i] = Citation{Title: r.doc.Title, URL: r.doc.URL, Score: r.score}
		}
	}

	logging.FromContext(ctx).Debug("retrieved",
		slog.String("pack_key", key),
		slog.Int("recalled", len(hits)),
		slog.Int("returned", len(res.Context)),
	)
	return res, nil
}
