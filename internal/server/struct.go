package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docpack-go/internal/journal"
	"github.com/54b3r/docpack-go/internal/pack"
	"github.com/54b3r/docpack-go/internal/retrieval"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:8080).
	Addr string
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a first-time pack build, which ingests synchronously.
	WriteTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the base logger. If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers are the dependency probes run by GET /api/ready.
	Pingers []Pinger
	// RateLimit is the per-IP request rate on POST routes (requests/second).
	// Defaults to 2 if zero.
	RateLimit float64
	// RateBurst is the per-IP burst on POST routes. Defaults to 10 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /api/packs and /api/search.
	// If empty, authentication is disabled.
	APIKey string
	// DefaultK is the passage count used when a search omits k.
	// Defaults to retrieval.DefaultK.
	DefaultK int
	// Journal serves GET /api/packs/{key}/runs. Optional.
	Journal RunLister
	// MetricsRegistry receives the server metrics. If nil,
	// prometheus.DefaultRegisterer is used.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. If nil,
	// prometheus.DefaultGatherer is used.
	MetricsGatherer prometheus.Gatherer
}

// Packs is the pack cache surface the handlers use. *pack.Cache satisfies it.
type Packs interface {
	EnsurePack(ctx context.Context, topic pack.Topic, language string) (string, pack.Status, error)
	Manifest(key string) (pack.Manifest, bool)
	List(ctx context.Context) ([]pack.Summary, error)
}

// Retriever answers searches. *retrieval.Engine satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, key, query string, k int) (retrieval.Result, error)
}

// RunLister reads ingest runs. *journal.SQLiteJournal satisfies it.
type RunLister interface {
	Runs(ctx context.Context, key string, n int) ([]journal.Run, error)
}

// Server is the docpack HTTP API.
type Server struct {
	packs      Packs
	retriever  Retriever
	runs       RunLister
	cfg        *Config
	httpServer *http.Server
	log        *slog.Logger
	pingers    []Pinger
	metrics    *serverMetrics
	// stopRL stops the rate limiter's eviction goroutine.
	stopRL func()
}

// createPackRequest is the JSON body for POST /api/packs.
type createPackRequest struct {
	pack.Topic
	// Language defaults to "en".
	Language string `json:"language,omitempty"`
}

// createPackResponse is the JSON response for POST /api/packs.
type createPackResponse struct {
	Key    string      `json:"key"`
	Status pack.Status `json:"status"`
}

// listPacksResponse is the JSON response for GET /api/packs.
type listPacksResponse struct {
	Packs []pack.Summary `json:"packs"`
}

// runsResponse is the JSON response for GET /api/packs/{key}/runs.
type runsResponse struct {
	Runs []journal.Run `json:"runs"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	PackKey string `json:"packKey"`
	Query   string `json:"query"`
	K       int    `json:"k,omitempty"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}
