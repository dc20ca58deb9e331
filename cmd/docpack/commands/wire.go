package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docpack-go/internal/config"
	"github.com/54b3r/docpack-go/internal/embedder"
	"github.com/54b3r/docpack-go/internal/fetcher"
	"github.com/54b3r/docpack-go/internal/index"
	"github.com/54b3r/docpack-go/internal/ingest"
	"github.com/54b3r/docpack-go/internal/journal"
	"github.com/54b3r/docpack-go/internal/pack"
	"github.com/54b3r/docpack-go/internal/reranker"
	"github.com/54b3r/docpack-go/internal/retrieval"
	"github.com/54b3r/docpack-go/internal/server"
	"github.com/54b3r/docpack-go/internal/tracing"
)

// stack is the wired pack cache and retrieval engine shared by serve,
// ensure and search.
type stack struct {
	settings  *config.Settings
	cache     *pack.Cache
	retriever *retrieval.Engine
	journal   *journal.SQLiteJournal
	pingers   []server.Pinger
	closers   []func()
}

// pinger is implemented by embedders that can report their own health.
type pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// buildStack constructs every collaborator from the environment. reg
// receives the cache and retrieval metrics; nil keeps them private.
func buildStack(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (_ *stack, err error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}

	s := &stack{settings: settings}
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	s.closers = append(s.closers, tracing.Setup(tracing.ConfigFromEnv(), log))

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	backendName := embedder.Backend()
	dim := embedder.DefaultDimensions(backendName)
	if err := embedder.ProbeDimensions(ctx, emb, dim); err != nil {
		return nil, err
	}
	if p, ok := emb.(pinger); ok {
		s.pingers = append(s.pingers, p)
	}
	log.Info("embedder ready", slog.String("backend", backendName), slog.Int("dimensions", dim))

	backend, err := s.openBackend(ctx, log, dim)
	if err != nil {
		return nil, err
	}
	idx, err := index.New(emb, backend, dim)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = idx.Close() })

	eng, err := ingest.New(fetcher.New(&fetcher.Config{
		Timeout:   settings.FetchTimeout,
		UserAgent: settings.UserAgent,
		HostRate:  settings.FetchHostRate,
		HostBurst: settings.FetchHostBurst,
	}), idx, &ingest.Config{
		TextCap:     settings.TextCap,
		Concurrency: settings.SourceConcurrency,
	})
	if err != nil {
		return nil, err
	}

	s.journal = openJournal(log, settings.JournalDB)
	cacheCfg := &pack.Config{
		SyncPages:          settings.SyncPages,
		EnrichPages:        settings.EnrichPages,
		SyncCompleteness:   settings.SyncCompleteness,
		EnrichCompleteness: settings.EnrichCompleteness,
		TTLDays:            settings.TTLDays,
		Workers:            settings.Workers,
		QueueSize:          settings.QueueSize,
		Logger:             log,
		Registerer:         reg,
	}
	if s.journal != nil {
		cacheCfg.Journal = s.journal
	}
	s.cache, err = pack.New(eng, idx, cacheCfg)
	if err != nil {
		return nil, err
	}

	rr, err := reranker.NewFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	s.retriever, err = retrieval.New(idx, rr, &retrieval.Config{
		Citations:  settings.Citations,
		Registerer: reg,
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// openBackend selects the vector backend named by DOCPACK_INDEX_BACKEND.
func (s *stack) openBackend(ctx context.Context, log *slog.Logger, dim int) (index.Backend, error) {
	switch s.settings.IndexBackend {
	case config.IndexMemory:
		log.Info("index: in-memory backend")
		return index.NewMemoryBackend(), nil
	case config.IndexQdrant:
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", "docpack")
		qb, err := index.NewQdrantBackend(ctx, &index.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dim),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		s.pingers = append(s.pingers, server.NewQdrantPinger(qb.Client()))
		log.Info("index: qdrant backend", slog.String("host", host), slog.Int("port", port), slog.String("collection", collection))
		return qb, nil
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", config.ErrInvalidSetting, s.settings.IndexBackend)
	}
}

// openJournal opens the ingest journal. Failures are logged and disable it.
func openJournal(log *slog.Logger, path string) *journal.SQLiteJournal {
	if path == config.JournalDisabled {
		log.Info("journal: disabled via DOCPACK_JOURNAL_DB=disabled")
		return nil
	}
	if path == "" {
		var err error
		path, err = journal.DefaultDBPath()
		if err != nil {
			log.Warn("journal: could not resolve default path, disabling", slog.Any("error", err))
			return nil
		}
	}
	j, err := journal.Open(path)
	if err != nil {
		log.Warn("journal: failed to open, disabling", slog.String("path", path), slog.Any("error", err))
		return nil
	}
	log.Info("journal: opened", slog.String("path", path))
	return j
}

// shutdown drains enrichment within ctx and releases every resource.
func (s *stack) shutdown(ctx context.Context) error {
	var err error
	if s.cache != nil {
		err = s.cache.Close(ctx)
	}
	s.release()
	return err
}

// release closes the index, journal and tracing in reverse order of setup.
func (s *stack) release() {
	if s.journal != nil {
		_ = s.journal.Close()
		s.journal = nil
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// getEnvOrDefault returns the value of key, or fallback if unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key, or fallback if unset or invalid.
func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// isCanceled reports whether err only says the command was interrupted.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
