// Package pack maintains the cache of document packs: one manifest per pack
// key, a short log of recently ingested URLs, and the policy that builds a
// pack on first request. The first EnsurePack for a key runs a bounded
// ingest before returning and queues a larger enrichment ingest on a
// background worker pool; later calls return the existing pack at once.
package pack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/54b3r/docpack-go/internal/index"
	"github.com/54b3r/docpack-go/internal/ingest"
	"github.com/54b3r/docpack-go/internal/journal"
	"github.com/54b3r/docpack-go/internal/logging"
)

// ErrUnknownPack is returned for keys the cache has never seen.
var ErrUnknownPack = errors.New("pack: unknown pack key")

// Ingester fills a pack's index from its sources.
type Ingester interface {
	Ingest(ctx context.Context, key string, sources, keywords []string, maxPages int) (ingest.Result, error)
}

// IndexStats reports the size of a pack's index.
type IndexStats interface {
	Stats(ctx context.Context, key string) (index.Stats, error)
}

// Recorder stores a history of ingest runs. *journal.SQLiteJournal
// satisfies it.
type Recorder interface {
	Record(ctx context.Context, run journal.Run) error
}

// Config holds the configuration for a Cache.
type Config struct {
	// SyncPages is the per-source page cap of the ingest run inside
	// EnsurePack. Defaults to 15 if zero.
	SyncPages int

	// EnrichPages is the per-source page cap of the background ingest.
	// Defaults to 30 if zero.
	EnrichPages int

	// SyncCompleteness is the completeness set when the first ingest lands
	// at least one document. Defaults to 0.3 if zero.
	SyncCompleteness float64

	// EnrichCompleteness is the floor completeness is raised to when
	// enrichment lands at least one document. Defaults to 0.6 if zero.
	EnrichCompleteness float64

	// TTLDays is stored on every new manifest. Defaults to 14 if zero.
	TTLDays int

	// Workers is the number of background enrichment goroutines.
	// Defaults to 2 if zero.
	Workers int

	// QueueSize bounds pending enrichment runs. Defaults to 64 if zero.
	QueueSize int

	// Logger is the structured logger for background work.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger

	// Registerer receives the cache metrics. If nil, a private registry is
	// used and the metrics are not exported.
	Registerer prometheus.Registerer

	// Journal, if set, records every ingest run. Failures to record are
	// logged and otherwise ignored.
	Journal Recorder

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Cache holds pack manifests and coordinates their ingestion.
// It is safe for concurrent use.
type Cache struct {
	// ingester runs the fetch and upsert flow.
	ingester Ingester

	// stats reports index sizes for List.
	stats IndexStats

	// cfg holds the resolved configuration.
	cfg *Config

	// log is the logger for background work.
	log *slog.Logger

	// metrics holds the Prometheus collectors.
	metrics *cacheMetrics

	// pool runs enrichment ingests.
	pool *pool

	// group collapses concurrent first builds of the same key.
	group singleflight.Group

	// mu guards manifests, order and logs.
	mu sync.RWMutex

	// manifests maps a pack key to its manifest.
	manifests map[string]*Manifest

	// order lists keys in creation order.
	order []string

	// logs maps a pack key to its recent ingested URLs.
	logs map[string][]string
}

// New constructs a Cache and starts its enrichment workers. Call Close to
// drain them.
func New(ingester Ingester, stats IndexStats, cfg *Config) (*Cache, error) {
	if ingester == nil {
		return nil, fmt.Errorf("pack: ingester must not be nil")
	}
	if stats == nil {
		return nil, fmt.Errorf("pack: stats must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.SyncPages <= 0 {
		cfg.SyncPages = 15
	}
	if cfg.EnrichPages <= 0 {
		cfg.EnrichPages = 30
	}
	if cfg.SyncCompleteness <= 0 {
		cfg.SyncCompleteness = 0.3
	}
	if cfg.EnrichCompleteness <= 0 {
		cfg.EnrichCompleteness = 0.6
	}
	if cfg.TTLDays <= 0 {
		cfg.TTLDays = 14
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Cache{
		ingester:  ingester,
		stats:     stats,
		cfg:       cfg,
		log:       log,
		metrics:   newCacheMetrics(cfg.Registerer),
		pool:      newPool(logging.WithLogger(context.Background(), log), cfg.Workers, cfg.QueueSize),
		manifests: make(map[string]*Manifest),
		logs:      make(map[string][]string),
	}, nil
}

// ensureResult is the value shared by concurrent first callers.
type ensureResult struct {
	status Status
}

// EnsurePack returns the key for topic and language and makes sure a pack
// exists for it. For a key already in the cache it returns StatusReady
// without doing any work. Otherwise it creates the manifest, ingests up to
// SyncPages pages per source, and returns StatusReady if that produced at
// least one document or StatusBuilding if not. In both cases an enrichment
// ingest is queued. Concurrent first calls for one key share a single
// ingest and receive the same status.
//
// Ingest failures are logged and never returned. The only error is ctx's,
// when it is already done before an unknown key is created.
func (c *Cache) EnsurePack(ctx context.Context, topic Topic, language string) (string, Status, error) {
	topic = topic.Normalize()
	if language == "" {
		language = DefaultLanguage
	}
	key := Key(topic, language)

	c.mu.RLock()
	_, ok := c.manifests[key]
	c.mu.RUnlock()
	if ok {
		return key, StatusReady, nil
	}
	if err := ctx.Err(); err != nil {
		return key, "", err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if !c.create(key, topic, language) {
			return ensureResult{status: StatusReady}, nil
		}
		return ensureResult{status: c.build(context.WithoutCancel(ctx), key, topic)}, nil
	})
	if err != nil {
		return key, "", err
	}
	return key, v.(ensureResult).status, nil
}

// create inserts an empty manifest for key. It reports false if one already
// exists.
func (c *Cache) create(key string, topic Topic, language string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.manifests[key]; ok {
		return false
	}
	version := topic.Version
	if version == "" {
		version = DefaultVersion
	}
	now := c.cfg.Now()
	c.manifests[key] = &Manifest{
		Key:       key,
		Domain:    topic.Domain,
		Version:   version,
		Language:  language,
		Sources:   slices.Clone(topic.Sources),
		Subtopics: slices.Clone(topic.Subtopics),
		TTLDays:   c.cfg.TTLDays,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.order = append(c.order, key)
	c.metrics.packs.Set(float64(len(c.manifests)))
	return true
}

// build runs the synchronous ingest for a freshly created key and queues
// enrichment.
func (c *Cache) build(ctx context.Context, key string, topic Topic) Status {
	ctx, _ = logging.With(ctx, slog.String("pack_key", key), slog.String("phase", PhaseSync))

	res := c.runIngest(ctx, key, topic, PhaseSync, c.cfg.SyncPages)

	completeness := 0.0
	if res.Documents > 0 {
		completeness = c.cfg.SyncCompleteness
	}
	c.raise(key, completeness)

	c.enqueueEnrichment(ctx, key, topic)

	if res.Documents > 0 {
		return StatusReady
	}
	return StatusBuilding
}

// enqueueEnrichment submits the background ingest for key.
func (c *Cache) enqueueEnrichment(ctx context.Context, key string, topic Topic) {
	err := c.pool.submit(func(ctx context.Context) {
		ctx, _ = logging.With(ctx, slog.String("pack_key", key), slog.String("phase", PhaseEnrich))

		res := c.runIngest(ctx, key, topic, PhaseEnrich, c.cfg.EnrichPages)
		if res.Documents > 0 {
			c.raise(key, c.cfg.EnrichCompleteness)
		}
	})
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			c.metrics.enrichmentDroppedTotal.Inc()
		}
		logging.FromContext(ctx).Warn("enrichment not scheduled", slog.String("error", err.Error()))
	}
}

// runIngest runs one ingest phase, updates the ingest log and metrics, and
// journals the run.
func (c *Cache) runIngest(ctx context.Context, key string, topic Topic, phase string, maxPages int) ingest.Result {
	log := logging.FromContext(ctx)
	start := c.cfg.Now()
	t0 := time.Now()

	res, err := c.ingester.Ingest(ctx, key, topic.Sources, topic.Subtopics, maxPages)
	elapsed := time.Since(t0)

	c.metrics.ingestDurationSeconds.WithLabelValues(phase).Observe(elapsed.Seconds())
	c.metrics.documentsTotal.WithLabelValues(phase).Add(float64(res.Documents))
	c.appendLog(key, res.URLs)

	run := journal.Run{
		PackKey:   key,
		Phase:     phase,
		Documents: res.Documents,
		URLs:      res.URLs,
		StartedAt: start,
		Duration:  elapsed,
	}
	if err != nil {
		run.Error = err.Error()
		log.Warn("ingest completed with errors", slog.Int("documents", res.Documents), slog.String("error", err.Error()))
	} else {
		log.Info("ingest completed", slog.Int("documents", res.Documents), slog.Duration("duration", elapsed))
	}
	if c.cfg.Journal != nil {
		if jerr := c.cfg.Journal.Record(ctx, run); jerr != nil {
			log.Warn("journal record failed", slog.String("error", jerr.Error()))
		}
	}
	return res
}

// raise sets key's completeness to at least level, capped at 1. It never
// lowers completeness.
func (c *Cache) raise(key string, level float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.manifests[key]
	if !ok {
		return
	}
	next := min(1, max(m.Completeness, level))
	if next != m.Completeness {
		m.Completeness = next
		m.UpdatedAt = c.cfg.Now()
	}
}

// appendLog merges urls into key's ingest log.
func (c *Cache) appendLog(key string, urls []string) {
	if len(urls) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs[key] = mergeLog(c.logs[key], urls)
}

// Manifest returns a copy of the manifest for key.
func (c *Cache) Manifest(key string) (Manifest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.manifests[key]
	if !ok {
		return Manifest{}, false
	}
	return m.clone(), true
}

// RecentURLs returns up to the last 50 URLs ingested for key.
func (c *Cache) RecentURLs(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return tail(c.logs[key], logKeep)
}

// List returns a summary of every pack in creation order. Index sizes are
// read after the cache lock is released, so a summary may count documents
// ingested after its completeness was read.
func (c *Cache) List(ctx context.Context) ([]Summary, error) {
	c.mu.RLock()
	out := make([]Summary, 0, len(c.order))
	for _, key := range c.order {
		m := c.manifests[key]
		out = append(out, Summary{
			Key:          key,
			Domain:       m.Domain,
			Version:      m.Version,
			Language:     m.Language,
			Sources:      slices.Clone(m.Sources),
			Completeness: m.Completeness,
			RecentURLs:   tail(c.logs[key], summaryURLs),
		})
	}
	c.mu.RUnlock()

	for i := range out {
		st, err := c.stats.Stats(ctx, out[i].Key)
		if err != nil {
			return nil, fmt.Errorf("pack: stats for %s: %w", out[i].Key, err)
		}
		out[i].Vectors = st.Vectors
	}
	return out, nil
}

// Close stops accepting enrichment work and waits for queued runs to
// finish or ctx to end.
func (c *Cache) Close(ctx context.Context) error {
	if err := c.pool.close(ctx); err != nil {
		return fmt.Errorf("pack: draining enrichment: %w", err)
	}
	return nil
}
