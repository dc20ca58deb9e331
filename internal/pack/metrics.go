package pack

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest phases, used as metric labels and journal entries.
const (
	// PhaseSync is the bounded ingest run inside EnsurePack.
	PhaseSync = "sync"
	// PhaseEnrich is the larger background ingest.
	PhaseEnrich = "enrich"
)

// cacheMetrics holds the Prometheus collectors owned by a Cache.
type cacheMetrics struct {
	// packs is the number of manifests held.
	packs prometheus.Gauge

	// documentsTotal counts ingested documents by phase.
	documentsTotal *prometheus.CounterVec

	// ingestDurationSeconds records how long each ingest phase took.
	ingestDurationSeconds *prometheus.HistogramVec

	// enrichmentDroppedTotal counts enrichment runs rejected by a full queue.
	enrichmentDroppedTotal prometheus.Counter
}

// newCacheMetrics registers the cache metrics against reg.
func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	factory := promauto.With(reg)

	return &cacheMetrics{
		packs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docpack",
			Subsystem: "pack",
			Name:      "packs",
			Help:      "Number of pack manifests held by the cache.",
		}),

		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpack",
			Subsystem: "pack",
			Name:      "ingested_documents_total",
			Help:      "Documents upserted into pack indexes, partitioned by ingest phase.",
		}, []string{"phase"}),

		ingestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docpack",
			Subsystem: "pack",
			Name:      "ingest_duration_seconds",
			Help:      "Wall-clock duration of pack ingest runs, partitioned by phase.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"phase"}),

		enrichmentDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docpack",
			Subsystem: "pack",
			Name:      "enrichment_dropped_total",
			Help:      "Background enrichment runs dropped because the queue was full.",
		}),
	}
}
