package pack

import (
	"slices"
	"time"
)

// Status reports whether a pack has documents to retrieve from.
type Status string

const (
	// StatusReady means the pack exists and holds, or has held, documents.
	StatusReady Status = "ready"
	// StatusBuilding means the first ingest produced nothing yet.
	StatusBuilding Status = "building"
)

// Manifest is the cache's record of one pack.
type Manifest struct {
	// Key is the pack key.
	Key string `json:"key"`
	// Domain is the topic domain, empty when the topic had none.
	Domain string `json:"domain,omitempty"`
	// Version is the topic version, "latest" when the topic had none.
	Version string `json:"version"`
	// Language is the pack language.
	Language string `json:"language"`
	// Sources is the source list as supplied, unsorted.
	Sources []string `json:"sources"`
	// Subtopics are the keywords the pack was built with.
	Subtopics []string `json:"subtopics,omitempty"`
	// Completeness estimates coverage in [0,1]. It never decreases.
	Completeness float64 `json:"completeness"`
	// TTLDays is how long the pack is considered fresh.
	TTLDays int `json:"ttlDays"`
	// CreatedAt is when the manifest was created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when completeness last changed.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Expired reports whether the manifest is older than its TTL at now.
// Nothing evicts expired packs; callers may use this to decide on a refresh.
func (m Manifest) Expired(now time.Time) bool {
	if m.TTLDays <= 0 {
		return false
	}
	return now.After(m.CreatedAt.AddDate(0, 0, m.TTLDays))
}

// clone returns a deep copy safe to hand to callers.
func (m *Manifest) clone() Manifest {
	c := *m
	c.Sources = slices.Clone(m.Sources)
	c.Subtopics = slices.Clone(m.Subtopics)
	return c
}

// Summary is the listing view of a pack.
type Summary struct {
	Key          string   `json:"key"`
	Domain       string   `json:"domain,omitempty"`
	Version      string   `json:"version"`
	Language     string   `json:"language"`
	Sources      []string `json:"sources"`
	Completeness float64  `json:"completeness"`
	Vectors      int      `json:"vectorCount"`
	RecentURLs   []string `json:"recentUrls"`
}
