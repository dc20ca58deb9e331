package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ErrInvalidSetting is wrapped by every Settings.Validate failure.
var ErrInvalidSetting = errors.New("config: invalid setting")

// Index backends.
const (
	IndexMemory = "memory"
	IndexQdrant = "qdrant"
)

// JournalDisabled turns the ingest journal off when used as JournalDB.
const JournalDisabled = "disabled"

// Settings are the typed runtime settings, read from DOCPACK_* variables.
type Settings struct {
	SyncPages          int     `envconfig:"SYNC_PAGES" default:"15"`
	EnrichPages        int     `envconfig:"ENRICH_PAGES" default:"30"`
	SyncCompleteness   float64 `envconfig:"SYNC_COMPLETENESS" default:"0.3"`
	EnrichCompleteness float64 `envconfig:"ENRICH_COMPLETENESS" default:"0.6"`
	TTLDays            int     `envconfig:"TTL_DAYS" default:"14"`
	TextCap            int     `envconfig:"TEXT_CAP" default:"5000"`
	SourceConcurrency  int     `envconfig:"SOURCE_CONCURRENCY" default:"4"`
	Workers            int     `envconfig:"WORKERS" default:"2"`
	QueueSize          int     `envconfig:"QUEUE_SIZE" default:"64"`

	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"20s"`
	UserAgent      string        `envconfig:"USER_AGENT" default:"DocPack/1"`
	FetchHostRate  float64       `envconfig:"FETCH_HOST_RATE" default:"5"`
	FetchHostBurst int           `envconfig:"FETCH_HOST_BURST" default:"5"`

	DefaultK  int `envconfig:"DEFAULT_K" default:"8"`
	Citations int `envconfig:"CITATIONS" default:"4"`

	IndexBackend string `envconfig:"INDEX_BACKEND" default:"memory"`
	JournalDB    string `envconfig:"JOURNAL_DB"`

	Addr      string  `envconfig:"ADDR" default:"127.0.0.1:8080"`
	APIKey    string  `envconfig:"API_KEY"`
	RateLimit float64 `envconfig:"RATE_LIMIT" default:"2"`
	RateBurst int     `envconfig:"RATE_BURST" default:"10"`
}

// LoadSettings decodes Settings from the environment and validates them.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("docpack", &s); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings no pack could be built with.
func (s *Settings) Validate() error {
	switch {
	case s.SyncPages < 1:
		return fmt.Errorf("%w: DOCPACK_SYNC_PAGES must be >= 1, got %d", ErrInvalidSetting, s.SyncPages)
	case s.EnrichPages < 1:
		return fmt.Errorf("%w: DOCPACK_ENRICH_PAGES must be >= 1, got %d", ErrInvalidSetting, s.EnrichPages)
	case s.SyncCompleteness < 0 || s.SyncCompleteness > 1:
		return fmt.Errorf("%w: DOCPACK_SYNC_COMPLETENESS must be in [0,1], got %g", ErrInvalidSetting, s.SyncCompleteness)
	case s.EnrichCompleteness < 0 || s.EnrichCompleteness > 1:
		return fmt.Errorf("%w: DOCPACK_ENRICH_COMPLETENESS must be in [0,1], got %g", ErrInvalidSetting, s.EnrichCompleteness)
	case s.TextCap < 1:
		return fmt.Errorf("%w: DOCPACK_TEXT_CAP must be >= 1, got %d", ErrInvalidSetting, s.TextCap)
	case s.SourceConcurrency < 1:
		return fmt.Errorf("%w: DOCPACK_SOURCE_CONCURRENCY must be >= 1, got %d", ErrInvalidSetting, s.SourceConcurrency)
	case s.Workers < 1:
		return fmt.Errorf("%w: DOCPACK_WORKERS must be >= 1, got %d", ErrInvalidSetting, s.Workers)
	case s.QueueSize < 1:
		return fmt.Errorf("%w: DOCPACK_QUEUE_SIZE must be >= 1, got %d", ErrInvalidSetting, s.QueueSize)
	case s.FetchTimeout <= 0:
		return fmt.Errorf("%w: DOCPACK_FETCH_TIMEOUT must be positive, got %s", ErrInvalidSetting, s.FetchTimeout)
	case s.DefaultK < 1:
		return fmt.Errorf("%w: DOCPACK_DEFAULT_K must be >= 1, got %d", ErrInvalidSetting, s.DefaultK)
	case s.Citations < 0:
		return fmt.Errorf("%w: DOCPACK_CITATIONS must be >= 0, got %d", ErrInvalidSetting, s.Citations)
	case s.IndexBackend != IndexMemory && s.IndexBackend != IndexQdrant:
		return fmt.Errorf("%w: DOCPACK_INDEX_BACKEND must be memory or qdrant, got %q", ErrInvalidSetting, s.IndexBackend)
	case s.RateLimit < 0:
		return fmt.Errorf("%w: DOCPACK_RATE_LIMIT must be >= 0, got %g", ErrInvalidSetting, s.RateLimit)
	}
	return nil
}
