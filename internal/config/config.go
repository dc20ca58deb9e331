// Package config loads docpack configuration with a layered precedence:
// defaults → .env → YAML file → process environment. Every layer is applied
// as environment variables that are not already set, so the process
// environment always wins. Typed runtime settings are then decoded from the
// environment by [LoadSettings].
//
// YAML search order:
//  1. --config CLI flag (explicit path)
//  2. DOCPACK_CONFIG environment variable
//  3. ~/.docpack/config.yaml
//  4. ./docpack.yaml
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the YAML file layout. Keys mirror the env var names they set.
type Config struct {
	Packs     PacksConfig     `yaml:"packs"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Model     ModelConfig     `yaml:"model"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Server    ServerConfig    `yaml:"server"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// PacksConfig tunes pack building.
type PacksConfig struct {
	SyncPages          int     `yaml:"sync_pages"`
	EnrichPages        int     `yaml:"enrich_pages"`
	SyncCompleteness   float64 `yaml:"sync_completeness"`
	EnrichCompleteness float64 `yaml:"enrich_completeness"`
	TTLDays            int     `yaml:"ttl_days"`
	TextCap            int     `yaml:"text_cap"`
	SourceConcurrency  int     `yaml:"source_concurrency"`
	Workers            int     `yaml:"workers"`
	QueueSize          int     `yaml:"queue_size"`
}

// FetchConfig tunes the page fetcher.
type FetchConfig struct {
	Timeout   string  `yaml:"timeout"`
	UserAgent string  `yaml:"user_agent"`
	HostRate  float64 `yaml:"host_rate"`
	HostBurst int     `yaml:"host_burst"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	// Backend is memory or qdrant.
	Backend string `yaml:"backend"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

// RerankConfig holds reranker settings.
type RerankConfig struct {
	// Provider is http, llm or none.
	Provider string `yaml:"provider"`
	URL      string `yaml:"url"`
	Model    string `yaml:"model"`
	// APIKey is the rerank API key. Prefer env var RERANK_API_KEY.
	APIKey string `yaml:"api_key"`
}

// ModelConfig holds chat model settings for the LLM reranker.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	Ollama      struct {
		Host  string `yaml:"host"`
		Model string `yaml:"model"`
	} `yaml:"ollama"`
	OpenAI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
	Azure struct {
		APIKey     string `yaml:"api_key"`
		Endpoint   string `yaml:"endpoint"`
		Deployment string `yaml:"deployment"`
		APIVersion string `yaml:"api_version"`
	} `yaml:"azure"`
	Ark struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
		Region string `yaml:"region"`
	} `yaml:"ark"`
	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// APIKey is the Bearer token for the API. Prefer env var DOCPACK_API_KEY.
	APIKey    string  `yaml:"api_key"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// JournalConfig holds ingest journal settings.
type JournalConfig struct {
	// DBPath is the SQLite path. "disabled" turns the journal off.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML fields to the env vars they populate.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"DOCPACK_SYNC_PAGES", func(c *Config) string { return intStr(c.Packs.SyncPages) }},
	{"DOCPACK_ENRICH_PAGES", func(c *Config) string { return intStr(c.Packs.EnrichPages) }},
	{"DOCPACK_SYNC_COMPLETENESS", func(c *Config) string { return floatStr(c.Packs.SyncCompleteness) }},
	{"DOCPACK_ENRICH_COMPLETENESS", func(c *Config) string { return floatStr(c.Packs.EnrichCompleteness) }},
	{"DOCPACK_TTL_DAYS", func(c *Config) string { return intStr(c.Packs.TTLDays) }},
	{"DOCPACK_TEXT_CAP", func(c *Config) string { return intStr(c.Packs.TextCap) }},
	{"DOCPACK_SOURCE_CONCURRENCY", func(c *Config) string { return intStr(c.Packs.SourceConcurrency) }},
	{"DOCPACK_WORKERS", func(c *Config) string { return intStr(c.Packs.Workers) }},
	{"DOCPACK_QUEUE_SIZE", func(c *Config) string { return intStr(c.Packs.QueueSize) }},
	{"DOCPACK_FETCH_TIMEOUT", func(c *Config) string { return c.Fetch.Timeout }},
	{"DOCPACK_USER_AGENT", func(c *Config) string { return c.Fetch.UserAgent }},
	{"DOCPACK_FETCH_HOST_RATE", func(c *Config) string { return floatStr(c.Fetch.HostRate) }},
	{"DOCPACK_FETCH_HOST_BURST", func(c *Config) string { return intStr(c.Fetch.HostBurst) }},
	{"DOCPACK_INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"DOCPACK_ADDR", func(c *Config) string { return c.Server.Addr }},
	{"DOCPACK_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"DOCPACK_RATE_LIMIT", func(c *Config) string { return floatStr(c.Server.RateLimit) }},
	{"DOCPACK_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"DOCPACK_JOURNAL_DB", func(c *Config) string { return c.Journal.DBPath }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"RERANK_PROVIDER", func(c *Config) string { return c.Rerank.Provider }},
	{"RERANK_URL", func(c *Config) string { return c.Rerank.URL }},
	{"RERANK_MODEL", func(c *Config) string { return c.Rerank.Model }},
	{"RERANK_API_KEY", func(c *Config) string { return c.Rerank.APIKey }},
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return floatStr(float64(c.Model.Temperature)) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_REGION", func(c *Config) string { return c.Model.Ark.Region }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads ./.env into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML config file and applies its non-empty values as
// environment variables that are not already set. It returns the path that
// was loaded, or "" if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		v := m.value(&cfg)
		if v == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, v); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// resolveConfigPath returns the first config file path that exists. An
// explicit path that does not exist resolves to "".
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit
		}
		return ""
	}
	if p := os.Getenv("DOCPACK_CONFIG"); p != "" && fileExists(p) {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		if p := filepath.Join(home, ".docpack", "config.yaml"); fileExists(p) {
			return p
		}
	}
	if fileExists("docpack.yaml") {
		return "docpack.yaml"
	}
	return ""
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// intStr returns "" for zero so unset YAML ints are skipped.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr returns "" for zero so unset YAML floats are skipped.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(v, 'f', 4, 64), "0"), ".")
}

func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
