// Package audit logs CLI invocations with their effective configuration.
// Secret values are recorded as "set" or "unset", never verbatim.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// entry is an environment variable included in the audit record.
type entry struct {
	key    string
	secret bool
}

// keys is the ordered list of env vars recorded for every command.
var keys = []entry{
	{"DOCPACK_INDEX_BACKEND", false},
	{"DOCPACK_SYNC_PAGES", false},
	{"DOCPACK_ENRICH_PAGES", false},
	{"DOCPACK_JOURNAL_DB", false},
	{"DOCPACK_API_KEY", true},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_DIMENSIONS", false},
	{"EMBEDDING_API_KEY", true},
	{"RERANK_PROVIDER", false},
	{"RERANK_URL", false},
	{"RERANK_MODEL", false},
	{"RERANK_API_KEY", true},
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"ARK_API_KEY", true},
	{"ARK_MODEL", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
}

// secretKeys indexes keys by name for SanitiseKey.
var secretKeys = func() map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, e := range keys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart records the start of a CLI command: its name, the config
// file it loaded and the sanitised environment.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(keys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, e := range keys {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for secret keys and the value, or
// "unset", for the rest. Any key ending in _API_KEY or _SECRET_KEY is secret.
func SanitiseKey(key, value string) string {
	if secretKeys[key] || strings.HasSuffix(key, "_API_KEY") || strings.HasSuffix(key, "_SECRET_KEY") {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath returns p with the home directory replaced by "~", or
// "none" when p is empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
