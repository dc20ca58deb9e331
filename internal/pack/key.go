package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

const (
	// DefaultDomain stands in for a topic without a domain.
	DefaultDomain = "generic"
	// DefaultVersion stands in for a topic without a version.
	DefaultVersion = "latest"
	// DefaultLanguage is used when no language is supplied.
	DefaultLanguage = "en"
)

// Topic describes what a pack covers. Only Domain, Version and Sources feed
// the pack key; Subtopics drive link filtering during ingestion.
type Topic struct {
	// Domain is the technology or product, e.g. "Kubernetes". Optional.
	Domain string `json:"domain,omitempty"`
	// Version of the documented product, e.g. "1.30". Optional.
	Version string `json:"version,omitempty"`
	// Subtopics are keywords used to select pages under each source.
	Subtopics []string `json:"subtopics,omitempty"`
	// Sources are absolute http(s) base URLs of documentation sites.
	Sources []string `json:"candidateSources,omitempty"`
	// Confidence is the caller's confidence in this topic, in [0,1].
	Confidence float64 `json:"confidence,omitempty"`
}

// Normalize trims the topic's fields, drops sources that are not http(s)
// URLs and blank subtopics, and clamps Confidence to [0,1].
func (t Topic) Normalize() Topic {
	out := Topic{
		Domain:     strings.TrimSpace(t.Domain),
		Version:    strings.TrimSpace(t.Version),
		Confidence: min(1, max(0, t.Confidence)),
	}
	for _, s := range t.Sources {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			out.Sources = append(out.Sources, s)
		}
	}
	for _, s := range t.Subtopics {
		if s = strings.TrimSpace(s); s != "" {
			out.Subtopics = append(out.Subtopics, s)
		}
	}
	return out
}

// Key derives the pack key for a topic and language: the hex SHA-256 of
// domain|version|language|sources, where missing domain and version take
// their defaults and sources are sorted and deduplicated. Reordering or
// repeating sources therefore yields the same key.
func Key(t Topic, language string) string {
	domain := t.Domain
	if domain == "" {
		domain = DefaultDomain
	}
	version := t.Version
	if version == "" {
		version = DefaultVersion
	}
	if language == "" {
		language = DefaultLanguage
	}

	sources := slices.Clone(t.Sources)
	slices.Sort(sources)
	sources = slices.Compact(sources)

	raw := domain + "|" + version + "|" + language + "|" + strings.Join(sources, ",")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
