// Package ingest turns a pack's candidate documentation sources into indexed
// documents. For each source it fetches the base page, picks same-origin
// links whose URL mentions one of the pack's keywords, fetches those pages
// and upserts the extracted text into the pack's index as one batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docpack-go/internal/logging"
	"github.com/54b3r/docpack-go/internal/rag"
)

const (
	// DefaultTextCap is the maximum number of characters kept per page.
	DefaultTextCap = 5000
	// DefaultConcurrency is the number of sources ingested in parallel.
	DefaultConcurrency = 4
	// MaxResultURLs is the number of URLs reported by a single run.
	MaxResultURLs = 100
)

// Indexer stores documents under a pack key.
type Indexer interface {
	Upsert(ctx context.Context, key string, docs []rag.Document) error
}

// Config holds the configuration for an Engine.
type Config struct {
	// TextCap limits the characters of text kept per page.
	// Defaults to 5000 if zero.
	TextCap int

	// Concurrency bounds how many sources are processed at once.
	// Defaults to 4 if zero.
	Concurrency int
}

// Result summarises one ingestion run.
type Result struct {
	// Documents is the number of documents upserted.
	Documents int `json:"documents"`
	// URLs lists the pages that were ingested, deduplicated, at most 100.
	URLs []string `json:"urls"`
}

// Engine runs the fetch, filter, extract and upsert flow.
type Engine struct {
	// fetcher retrieves pages.
	fetcher rag.Fetcher

	// index receives each source's documents.
	index Indexer

	// cfg holds the resolved configuration.
	cfg *Config
}

// New constructs an Engine from the provided dependencies and config.
func New(fetcher rag.Fetcher, index Indexer, cfg *Config) (*Engine, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("ingest: fetcher must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingest: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.TextCap <= 0 {
		cfg.TextCap = DefaultTextCap
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Engine{fetcher: fetcher, index: index, cfg: cfg}, nil
}

// sourceResult is what a single source contributed to a run.
type sourceResult struct {
	docs int
	urls []string
	err  error
}

// Ingest processes sources concurrently and returns the number of documents
// upserted and the URLs they came from. Fetch failures skip the page (or the
// whole source when the base page fails) and are not reported as errors.
// Upsert failures are joined into the returned error; the Result still
// reflects every source that succeeded.
func (e *Engine) Ingest(ctx context.Context, key string, sources, keywords []string, maxPages int) (Result, error) {
	if len(sources) == 0 {
		return Result{URLs: []string{}}, nil
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	log := logging.FromContext(ctx).With(slog.String("pack_key", key))
	start := time.Now()

	results := make([]sourceResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = e.ingestSource(gctx, log, key, src, keywords, maxPages)
			return nil
		})
	}
	_ = g.Wait()

	var (
		res  Result
		errs []error
		all  []string
	)
	for _, r := range results {
		res.Documents += r.docs
		all = append(all, r.urls...)
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	res.URLs = lastUnique(all, MaxResultURLs)

	log.Info("ingest finished",
		slog.Int("sources", len(sources)),
		slog.Int("documents", res.Documents),
		slog.Int("errors", len(errs)),
		slog.Duration("duration", time.Since(start)),
	)
	return res, errors.Join(errs...)
}

// ingestSource handles one base URL.
func (e *Engine) ingestSource(ctx context.Context, log *slog.Logger, key, base string, keywords []string, maxPages int) sourceResult {
	log = log.With(slog.String("source", base))

	basePage, err := e.fetcher.Fetch(ctx, base)
	if err != nil {
		log.Warn("skipping source: base page fetch failed", slog.String("error", err.Error()))
		return sourceResult{}
	}

	origins := []string{origin(base)}
	if basePage.URL != "" && basePage.URL != base {
		origins = append(origins, origin(basePage.URL))
	}
	cands := Candidates(base, basePage.Links, origins, keywords, maxPages)

	var (
		docs []rag.Document
		urls []string
	)
	for _, u := range cands {
		if ctx.Err() != nil {
			break
		}
		page := basePage
		if u != base {
			page, err = e.fetcher.Fetch(ctx, u)
			if err != nil {
				log.Debug("skipping page", slog.String("url", u), slog.String("error", err.Error()))
				continue
			}
		}
		text := truncate(strings.TrimSpace(page.Text), e.cfg.TextCap)
		if text == "" {
			continue
		}
		title := strings.TrimSpace(page.Title)
		if title == "" {
			title = u
		}
		docs = append(docs, rag.Document{Title: title, URL: u, Text: text})
		urls = append(urls, u)
	}

	if len(docs) == 0 {
		return sourceResult{}
	}
	if err := e.index.Upsert(ctx, key, docs); err != nil {
		log.Error("upsert failed", slog.String("error", err.Error()))
		return sourceResult{err: fmt.Errorf("ingest: upsert %s: %w", base, err)}
	}
	log.Debug("source ingested", slog.Int("documents", len(docs)))
	return sourceResult{docs: len(docs), urls: urls}
}

// Candidates returns the pages to ingest for one source: base first, then
// every link that shares one of origins and whose lowercased URL contains a
// lowercased non-blank keyword, deduplicated in discovery order and capped at
// limit. With no usable keywords only base is returned.
func Candidates(base string, links, origins, keywords []string, limit int) []string {
	var kws []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}

	out := []string{base}
	seen := map[string]bool{base: true}
	for _, l := range links {
		if len(out) >= limit {
			break
		}
		if seen[l] || !sameOrigin(l, origins) || !containsAny(strings.ToLower(l), kws) {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out[:min(limit, len(out))]
}

// origin returns the lowercased scheme://host of raw, or "" if it cannot be
// parsed.
func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// sameOrigin reports whether link is an http(s) URL whose origin is one of
// origins.
func sameOrigin(link string, origins []string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return false
	}
	o := origin(link)
	for _, want := range origins {
		if want != "" && o == want {
			return true
		}
	}
	return false
}

// containsAny reports whether s contains any of subs.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// lastUnique deduplicates urls keeping first occurrences, then returns the
// last n of the result.
func lastUnique(urls []string, n int) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
