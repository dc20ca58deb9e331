// Package fetcher retrieves documentation pages over HTTP and extracts their
// readable text, title and outbound links.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docpack-go/internal/logging"
	"github.com/54b3r/docpack-go/internal/rag"
)

// ErrStatus is returned when the server answers with a non-2xx status.
var ErrStatus = errors.New("fetcher: unexpected status")

const (
	// DefaultTimeout bounds a single fetch, including redirects and body read.
	DefaultTimeout = 20 * time.Second
	// DefaultUserAgent identifies the crawler to documentation hosts.
	DefaultUserAgent = "DocPack/1"
	// DefaultMaxBodyBytes caps how much of a response body is parsed.
	DefaultMaxBodyBytes = 4 << 20
	// DefaultHostRate is the sustained request rate allowed per host.
	DefaultHostRate = 5
	// DefaultHostBurst is the burst size allowed per host.
	DefaultHostBurst = 5
)

// Config holds the configuration for an HTTPFetcher.
type Config struct {
	// Timeout is the per-request deadline. Defaults to 20s if zero.
	Timeout time.Duration

	// UserAgent is sent with every request. Defaults to "DocPack/1".
	UserAgent string

	// MaxBodyBytes limits the bytes read from a response body.
	// Defaults to 4 MiB if zero.
	MaxBodyBytes int64

	// HostRate is the per-host request rate in requests per second.
	// Zero selects DefaultHostRate; a negative value disables throttling.
	HostRate float64

	// HostBurst is the per-host token-bucket burst. Defaults to 5 if zero.
	HostBurst int

	// Client overrides the HTTP client. Mostly useful in tests.
	Client *http.Client
}

// HTTPFetcher implements rag.Fetcher over net/http. It follows redirects and
// throttles requests per host so one large source cannot hammer its server.
type HTTPFetcher struct {
	// cfg holds the resolved configuration.
	cfg *Config

	// client performs the requests.
	client *http.Client

	// mu guards limiters.
	mu sync.Mutex

	// limiters maps a host to its token bucket.
	limiters map[string]*rate.Limiter
}

// New constructs an HTTPFetcher, filling in defaults for zero config fields.
func New(cfg *Config) *HTTPFetcher {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.HostRate == 0 {
		cfg.HostRate = DefaultHostRate
	}
	if cfg.HostBurst <= 0 {
		cfg.HostBurst = DefaultHostBurst
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{cfg: cfg, client: client, limiters: make(map[string]*rate.Limiter)}
}

// Fetch implements rag.Fetcher. The returned page's URL is the final URL
// after redirects; links are resolved against it.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*rag.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	if err := f.wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("fetcher: throttled %s: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, text/plain;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %d for %s", ErrStatus, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetcher: reading body of %s: %w", rawURL, err)
	}

	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	logging.FromContext(ctx).Debug("fetched page",
		slog.String("url", final),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)),
	)

	if !isHTML(resp.Header.Get("Content-Type")) {
		return &rag.Page{URL: final, Title: final, Text: strings.TrimSpace(string(body))}, nil
	}
	return Extract(final, body)
}

// wait blocks until the token bucket for host admits one request.
func (f *HTTPFetcher) wait(ctx context.Context, host string) error {
	if f.cfg.HostRate < 0 {
		return nil
	}
	f.mu.Lock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.HostRate), f.cfg.HostBurst)
		f.limiters[host] = l
	}
	f.mu.Unlock()
	return l.Wait(ctx)
}

// isHTML reports whether a Content-Type header denotes markup. A missing
// header is treated as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}
