package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/docpack-go/internal/config"
	"github.com/54b3r/docpack-go/internal/logging"
	"github.com/54b3r/docpack-go/internal/pack"
	"github.com/54b3r/docpack-go/internal/rag/ragtest"
	"github.com/54b3r/docpack-go/internal/version"
)

// isolate points every config lookup at an empty temp dir so the host's
// ~/.docpack and .env files cannot leak into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("DOCPACK_CONFIG", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Chdir(dir)
	return dir
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRoot_RegistersSubcommands(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	want := []string{"serve", "ensure", "search", "packs", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (got %v, err %v)", name, cmd, err)
		}
	}
}

func TestVersion_PrintsBuildInfo(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != version.String() {
		t.Errorf("output = %q, want %q", out, version.String())
	}
}

func TestRoot_LoadsYAMLConfig(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "docpack.yaml")
	writeFile(t, path, "logging:\n  level: error\n")
	t.Setenv("LOG_LEVEL", "")

	if _, err := run(t, "--config", path, "version"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "error" {
		t.Errorf("LOG_LEVEL = %q, want %q", got, "error")
	}
}

func TestRoot_LoadsDotEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "test.env")
	writeFile(t, path, "DOCPACK_DEFAULT_K=5\n")
	t.Setenv("DOCPACK_DEFAULT_K", "")
	_ = os.Unsetenv("DOCPACK_DEFAULT_K")

	if _, err := run(t, "--env-file", path, "version"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("DOCPACK_DEFAULT_K"); got != "5" {
		t.Errorf("DOCPACK_DEFAULT_K = %q, want %q", got, "5")
	}
}

func TestEnsure_RequiresHTTPSource(t *testing.T) {
	isolate(t)
	_, err := run(t, "ensure", "--source", "ftp://example.com/")
	if err == nil || !strings.Contains(err.Error(), "http(s) --source") {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	isolate(t)
	if _, err := run(t, "search", "--source", "https://example.com/"); err == nil {
		t.Fatal("expected an error without a query")
	}
}

func TestBuildStack_InvalidSettings(t *testing.T) {
	isolate(t)
	t.Setenv("DOCPACK_SYNC_PAGES", "0")

	_, err := buildStack(t.Context(), logging.Discard(), nil)
	if !errors.Is(err, config.ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
}

func TestTopicFlags_Normalizes(t *testing.T) {
	t.Parallel()
	tf := topicFlags{
		domain:    "  Go ",
		sources:   []string{" https://go.dev/doc/ ", "mailto:x@y.z"},
		subtopics: []string{"modules", " "},
	}
	got := tf.topic()
	if got.Domain != "Go" {
		t.Errorf("Domain = %q, want %q", got.Domain, "Go")
	}
	if len(got.Sources) != 1 || got.Sources[0] != "https://go.dev/doc/" {
		t.Errorf("Sources = %v", got.Sources)
	}
	if len(got.Subtopics) != 1 {
		t.Errorf("Subtopics = %v", got.Subtopics)
	}
}

// ---------------------------------------------------------------------------
// packs
// ---------------------------------------------------------------------------

func TestPacks_ListsServerPacks(t *testing.T) {
	isolate(t)
	t.Setenv("DOCPACK_API_KEY", "secret")

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/packs" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(listPacksResponse{Packs: []pack.Summary{{
			Key:          "0123456789abcdef0123",
			Domain:       "kubernetes",
			Version:      "1.30",
			Language:     "en",
			Completeness: 0.6,
			Vectors:      42,
		}}})
	}))
	defer srv.Close()

	out, err := run(t, "packs", "--server", srv.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	for _, want := range []string{"KEY", "0123456789ab", "kubernetes", "1.30", "0.60", "42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef0123") {
		t.Errorf("key should be shortened:\n%s", out)
	}
}

func TestPacks_ServerError(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := run(t, "packs", "--server", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected status 401 error, got %v", err)
	}
}

func TestPrintPacks_Empty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	printPacks(&buf, nil)
	if strings.TrimSpace(buf.String()) != "no packs" {
		t.Errorf("output = %q", buf.String())
	}
}

// ---------------------------------------------------------------------------
// in-process build
// ---------------------------------------------------------------------------

// newDocsSite serves a two-page documentation site.
func newDocsSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Docs Home</title></head><body>
<p>Welcome to the documentation index.</p>
<a href="/guide/modules">Modules</a>
<a href="/blog/news">News</a>
</body></html>`)
	})
	mux.HandleFunc("GET /guide/modules", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Modules Guide</title></head><body>
<p>Go modules vendor dependencies with go mod vendor.</p>
</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newEmbedServer serves the Ollama embed API with a bag-of-words embedder.
func newEmbedServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	emb := &ragtest.HashEmbedder{Dim: dim}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vecs, _ := emb.Embed(r.Context(), req.Input)
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
	})
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"version":"0.0.0"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// inProcessEnv configures a memory-backed stack against the fakes.
func inProcessEnv(t *testing.T) {
	t.Helper()
	isolate(t)
	embed := newEmbedServer(t, 16)
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_ENDPOINT", embed.URL)
	t.Setenv("EMBEDDING_DIMENSIONS", "16")
	t.Setenv("RERANK_PROVIDER", "none")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("DOCPACK_INDEX_BACKEND", "memory")
	t.Setenv("DOCPACK_JOURNAL_DB", "disabled")
}

func TestSearch_BuildsPackAndPrintsCitations(t *testing.T) {
	inProcessEnv(t)
	site := newDocsSite(t)

	out, err := run(t, "search", "--source", site.URL+"/", "--subtopic", "guide", "--k", "2", "vendor dependencies")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"(ready)", "context:", "Modules Guide", site.URL + "/guide/modules", "citations:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "/blog/news") {
		t.Errorf("link without a subtopic keyword was ingested:\n%s", out)
	}
}

func TestEnsure_WaitsForEnrichment(t *testing.T) {
	inProcessEnv(t)
	site := newDocsSite(t)

	out, err := run(t, "ensure", "--domain", "go", "--source", site.URL+"/", "--subtopic", "guide")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantKey := pack.Key(pack.Topic{Domain: "go", Sources: []string{site.URL + "/"}}, pack.DefaultLanguage)
	for _, want := range []string{"key:    " + wantKey, "status: ready", "completeness: 0.60"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEnsure_NoWait(t *testing.T) {
	inProcessEnv(t)
	site := newDocsSite(t)

	out, err := run(t, "ensure", "--source", site.URL+"/", "--no-wait")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "status: ready") {
		t.Errorf("output missing status:\n%s", out)
	}
	if strings.Contains(out, "completeness:") {
		t.Errorf("--no-wait should not report completeness:\n%s", out)
	}
}
