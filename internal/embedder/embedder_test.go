package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/54b3r/docpack-go/internal/index"
	"github.com/54b3r/docpack-go/internal/rag/ragtest"
)

func Test_OllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(len(req.Input[i])), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "m", BatchSize: 2, Client: srv.Client()})
	got, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 3 || got[0][0] != 1 || got[2][0] != 3 {
		t.Errorf("embeddings = %v", got)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("requests = %d, want 2 batches", n)
	}
}

func Test_OllamaEmbedder_ErrorBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}).Embed(context.Background(), []string{"x"})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("want model not found error, got %v", err)
	}
}

func Test_OllamaEmbedder_Ping(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/version" {
			_, _ = io.WriteString(w, `{"version":"0.5.0"}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL})
	if err := e.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if e.Name() != "embedder" {
		t.Errorf("Name = %q", e.Name())
	}
}

func Test_OpenAIEmbedder_OutOfOrderData(t *testing.T) {
	t.Parallel()
	seen := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- [2]string{r.Header.Get("Authorization"), r.URL.Path}
		_, _ = io.WriteString(w, `{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk", Model: "m"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Errorf("embeddings = %v", got)
	}
	if got := <-seen; got[0] != "Bearer sk" || got[1] != "/embeddings" {
		t.Errorf("auth=%q path=%q", got[0], got[1])
	}
}

func Test_OpenAIEmbedder_Azure(t *testing.T) {
	t.Parallel()
	seen := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- [2]string{r.Header.Get("api-key"), r.URL.String()}
		_, _ = io.WriteString(w, `{"data":[{"index":0,"embedding":[1]}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/openai", APIKey: "az", Model: "emb", Azure: true, APIVersion: "2025-04-01-preview"})
	if _, err := e.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	got := <-seen
	if got[0] != "az" {
		t.Errorf("api-key = %q", got[0])
	}
	if got[1] != "/openai/deployments/emb/embeddings?api-version=2025-04-01-preview" {
		t.Errorf("url = %q", got[1])
	}
}

func Test_OpenAIEmbedder_Errors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "bad key"},
		{"html error", http.StatusBadGateway, `<html>bad gateway</html>`, "HTTP 502"},
		{"short data", http.StatusOK, `{"data":[]}`, "expected 1 embeddings"},
		{"bad index", http.StatusOK, `{"data":[{"index":5,"embedding":[1]}]}`, "out of range"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()
			_, err := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL}).Embed(context.Background(), []string{"a"})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func Test_GeminiEmbedder_Embed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`)
	}))
	defer srv.Close()

	e, err := NewGeminiEmbedder(context.Background(), &GeminiConfig{APIKey: "k", Model: "text-embedding-004", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder: %v", err)
	}
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[1][1] != 0.4 {
		t.Errorf("embeddings = %v", got)
	}
}

func Test_GeminiEmbedder_RequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := NewGeminiEmbedder(context.Background(), &GeminiConfig{}); err == nil {
		t.Error("want error without API key")
	}
}

func Test_ProbeDimensions(t *testing.T) {
	t.Parallel()
	emb := &ragtest.HashEmbedder{Dim: 16}
	if err := ProbeDimensions(context.Background(), emb, 16); err != nil {
		t.Errorf("matching dimension: %v", err)
	}
	err := ProbeDimensions(context.Background(), emb, 32)
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("want ErrDimensionMismatch, got %v", err)
	}
	boom := errors.New("down")
	if err := ProbeDimensions(context.Background(), &ragtest.HashEmbedder{Err: boom}, 16); !errors.Is(err, boom) {
		t.Errorf("want probe error, got %v", err)
	}
}

// Tests below mutate the environment and must not run in parallel.

func Test_NewFromEnv_Backends(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	e, err := NewFromEnv(context.Background())
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, ok := e.(*OllamaEmbedder); !ok {
		t.Errorf("default backend = %T, want *OllamaEmbedder", e)
	}

	t.Setenv("EMBEDDING_PROVIDER", "openai")
	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Error("openai without key should fail")
	}
	t.Setenv("OPENAI_API_KEY", "sk")
	e, err = NewFromEnv(context.Background())
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, ok := e.(*OpenAIEmbedder); !ok {
		t.Errorf("openai backend = %T", e)
	}

	t.Setenv("EMBEDDING_PROVIDER", "bogus")
	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Error("unknown backend should fail")
	}
}

func Test_DefaultDimensions(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	if DefaultDimensions("ollama") != 768 || DefaultDimensions("openai") != 1536 || DefaultDimensions("gemini") != 768 {
		t.Error("unexpected default dimensions")
	}
	t.Setenv("EMBEDDING_DIMENSIONS", "1024")
	if DefaultDimensions("ollama") != 1024 {
		t.Error("EMBEDDING_DIMENSIONS must take precedence")
	}
}

func Test_Validate(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("AZURE_OPENAI_API_KEY", "")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	t.Setenv("EMBEDDING_ENDPOINT", "")

	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	if err := Validate(log); err != nil {
		t.Errorf("ollama: %v", err)
	}

	t.Setenv("EMBEDDING_PROVIDER", "azure")
	if err := Validate(log); err == nil {
		t.Error("azure without key should fail")
	}
	t.Setenv("AZURE_OPENAI_API_KEY", "k")
	if err := Validate(log); err == nil {
		t.Error("azure without endpoint should fail")
	}
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://x.openai.azure.com")
	if err := Validate(log); err != nil {
		t.Errorf("azure complete: %v", err)
	}
}

func Test_LooksLikeChatModel(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"llama3.1:8b":            true,
		"gpt-4o":                 true,
		"mxbai-embed-large":      false,
	}
	for model, want := range cases {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
