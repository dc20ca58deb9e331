package reranker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ── HTTP ────────────────────────────────────────────────────────────────────

func newRerankServer(t *testing.T, status int, reply string, got chan<- rerankRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if got != nil {
			got <- req
		}
		if r.Header.Get("Authorization") != "" && r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func Test_HTTPReranker_MapsResultsToInputOrder(t *testing.T) {
	t.Parallel()
	got := make(chan rerankRequest, 1)
	srv := newRerankServer(t, http.StatusOK,
		`{"results":[{"index":2,"relevance_score":0.9},{"index":0,"relevance_score":0.5},{"index":1,"relevance_score":0.1}]}`, got)

	r, err := NewHTTPReranker(HTTPConfig{URL: srv.URL, Model: "bge-reranker", APIKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	scores, err := r.Score(context.Background(), "pods", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := []float32{0.5, 0.1, 0.9}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}

	req := <-got
	if req.Model != "bge-reranker" || req.Query != "pods" || req.TopN != 3 || len(req.Documents) != 3 {
		t.Errorf("request = %+v", req)
	}
}

func Test_HTTPReranker_BareArrayResponse(t *testing.T) {
	t.Parallel()
	srv := newRerankServer(t, http.StatusOK, `[{"index":1,"score":2.5},{"index":0,"score":-1}]`, nil)

	r, _ := NewHTTPReranker(HTTPConfig{URL: srv.URL})
	scores, err := r.Score(context.Background(), "q", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores[0] != -1 || scores[1] != 2.5 {
		t.Errorf("scores = %v, want [-1 2.5]", scores)
	}
}

func Test_HTTPReranker_Errors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		status  int
		reply   string
		wantErr string
		missing bool
	}{
		{"missing index", http.StatusOK, `{"results":[{"index":0,"relevance_score":1}]}`, "document 1", true},
		{"out of range", http.StatusOK, `{"results":[{"index":5,"relevance_score":1}]}`, "out of range", false},
		{"no score", http.StatusOK, `{"results":[{"index":0},{"index":1,"relevance_score":1}]}`, "has no score", true},
		{"status", http.StatusServiceUnavailable, `overloaded`, "status 503: overloaded", false},
		{"bad json", http.StatusOK, `{"results":`, "decode", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newRerankServer(t, tc.status, tc.reply, nil)
			r, _ := NewHTTPReranker(HTTPConfig{URL: srv.URL})
			_, err := r.Score(context.Background(), "q", []string{"a", "b"})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
			if tc.missing && !errors.Is(err, ErrMissingScore) {
				t.Errorf("err = %v, want ErrMissingScore", err)
			}
		})
	}
}

func Test_HTTPReranker_EmptyInput(t *testing.T) {
	t.Parallel()
	r, _ := NewHTTPReranker(HTTPConfig{URL: "http://127.0.0.1:1/unused"})
	scores, err := r.Score(context.Background(), "q", nil)
	if err != nil || len(scores) != 0 {
		t.Fatalf("Score(nil) = %v, %v; want empty, nil", scores, err)
	}
}

func Test_NewHTTPReranker_RequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := NewHTTPReranker(HTTPConfig{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

// ── LLM ─────────────────────────────────────────────────────────────────────

// scriptedModel replies with the next scripted message and records prompts.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, input)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return schema.AssistantMessage("[]", nil), nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return schema.AssistantMessage(reply, nil), nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func Test_LLMReranker_BatchesAndConcatenates(t *testing.T) {
	t.Parallel()
	m := &scriptedModel{replies: []string{"[1, 9]", "Here you go:\n```json\n[4]\n```"}}
	r, err := NewLLMReranker(m, LLMConfig{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}

	scores, err := r.Score(context.Background(), "ingress", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := []float32{1, 9, 4}
	if len(scores) != len(want) {
		t.Fatalf("scores = %v, want %v", scores, want)
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
	if len(m.prompts) != 2 {
		t.Fatalf("prompts = %d, want 2", len(m.prompts))
	}
	user := m.prompts[1][1].Content
	if !strings.Contains(user, "Query: ingress") || !strings.Contains(user, "[0] c") {
		t.Errorf("second prompt = %q", user)
	}
}

func Test_LLMReranker_WrongCount(t *testing.T) {
	t.Parallel()
	m := &scriptedModel{replies: []string{"[1]"}}
	r, _ := NewLLMReranker(m, LLMConfig{})
	_, err := r.Score(context.Background(), "q", []string{"a", "b"})
	if !errors.Is(err, ErrMissingScore) {
		t.Fatalf("err = %v, want ErrMissingScore", err)
	}
}

func Test_LLMReranker_GenerateError(t *testing.T) {
	t.Parallel()
	m := &scriptedModel{err: errors.New("rate limited")}
	r, _ := NewLLMReranker(m, LLMConfig{})
	_, err := r.Score(context.Background(), "q", []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v, want wrapped generate error", err)
	}
}

func Test_LLMReranker_TruncatesToBudget(t *testing.T) {
	t.Parallel()
	m := &scriptedModel{replies: []string{"[0, 0]"}}
	r, _ := NewLLMReranker(m, LLMConfig{MaxContextTokens: 400})

	long := strings.Repeat("kubelet ", 2000)
	if _, err := r.Score(context.Background(), "q", []string{long, long}); err != nil {
		t.Fatalf("Score: %v", err)
	}
	user := m.prompts[0][1].Content
	if len(user) > 400*4 {
		t.Errorf("prompt is %d bytes, want at most %d", len(user), 400*4)
	}
}

func Test_ParseScores(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		content string
		n       int
		wantErr bool
	}{
		{"plain", "[1,2,3]", 3, false},
		{"fenced", "```json\n[0.5, 7]\n```", 2, false},
		{"no array", "I think passage 1 is best", 1, true},
		{"not numbers", `["high"]`, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseScores(tc.content, tc.n)
			if (err != nil) != tc.wantErr {
				t.Errorf("parseScores(%q) err = %v, wantErr %v", tc.content, err, tc.wantErr)
			}
		})
	}
}

func Test_NewLLMReranker_RequiresModel(t *testing.T) {
	t.Parallel()
	if _, err := NewLLMReranker(nil, LLMConfig{}); err == nil {
		t.Fatal("expected error for nil model")
	}
}

// ── Rank / factory ──────────────────────────────────────────────────────────

func Test_RankReranker_PreservesOrder(t *testing.T) {
	t.Parallel()
	scores, _ := RankReranker{}.Score(context.Background(), "q", []string{"a", "b", "c"})
	if !(scores[0] > scores[1] && scores[1] > scores[2]) {
		t.Errorf("scores = %v, want strictly decreasing", scores)
	}
}

func Test_NewFromEnv(t *testing.T) {
	t.Setenv("RERANK_PROVIDER", "none")
	r, err := NewFromEnv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(RankReranker); !ok {
		t.Errorf("got %T, want RankReranker", r)
	}

	t.Setenv("RERANK_PROVIDER", "")
	t.Setenv("RERANK_URL", "http://reranker:8080/rerank")
	r, err = NewFromEnv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h, ok := r.(*HTTPReranker); !ok || h.cfg.URL != "http://reranker:8080/rerank" {
		t.Errorf("got %#v, want HTTPReranker for RERANK_URL", r)
	}

	t.Setenv("RERANK_PROVIDER", "cohere")
	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func Test_NewFromEnv_LLMInvalidProvider(t *testing.T) {
	t.Setenv("RERANK_PROVIDER", "llm")
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewFromEnv(context.Background()); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("err = %v, want missing OPENAI_API_KEY", err)
	}
}
