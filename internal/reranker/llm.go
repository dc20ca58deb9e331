package reranker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docpack-go/internal/budget"
)

// DefaultLLMBatchSize is the number of passages scored per chat request.
const DefaultLLMBatchSize = 10

const systemPrompt = `You are a relevance judge for technical documentation search.
For each numbered passage, rate how well it answers the query on a scale from 0 (unrelated) to 10 (directly answers it).
Reply with only a JSON array of numbers, one per passage, in passage order. No prose.`

// LLMConfig configures an LLMReranker.
type LLMConfig struct {
	// BatchSize is the number of passages per prompt. Defaults to DefaultLLMBatchSize.
	BatchSize int
	// MaxContextTokens bounds each prompt. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// LLMReranker asks a chat model to score passages. Scores from separate
// batches share the same 0-10 scale.
type LLMReranker struct {
	model     model.BaseChatModel
	batchSize int
	maxTokens int
}

// NewLLMReranker returns an LLMReranker that prompts m.
func NewLLMReranker(m model.BaseChatModel, cfg LLMConfig) (*LLMReranker, error) {
	if m == nil {
		return nil, errors.New("reranker: llm: chat model is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultLLMBatchSize
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &LLMReranker{model: m, batchSize: cfg.BatchSize, maxTokens: cfg.MaxContextTokens}, nil
}

// Score implements rag.Reranker.
func (r *LLMReranker) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	scores := make([]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.batchSize {
		end := min(start+r.batchSize, len(texts))
		batch, err := r.scoreBatch(ctx, query, texts[start:end])
		if err != nil {
			return nil, err
		}
		scores = append(scores, batch...)
	}
	return scores, nil
}

func (r *LLMReranker) scoreBatch(ctx context.Context, query string, texts []string) ([]float32, error) {
	msgs := buildPrompt(query, texts, r.maxTokens)
	out, err := r.model.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("reranker: llm: generate: %w", err)
	}
	scores, err := parseScores(out.Content, len(texts))
	if err != nil {
		return nil, fmt.Errorf("reranker: llm: %w", err)
	}
	return scores, nil
}

// buildPrompt renders the system and user messages, truncating passages so
// the prompt stays within maxTokens.
func buildPrompt(query string, texts []string, maxTokens int) []*schema.Message {
	sys := schema.SystemMessage(systemPrompt)
	header := "Query: " + query + "\n\nPassages:\n"
	// Each passage also carries a "[n] " marker and a blank line.
	fixed := budget.EstimateMessages([]*schema.Message{sys, schema.UserMessage(header)}) + 3*len(texts)
	fitted := budget.FitPassages(texts, fixed, maxTokens)

	var b strings.Builder
	b.WriteString(header)
	for i, t := range fitted {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i))
		b.WriteString("] ")
		b.WriteString(strings.ReplaceAll(t, "\n", " "))
		b.WriteString("\n\n")
	}
	return []*schema.Message{sys, schema.UserMessage(b.String())}
}

// parseScores extracts the JSON array from a model reply. Models sometimes
// wrap it in prose or a code fence, so the outermost brackets are used.
func parseScores(content string, n int) ([]float32, error) {
	open := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if open < 0 || end < open {
		return nil, fmt.Errorf("%w: no JSON array in reply %q", ErrMissingScore, content)
	}
	var scores []float32
	if err := json.Unmarshal([]byte(content[open:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if len(scores) != n {
		return nil, fmt.Errorf("%w: got %d scores for %d passages", ErrMissingScore, len(scores), n)
	}
	return scores, nil
}
