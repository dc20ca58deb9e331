// Package budget provides token estimation and prompt trimming for the LLM
// reranker. Chat backends use different tokenizers, so this package uses a
// conservative character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input budget for one rerank
	// prompt. It fits 8k-context models with room for the score array.
	DefaultMaxContextTokens = 6000

	// minPassageTokens is the floor each passage keeps even when the fixed
	// part of the prompt leaves no room.
	minPassageTokens = 16
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of msgs, including a
// small per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Truncate cuts s to at most tokens estimated tokens without splitting a
// UTF-8 sequence.
func Truncate(s string, tokens int) string {
	limit := tokens * charsPerToken
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	i := 0
	for i < limit {
		_, size := utf8.DecodeRuneInString(s[i:])
		if i+size > limit {
			break
		}
		i += size
	}
	return s[:i]
}

// FitPassages shares what is left of maxTokens after fixedTokens evenly
// across passages and truncates each one to its share. The result is
// parallel to passages; passages that already fit are returned unchanged.
func FitPassages(passages []string, fixedTokens, maxTokens int) []string {
	out := make([]string, len(passages))
	if len(passages) == 0 {
		return out
	}
	share := (maxTokens - fixedTokens) / len(passages)
	if share < minPassageTokens {
		share = minPassageTokens
	}
	for i, p := range passages {
		out[i] = Truncate(p, share)
	}
	return out
}
