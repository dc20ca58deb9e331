package reranker

import "context"

// RankReranker keeps recall order by scoring each passage with its reversed
// position. It makes no network calls and is meant for local development.
type RankReranker struct{}

// Score implements rag.Reranker.
func (RankReranker) Score(_ context.Context, _ string, texts []string) ([]float32, error) {
	scores := make([]float32, len(texts))
	for i := range texts {
		scores[i] = float32(len(texts) - i)
	}
	return scores, nil
}
