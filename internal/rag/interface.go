// Package rag defines the collaborator contracts shared by the document pack
// engine: the page fetcher, the text embedder and the relevance reranker.
// Concrete implementations (HTTP fetcher, Ollama/OpenAI/Gemini embedders,
// cross-encoder and LLM rerankers) satisfy these interfaces so the core
// packages never depend on a specific backend.
package rag

import (
	"context"
)

// Document is a unit of fetched and indexed reference material.
type Document struct {
	// Title is the page title, or the URL when the page has none.
	Title string `json:"title"`

	// URL is the absolute address the document was fetched from.
	URL string `json:"url"`

	// Text is the extracted plain text, already capped to the ingest limit.
	Text string `json:"text"`
}

// Page is the result of fetching and extracting a single URL.
type Page struct {
	// URL is the final URL after redirects.
	URL string

	// Title is the extracted <title>, or URL when absent.
	Title string

	// Text is the extracted plain text of the page body.
	Text string

	// Links holds absolute http(s) URLs discovered on the page, in document
	// order, fragments stripped. Duplicates are preserved.
	Links []string
}

// Fetcher retrieves a URL and extracts its text, title and links.
// Implementations must be safe to call from multiple goroutines.
type Fetcher interface {
	// Fetch returns the extracted page or an error. Callers treat any error
	// as "no page".
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker scores candidate passages against a query.
// Implementations must be safe to call from multiple goroutines.
type Reranker interface {
	// Score returns one relevance score per candidate, parallel to texts.
	// Higher is more relevant. Scores are only comparable within one call.
	Score(ctx context.Context, query string, texts []string) ([]float32, error)
}
