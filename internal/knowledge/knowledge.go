// Package knowledge manages vector-based retrieval of support content used to
// ground free-form chat replies. It provides an in-process cosine-similarity
// index and a PostgreSQL + pgvector backend behind a common interface.
package knowledge

import "context"

// Document is a piece of support content held by an index.
type Document struct {
	ID      string `json:"id"`
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// SearchResult is a document matched against a query, with its similarity
// score in [0, 1].
type SearchResult struct {
	Content string  `json:"content"`
	URL     string  `json:"url,omitempty"`
	Title   string  `json:"title,omitempty"`
	Score   float64 `json:"score"`
}

// Embedder produces embedding vectors for text. Satisfied by the genai
// client.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// Index stores documents and serves similarity queries over them.
type Index interface {
	// Add embeds and stores a document. A document with an empty ID is
	// assigned one.
	Add(ctx context.Context, doc Document) (string, error)

	// Search returns up to limit documents most similar to the query,
	// highest score first.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}
