package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// embeddedDocument pairs a document with its embedding vector.
type embeddedDocument struct {
	doc       Document
	embedding []float64
}

// MemoryIndex is an in-process similarity index ranking documents by cosine
// similarity against the query embedding. Suitable for development and small
// content sets; the pgvector index covers larger deployments.
type MemoryIndex struct {
	embedder Embedder
	mu       sync.RWMutex
	docs     []embeddedDocument
}

// NewMemoryIndex creates an empty in-memory index using the given embedder.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder}
}

// Add embeds and stores a document.
func (ix *MemoryIndex) Add(ctx context.Context, doc Document) (string, error) {
	if doc.Content == "" {
		return "", fmt.Errorf("document content cannot be empty")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	embedding, err := ix.embedder.GenerateEmbedding(ctx, doc.Content)
	if err != nil {
		slog.Error("MemoryIndex Add embedding failed", "error", err, "id", doc.ID)
		return "", fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs = append(ix.docs, embeddedDocument{doc: doc, embedding: embedding})
	slog.Debug("MemoryIndex document added", "id", doc.ID, "title", doc.Title, "total", len(ix.docs))
	return doc.ID, nil
}

// Search returns up to limit documents most similar to the query.
func (ix *MemoryIndex) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	queryEmbedding, err := ix.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		slog.Error("MemoryIndex Search embedding failed", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]SearchResult, 0, len(ix.docs))
	for _, ed := range ix.docs {
		if len(ed.embedding) != len(queryEmbedding) {
			slog.Warn("MemoryIndex skipping document with mismatched embedding dimensions", "id", ed.doc.ID, "doc_dims", len(ed.embedding), "query_dims", len(queryEmbedding))
			continue
		}
		results = append(results, SearchResult{
			Content: ed.doc.Content,
			URL:     ed.doc.URL,
			Title:   ed.doc.Title,
			Score:   cosineSimilarity(queryEmbedding, ed.embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	slog.Debug("MemoryIndex search completed", "results", len(results))
	return results, nil
}

// Len returns the number of stored documents.
func (ix *MemoryIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// cosineSimilarity computes the cosine of the angle between two vectors of
// equal length. Zero-magnitude vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
