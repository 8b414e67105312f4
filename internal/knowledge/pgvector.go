package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Pool sizing and embedding layout for the pgvector-backed index.
const (
	// DefaultEmbeddingDims matches the text-embedding-3-small output size.
	DefaultEmbeddingDims = 1536
	pgvectorMaxConns     = 10
	pgvectorPingTimeout  = 5 * time.Second
)

// pgvectorSchema creates the documents table and the cosine-distance index.
// The vector dimension is substituted at setup time.
const pgvectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS knowledge_documents (
	id UUID PRIMARY KEY,
	url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS knowledge_documents_embedding_idx
	ON knowledge_documents USING hnsw (embedding vector_cosine_ops);
`

// PGVectorIndex is a similarity index backed by PostgreSQL with the pgvector
// extension. Queries rank by cosine distance on the embedding column.
type PGVectorIndex struct {
	pool     *pgxpool.Pool
	embedder Embedder
	dims     int
}

// PGVectorOption configures a PGVectorIndex.
type PGVectorOption func(*PGVectorIndex)

// WithEmbeddingDims overrides the embedding dimension of the vector column.
func WithEmbeddingDims(dims int) PGVectorOption {
	return func(ix *PGVectorIndex) { ix.dims = dims }
}

// NewPGVectorIndex connects to PostgreSQL, registers pgvector types on every
// pooled connection, and ensures the documents table exists.
func NewPGVectorIndex(ctx context.Context, dsn string, embedder Embedder, opts ...PGVectorOption) (*PGVectorIndex, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN not set")
	}

	ix := &PGVectorIndex{embedder: embedder, dims: DefaultEmbeddingDims}
	for _, opt := range opts {
		opt(ix)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolCfg.MaxConns = pgvectorMaxConns
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pgvectorPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		slog.Error("PGVectorIndex ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(pgvectorSchema, ix.dims)); err != nil {
		pool.Close()
		slog.Error("PGVectorIndex schema setup failed", "error", err)
		return nil, fmt.Errorf("failed to create knowledge schema: %w", err)
	}

	ix.pool = pool
	slog.Info("PGVectorIndex ready", "dims", ix.dims)
	return ix, nil
}

// Add embeds and stores a document.
func (ix *PGVectorIndex) Add(ctx context.Context, doc Document) (string, error) {
	if doc.Content == "" {
		return "", fmt.Errorf("document content cannot be empty")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	embedding, err := ix.embedder.GenerateEmbedding(ctx, doc.Content)
	if err != nil {
		slog.Error("PGVectorIndex Add embedding failed", "error", err, "id", doc.ID)
		return "", fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
	}
	if len(embedding) != ix.dims {
		return "", fmt.Errorf("embedding has %d dimensions, index expects %d", len(embedding), ix.dims)
	}

	_, err = ix.pool.Exec(ctx, `
		INSERT INTO knowledge_documents (id, url, title, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url, title = EXCLUDED.title,
			content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
		doc.ID, doc.URL, doc.Title, doc.Content, pgvector.NewVector(toFloat32(embedding)))
	if err != nil {
		slog.Error("PGVectorIndex Add insert failed", "error", err, "id", doc.ID)
		return "", fmt.Errorf("failed to store document %s: %w", doc.ID, err)
	}
	slog.Debug("PGVectorIndex document stored", "id", doc.ID, "title", doc.Title)
	return doc.ID, nil
}

// Search returns up to limit documents most similar to the query.
func (ix *PGVectorIndex) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	embedding, err := ix.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		slog.Error("PGVectorIndex Search embedding failed", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := ix.pool.Query(ctx, `
		SELECT content, url, title, 1 - (embedding <=> $1) AS score
		FROM knowledge_documents
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(toFloat32(embedding)), limit)
	if err != nil {
		slog.Error("PGVectorIndex Search query failed", "error", err)
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Content, &r.URL, &r.Title, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document rows: %w", err)
	}
	slog.Debug("PGVectorIndex search completed", "results", len(results))
	return results, nil
}

// Close releases the connection pool.
func (ix *PGVectorIndex) Close() {
	ix.pool.Close()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
