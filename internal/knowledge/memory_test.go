package knowledge

import (
	"context"
	"errors"
	"math"
	"testing"
)

// fakeEmbedder maps known texts to fixed vectors so similarity ranking is
// deterministic.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func TestMemoryIndexAddAssignsID(t *testing.T) {
	ix := NewMemoryIndex(&fakeEmbedder{})

	id, err := ix.Add(context.Background(), Document{Content: "shipping takes 3 days"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Error("expected generated id")
	}
	if ix.Len() != 1 {
		t.Errorf("expected 1 document, got %d", ix.Len())
	}
}

func TestMemoryIndexAddRejectsEmptyContent(t *testing.T) {
	ix := NewMemoryIndex(&fakeEmbedder{})
	if _, err := ix.Add(context.Background(), Document{}); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestMemoryIndexSearchRanksBySimilarity(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"returns policy":  {1, 0, 0},
		"shipping times":  {0, 1, 0},
		"refund question": {0.9, 0.1, 0},
	}}
	ix := NewMemoryIndex(embedder)
	ctx := context.Background()

	for _, content := range []string{"returns policy", "shipping times"} {
		if _, err := ix.Add(ctx, Document{Content: content, Title: content}); err != nil {
			t.Fatalf("adding %q: %v", content, err)
		}
	}

	results, err := ix.Search(ctx, "refund question", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "returns policy" {
		t.Errorf("expected returns policy ranked first, got %q", results[0].Content)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("expected descending scores, got %f then %f", results[0].Score, results[1].Score)
	}
}

func TestMemoryIndexSearchHonorsLimit(t *testing.T) {
	ix := NewMemoryIndex(&fakeEmbedder{})
	ctx := context.Background()
	for _, content := range []string{"a", "b", "c"} {
		if _, err := ix.Add(ctx, Document{Content: content}); err != nil {
			t.Fatalf("adding %q: %v", content, err)
		}
	}

	results, err := ix.Search(ctx, "query", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected limit of 2, got %d", len(results))
	}

	results, err = ix.Search(ctx, "query", 0)
	if err != nil {
		t.Fatalf("zero limit search: %v", err)
	}
	if results != nil {
		t.Errorf("expected no results for zero limit, got %d", len(results))
	}
}

func TestMemoryIndexSkipsMismatchedDimensions(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"short": {1, 0},
	}}
	ix := NewMemoryIndex(embedder)
	ctx := context.Background()

	if _, err := ix.Add(ctx, Document{Content: "short"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := ix.Add(ctx, Document{Content: "normal"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Query embeds to 3 dims; the 2-dim document is skipped, not fatal.
	results, err := ix.Search(ctx, "query", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected mismatched document skipped, got %d results", len(results))
	}
}

func TestMemoryIndexEmbedderErrorPropagates(t *testing.T) {
	ix := NewMemoryIndex(&fakeEmbedder{err: errors.New("quota exceeded")})
	if _, err := ix.Add(context.Background(), Document{Content: "x"}); err == nil {
		t.Error("expected add to surface embedder error")
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("cosineSimilarity = %f, want %f", got, tc.want)
			}
		})
	}
}
