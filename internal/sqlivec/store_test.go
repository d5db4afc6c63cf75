package sqlivec

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/corvidai/retrieval-core/internal/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func vec(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestDenseSearchRespectsFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpsertChunks(ctx, []Chunk{
		{ChildChunkID: "c1", ParentChunkID: "p1", DocumentID: "d1", Content: "go concurrency", Embedding: vec(8, 0.1)},
		{ChildChunkID: "c2", ParentChunkID: "p1", DocumentID: "d2", Content: "go channels", Embedding: vec(8, 0.1)},
	})
	if err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	filter := ports.Filter{DocumentIDs: map[string]struct{}{"d1": {}}}
	hits, err := s.DenseSearch(ctx, "", vec(8, 0.1), filter, 10)
	if err != nil {
		t.Fatalf("DenseSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "d1" {
		t.Fatalf("DenseSearch() = %+v, want exactly d1's chunk", hits)
	}
}

func TestDenseSearchTopK(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chunks := make([]Chunk, 0, 5)
	for i := 0; i < 5; i++ {
		chunks = append(chunks, Chunk{
			ChildChunkID:  string(rune('a' + i)),
			ParentChunkID: "p1",
			DocumentID:    "d1",
			Content:       "chunk",
			Embedding:     vec(8, float32(i)*0.1),
		})
	}
	if err := s.UpsertChunks(ctx, chunks); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	hits, err := s.DenseSearch(ctx, "", vec(8, 0.4), ports.Filter{AllowAll: true}, 2)
	if err != nil {
		t.Fatalf("DenseSearch: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("DenseSearch() returned %d hits, want 2", len(hits))
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not sorted descending: %+v", hits)
	}
}

func TestSparseSearchScoresTermOverlap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpsertChunks(ctx, []Chunk{
		{ChildChunkID: "c1", ParentChunkID: "p1", DocumentID: "d1", Content: "about goroutines",
			Embedding: vec(4, 0.1), Sparse: ports.SparseVector{Indices: []int{1, 2}, Values: []float32{1, 1}}},
		{ChildChunkID: "c2", ParentChunkID: "p1", DocumentID: "d1", Content: "unrelated content",
			Embedding: vec(4, 0.2), Sparse: ports.SparseVector{Indices: []int{9}, Values: []float32{1}}},
	})
	if err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	hits, err := s.SparseSearch(ctx, "", ports.SparseVector{Indices: []int{1}, Values: []float32{1}}, ports.Filter{AllowAll: true}, 10)
	if err != nil {
		t.Fatalf("SparseSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].ChildChunkID != "c1" {
		t.Fatalf("SparseSearch() = %+v, want only c1 to match", hits)
	}
}

func TestCacheUpsertAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.CacheUpsert(ctx, ports.CachePoint{ID: "cache1", Embedding: vec(4, 0.5), QueryText: "q", Payload: []byte("{}"), CreatedAtMs: 123})
	if err != nil {
		t.Fatalf("CacheUpsert: %v", err)
	}

	hits, err := s.CacheSearch(ctx, vec(4, 0.5), 1)
	if err != nil {
		t.Fatalf("CacheSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].Point.ID != "cache1" {
		t.Fatalf("CacheSearch() = %+v, want cache1", hits)
	}
	if hits[0].Similarity < 0.99 {
		t.Errorf("Similarity = %v, want ~1.0 for identical vector", hits[0].Similarity)
	}
}

func TestCacheUpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CacheUpsert(ctx, ports.CachePoint{ID: "cache1", Embedding: vec(4, 0.5), QueryText: "first", Payload: []byte("1"), CreatedAtMs: 1}); err != nil {
		t.Fatalf("CacheUpsert: %v", err)
	}
	if err := s.CacheUpsert(ctx, ports.CachePoint{ID: "cache1", Embedding: vec(4, 0.5), QueryText: "second", Payload: []byte("2"), CreatedAtMs: 2}); err != nil {
		t.Fatalf("CacheUpsert: %v", err)
	}

	hits, err := s.CacheSearch(ctx, vec(4, 0.5), 1)
	if err != nil {
		t.Fatalf("CacheSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].Point.QueryText != "second" {
		t.Fatalf("CacheSearch() = %+v, want replaced entry with QueryText=second", hits)
	}
}
