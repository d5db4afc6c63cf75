package metadatastore

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/corvidai/retrieval-core/internal/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := New(db)
	if err := s.Migrate(t.Context()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestUpsertAndFetchParents(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	want := ports.ParentChunk{
		ParentChunkID: "p1", DocumentID: "d1", Content: "body", Tokens: 42,
		Metadata: map[string]string{"title": "doc one"},
	}
	if err := s.UpsertParent(ctx, want); err != nil {
		t.Fatalf("UpsertParent: %v", err)
	}

	got, err := s.FetchParents(ctx, []string{"p1", "missing"})
	if err != nil {
		t.Fatalf("FetchParents: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].ParentChunkID != "p1" || got[0].Content != "body" || got[0].Tokens != 42 {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[0].Metadata["title"] != "doc one" {
		t.Errorf("metadata = %+v", got[0].Metadata)
	}
}

func TestFetchParentsEmptyInput(t *testing.T) {
	s := openTestStore(t)
	got, err := s.FetchParents(t.Context(), nil)
	if err != nil || got != nil {
		t.Fatalf("FetchParents(nil) = %v, %v; want nil, nil", got, err)
	}
}

func TestUpsertParentReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	p := ports.ParentChunk{ParentChunkID: "p1", DocumentID: "d1", Content: "v1", Tokens: 1}
	if err := s.UpsertParent(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Content = "v2"
	if err := s.UpsertParent(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := s.FetchParents(ctx, []string{"p1"})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Content != "v2" {
		t.Errorf("Content = %q, want v2", got[0].Content)
	}
}
