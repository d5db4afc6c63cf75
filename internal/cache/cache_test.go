package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

type fakeVectorStore struct {
	denseFn       func(ctx context.Context, collection string, vector []float32, filter ports.Filter, k int) ([]ports.Scored, error)
	sparseFn      func(ctx context.Context, collection string, sparse ports.SparseVector, filter ports.Filter, k int) ([]ports.Scored, error)
	cacheSearchFn func(ctx context.Context, vector []float32, k int) ([]ports.CacheHit, error)
	cacheUpsertFn func(ctx context.Context, point ports.CachePoint) error
}

func (f *fakeVectorStore) DenseSearch(ctx context.Context, collection string, vector []float32, filter ports.Filter, k int) ([]ports.Scored, error) {
	return f.denseFn(ctx, collection, vector, filter, k)
}
func (f *fakeVectorStore) SparseSearch(ctx context.Context, collection string, sparse ports.SparseVector, filter ports.Filter, k int) ([]ports.Scored, error) {
	return f.sparseFn(ctx, collection, sparse, filter, k)
}
func (f *fakeVectorStore) CacheSearch(ctx context.Context, vector []float32, k int) ([]ports.CacheHit, error) {
	return f.cacheSearchFn(ctx, vector, k)
}
func (f *fakeVectorStore) CacheUpsert(ctx context.Context, point ports.CachePoint) error {
	return f.cacheUpsertFn(ctx, point)
}

type fakeACL struct {
	visibleFn func(ctx context.Context, userID, role string) (map[string]struct{}, error)
	typesFn   func(ctx context.Context, documentIDs []string) (map[string]ports.AccessType, error)
}

func (f *fakeACL) VisibleDocumentIds(ctx context.Context, userID, role string) (map[string]struct{}, error) {
	return f.visibleFn(ctx, userID, role)
}
func (f *fakeACL) DocumentAccessTypes(ctx context.Context, documentIDs []string) (map[string]ports.AccessType, error) {
	return f.typesFn(ctx, documentIDs)
}

func TestLookupMissBelowThreshold(t *testing.T) {
	store := &fakeVectorStore{
		cacheSearchFn: func(ctx context.Context, vector []float32, k int) ([]ports.CacheHit, error) {
			return []ports.CacheHit{{Point: ports.CachePoint{ID: "p1"}, Similarity: 0.8}}, nil
		},
	}
	c := New(store, nil, nil, nil)

	entry, err := c.Lookup(context.Background(), []float32{0.1, 0.2}, 0.95)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry != nil {
		t.Fatalf("Lookup() = %+v, want nil miss", entry)
	}
}

func TestLookupHitAboveThreshold(t *testing.T) {
	want := workflow.CacheEntry{QueryText: "hello", Contexts: []workflow.Context{{DocumentID: "d1"}}}
	payload, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	store := &fakeVectorStore{
		cacheSearchFn: func(ctx context.Context, vector []float32, k int) ([]ports.CacheHit, error) {
			return []ports.CacheHit{{Point: ports.CachePoint{ID: "p1", Payload: payload}, Similarity: 0.97}}, nil
		},
	}
	c := New(store, nil, nil, nil)

	entry, err := c.Lookup(context.Background(), []float32{0.1, 0.2}, 0.95)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry == nil || entry.QueryText != want.QueryText {
		t.Fatalf("Lookup() = %+v, want %+v", entry, want)
	}
}

func TestStoreSuppressedByRestrictedDocument(t *testing.T) {
	var upserted bool
	store := &fakeVectorStore{
		cacheUpsertFn: func(ctx context.Context, point ports.CachePoint) error {
			upserted = true
			return nil
		},
	}
	acl := &fakeACL{
		typesFn: func(ctx context.Context, documentIDs []string) (map[string]ports.AccessType, error) {
			return map[string]ports.AccessType{"d1": ports.AccessPublic, "d2": ports.AccessRestricted}, nil
		},
	}
	c := New(store, acl, nil, nil)

	wrote, err := c.Store(context.Background(), "cache-1", "q", []float32{0.1}, []workflow.Context{
		{DocumentID: "d1"},
		{DocumentID: "d2"},
	})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if wrote {
		t.Fatalf("Store() wrote = true, want false (restricted doc must suppress write)")
	}
	if upserted {
		t.Fatalf("CacheUpsert was called despite a restricted document")
	}
}

func TestStoreSucceedsWhenAllPublic(t *testing.T) {
	var gotPoint ports.CachePoint
	store := &fakeVectorStore{
		cacheUpsertFn: func(ctx context.Context, point ports.CachePoint) error {
			gotPoint = point
			return nil
		},
	}
	acl := &fakeACL{
		typesFn: func(ctx context.Context, documentIDs []string) (map[string]ports.AccessType, error) {
			out := make(map[string]ports.AccessType, len(documentIDs))
			for _, id := range documentIDs {
				out[id] = ports.AccessPublic
			}
			return out, nil
		},
	}
	c := New(store, acl, nil, nil)

	wrote, err := c.Store(context.Background(), "cache-1", "q", []float32{0.1}, []workflow.Context{
		{DocumentID: "d1"},
		{DocumentID: "d2"},
	})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !wrote {
		t.Fatalf("Store() wrote = false, want true")
	}
	if gotPoint.ID != "cache-1" {
		t.Fatalf("CacheUpsert point.ID = %q, want %q", gotPoint.ID, "cache-1")
	}
}

func TestStoreNoContextsIsNoop(t *testing.T) {
	c := New(&fakeVectorStore{}, &fakeACL{}, nil, nil)
	wrote, err := c.Store(context.Background(), "cache-1", "q", []float32{0.1}, nil)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if wrote {
		t.Fatalf("Store() wrote = true, want false for empty contexts")
	}
}
