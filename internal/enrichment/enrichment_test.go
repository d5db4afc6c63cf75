package enrichment

import (
	"context"
	"errors"
	"testing"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

type fakeMetadataStore struct {
	parents map[string]ports.ParentChunk
	err     error
}

func (f *fakeMetadataStore) FetchParents(_ context.Context, ids []string) ([]ports.ParentChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []ports.ParentChunk
	for _, id := range ids {
		if p, ok := f.parents[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestEnrichGroupsByParentAndComputesBestScore(t *testing.T) {
	store := &fakeMetadataStore{parents: map[string]ports.ParentChunk{
		"p1": {ParentChunkID: "p1", DocumentID: "d1", Content: "parent one", Tokens: 100},
		"p2": {ParentChunkID: "p2", DocumentID: "d2", Content: "parent two", Tokens: 50},
	}}
	e := New(store, nil)

	reranked := []workflow.RerankedResult{
		{FusedResult: workflow.FusedResult{ChildChunkID: "c1", ParentChunkID: "p1", DocumentID: "d1"}, RerankScore: 0.9},
		{FusedResult: workflow.FusedResult{ChildChunkID: "c2", ParentChunkID: "p1", DocumentID: "d1"}, RerankScore: 0.4},
		{FusedResult: workflow.FusedResult{ChildChunkID: "c3", ParentChunkID: "p2", DocumentID: "d2"}, RerankScore: 0.6},
	}

	out, err := e.Enrich(context.Background(), reranked)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].ParentChunkID != "p1" || out[0].BestScore != 0.9 {
		t.Errorf("out[0] = %+v, want p1 with bestScore 0.9", out[0])
	}
	if len(out[0].ChildHits) != 2 {
		t.Errorf("len(out[0].ChildHits) = %d, want 2", len(out[0].ChildHits))
	}
	if out[1].ParentChunkID != "p2" || out[1].BestScore != 0.6 {
		t.Errorf("out[1] = %+v, want p2 with bestScore 0.6", out[1])
	}
}

func TestEnrichSkipsMissingParents(t *testing.T) {
	store := &fakeMetadataStore{parents: map[string]ports.ParentChunk{
		"p1": {ParentChunkID: "p1", DocumentID: "d1", Content: "parent one"},
	}}
	e := New(store, nil)

	reranked := []workflow.RerankedResult{
		{FusedResult: workflow.FusedResult{ChildChunkID: "c1", ParentChunkID: "p1", DocumentID: "d1"}, RerankScore: 0.5},
		{FusedResult: workflow.FusedResult{ChildChunkID: "c2", ParentChunkID: "missing", DocumentID: "d2"}, RerankScore: 0.9},
	}

	out, err := e.Enrich(context.Background(), reranked)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].ParentChunkID != "p1" {
		t.Fatalf("out = %+v, want only p1", out)
	}
}

func TestEnrichPropagatesStoreError(t *testing.T) {
	store := &fakeMetadataStore{err: errors.New("db down")}
	e := New(store, nil)

	_, err := e.Enrich(context.Background(), []workflow.RerankedResult{
		{FusedResult: workflow.FusedResult{ChildChunkID: "c1", ParentChunkID: "p1"}, RerankScore: 0.5},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestEnrichEmptyInput(t *testing.T) {
	e := New(&fakeMetadataStore{}, nil)
	out, err := e.Enrich(context.Background(), nil)
	if err != nil || out != nil {
		t.Fatalf("Enrich(nil) = %v, %v; want nil, nil", out, err)
	}
}
