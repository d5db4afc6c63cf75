package reranking

import (
	"context"
	"errors"
	"testing"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

type fakeRerankerPort struct {
	rerankFn func(ctx context.Context, query string, texts []string) ([]ports.RerankScore, error)
	calls    int
}

func (f *fakeRerankerPort) Rerank(ctx context.Context, query string, texts []string) ([]ports.RerankScore, error) {
	f.calls++
	return f.rerankFn(ctx, query, texts)
}

func reverseScores(texts []string) []ports.RerankScore {
	out := make([]ports.RerankScore, len(texts))
	for i := range texts {
		out[i] = ports.RerankScore{Index: len(texts) - 1 - i, Score: float32(i)}
	}
	return out
}

func TestRerankDropsEmptyContentAndSorts(t *testing.T) {
	client := &fakeRerankerPort{rerankFn: func(_ context.Context, _ string, texts []string) ([]ports.RerankScore, error) {
		return reverseScores(texts), nil
	}}
	r := New(client, nil)

	fused := []workflow.FusedResult{
		{ChildChunkID: "c1", Content: "a"},
		{ChildChunkID: "c2", Content: ""},
		{ChildChunkID: "c3", Content: "b"},
	}
	out, fallback := r.Rerank(context.Background(), "query", fused, 100)
	if fallback {
		t.Fatal("fallback triggered unexpectedly")
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (empty content dropped)", len(out))
	}
	if out[0].RerankScore < out[1].RerankScore {
		t.Errorf("out not sorted desc by RerankScore: %+v", out)
	}
}

func TestRerankBatches(t *testing.T) {
	var batchSizes []int
	client := &fakeRerankerPort{rerankFn: func(_ context.Context, _ string, texts []string) ([]ports.RerankScore, error) {
		batchSizes = append(batchSizes, len(texts))
		return reverseScores(texts), nil
	}}
	r := New(client, nil)

	fused := make([]workflow.FusedResult, 5)
	for i := range fused {
		fused[i] = workflow.FusedResult{ChildChunkID: string(rune('a' + i)), Content: "x"}
	}
	out, fallback := r.Rerank(context.Background(), "q", fused, 2)
	if fallback {
		t.Fatal("fallback triggered unexpectedly")
	}
	if len(out) != 5 {
		t.Fatalf("len(out) = %d, want 5", len(out))
	}
	if len(batchSizes) != 3 {
		t.Fatalf("batch count = %d, want 3 (2,2,1)", len(batchSizes))
	}
}

func TestRerankFallsBackOnError(t *testing.T) {
	client := &fakeRerankerPort{rerankFn: func(_ context.Context, _ string, _ []string) ([]ports.RerankScore, error) {
		return nil, errors.New("reranker down")
	}}
	r := New(client, nil)

	fused := []workflow.FusedResult{
		{ChildChunkID: "c1", Content: "a", RRFScore: 0.5},
		{ChildChunkID: "c2", Content: "b", RRFScore: 0.3},
	}
	out, fallback := r.Rerank(context.Background(), "q", fused, 100)
	if !fallback {
		t.Fatal("expected fallback to be triggered")
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].ChildChunkID != "c1" || out[0].RerankScore != 0.5 {
		t.Errorf("out[0] = %+v, want RRF-ordered fallback", out[0])
	}
}

func TestRerankEmptyCandidates(t *testing.T) {
	client := &fakeRerankerPort{rerankFn: func(context.Context, string, []string) ([]ports.RerankScore, error) {
		t.Fatal("Rerank should not be called with no candidates")
		return nil, nil
	}}
	r := New(client, nil)
	out, fallback := r.Rerank(context.Background(), "q", nil, 100)
	if out != nil || fallback {
		t.Fatalf("Rerank(nil) = %v, %v; want nil, false", out, fallback)
	}
}
