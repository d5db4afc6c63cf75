// Package reranking implements the cross-encoder reranker client (workflow
// §4.7): submit fused candidates to a ports.RerankerPort, batching large
// candidate sets, and falling back to RRF ordering on any error or
// timeout. It keeps LLMReranker's timeout-triggers-graceful-degradation
// idiom, retargeted from a per-item LLM prompt to a single batched HTTP
// cross-encoder call per chunk of candidates; the batches are submitted one
// after another, with no goroutines.
package reranking

import (
	"context"
	"log/slog"
	"sort"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

const defaultBatchSize = 100

// Reranker submits fused candidates to a RerankerPort and merges the
// scored results back into RerankedResult order.
type Reranker struct {
	client ports.RerankerPort
	log    *slog.Logger
}

// New creates a Reranker. log may be nil, in which case slog's default
// logger is used.
func New(client ports.RerankerPort, log *slog.Logger) *Reranker {
	if log == nil {
		log = slog.Default()
	}
	return &Reranker{client: client, log: log}
}

// Rerank drops empty-content candidates, then submits the remainder to the
// RerankerPort in batches of batchSize, merging and re-sorting the scored
// results across batches. On any batch's failure — including ctx deadline
// exceeded, which the caller is expected to have bound to
// workflow.Config.RerankTimeout — Rerank falls back to the fused RRF order
// for the full candidate set and reports fallbackTriggered=true; per P5 the
// caller must still treat the returned list as the canonical ordering.
func (r *Reranker) Rerank(ctx context.Context, query string, fused []workflow.FusedResult, batchSize int) (results []workflow.RerankedResult, fallbackTriggered bool) {
	candidates := make([]workflow.FusedResult, 0, len(fused))
	for _, f := range fused {
		if f.Content == "" {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return nil, false
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	out := make([]workflow.RerankedResult, 0, len(candidates))
	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		scores, err := r.client.Rerank(ctx, query, texts)
		if err != nil {
			r.log.Warn("reranking: batch failed, falling back to RRF order", "error", err, "batch_start", start)
			return fallbackRankedOrder(fused), true
		}
		if len(scores) != len(batch) {
			r.log.Warn("reranking: score count mismatch, falling back to RRF order", "want", len(batch), "got", len(scores))
			return fallbackRankedOrder(fused), true
		}

		valid := true
		for _, s := range scores {
			if s.Index < 0 || s.Index >= len(batch) {
				valid = false
				break
			}
		}
		if !valid {
			r.log.Warn("reranking: score index out of range, falling back to RRF order")
			return fallbackRankedOrder(fused), true
		}

		for _, s := range scores {
			out = append(out, workflow.RerankedResult{FusedResult: batch[s.Index], RerankScore: s.Score})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RerankScore > out[j].RerankScore })
	return out, false
}

// fallbackRankedOrder converts the fused list (already RRF-sorted) into
// RerankedResult order, using the RRF score in place of a rerank score, per
// §4.7's fallback rule.
func fallbackRankedOrder(fused []workflow.FusedResult) []workflow.RerankedResult {
	out := make([]workflow.RerankedResult, len(fused))
	for i, f := range fused {
		out[i] = workflow.RerankedResult{FusedResult: f, RerankScore: float32(f.RRFScore)}
	}
	return out
}
