// Package enrichment implements the small-to-big enricher (workflow §4.8):
// group reranked child hits by parent chunk, fetch parent bodies in one
// batched call through the metadata store, and assemble the enriched
// context list. It follows pipeline.Enricher's batch-lookup,
// skip-missing-silently shape, generalized from a single-source context
// chunk list to reranked hits carrying per-source provenance.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

// Enricher groups reranked hits by ParentChunkID and fetches parent bodies
// through a MetadataStorePort.
type Enricher struct {
	store ports.MetadataStorePort
	log   *slog.Logger
}

// New creates an Enricher. log may be nil, in which case slog's default
// logger is used.
func New(store ports.MetadataStorePort, log *slog.Logger) *Enricher {
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{store: store, log: log}
}

// Enrich groups reranked by ParentChunkID, fetches the corresponding
// parent chunks in one batched call, and returns an EnrichedContext per
// parent found. Parents the metadata store does not return are skipped
// silently, along with every child hit that referenced them — a parent
// fetch failure is degraded, not fatal, and the caller is expected to
// record the error as a warning rather than abort the request.
func (e *Enricher) Enrich(ctx context.Context, reranked []workflow.RerankedResult) ([]workflow.EnrichedContext, error) {
	if len(reranked) == 0 {
		return nil, nil
	}

	order := make([]string, 0)
	groups := make(map[string][]workflow.RerankedResult)
	for _, r := range reranked {
		if _, ok := groups[r.ParentChunkID]; !ok {
			order = append(order, r.ParentChunkID)
		}
		groups[r.ParentChunkID] = append(groups[r.ParentChunkID], r)
	}

	parentIDs := make([]string, len(order))
	copy(parentIDs, order)

	parents, err := e.store.FetchParents(ctx, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching parent chunks: %w", err)
	}

	byID := make(map[string]ports.ParentChunk, len(parents))
	for _, p := range parents {
		byID[p.ParentChunkID] = p
	}

	out := make([]workflow.EnrichedContext, 0, len(byID))
	for _, parentID := range order {
		parent, ok := byID[parentID]
		if !ok {
			e.log.Debug("enrichment: parent not found, dropping group", "parent_chunk_id", parentID)
			continue
		}

		hits := groups[parentID]
		childHits := make([]workflow.ChildHit, len(hits))
		best := hits[0].RerankScore
		for i, h := range hits {
			childHits[i] = workflow.ChildHit{ChunkID: h.ChildChunkID, Content: h.Content, Score: h.RerankScore}
			if h.RerankScore > best {
				best = h.RerankScore
			}
		}

		out = append(out, workflow.EnrichedContext{
			ParentChunkID: parent.ParentChunkID,
			DocumentID:    parent.DocumentID,
			Content:       parent.Content,
			Tokens:        parent.Tokens,
			Metadata:      parent.Metadata,
			BestScore:     best,
			ChildHits:     childHits,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].BestScore > out[j].BestScore })
	return out, nil
}
