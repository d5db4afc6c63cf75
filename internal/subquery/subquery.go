// Package subquery implements the sub-query executor (workflow §4.10): for
// each decomposed sub-query, embed it and run one dense probe against the
// vector store, tagged workflow.SourceSubquery, using the same concurrency
// policy as the hybrid retriever. It generalizes internal/retrieval's
// single-probe-per-query shape from "N heterogeneous probes of one query"
// to "one probe per one of N independent sub-queries" and is invoked by
// the orchestrator at most once per request.
package subquery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/retrieval"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

// Executor runs decomposed sub-queries through an embedder and a hybrid
// retriever's single-probe machinery.
type Executor struct {
	embedder  ports.EmbeddingPort
	retriever *retrieval.Retriever
	log       *slog.Logger
}

// New creates an Executor. log may be nil, in which case slog's default
// logger is used.
func New(embedder ports.EmbeddingPort, retriever *retrieval.Retriever, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{embedder: embedder, retriever: retriever, log: log}
}

// Run embeds each sub-query and probes the vector store once per
// sub-query, tagged workflow.SourceSubquery, honoring filter and params.
// A sub-query whose embedding fails is skipped and logged; Run only
// returns an error if every sub-query fails to produce any hits (mirroring
// the hybrid retriever's all-probes-failed rule, since the sub-query
// executor is itself a degraded-if-partial retrieval step).
//
// startProbeID seeds each probe's ID, counting up from there; the caller
// must pass a value that does not collide with any probe ID already used
// earlier in the request, since fusion groups hits by probe ID rather than
// by source and several sub-query probes share workflow.SourceSubquery.
func (e *Executor) Run(ctx context.Context, subQueries []string, p retrieval.Params, startProbeID int) ([]workflow.ScoredHit, error) {
	if len(subQueries) == 0 {
		return nil, nil
	}

	probes := make([]retrieval.Probe, 0, len(subQueries))
	for _, q := range subQueries {
		emb, err := e.embedder.Embed(ctx, q)
		if err != nil {
			e.log.Warn("subquery: embedding failed, skipping", "query", q, "error", err)
			continue
		}
		probes = append(probes, retrieval.Probe{ID: startProbeID + len(probes), Source: workflow.SourceSubquery, Dense: emb})
	}
	if len(probes) == 0 {
		return nil, fmt.Errorf("subquery: no sub-query embeddings succeeded")
	}

	return e.retriever.Retrieve(ctx, probes, p)
}
