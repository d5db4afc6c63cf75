// Package retrieval runs the hybrid multi-probe search described in
// workflow §4.5: one dense probe per analyzer artifact, plus a sparse
// probe, fanned out concurrently against a ports.VectorStorePort and
// tagged by source for fusion. It generalizes
// retrieval.Embedder.EmbedBatch's bounded-concurrency fan-out from "N
// texts, one engine call each" to "N heterogeneous probes, one store call
// each".
package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

const chunkCollection = "context_chunks"

// Retriever fans probes out against a VectorStorePort.
type Retriever struct {
	store ports.VectorStorePort
	log   *slog.Logger
}

// New creates a Retriever. log may be nil, in which case slog's default
// logger is used.
func New(store ports.VectorStorePort, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{store: store, log: log}
}

// Probe is one dense or sparse query to run against the chunk collection.
// ID must be unique across every probe run for one request (including
// probes from earlier retry iterations and the sub-query executor) — it is
// what fusion groups hits by, since several probes can share one Source.
type Probe struct {
	ID     int
	Source workflow.Source
	Dense  []float32 // nil for a sparse probe
	Sparse *ports.SparseVector
}

// Params bounds one Retrieve call.
type Params struct {
	Filter              ports.Filter
	CandidatesPerProbe  int
	ProbeTimeout        time.Duration
	MaxConcurrentProbes int
}

// Retrieve runs every probe concurrently, bounded by
// Params.MaxConcurrentProbes, and returns the union of hits tagged by
// source. A probe's own failure or timeout is non-fatal; Retrieve only
// fails with workflow.KindRetrievalFailed when every probe failed.
//
// An empty, non-AllowAll filter short-circuits to zero results and zero
// store calls (§4.4's empty-whitelist rule).
func (r *Retriever) Retrieve(ctx context.Context, probes []Probe, p Params) ([]workflow.ScoredHit, error) {
	if len(probes) == 0 {
		return nil, workflow.NewError(workflow.KindRetrievalFailed, fmt.Errorf("no probes to run"))
	}
	if p.Filter.Empty() {
		return nil, nil
	}

	limit := p.MaxConcurrentProbes
	if limit <= 0 {
		limit = 4
	}

	results := make([][]workflow.ScoredHit, len(probes))
	failed := make([]bool, len(probes))

	g := new(errgroup.Group)
	g.SetLimit(limit)

	var mu sync.Mutex
	for i, probe := range probes {
		i, probe := i, probe
		g.Go(func() error {
			hits, err := r.runProbe(ctx, probe, p)
			if err != nil {
				mu.Lock()
				failed[i] = true
				mu.Unlock()
				r.log.Warn("retrieval: probe failed", "source", probe.Source, "error", err)
				return nil
			}
			results[i] = hits
			return nil
		})
	}
	_ = g.Wait() // goroutines above never return a non-nil error; this cannot fail.

	allFailed := true
	for _, f := range failed {
		if !f {
			allFailed = false
			break
		}
	}
	if allFailed {
		return nil, workflow.NewError(workflow.KindRetrievalFailed, fmt.Errorf("all %d probes failed", len(probes)))
	}

	var out []workflow.ScoredHit
	for _, hits := range results {
		out = append(out, hits...)
	}
	return out, nil
}

func (r *Retriever) runProbe(ctx context.Context, probe Probe, p Params) ([]workflow.ScoredHit, error) {
	timeout := p.ProbeTimeout
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	k := p.CandidatesPerProbe
	if k <= 0 {
		k = 50
	}

	var scored []ports.Scored
	var err error
	if probe.Sparse != nil {
		scored, err = r.store.SparseSearch(ctx, chunkCollection, *probe.Sparse, p.Filter, k)
	} else {
		scored, err = r.store.DenseSearch(ctx, chunkCollection, probe.Dense, p.Filter, k)
	}
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", probe.Source, err)
	}

	hits := make([]workflow.ScoredHit, len(scored))
	for i, s := range scored {
		score := s.Score
		hit := workflow.ScoredHit{
			ChildChunkID:  s.ChildChunkID,
			ParentChunkID: s.ParentChunkID,
			DocumentID:    s.DocumentID,
			Content:       s.Content,
			Source:        probe.Source,
			ProbeID:       probe.ID,
		}
		if probe.Sparse != nil {
			hit.SparseScore = &score
		} else {
			hit.DenseScore = &score
		}
		hits[i] = hit
	}
	return hits, nil
}

// BuildSparseVector tokenizes query into a term-frequency sparse vector,
// term position determined by an FNV-1a hash of the lowercased token. It is
// deliberately naive (whitespace split, no stemming) — the reference
// VectorStorePort adapter is a brute-force term-overlap scan, not a
// production BM25 index. Hashing the term directly (instead of assigning
// indices from a registered vocabulary) means the sparse probe needs no
// shared vocabulary table with the ingestion pipeline (an external
// collaborator, §1): ingestion hashes terms the same way when it writes
// each chunk's sparse vector, so the two sides agree without coordination.
func BuildSparseVector(query string) ports.SparseVector {
	counts := make(map[int]float32)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		counts[hashTerm(word)]++
	}
	sv := ports.SparseVector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float32, 0, len(counts)),
	}
	for idx, count := range counts {
		sv.Indices = append(sv.Indices, idx)
		sv.Values = append(sv.Values, count)
	}
	return sv
}

// hashTerm maps a token to a stable, non-negative sparse-dimension index.
func hashTerm(term string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() & 0x7fffffff)
}
