// Package fusion implements Reciprocal Rank Fusion over the hybrid
// retriever's per-probe hit lists (workflow §4.6). Single-source retrieval
// never needs to merge ranked lists, so this package and its tie-break
// rules are new rather than adapted from existing code.
package fusion

import (
	"sort"

	"github.com/corvidai/retrieval-core/internal/workflow"
)

const defaultRRFK = 60

// Fuse deduplicates hits on ChildChunkID and scores each surviving
// candidate by Reciprocal Rank Fusion: score(c) = Σ 1/(k + rank_p(c)) over
// every probe p that contains c, where rank_p(c) is c's 1-based rank
// within that individual probe's own result list (each probe list must
// already be sorted by its native score descending). Grouping is by
// ScoredHit.ProbeID, not Source — several probes can share one source (up
// to three reformulation probes, one probe per decomposed sub-query), and
// each must be ranked independently or an also-ran from a later probe gets
// credited with a false rank-1 contribution.
//
// Ties are broken by: (1) number of contributing probes, higher wins; (2)
// best single-probe rank, lower wins; (3) ChildChunkID ascending.
func Fuse(hits []workflow.ScoredHit, k int) []workflow.FusedResult {
	if k <= 0 {
		k = defaultRRFK
	}

	byProbe := make(map[int][]workflow.ScoredHit)
	probeSource := make(map[int]workflow.Source)
	for _, h := range hits {
		byProbe[h.ProbeID] = append(byProbe[h.ProbeID], h)
		probeSource[h.ProbeID] = h.Source
	}

	type accum struct {
		result     workflow.FusedResult
		probesSeen map[int]struct{}
		rrf        float64
	}
	acc := make(map[string]*accum)

	for probeID, probeHits := range byProbe {
		source := probeSource[probeID]
		for rank, h := range probeHits {
			r := rank + 1 // 1-based, within this probe only
			a, ok := acc[h.ChildChunkID]
			if !ok {
				a = &accum{
					result: workflow.FusedResult{
						ChildChunkID:  h.ChildChunkID,
						ParentChunkID: h.ParentChunkID,
						DocumentID:    h.DocumentID,
						Content:       h.Content,
						PerSourceRank: make(map[workflow.Source]int),
					},
					probesSeen: make(map[int]struct{}),
				}
				acc[h.ChildChunkID] = a
			}
			a.probesSeen[probeID] = struct{}{}
			a.rrf += 1.0 / float64(k+r)
			if best, ok := a.result.PerSourceRank[source]; !ok || r < best {
				a.result.PerSourceRank[source] = r
			}
		}
	}

	out := make([]workflow.FusedResult, 0, len(acc))
	probeCount := make(map[string]int, len(acc))
	for id, a := range acc {
		a.result.RRFScore = a.rrf
		out = append(out, a.result)
		probeCount[id] = len(a.probesSeen)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if probeCount[a.ChildChunkID] != probeCount[b.ChildChunkID] {
			return probeCount[a.ChildChunkID] > probeCount[b.ChildChunkID]
		}
		aRank, bRank := bestRank(a), bestRank(b)
		if aRank != bRank {
			return aRank < bRank
		}
		return a.ChildChunkID < b.ChildChunkID
	})

	return out
}

func bestRank(f workflow.FusedResult) int {
	best := 0
	for _, r := range f.PerSourceRank {
		if best == 0 || r < best {
			best = r
		}
	}
	return best
}

// Truncate trims a fused list to topN (default defaultTopN when topN <= 0).
const defaultTopN = 50

func Truncate(fused []workflow.FusedResult, topN int) []workflow.FusedResult {
	if topN <= 0 {
		topN = defaultTopN
	}
	if len(fused) <= topN {
		return fused
	}
	return fused[:topN]
}
