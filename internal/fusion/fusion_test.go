package fusion

import (
	"fmt"
	"testing"

	"github.com/corvidai/retrieval-core/internal/workflow"
)

func hit(source workflow.Source, probeID int, childID string) workflow.ScoredHit {
	return workflow.ScoredHit{
		ChildChunkID:  childID,
		ParentChunkID: childID + "_p",
		DocumentID:    childID + "_d",
		Content:       "content " + childID,
		Source:        source,
		ProbeID:       probeID,
	}
}

func TestFuseDeduplicatesAndSumsRRF(t *testing.T) {
	hits := []workflow.ScoredHit{
		hit(workflow.SourceDense, 0, "c1"),
		hit(workflow.SourceDense, 0, "c2"),
		hit(workflow.SourceHyDE, 1, "c1"),
		hit(workflow.SourceHyDE, 1, "c3"),
	}

	out := Fuse(hits, 60)
	if len(out) != 3 {
		t.Fatalf("got %d fused results, want 3", len(out))
	}

	// c1 is rank 1 in both dense and hyde probes: score = 2/(60+1).
	want := 2.0 / 61.0
	if out[0].ChildChunkID != "c1" {
		t.Fatalf("top result = %s, want c1", out[0].ChildChunkID)
	}
	if diff := out[0].RRFScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("RRFScore = %v, want %v", out[0].RRFScore, want)
	}
}

func TestFuseRanksMultiProbeContributorAboveSingleProbeContributor(t *testing.T) {
	hits := []workflow.ScoredHit{
		hit(workflow.SourceDense, 0, "a"),
		hit(workflow.SourceHyDE, 1, "a"),
		hit(workflow.SourceDense, 0, "b"),
	}
	out := Fuse(hits, 60)
	if out[0].ChildChunkID != "a" {
		t.Fatalf("top result = %s, want a (contributes to both probes)", out[0].ChildChunkID)
	}
}

// TestFuseRanksWithinEachProbeIndependently guards against regressing to
// grouping hits by Source: three reformulation probes share one source, so
// a candidate ranked 1st in the second or third probe's own result list must
// still score 1/(k+1) for that probe, not 1/(k+51) as if it were ranked 51st
// in one concatenated reformulation list.
func TestFuseRanksWithinEachProbeIndependently(t *testing.T) {
	var hits []workflow.ScoredHit
	// Probe 0 (reformulation #1): 50 unrelated hits ranked ahead of "filler".
	for i := 0; i < 50; i++ {
		hits = append(hits, hit(workflow.SourceReformulation, 0, fmt.Sprintf("r0_%d", i)))
	}
	// Probe 1 (reformulation #2): "top" is ranked 1st in its own probe.
	hits = append(hits, hit(workflow.SourceReformulation, 1, "top"))

	out := Fuse(hits, 60)

	var top workflow.FusedResult
	for _, f := range out {
		if f.ChildChunkID == "top" {
			top = f
		}
	}
	want := 1.0 / 61.0 // rank 1 within probe 1, not rank 51 across a merged list
	if diff := top.RRFScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("RRFScore for a rank-1-in-its-own-probe candidate = %v, want %v", top.RRFScore, want)
	}
}

// TestFuseTieBreakCountsDistinctProbesNotSources verifies the first
// tie-break rule (§4.6) counts contributing probes, not contributing
// sources. "a" and "b" are constructed to have an identical RRFScore; "a"
// contributes from two reformulation probes (which share one Source) and
// must still outrank "b"'s single dense-probe contribution. The rank-1
// fillers score higher than both, so only the relative order of "a" and
// "b" is checked.
func TestFuseTieBreakCountsDistinctProbesNotSources(t *testing.T) {
	var hits []workflow.ScoredHit
	for i := 0; i < 99; i++ {
		hits = append(hits, hit(workflow.SourceReformulation, 0, fmt.Sprintf("p0_filler_%d", i)))
	}
	hits = append(hits, hit(workflow.SourceReformulation, 0, "a")) // rank 100 in probe 0
	for i := 0; i < 99; i++ {
		hits = append(hits, hit(workflow.SourceReformulation, 1, fmt.Sprintf("p1_filler_%d", i)))
	}
	hits = append(hits, hit(workflow.SourceReformulation, 1, "a")) // rank 100 in probe 1 too
	for i := 0; i < 19; i++ {
		hits = append(hits, hit(workflow.SourceDense, 2, fmt.Sprintf("p2_filler_%d", i)))
	}
	hits = append(hits, hit(workflow.SourceDense, 2, "b")) // rank 20 in probe 2, alone

	out := Fuse(hits, 60)
	var a, b workflow.FusedResult
	posA, posB := -1, -1
	for i, f := range out {
		switch f.ChildChunkID {
		case "a":
			a, posA = f, i
		case "b":
			b, posB = f, i
		}
	}
	if a.RRFScore != b.RRFScore {
		t.Fatalf("test setup invalid: RRFScore(a)=%v != RRFScore(b)=%v, want equal to isolate the tie-break", a.RRFScore, b.RRFScore)
	}
	if posA < 0 || posB < 0 || posA >= posB {
		t.Errorf("position of a = %d, b = %d, want a before b (2 contributing probes beats 1 on an RRF tie)", posA, posB)
	}
}

func TestBestRankTieBreakOnEqualScore(t *testing.T) {
	a := workflow.FusedResult{ChildChunkID: "a", PerSourceRank: map[workflow.Source]int{workflow.SourceDense: 3}}
	b := workflow.FusedResult{ChildChunkID: "b", PerSourceRank: map[workflow.Source]int{workflow.SourceHyDE: 1, workflow.SourceSparse: 5}}
	if bestRank(a) != 3 {
		t.Errorf("bestRank(a) = %d, want 3", bestRank(a))
	}
	if bestRank(b) != 1 {
		t.Errorf("bestRank(b) = %d, want 1", bestRank(b))
	}
}

func TestFuseTieBreakOnEqualScoreUsesChildChunkIDAscending(t *testing.T) {
	hits := []workflow.ScoredHit{
		hit(workflow.SourceDense, 0, "z1"),
		hit(workflow.SourceDense, 1, "a1"),
	}
	out := Fuse(hits, 60)
	if len(out) != 2 {
		t.Fatalf("got %d results, want 2", len(out))
	}
	if out[0].ChildChunkID != "a1" || out[1].ChildChunkID != "z1" {
		t.Fatalf("order = [%s, %s], want [a1, z1] (ascending id on tie)", out[0].ChildChunkID, out[1].ChildChunkID)
	}
}

func TestFuseIsDeterministic(t *testing.T) {
	hits := []workflow.ScoredHit{
		hit(workflow.SourceDense, 0, "c1"),
		hit(workflow.SourceHyDE, 1, "c2"),
		hit(workflow.SourceDense, 0, "c3"),
		hit(workflow.SourceReformulation, 2, "c1"),
	}

	first := Fuse(hits, 60)
	second := Fuse(hits, 60)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ChildChunkID != second[i].ChildChunkID || first[i].RRFScore != second[i].RRFScore {
			t.Fatalf("run mismatch at index %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestTruncateDefaultsAndCaps(t *testing.T) {
	fused := make([]workflow.FusedResult, 5)
	for i := range fused {
		fused[i] = workflow.FusedResult{ChildChunkID: string(rune('a' + i))}
	}

	if got := Truncate(fused, 3); len(got) != 3 {
		t.Errorf("Truncate(3) len = %d, want 3", len(got))
	}
	if got := Truncate(fused, 0); len(got) != 5 {
		t.Errorf("Truncate(0) len = %d, want 5 (no truncation needed under default)", len(got))
	}
	if got := Truncate(fused, 100); len(got) != 5 {
		t.Errorf("Truncate(100) len = %d, want 5", len(got))
	}
}
