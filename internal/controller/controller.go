// Package controller implements the sufficiency scoring and retry/decompose/
// proceed decision described in workflow §4.9: a plain switch on the
// controller's decision in place of a framework conditional-edge graph.
package controller

import (
	"github.com/corvidai/retrieval-core/internal/workflow"
)

// Controller computes a SufficiencyResult over an enriched context set and
// decides the next control-flow step.
type Controller struct {
	cfg workflow.Config
}

// New creates a Controller bound to cfg's sufficiency and loop tunables.
func New(cfg workflow.Config) *Controller {
	return &Controller{cfg: cfg}
}

// Assess computes the composite sufficiency score for enriched against
// topK and returns the controller's decision for the current state of the
// loop.
//
//   highQualityCount = |{c : c.BestScore >= HighQuality}|
//   avgScore         = mean(c.BestScore)
//   minCoverage      = 1 if len(enriched) >= MinCoverage else 0
//   sufficiency      = 0.5*(highQualityCount/topK) + 0.3*avgScore + 0.2*minCoverage
//
// The first term's denominator is topK, not len(enriched) — this penalizes
// under-retrieval rather than rewarding a small but uniformly high-scoring
// set.
func (c *Controller) Assess(enriched []workflow.EnrichedContext, topK int, iteration int, decompositionAttempted bool, hasSubQueries bool) workflow.SufficiencyResult {
	result := c.score(enriched, topK)
	result.Decision = c.decide(result, iteration, decompositionAttempted, hasSubQueries)
	return result
}

func (c *Controller) score(enriched []workflow.EnrichedContext, topK int) workflow.SufficiencyResult {
	if topK <= 0 {
		topK = 1
	}

	var highQuality int
	var sum float64
	for _, e := range enriched {
		if float64(e.BestScore) >= c.cfg.SufficiencyHighQuality {
			highQuality++
		}
		sum += float64(e.BestScore)
	}

	var avg float64
	if len(enriched) > 0 {
		avg = sum / float64(len(enriched))
	}

	minCoverage := 0
	if len(enriched) >= c.cfg.SufficiencyMinCoverage {
		minCoverage = 1
	}

	score := 0.5*(float64(highQuality)/float64(topK)) + 0.3*avg + 0.2*float64(minCoverage)

	return workflow.SufficiencyResult{
		HighQualityCount: highQuality,
		AvgScore:         avg,
		MinCoverage:      minCoverage,
		Score:            score,
	}
}

// decide applies §4.9's decision tree. Retry is only offered while
// iteration < LoopMaxIterations; decomposition is only offered once, after
// retries are exhausted, and only when the analyzer actually produced
// sub-queries to run.
func (c *Controller) decide(result workflow.SufficiencyResult, iteration int, decompositionAttempted bool, hasSubQueries bool) workflow.Decision {
	if result.Score >= c.cfg.SufficiencyThreshold {
		return workflow.DecisionProceed
	}
	if iteration < c.cfg.LoopMaxIterations {
		return workflow.DecisionRetry
	}
	if !decompositionAttempted && hasSubQueries {
		return workflow.DecisionDecompose
	}
	return workflow.DecisionProceed
}

// NextRetryOptions computes the analyzer/retrieval tuning bump applied on
// each retry iteration (§4.9): candidatesPerProbe +25, HyDE temperature
// lowered, reformulation count +1 capped at 3.
func NextRetryOptions(candidatesPerProbe int, hydeTemperature float64, reformulationCount int) (newCandidatesPerProbe int, newHydeTemperature float64, newReformulationCount int) {
	newCandidatesPerProbe = candidatesPerProbe + 25
	newHydeTemperature = hydeTemperature * 0.7
	if newHydeTemperature < 0 {
		newHydeTemperature = 0
	}
	newReformulationCount = reformulationCount + 1
	if newReformulationCount > 3 {
		newReformulationCount = 3
	}
	return
}
