// Package output implements the output formatter (workflow §4.11): turn
// the enriched context list into the public Context shape, truncate to
// topK, and assemble the aggregate Metrics returned alongside it. The
// truncate-by-score loop is a budget-trim pass in the style of
// composer.Composer.buildEnrichment, with the token budget and prompt-text
// assembly dropped (generation mode is reserved but unimplemented) and a
// hard topK count in their place.
package output

import (
	"github.com/corvidai/retrieval-core/internal/workflow"
)

// Format truncates enriched to topK and converts it to the public Context
// shape, preserving order (enriched must already be sorted desc by
// BestScore).
func Format(enriched []workflow.EnrichedContext, topK int) []workflow.Context {
	if topK > 0 && len(enriched) > topK {
		enriched = enriched[:topK]
	}
	out := make([]workflow.Context, len(enriched))
	for i, e := range enriched {
		out[i] = workflow.Context{
			ParentChunkID: e.ParentChunkID,
			DocumentID:    e.DocumentID,
			Content:       e.Content,
			Tokens:        e.Tokens,
			Metadata:      e.Metadata,
			Score:         e.BestScore,
		}
	}
	return out
}
