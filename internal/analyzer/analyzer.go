// Package analyzer produces the query analysis artifacts consumed by
// hybrid retrieval and the semantic cache (workflow §4.3). It generalizes
// a single "extract one structured Intent" step into up to five
// independent, individually-best-effort artifacts: a base embedding
// (required), an optional rewrite, an optional HyDE passage, zero or more
// reformulations, and zero or more eager sub-query decompositions.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

const (
	llmCallTimeout    = 2 * time.Second
	embedCallTimeout  = 500 * time.Millisecond
	maxReformulations = 3
	maxDecompositions = 5
)

const (
	systemPromptRewrite = `Rewrite the user's query to be clear and unambiguous, preserving its meaning. Output only the rewritten query, no commentary.`

	systemPromptHyDE = `Write a short passage (2-4 sentences) that would plausibly answer the user's query, as if excerpted from a relevant document. Output only the passage.`

	systemPromptReformulate = `Produce alternative phrasings of the user's query that preserve its meaning but vary vocabulary and structure, to widen recall during search. Output a single JSON object: {"paraphrases": ["...", ...]}. Produce at most %d paraphrases.`

	systemPromptDecompose = `If the user's query bundles more than one independent question, split it into atomic sub-questions that could each be answered on their own. If it is already atomic, return an empty list. Output a single JSON object: {"subQueries": ["...", ...]}.`
)

// Options tunes one Analyze call. The sufficiency controller raises
// ReformulationCount and lowers HydeTemperature on each retry (§4.9).
type Options struct {
	ReformulationCount int
	HydeTemperature    float64
}

// Analyzer wraps an EmbeddingPort and an LLMPort to build workflow.AnalysisResult
// values. It never itself decides whether a rewrite/HyDE/decomposition result
// gets used downstream; that is the orchestrator and controller's job.
type Analyzer struct {
	embedder ports.EmbeddingPort
	llm      ports.LLMPort
	log      *slog.Logger
}

// New creates an Analyzer. log may be nil, in which case slog's default
// logger is used.
func New(embedder ports.EmbeddingPort, llm ports.LLMPort, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{embedder: embedder, llm: llm, log: log}
}

// Analyze produces a workflow.AnalysisResult for query. The base embedding
// is required: its failure is fatal and returned as
// workflow.KindEmbeddingUnavailable. Every other artifact degrades to
// absent on failure and is logged at Warn, never returned as an error.
func (a *Analyzer) Analyze(ctx context.Context, query string, opts Options) (*workflow.AnalysisResult, error) {
	baseEmbedding, err := a.embed(ctx, query)
	if err != nil {
		return nil, workflow.NewError(workflow.KindEmbeddingUnavailable, fmt.Errorf("embedding base query: %w", err))
	}

	result := &workflow.AnalysisResult{QueryEmbedding: baseEmbedding}

	if needsRewrite(query) {
		if rewritten, rerr := a.complete(ctx, systemPromptRewrite, query, ports.CompletionOptions{Temperature: 0.2, MaxTokens: 200}); rerr != nil {
			a.log.Warn("analyzer: rewrite failed", "error", rerr)
		} else if rewritten != "" {
			result.RewrittenQuery = rewritten
			if emb, eerr := a.embed(ctx, rewritten); eerr != nil {
				a.log.Warn("analyzer: embedding rewritten query failed", "error", eerr)
			} else {
				result.RewrittenEmbedding = emb
			}
		}
	}

	if doc, herr := a.complete(ctx, systemPromptHyDE, query, ports.CompletionOptions{Temperature: opts.HydeTemperature, MaxTokens: 300}); herr != nil {
		a.log.Warn("analyzer: HyDE generation failed", "error", herr)
	} else if doc != "" {
		result.HypotheticalDoc = doc
		if emb, eerr := a.embed(ctx, doc); eerr != nil {
			a.log.Warn("analyzer: embedding HyDE passage failed", "error", eerr)
		} else {
			result.HyDEEmbedding = emb
		}
	}

	if n := clamp(opts.ReformulationCount, 0, maxReformulations); n > 0 {
		paraphrases, rerr := a.reformulate(ctx, query, n)
		if rerr != nil {
			a.log.Warn("analyzer: reformulation failed", "error", rerr)
		} else {
			result.ReformulatedQueries = paraphrases
			vectors := make([][]float32, 0, len(paraphrases))
			for _, p := range paraphrases {
				emb, eerr := a.embed(ctx, p)
				if eerr != nil {
					a.log.Warn("analyzer: embedding reformulation failed", "error", eerr)
					continue
				}
				vectors = append(vectors, emb)
			}
			result.ReformulatedVectors = vectors
		}
	}

	subQueries, derr := a.decompose(ctx, query)
	if derr != nil {
		a.log.Warn("analyzer: decomposition failed", "error", derr)
	} else {
		result.DecomposedQueries = subQueries
	}

	return result, nil
}

func (a *Analyzer) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embedCallTimeout)
	defer cancel()
	return a.embedder.Embed(ctx, text)
}

// Embed produces just the base query embedding, with none of Analyze's
// rewrite/HyDE/reformulation/decomposition LLM calls. The cache-check step
// needs the embedding before it can even decide whether a full analysis is
// worth running, so it calls this instead of Analyze.
func (a *Analyzer) Embed(ctx context.Context, query string) ([]float32, error) {
	return a.embed(ctx, query)
}

func (a *Analyzer) complete(ctx context.Context, systemPrompt, userPrompt string, opts ports.CompletionOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, llmCallTimeout)
	defer cancel()
	return a.llm.Complete(ctx, systemPrompt, userPrompt, opts)
}

func (a *Analyzer) reformulate(ctx context.Context, query string, n int) ([]string, error) {
	raw, err := a.complete(ctx, fmt.Sprintf(systemPromptReformulate, n), query, ports.CompletionOptions{Temperature: 0.7, MaxTokens: 400})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Paraphrases []string `json:"paraphrases"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal reformulations: %w", err)
	}
	if len(parsed.Paraphrases) > n {
		parsed.Paraphrases = parsed.Paraphrases[:n]
	}
	return parsed.Paraphrases, nil
}

func (a *Analyzer) decompose(ctx context.Context, query string) ([]string, error) {
	raw, err := a.complete(ctx, systemPromptDecompose, query, ports.CompletionOptions{Temperature: 0.2, MaxTokens: 400})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		SubQueries []string `json:"subQueries"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal decomposition: %w", err)
	}
	if len(parsed.SubQueries) > maxDecompositions {
		parsed.SubQueries = parsed.SubQueries[:maxDecompositions]
	}
	return parsed.SubQueries, nil
}

// ambiguousPronouns are the pronouns that, anywhere in a query, signal the
// query depends on conversational context the rewriter can sometimes
// resolve without it (e.g. "what about it", "fix that").
var ambiguousPronouns = []string{"it", "that", "this", "they", "them", "those"}

const noisyWordCountThreshold = 4

// needsRewrite reports whether query looks noisy enough to warrant an LLM
// rewrite pass: queries of at most noisyWordCountThreshold words, or
// queries of any length containing an ambiguous pronoun reference.
func needsRewrite(query string) bool {
	words := strings.Fields(query)
	if len(words) == 0 {
		return false
	}
	if len(words) <= noisyWordCountThreshold {
		return true
	}
	lower := strings.ToLower(query)
	for _, p := range ambiguousPronouns {
		if containsWord(lower, p) {
			return true
		}
	}
	return false
}

func containsWord(text, word string) bool {
	for _, w := range strings.Fields(text) {
		if strings.Trim(w, ".,!?;:") == word {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
