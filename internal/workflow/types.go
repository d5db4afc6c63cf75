// Package workflow holds the shared state and value types threaded through
// every node of the retrieval workflow engine (see internal/orchestrator).
// Nothing here performs I/O; it is the vocabulary the rest of the engine
// speaks.
package workflow

import (
	"time"
)

// Mode selects what ExecuteWorkflow is expected to produce. Only
// ModeRetrievalOnly is implemented; ModeGeneration is reserved.
type Mode string

const (
	ModeRetrievalOnly Mode = "retrieval_only"
	ModeGeneration    Mode = "generation"
)

// Role is a user's authorization level.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleUser       Role = "USER"
)

// Source tags which analyzer/retriever artifact produced a vector hit.
type Source string

const (
	SourceDense         Source = "dense"
	SourceHyDE          Source = "hyde"
	SourceReformulation Source = "reformulation"
	SourceRewrite       Source = "rewrite"
	SourceSubquery      Source = "subquery"
	SourceSparse        Source = "sparse"
)

const defaultTopK = 10

// QueryRequest is the public input to ExecuteWorkflow.
type QueryRequest struct {
	Text     string
	Mode     Mode
	TopK     int
	UseCache bool
}

// Normalized returns a copy with defaults applied (TopK, Mode).
func (r QueryRequest) Normalized() QueryRequest {
	out := r
	if out.TopK <= 0 {
		out.TopK = defaultTopK
	}
	if out.Mode == "" {
		out.Mode = ModeRetrievalOnly
	}
	return out
}

// UserContext identifies the caller for the lifetime of one request.
type UserContext struct {
	UserID string
	Role   Role
	Email  string
}

// AnalysisResult is the query analyzer's (C4) output patch.
type AnalysisResult struct {
	QueryEmbedding      []float32
	RewrittenQuery      string
	RewrittenEmbedding  []float32
	HypotheticalDoc     string
	HyDEEmbedding       []float32
	ReformulatedQueries []string
	ReformulatedVectors [][]float32
	DecomposedQueries   []string
}

// ScoredHit is a single vector-store hit tagged with the probe that produced
// it. A childChunkId may recur across hits from different probes; fusion
// deduplicates on that key. ProbeID identifies the individual probe call
// that produced this hit (distinct from Source, since several probes can
// share one source — e.g. up to three reformulation probes, or one probe
// per decomposed sub-query — and each must rank its own hits 1..N
// independently for Reciprocal Rank Fusion).
type ScoredHit struct {
	ChildChunkID  string
	ParentChunkID string
	DocumentID    string
	Content       string
	DenseScore    *float32
	SparseScore   *float32
	Source        Source
	ProbeID       int
}

// FusedResult is one row of C7's Reciprocal Rank Fusion output. RRFScore sums
// 1/(k+rank) over every individual probe that returned this candidate, not
// just every distinct source; PerSourceRank records, per source, the best
// (lowest) rank any of that source's probes assigned it.
type FusedResult struct {
	ChildChunkID  string
	ParentChunkID string
	DocumentID    string
	Content       string
	RRFScore      float64
	PerSourceRank map[Source]int
}

// RerankedResult extends FusedResult with a cross-encoder (or RRF-fallback)
// score.
type RerankedResult struct {
	FusedResult
	RerankScore float32
}

// ChildHit is one child chunk contributing to an EnrichedContext.
type ChildHit struct {
	ChunkID string
	Content string
	Score   float32
}

// EnrichedContext is a parent chunk enriched with the reranked children found
// under it (C9's small-to-big output).
type EnrichedContext struct {
	ParentChunkID string
	DocumentID    string
	Content       string
	Tokens        int
	Metadata      map[string]string
	BestScore     float32
	ChildHits     []ChildHit
}

// Context is the public output shape returned to the caller (C12).
type Context struct {
	ParentChunkID string
	DocumentID    string
	Content       string
	Tokens        int
	Metadata      map[string]string
	Score         float32
}

// CacheEntry is what the semantic cache stores and returns.
type CacheEntry struct {
	QueryEmbedding []float32
	QueryText      string
	Contexts       []Context
	CreatedAtMs    int64
}

// SufficiencyResult is C10's composite quality estimate and decision.
type SufficiencyResult struct {
	HighQualityCount int
	AvgScore         float64
	MinCoverage      int
	Score            float64
	Decision         Decision
}

// Decision is the controller's choice at the end of one loop iteration.
type Decision string

const (
	DecisionProceed   Decision = "proceed"
	DecisionRetry     Decision = "retry"
	DecisionDecompose Decision = "decompose"
)

// Warning records a degraded (non-fatal) failure for metrics.warnings.
type Warning struct {
	Stage   string
	Message string
}

// Metrics is the aggregate diagnostic output returned alongside Contexts.
type Metrics struct {
	RequestID               string
	CacheHit                bool
	CacheWriteSuppressed    bool
	Iterations              int
	DecompositionTriggered  bool
	RerankFallbackTriggered bool
	SufficiencyScore        float64
	CountsBySource          map[Source]int
	Durations               map[string]time.Duration
	Warnings                []Warning
}

// NewMetrics returns a zero-value Metrics with its maps initialized.
func NewMetrics(requestID string) Metrics {
	return Metrics{
		RequestID:      requestID,
		CountsBySource: make(map[Source]int),
		Durations:      make(map[string]time.Duration),
	}
}

// String returns the plain string AccessControlPort expects for a role.
func (r Role) String() string { return string(r) }
