// Package ports declares the narrow interfaces the retrieval workflow engine
// consumes. The hosting process supplies concrete implementations (vector
// database client, metadata database client, reranker HTTP client, model
// provider SDKs); the engine never imports a driver directly.
package ports

import "context"

// EmbeddingPort produces a dense embedding vector for a text. Implementations
// must be safe for concurrent use and honor ctx cancellation.
type EmbeddingPort interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionOptions tunes a single LLMPort.Complete call.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLMPort sends a single-turn completion request to a chat-completion model.
// Used by the query analyzer for HyDE, rewrite, reformulation, and
// decomposition. Implementations must be safe for concurrent use and honor
// ctx cancellation.
type LLMPort interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (string, error)
}

// SparseVector is a sparse (term-index, weight) representation of a query,
// used for BM25-like probes.
type SparseVector struct {
	Indices []int
	Values  []float32
}

// Scored is one hit returned by a vector-store search, independent of whether
// it came from a dense or sparse probe.
type Scored struct {
	ChildChunkID   string
	ParentChunkID  string
	DocumentID     string
	Content        string
	Score          float32
}

// CachePoint is a row written to the vector store's dedicated semantic-cache
// collection.
type CachePoint struct {
	ID        string
	Embedding []float32
	QueryText string
	Payload   []byte // caller-defined serialization of the cached contexts
	CreatedAtMs int64
}

// CacheHit is what the cache collection search returns: the stored point plus
// its similarity to the probe vector.
type CacheHit struct {
	Point      CachePoint
	Similarity float32
}

// Filter is the access-control predicate every vector-store probe must honor.
// AllowAll is true for SUPER_ADMIN; otherwise DocumentIDs holds the caller's
// visible-document whitelist (possibly empty, never nil when AllowAll is
// false).
type Filter struct {
	AllowAll    bool
	DocumentIDs map[string]struct{}
}

// Allows reports whether docID passes this filter.
func (f Filter) Allows(docID string) bool {
	if f.AllowAll {
		return true
	}
	_, ok := f.DocumentIDs[docID]
	return ok
}

// Empty reports whether a non-AllowAll filter has zero visible documents,
// the case that must short-circuit retrieval to zero results.
func (f Filter) Empty() bool {
	return !f.AllowAll && len(f.DocumentIDs) == 0
}

// VectorStorePort is the core's view of the vector database: dense and
// sparse similarity search over the chunk collection, plus the separate
// semantic-cache collection. The core never manages schema or indices; it
// only searches and upserts.
type VectorStorePort interface {
	// DenseSearch returns up to k chunk hits nearest to vector, honoring filter.
	DenseSearch(ctx context.Context, collection string, vector []float32, filter Filter, k int) ([]Scored, error)

	// SparseSearch returns up to k chunk hits for a BM25-like sparse query,
	// honoring filter.
	SparseSearch(ctx context.Context, collection string, sparse SparseVector, filter Filter, k int) ([]Scored, error)

	// CacheSearch returns the nearest cache points to vector (typically k=1);
	// used by the semantic cache lookup.
	CacheSearch(ctx context.Context, vector []float32, k int) ([]CacheHit, error)

	// CacheUpsert writes or replaces a cache point, keyed by its ID.
	CacheUpsert(ctx context.Context, point CachePoint) error
}

// ParentChunk is a larger passage enclosing one or more child chunks, fetched
// on demand at enrichment time.
type ParentChunk struct {
	ParentChunkID string
	DocumentID    string
	Content       string
	Tokens        int
	Metadata      map[string]string
}

// MetadataStorePort is the core's view of the relational metadata store. Its
// only job is batched parent-chunk lookup for small-to-big enrichment;
// missing IDs are silently omitted from the result, never an error.
type MetadataStorePort interface {
	FetchParents(ctx context.Context, parentChunkIDs []string) ([]ParentChunk, error)
}

// RerankScore is one cross-encoder result; Index maps back to the position of
// the corresponding text in the Rerank call's input slice.
type RerankScore struct {
	Index int
	Score float32
}

// RerankerPort submits a query and a batch of candidate texts to an external
// cross-encoder reranker service.
type RerankerPort interface {
	Rerank(ctx context.Context, query string, texts []string) ([]RerankScore, error)
}

// AccessType classifies a document for semantic-cache write gating.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessPublic
	AccessRestricted
)

// AccessControlPort is the core's view of the authorization/identity service.
type AccessControlPort interface {
	// VisibleDocumentIds returns the set of document IDs visible to userID
	// with the given role (public ∪ explicitly granted).
	VisibleDocumentIds(ctx context.Context, userID, role string) (map[string]struct{}, error)

	// DocumentAccessTypes reports the access type of each of the given
	// document IDs. Documents not found are omitted from the result.
	DocumentAccessTypes(ctx context.Context, documentIDs []string) (map[string]AccessType, error)
}

// ClockPort abstracts wall-clock time so tests can fake it.
type ClockPort interface {
	NowMs() int64
}
