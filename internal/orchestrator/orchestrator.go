// Package orchestrator wires every other component into the node graph
// described in workflow §2/§4.1/§4.12: cacheCheck → analyze → accessFilter
// → hybridRetrieve → fusion → rerank → enrich → checkSufficiency →
// {retry | decompose+subQueries→fusion | proceed} → formatOutput →
// updateCache. It generalizes pipeline.Enricher.Enrich's single
// sequential, per-step-timed, graceful-degrade call into the full node
// graph plus the adaptive retry/decompose cycle, in place of a LangGraph
// StateGraph/Annotation/conditional-edge setup (workflow §9).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/corvidai/retrieval-core/internal/access"
	"github.com/corvidai/retrieval-core/internal/analyzer"
	"github.com/corvidai/retrieval-core/internal/cache"
	"github.com/corvidai/retrieval-core/internal/controller"
	"github.com/corvidai/retrieval-core/internal/enrichment"
	"github.com/corvidai/retrieval-core/internal/fusion"
	"github.com/corvidai/retrieval-core/internal/output"
	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/reranking"
	"github.com/corvidai/retrieval-core/internal/retrieval"
	"github.com/corvidai/retrieval-core/internal/subquery"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

const initialHydeTemperature = 0.7

// Orchestrator owns every node's ports and configuration and exposes the
// single ExecuteWorkflow operation (workflow §4.1). It holds no
// per-request mutable state — every field produced along the way lives in
// a local run, never the receiver — so one Orchestrator is safe for
// concurrent requests.
type Orchestrator struct {
	analyzer     *analyzer.Analyzer
	accessFilter *access.Builder
	retriever    *retrieval.Retriever
	reranker     *reranking.Reranker
	enricher     *enrichment.Enricher
	controller   *controller.Controller
	subqueryExec *subquery.Executor
	cache        *cache.Cache
	clock        ports.ClockPort
	cfg          workflow.Config
	log          *slog.Logger
}

// Deps bundles every port implementation and auxiliary component the
// Orchestrator needs. All fields are required except Clock, which
// defaults to a real-wall-clock implementation when nil.
type Deps struct {
	Embedder        ports.EmbeddingPort
	LLM             ports.LLMPort
	VectorStore     ports.VectorStorePort
	MetadataStore   ports.MetadataStorePort
	Reranker        ports.RerankerPort
	AccessControl   ports.AccessControlPort
	Clock           ports.ClockPort
	Config          workflow.Config
	Log             *slog.Logger
}

// New assembles an Orchestrator from Deps, constructing every intermediate
// component (analyzer, access filter builder, hybrid retriever, reranker,
// enricher, controller, sub-query executor, cache) so callers never build
// them by hand.
func New(d Deps) *Orchestrator {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	clock := d.Clock
	if clock == nil {
		clock = wallClock{}
	}

	retriever := retrieval.New(d.VectorStore, log)

	return &Orchestrator{
		analyzer:     analyzer.New(d.Embedder, d.LLM, log),
		accessFilter: access.New(d.AccessControl),
		retriever:    retriever,
		reranker:     reranking.New(d.Reranker, log),
		enricher:     enrichment.New(d.MetadataStore, log),
		controller:   controller.New(d.Config),
		subqueryExec: subquery.New(d.Embedder, retriever, log),
		cache:        cache.New(d.VectorStore, d.AccessControl, clock, log),
		clock:        clock,
		cfg:          d.Config,
		log:          log,
	}
}

// wallClock is the default ClockPort, used whenever Deps.Clock is nil.
type wallClock struct{}

func (wallClock) NowMs() int64 { return time.Now().UnixMilli() }

// ExecuteWorkflow runs the full retrieval workflow for one request (workflow
// §4.1). It rejects malformed input immediately, honors a request-wide
// deadline derived from Config.RequestDeadline, and returns either the
// final contexts and metrics or a fatal *workflow.Error per the §7
// taxonomy.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, req workflow.QueryRequest, user workflow.UserContext) ([]workflow.Context, workflow.Metrics, error) {
	requestID := uuid.New().String()
	metrics := workflow.NewMetrics(requestID)

	if err := validate(req); err != nil {
		return nil, metrics, err
	}
	normalized := req.Normalized()

	ctx, cancel := context.WithTimeout(ctx, o.requestDeadline())
	defer cancel()

	run := &run{
		o:         o,
		ctx:       ctx,
		requestID: requestID,
		req:       normalized,
		user:      user,
		metrics:   metrics,
	}
	return run.execute()
}

func validate(req workflow.QueryRequest) *workflow.Error {
	if req.Text == "" {
		return workflow.NewError(workflow.KindInvalidInput, workflow.ErrEmptyQuery)
	}
	if req.TopK < 0 || req.TopK > 50 {
		return workflow.NewError(workflow.KindInvalidInput, workflow.ErrTopKOutOfRange)
	}
	return nil
}

func (o *Orchestrator) requestDeadline() time.Duration {
	if o.cfg.RequestDeadline <= 0 {
		return 5 * time.Second
	}
	return o.cfg.RequestDeadline
}

// run carries the mutable bookkeeping of a single ExecuteWorkflow call. It
// is never shared across requests.
type run struct {
	o         *Orchestrator
	ctx       context.Context
	requestID string
	req       workflow.QueryRequest
	user      workflow.UserContext
	metrics   workflow.Metrics

	allHits  []workflow.ScoredHit
	probeSeq int
}

func (r *run) execute() ([]workflow.Context, workflow.Metrics, error) {
	o := r.o

	// --- cacheCheck (single entry node) ---
	var baseEmbedding []float32
	if r.req.UseCache && o.cfg.CacheEnabled {
		// A cheap base embedding is needed before we can even probe the
		// cache; failures here are not fatal to the cache check itself —
		// the full analyze step below will surface EmbeddingUnavailable if
		// the base embedding truly cannot be produced.
		emb, err := o.analyzer.Embed(r.ctx, r.req.Text)
		if err == nil {
			baseEmbedding = emb
			if entry, lerr := o.cache.Lookup(r.ctx, baseEmbedding, o.cfg.CacheSimilarityThreshold); lerr != nil {
				r.warn("cache", lerr)
			} else if entry != nil {
				r.metrics.CacheHit = true
				return entry.Contexts, r.metrics, nil
			}
		}
	}
	if err := r.ctx.Err(); err != nil {
		return nil, r.metrics, cancellationError(err)
	}

	// --- accessFilter ---
	filter, ferr := o.accessFilter.Build(r.ctx, r.user)
	if ferr != nil {
		var werr *workflow.Error
		if errors.As(ferr, &werr) {
			return nil, r.metrics, werr
		}
		return nil, r.metrics, workflow.NewError(workflow.KindFilterBuildFailed, ferr)
	}

	if filter.Empty() {
		// §4.4/P1: empty whitelist short-circuits to zero results, no
		// reranker or metadata-store calls.
		contexts, metrics, err := r.finish(nil, baseEmbedding)
		return contexts, metrics, err
	}

	// --- adaptive loop: analyze → hybridRetrieve → fusion → rerank →
	// enrich → checkSufficiency → {retry | proceed}, bounded to at most
	// LoopMaxIterations passes. Decomposition is a one-shot step that runs
	// strictly after this loop, never inside it (§9), so the analyzer is
	// never invoked more than LoopMaxIterations times (P8).
	var (
		enriched      []workflow.EnrichedContext
		suff          workflow.SufficiencyResult
		lastAnalysis  *workflow.AnalysisResult
		hasSubQueries bool
	)

	candidatesPerProbe := o.cfg.CandidatesPerProbe
	hydeTemperature := initialHydeTemperature
	reformulationCount := 0
	maxIterations := o.cfg.LoopMaxIterations

loop:
	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := r.ctx.Err(); err != nil {
			return nil, r.metrics, cancellationError(err)
		}

		start := time.Now()
		analysis, aerr := o.analyzer.Analyze(r.ctx, r.req.Text, analyzer.Options{
			ReformulationCount: reformulationCount,
			HydeTemperature:    hydeTemperature,
		})
		r.track("analyze", start)
		if aerr != nil {
			var werr *workflow.Error
			if errors.As(aerr, &werr) {
				return nil, r.metrics, werr
			}
			return nil, r.metrics, workflow.NewError(workflow.KindEmbeddingUnavailable, aerr)
		}
		if baseEmbedding == nil {
			baseEmbedding = analysis.QueryEmbedding
		}
		lastAnalysis = analysis
		hasSubQueries = len(analysis.DecomposedQueries) > 0

		probes := r.buildProbes(analysis)
		params := retrieval.Params{
			Filter:              filter,
			CandidatesPerProbe:  candidatesPerProbe,
			ProbeTimeout:        o.cfg.ProbeTimeout,
			MaxConcurrentProbes: o.cfg.MaxConcurrentProbes,
		}

		start = time.Now()
		hits, rerr := o.retriever.Retrieve(r.ctx, probes, params)
		r.track("retrieve", start)
		if rerr != nil {
			var werr *workflow.Error
			if errors.As(rerr, &werr) {
				return nil, r.metrics, werr
			}
			return nil, r.metrics, workflow.NewError(workflow.KindRetrievalFailed, rerr)
		}
		r.addHits(hits)

		enriched = r.fuseRerankEnrich(analysis.RewrittenQuery)

		suff = o.controller.Assess(enriched, r.req.TopK, iteration, false, hasSubQueries)
		r.metrics.Iterations = iteration + 1

		if suff.Decision == workflow.DecisionProceed {
			break loop
		}
		candidatesPerProbe, hydeTemperature, reformulationCount = controller.NextRetryOptions(candidatesPerProbe, hydeTemperature, reformulationCount)
	}

	// §9: decompose is assessed once, after the bounded retry loop, never
	// as an extra analyze+retrieve pass inside it.
	if suff.Decision != workflow.DecisionProceed {
		suff = o.controller.Assess(enriched, r.req.TopK, maxIterations, false, hasSubQueries)
	}
	if suff.Decision == workflow.DecisionDecompose && lastAnalysis != nil {
		r.metrics.DecompositionTriggered = true

		start := time.Now()
		subHits, serr := o.subqueryExec.Run(r.ctx, lastAnalysis.DecomposedQueries, retrieval.Params{
			Filter:              filter,
			CandidatesPerProbe:  candidatesPerProbe,
			ProbeTimeout:        o.cfg.ProbeTimeout,
			MaxConcurrentProbes: o.cfg.MaxConcurrentProbes,
		}, r.probeSeq)
		r.track("subquery", start)
		if serr != nil {
			r.warn("subquery", serr)
		} else {
			r.addHits(subHits)
		}

		enriched = r.fuseRerankEnrich(lastAnalysis.RewrittenQuery)
		suff = o.controller.Assess(enriched, r.req.TopK, maxIterations, true, false)
	}

	r.metrics.SufficiencyScore = suff.Score
	return r.finish(enriched, baseEmbedding)
}

// fuseRerankEnrich re-runs fusion → rerank → enrich over the accumulated
// probe hits. Used both inside the retry loop and after the one-shot
// decompose branch re-enters fusion per §4.9.
func (r *run) fuseRerankEnrich(rerankQuery string) []workflow.EnrichedContext {
	o := r.o

	start := time.Now()
	fused := fusion.Truncate(fusion.Fuse(r.allHits, o.cfg.RRFK), o.cfg.FusionTopN)
	r.track("fusion", start)

	query := r.req.Text
	if rerankQuery != "" {
		query = rerankQuery
	}

	rerankCtx := r.ctx
	if o.cfg.RerankTimeout > 0 {
		var cancel context.CancelFunc
		rerankCtx, cancel = context.WithTimeout(r.ctx, o.cfg.RerankTimeout)
		defer cancel()
	}

	start = time.Now()
	reranked, fallback := o.reranker.Rerank(rerankCtx, query, fused, o.cfg.RerankBatchSize)
	r.track("rerank", start)
	if fallback {
		r.metrics.RerankFallbackTriggered = true
	}

	start = time.Now()
	enriched, eerr := o.enricher.Enrich(r.ctx, reranked)
	r.track("enrich", start)
	if eerr != nil {
		r.warn("enrich", eerr)
		return nil
	}

	return enriched
}

// finish runs the output formatter and the best-effort cache update, then
// returns the terminal result. It is the pipeline's single exit point.
func (r *run) finish(enriched []workflow.EnrichedContext, baseEmbedding []float32) ([]workflow.Context, workflow.Metrics, error) {
	contexts := output.Format(enriched, r.req.TopK)
	r.metrics.CountsBySource = r.countsBySource()

	if r.req.UseCache && r.o.cfg.CacheEnabled && len(baseEmbedding) > 0 {
		wrote, werr := r.o.cache.Store(r.ctx, cacheID(r.req.Text), r.req.Text, baseEmbedding, contexts)
		if werr != nil {
			r.warn("cache_store", werr)
		} else if !wrote {
			r.metrics.CacheWriteSuppressed = true
		}
	}

	return contexts, r.metrics, nil
}

func (r *run) countsBySource() map[workflow.Source]int {
	counts := make(map[workflow.Source]int)
	for _, h := range r.allHits {
		counts[h.Source]++
	}
	return counts
}

func (r *run) addHits(hits []workflow.ScoredHit) {
	r.allHits = append(r.allHits, hits...)
}

func (r *run) track(stage string, start time.Time) {
	r.metrics.Durations[stage] += time.Since(start)
}

func (r *run) warn(stage string, err error) {
	r.o.log.Warn("workflow: degraded", "stage", stage, "request_id", r.requestID, "error", err)
	r.metrics.Warnings = append(r.metrics.Warnings, workflow.Warning{Stage: stage, Message: err.Error()})
}

// buildProbes assembles the probe set described in §4.5: a dense probe per
// analyzer artifact that actually exists, plus the unconditional BM25-like
// sparse probe built directly from the tokenized query text. Each probe gets
// a unique ID drawn from r.probeSeq, since fusion groups hits by individual
// probe rather than by Source and several probes (e.g. every reformulation)
// share one Source value.
func (r *run) buildProbes(a *workflow.AnalysisResult) []retrieval.Probe {
	next := func(source workflow.Source, dense []float32) retrieval.Probe {
		p := retrieval.Probe{ID: r.probeSeq, Source: source, Dense: dense}
		r.probeSeq++
		return p
	}

	probes := []retrieval.Probe{next(workflow.SourceDense, a.QueryEmbedding)}
	if len(a.HyDEEmbedding) > 0 {
		probes = append(probes, next(workflow.SourceHyDE, a.HyDEEmbedding))
	}
	if len(a.RewrittenEmbedding) > 0 {
		probes = append(probes, next(workflow.SourceRewrite, a.RewrittenEmbedding))
	}
	for _, v := range a.ReformulatedVectors {
		probes = append(probes, next(workflow.SourceReformulation, v))
	}
	sparse := retrieval.BuildSparseVector(r.req.Text)
	if len(sparse.Indices) > 0 {
		p := retrieval.Probe{ID: r.probeSeq, Source: workflow.SourceSparse, Sparse: &sparse}
		r.probeSeq++
		probes = append(probes, p)
	}
	return probes
}

func cancellationError(err error) *workflow.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return workflow.NewError(workflow.KindDeadlineExceeded, err)
	}
	return workflow.NewError(workflow.KindCancelled, err)
}

// cacheID derives a stable, content-addressed cache point ID from the
// query text, mirroring §5's "upsert on a content-addressed id derived
// from the query hash" rule.
func cacheID(queryText string) string {
	return fmt.Sprintf("query:%s", uuid.NewSHA1(uuid.NameSpaceURL, []byte(queryText)).String())
}
