package workflow

import "time"

// Config holds every tunable the orchestrator and its nodes read. The
// hosting layer's config package (internal/config) assembles one of these
// from defaults, environment variables, and a JSON file, then passes it down
// as a plain value — nodes never read environment variables or files
// directly.
type Config struct {
	CacheEnabled             bool
	CacheSimilarityThreshold float32
	CacheTTL                 time.Duration

	CandidatesPerProbe  int
	ProbeTimeout        time.Duration
	MaxConcurrentProbes int

	RRFK       int
	FusionTopN int

	RerankBatchSize int
	RerankTimeout   time.Duration

	SufficiencyThreshold   float64
	SufficiencyHighQuality float64
	SufficiencyMinCoverage int

	LoopMaxIterations int

	RequestDeadline time.Duration
}

// DefaultConfig returns the §6 defaults table as a Config value.
func DefaultConfig() Config {
	return Config{
		CacheEnabled:             true,
		CacheSimilarityThreshold: 0.95,
		CacheTTL:                 24 * time.Hour,

		CandidatesPerProbe:  50,
		ProbeTimeout:        800 * time.Millisecond,
		MaxConcurrentProbes: 4,

		RRFK:       60,
		FusionTopN: 50,

		RerankBatchSize: 100,
		RerankTimeout:   30 * time.Second,

		SufficiencyThreshold:   0.6,
		SufficiencyHighQuality: 0.7,
		SufficiencyMinCoverage: 3,

		LoopMaxIterations: 3,

		RequestDeadline: 5 * time.Second,
	}
}
