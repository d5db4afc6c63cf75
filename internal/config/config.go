package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/corvidai/retrieval-core/internal/workflow"
)

type Config struct {
	Server      ServerConfig
	Ollama      OllamaConfig
	Storage     StorageConfig
	Proxy       ProxyConfig
	Log         LogConfig
	Retrieval   RetrievalConfig
	Enrichment  EnrichmentConfig
	Reranker    RerankerConfig
}

type LogConfig struct {
	Level string // default "info"
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type OllamaConfig struct {
	BaseURL    string
	FastModel  string
	DeepModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	DefaultModel     string
}

// RetrievalConfig holds the workflow engine's cache and hybrid-search
// tunables (workflow §6). TopK is the public API default; the rest mirror
// workflow.Config's field names so ToWorkflowConfig can translate this
// struct directly into one.
type RetrievalConfig struct {
	TopK                     int
	CacheEnabled             bool
	CacheSimilarityThreshold float64
	CandidatesPerProbe       int
	ProbeTimeoutMs           int
	MaxConcurrentProbes      int
	RRFK                     int
	FusionTopN               int
	RequestDeadlineMs        int

	VectorStorePath   string
	MetadataStorePath string
	ACLStorePath      string
}

// EnrichmentConfig holds cross-encoder reranking and sufficiency-loop
// tunables.
type EnrichmentConfig struct {
	RerankingEnabled   bool
	RerankingTimeout   string
	RerankingThreshold float64
	RerankBatchSize    int

	SufficiencyThreshold   float64
	SufficiencyHighQuality float64
	SufficiencyMinCoverage int
	LoopMaxIterations      int
}

// RerankerConfig points at the cross-encoder reranker HTTP service
// (internal/rerankerclient).
type RerankerConfig struct {
	BaseURL string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			FastModel:  "phi3.5",
			DeepModel:  "mistral-nemo",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Proxy: ProxyConfig{
			DefaultModel: "anthropic/claude-opus-4",
		},
		Log: LogConfig{
			Level: "info",
		},
		Retrieval: RetrievalConfig{
			TopK:                     10,
			CacheEnabled:             true,
			CacheSimilarityThreshold: 0.95,
			CandidatesPerProbe:       50,
			ProbeTimeoutMs:           800,
			MaxConcurrentProbes:      4,
			RRFK:                     60,
			FusionTopN:               50,
			RequestDeadlineMs:        5000,
			VectorStorePath:          dataDir + "/vectors.db",
			MetadataStorePath:        dataDir + "/metadata.db",
			ACLStorePath:             dataDir + "/acl.db",
		},
		Enrichment: EnrichmentConfig{
			RerankingEnabled:       true,
			RerankingTimeout:       "30s",
			RerankingThreshold:     0.0,
			RerankBatchSize:        100,
			SufficiencyThreshold:   0.6,
			SufficiencyHighQuality: 0.7,
			SufficiencyMinCoverage: 3,
			LoopMaxIterations:      3,
		},
		Reranker: RerankerConfig{
			BaseURL: "http://localhost:8081",
		},
	}
}

// ToWorkflowConfig translates the flattened key/value surface this package
// manages into a workflow.Config for the orchestrator. It lives here
// (rather than on workflow.Config itself) so the workflow package never
// needs to import the hosting layer's config surface.
func (c Config) ToWorkflowConfig() workflow.Config {
	return workflow.Config{
		CacheEnabled:             c.Retrieval.CacheEnabled,
		CacheSimilarityThreshold: float32(c.Retrieval.CacheSimilarityThreshold),
		CacheTTL:                 24 * time.Hour,

		CandidatesPerProbe:  c.Retrieval.CandidatesPerProbe,
		ProbeTimeout:        time.Duration(c.Retrieval.ProbeTimeoutMs) * time.Millisecond,
		MaxConcurrentProbes: c.Retrieval.MaxConcurrentProbes,

		RRFK:       c.Retrieval.RRFK,
		FusionTopN: c.Retrieval.FusionTopN,

		RerankBatchSize: c.Enrichment.RerankBatchSize,
		RerankTimeout:   30 * time.Second,

		SufficiencyThreshold:   c.Enrichment.SufficiencyThreshold,
		SufficiencyHighQuality: c.Enrichment.SufficiencyHighQuality,
		SufficiencyMinCoverage: c.Enrichment.SufficiencyMinCoverage,

		LoopMaxIterations: c.Enrichment.LoopMaxIterations,

		RequestDeadline: time.Duration(c.Retrieval.RequestDeadlineMs) * time.Millisecond,
	}
}

// Keychain abstracts platform secret store access.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// ErrNotFound is returned by Keychain.Get when the requested secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.tbyd.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/tbyd/config.json
// and secrets fall back to $XDG_DATA_HOME/tbyd/secrets.json.
//
// Environment variables (TBYD_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainClient{})
}

// NewKeychain returns the platform keychain client for use outside config loading.
func NewKeychain() Keychain {
	return keychainClient{}
}

// loadFromPath loads configuration from a JSON file at an arbitrary path,
// bypassing the platform-default location. Exercised by tests.
func loadFromPath(path string, kc Keychain) (Config, error) {
	return loadWith(newFileBackendAt(path), kc)
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for API key if still empty. Unlike the
	// teacher (whose proxy.Client was the only chat-completion path), the
	// OpenRouter key is optional here: buildOrchestrator falls back to the
	// local engine's LLMPort when it is unset, so an empty key is not a
	// load failure.
	if cfg.Proxy.OpenRouterAPIKey == "" {
		if key, err := kc.Get("tbyd", "openrouter_api_key"); err == nil && key != "" {
			cfg.Proxy.OpenRouterAPIKey = key
		}
	}

	return cfg, nil
}

// keychainClient reads from and writes to the platform secret store.
type keychainClient struct{}

func (keychainClient) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainClient) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

const (
	apiTokenService = "tbyd"
	apiTokenAccount = "tbyd-api-token"
)

// GetAPIToken reads the API bearer token from the secret store. If none
// exists, a random 256-bit hex-encoded token is generated and stored.
// Non-ErrNotFound errors from the keychain are propagated.
func GetAPIToken(kc Keychain) (string, error) {
	tok, err := kc.Get(apiTokenService, apiTokenAccount)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("reading API token: %w", err)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok = hex.EncodeToString(b)

	if err := kc.Set(apiTokenService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
