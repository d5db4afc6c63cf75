// Package cache implements the semantic cache lookup and write-gated store
// described in workflow §3/§8 (P3, P4). It holds no state of its own —
// the vector store's dedicated cache collection is the source of truth —
// and defers to the access-control port before ever writing a result that
// could leak a restricted document to a future, differently-privileged
// caller.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

// Cache looks up and stores semantic-cache entries against a VectorStorePort
// cache collection, gated by an AccessControlPort write check.
type Cache struct {
	store ports.VectorStorePort
	acl   ports.AccessControlPort
	clock ports.ClockPort
	log   *slog.Logger
}

// New creates a Cache. clock and log may be nil; a nil clock falls back to
// nothing meaningful for CreatedAtMs (callers needing real timestamps must
// supply one), a nil log uses slog's default logger.
func New(store ports.VectorStorePort, acl ports.AccessControlPort, clock ports.ClockPort, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{store: store, acl: acl, clock: clock, log: log}
}

// Lookup searches the cache collection for an entry at or above threshold
// similarity to queryEmbedding. A nil, nil return is a cache miss; it is not
// an error. Per P4, a caller that gets a hit must perform no further
// pipeline work beyond returning the cached contexts.
func (c *Cache) Lookup(ctx context.Context, queryEmbedding []float32, threshold float32) (*workflow.CacheEntry, error) {
	hits, err := c.store.CacheSearch(ctx, queryEmbedding, 1)
	if err != nil {
		return nil, fmt.Errorf("cache search: %w", err)
	}
	if len(hits) == 0 || hits[0].Similarity < threshold {
		return nil, nil
	}

	best := hits[0].Point
	var entry workflow.CacheEntry
	if err := json.Unmarshal(best.Payload, &entry); err != nil {
		return nil, fmt.Errorf("cache payload decode: %w", err)
	}
	c.log.Debug("cache hit", "similarity", hits[0].Similarity, "query", best.QueryText)
	return &entry, nil
}

// Store writes a cache entry, provided every document referenced by
// contexts is public. Per P3 this is an all-or-nothing gate: a single
// restricted document anywhere in the result suppresses the write entirely.
// Store reports whether the write actually happened (false without an error
// means the write was suppressed by the gate, not that it failed).
func (c *Cache) Store(ctx context.Context, id string, queryText string, queryEmbedding []float32, contexts []workflow.Context) (wrote bool, err error) {
	if len(contexts) == 0 {
		return false, nil
	}

	docIDs := make([]string, 0, len(contexts))
	seen := make(map[string]struct{}, len(contexts))
	for _, ctxt := range contexts {
		if _, ok := seen[ctxt.DocumentID]; ok {
			continue
		}
		seen[ctxt.DocumentID] = struct{}{}
		docIDs = append(docIDs, ctxt.DocumentID)
	}

	types, err := c.acl.DocumentAccessTypes(ctx, docIDs)
	if err != nil {
		return false, fmt.Errorf("cache write gate: %w", err)
	}
	for _, docID := range docIDs {
		if types[docID] != ports.AccessPublic {
			c.log.Debug("cache write suppressed", "document_id", docID)
			return false, nil
		}
	}

	entry := workflow.CacheEntry{
		QueryEmbedding: queryEmbedding,
		QueryText:      queryText,
		Contexts:       contexts,
	}
	if c.clock != nil {
		entry.CreatedAtMs = c.clock.NowMs()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("cache payload encode: %w", err)
	}

	point := ports.CachePoint{
		ID:          id,
		Embedding:   queryEmbedding,
		QueryText:   queryText,
		Payload:     payload,
		CreatedAtMs: entry.CreatedAtMs,
	}
	if err := c.store.CacheUpsert(ctx, point); err != nil {
		return false, fmt.Errorf("cache upsert: %w", err)
	}
	return true, nil
}
