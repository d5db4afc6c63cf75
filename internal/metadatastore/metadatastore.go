// Package metadatastore is a reference, SQLite-backed implementation of
// ports.MetadataStorePort: batched parent-chunk lookup for small-to-big
// enrichment (workflow §4.8/§9 — the metadata store's only job in this
// engine). It follows storage.Store's conventions (WAL mode, busy-timeout
// pragma, single-connection pool) but replaces its go:embed-migrations
// bootstrap with the same inline-DDL-on-open idiom internal/sqlivec uses,
// since this store owns one simple table rather than a multi-entity
// schema.
package metadatastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/corvidai/retrieval-core/internal/ports"
)

// Store implements ports.MetadataStorePort over a SQLite database.
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB. Call Migrate before first use.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the parent_chunks table if it doesn't already exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS parent_chunks (
		parent_chunk_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		content TEXT NOT NULL,
		tokens INTEGER NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}'
	)`)
	if err != nil {
		return fmt.Errorf("running metadatastore migration: %w", err)
	}
	return nil
}

// UpsertParent writes or replaces a parent chunk row. Exercised by whatever
// ingestion-adjacent tooling seeds this store; the core engine itself only
// reads.
func (s *Store) UpsertParent(ctx context.Context, p ports.ParentChunk) error {
	metaJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling parent metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parent_chunks (parent_chunk_id, document_id, content, tokens, metadata_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(parent_chunk_id) DO UPDATE SET
			document_id=excluded.document_id,
			content=excluded.content,
			tokens=excluded.tokens,
			metadata_json=excluded.metadata_json`,
		p.ParentChunkID, p.DocumentID, p.Content, p.Tokens, string(metaJSON))
	if err != nil {
		return fmt.Errorf("upserting parent chunk %s: %w", p.ParentChunkID, err)
	}
	return nil
}

// FetchParents implements ports.MetadataStorePort: returns the parent
// chunks found among parentChunkIDs, silently omitting any ID with no
// matching row.
func (s *Store) FetchParents(ctx context.Context, parentChunkIDs []string) ([]ports.ParentChunk, error) {
	if len(parentChunkIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(parentChunkIDs)), ",")
	query := fmt.Sprintf(`SELECT parent_chunk_id, document_id, content, tokens, metadata_json
		FROM parent_chunks WHERE parent_chunk_id IN (%s)`, placeholders)

	args := make([]any, len(parentChunkIDs))
	for i, id := range parentChunkIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying parent chunks: %w", err)
	}
	defer rows.Close()

	var out []ports.ParentChunk
	for rows.Next() {
		var p ports.ParentChunk
		var metaJSON string
		if err := rows.Scan(&p.ParentChunkID, &p.DocumentID, &p.Content, &p.Tokens, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning parent chunk row: %w", err)
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &p.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for %s: %w", p.ParentChunkID, err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating parent chunk rows: %w", err)
	}
	return out, nil
}
