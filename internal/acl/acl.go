// Package acl is a reference, SQLite-backed implementation of
// ports.AccessControlPort: per-role document visibility (workflow §4.4)
// and per-document access-type classification for semantic-cache write
// gating (workflow §4.2). It is a stand-in for the authentication/identity
// service the core treats as an external collaborator (§1); production
// hosts would call out to that service instead, using the same
// grant/access-type tables modeled here, following storage.Store's SQLite
// conventions.
package acl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/corvidai/retrieval-core/internal/ports"
)

// Store implements ports.AccessControlPort over a SQLite database holding
// a document_access table (documentId -> public|restricted) and a
// document_grants table (documentId, userId) of explicit per-user grants.
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB. Call Migrate before first use.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the access-control tables if they don't already exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS document_access (
			document_id TEXT PRIMARY KEY,
			access_type TEXT NOT NULL CHECK (access_type IN ('public','restricted'))
		)`,
		`CREATE TABLE IF NOT EXISTS document_grants (
			document_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (document_id, user_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running acl migration: %w", err)
		}
	}
	return nil
}

// SetDocumentAccess sets a document's access type. Exercised by whatever
// ingestion/admin tooling seeds this reference store.
func (s *Store) SetDocumentAccess(ctx context.Context, documentID string, accessType ports.AccessType) error {
	typ := accessTypeString(accessType)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_access (document_id, access_type) VALUES (?, ?)
		ON CONFLICT(document_id) DO UPDATE SET access_type=excluded.access_type`,
		documentID, typ)
	if err != nil {
		return fmt.Errorf("setting access for %s: %w", documentID, err)
	}
	return nil
}

// GrantDocument records an explicit per-user grant for a restricted
// document.
func (s *Store) GrantDocument(ctx context.Context, documentID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_grants (document_id, user_id) VALUES (?, ?)
		ON CONFLICT(document_id, user_id) DO NOTHING`, documentID, userID)
	if err != nil {
		return fmt.Errorf("granting %s to %s: %w", documentID, userID, err)
	}
	return nil
}

// VisibleDocumentIds implements ports.AccessControlPort: the union of
// every public document and every document explicitly granted to userID.
// role is accepted for interface compatibility with a richer identity
// service; this reference store does not grant role-wide visibility
// beyond SUPER_ADMIN, which the access.Builder never even routes here.
func (s *Store) VisibleDocumentIds(ctx context.Context, userID, role string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id FROM document_access WHERE access_type = 'public'
		UNION
		SELECT document_id FROM document_grants WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying visible documents for %s: %w", userID, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var docID string
		if err := rows.Scan(&docID); err != nil {
			return nil, fmt.Errorf("scanning visible document row: %w", err)
		}
		out[docID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visible document rows: %w", err)
	}
	return out, nil
}

// DocumentAccessTypes implements ports.AccessControlPort: the access type
// of each of documentIDs, omitting any ID with no row (callers must treat
// an omitted ID as "not confirmed public", never as public by default —
// internal/cache's write gate does exactly that).
func (s *Store) DocumentAccessTypes(ctx context.Context, documentIDs []string) (map[string]ports.AccessType, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(documentIDs)), ",")
	query := fmt.Sprintf(`SELECT document_id, access_type FROM document_access WHERE document_id IN (%s)`, placeholders)

	args := make([]any, len(documentIDs))
	for i, id := range documentIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying document access types: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ports.AccessType)
	for rows.Next() {
		var docID, typ string
		if err := rows.Scan(&docID, &typ); err != nil {
			return nil, fmt.Errorf("scanning access type row: %w", err)
		}
		out[docID] = parseAccessType(typ)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access type rows: %w", err)
	}
	return out, nil
}

func accessTypeString(t ports.AccessType) string {
	if t == ports.AccessPublic {
		return "public"
	}
	return "restricted"
}

func parseAccessType(s string) ports.AccessType {
	if s == "public" {
		return ports.AccessPublic
	}
	return ports.AccessRestricted
}
