// Package sqlivec is a reference, pure-Go SQLite-backed implementation of
// ports.VectorStorePort. It generalizes the teacher's retrieval.SQLiteStore
// (heap-based brute-force top-K cosine scan, float32 blob codec) from a
// single unfiltered table into two collections — the chunk collection,
// filterable by a ports.Filter, and a dedicated cache-point collection —
// and adds a brute-force sparse (term-overlap) search alongside the dense
// one.
//
// As in the teacher's own note: past roughly 100K vectors, query latency
// will want an ANN-capable backend instead of this brute-force scan.
package sqlivec

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"github.com/corvidai/retrieval-core/internal/ports"
)

// Store implements ports.VectorStorePort over a SQLite database. The
// caller is responsible for running migrations before use.
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB. The context_chunks and cache_points tables
// must already exist (see Migrate).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables this store needs if they don't already exist.
// It is idempotent and safe to call on every process start, mirroring the
// teacher's own migration-on-boot convention.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS context_chunks (
			child_chunk_id TEXT PRIMARY KEY,
			parent_chunk_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			sparse_indices BLOB,
			sparse_values BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_context_chunks_document ON context_chunks (document_id)`,
		`CREATE TABLE IF NOT EXISTS cache_points (
			id TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			query_text TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at_ms INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// Chunk is one row of the context_chunks table, used by callers that need
// to seed or export the store (e.g. an ingestion job outside this engine).
type Chunk struct {
	ChildChunkID  string
	ParentChunkID string
	DocumentID    string
	Content       string
	Embedding     []float32
	Sparse        ports.SparseVector
}

// UpsertChunks writes or replaces chunk rows.
func (s *Store) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO context_chunks (child_chunk_id, parent_chunk_id, document_id, content, embedding, sparse_indices, sparse_values)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(child_chunk_id) DO UPDATE SET
			parent_chunk_id=excluded.parent_chunk_id,
			document_id=excluded.document_id,
			content=excluded.content,
			embedding=excluded.embedding,
			sparse_indices=excluded.sparse_indices,
			sparse_values=excluded.sparse_values`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChildChunkID, c.ParentChunkID, c.DocumentID, c.Content,
			encodeFloat32s(c.Embedding), encodeIndices(c.Sparse.Indices), encodeFloat32s(c.Sparse.Values)); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting chunk %s: %w", c.ChildChunkID, err)
		}
	}
	return tx.Commit()
}

// DenseSearch performs brute-force cosine similarity search over
// context_chunks, returning the top-k hits visible under filter.
func (s *Store) DenseSearch(ctx context.Context, collection string, vector []float32, filter ports.Filter, k int) ([]ports.Scored, error) {
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT child_chunk_id, parent_chunk_id, document_id, content, embedding FROM context_chunks`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	h := &scoredHeap{}
	heap.Init(h)

	var embBuf []float32
	for rows.Next() {
		var childID, parentID, docID, content string
		var blob []byte
		if err := rows.Scan(&childID, &parentID, &docID, &content, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if !filter.Allows(docID) {
			continue
		}
		embBuf, err = decodeFloat32sInto(embBuf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", childID, err)
		}
		score := cosine(vector, embBuf, queryNorm)
		item := ports.Scored{ChildChunkID: childID, ParentChunkID: parentID, DocumentID: docID, Content: content, Score: score}
		pushTopK(h, item, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	return drainDescending(h), nil
}

// SparseSearch performs brute-force term-overlap scoring over the stored
// sparse vectors, returning the top-k hits visible under filter.
func (s *Store) SparseSearch(ctx context.Context, collection string, sparse ports.SparseVector, filter ports.Filter, k int) ([]ports.Scored, error) {
	queryWeights := make(map[int]float32, len(sparse.Indices))
	for i, idx := range sparse.Indices {
		queryWeights[idx] = sparse.Values[i]
	}
	if len(queryWeights) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT child_chunk_id, parent_chunk_id, document_id, content, sparse_indices, sparse_values FROM context_chunks`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	h := &scoredHeap{}
	heap.Init(h)

	for rows.Next() {
		var childID, parentID, docID, content string
		var idxBlob, valBlob []byte
		if err := rows.Scan(&childID, &parentID, &docID, &content, &idxBlob, &valBlob); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if !filter.Allows(docID) {
			continue
		}
		indices, err := decodeIndices(idxBlob)
		if err != nil {
			return nil, fmt.Errorf("decoding sparse indices for %s: %w", childID, err)
		}
		values, err := decodeFloat32s(valBlob)
		if err != nil {
			return nil, fmt.Errorf("decoding sparse values for %s: %w", childID, err)
		}
		var score float32
		for i, idx := range indices {
			if w, ok := queryWeights[idx]; ok {
				score += w * values[i]
			}
		}
		if score == 0 {
			continue
		}
		item := ports.Scored{ChildChunkID: childID, ParentChunkID: parentID, DocumentID: docID, Content: content, Score: score}
		pushTopK(h, item, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	return drainDescending(h), nil
}

// CacheSearch returns the nearest cache points to vector by cosine
// similarity, brute-force.
func (s *Store) CacheSearch(ctx context.Context, vector []float32, k int) ([]ports.CacheHit, error) {
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding, query_text, payload, created_at_ms FROM cache_points`)
	if err != nil {
		return nil, fmt.Errorf("querying cache points: %w", err)
	}
	defer rows.Close()

	type scored struct {
		point ports.CachePoint
		sim   float32
	}
	var best []scored

	for rows.Next() {
		var id, queryText string
		var embBlob, payload []byte
		var createdAtMs int64
		if err := rows.Scan(&id, &embBlob, &queryText, &payload, &createdAtMs); err != nil {
			return nil, fmt.Errorf("scanning cache row: %w", err)
		}
		emb, err := decodeFloat32s(embBlob)
		if err != nil {
			return nil, fmt.Errorf("decoding cache embedding for %s: %w", id, err)
		}
		sim := cosine(vector, emb, queryNorm)
		best = append(best, scored{
			point: ports.CachePoint{ID: id, Embedding: emb, QueryText: queryText, Payload: payload, CreatedAtMs: createdAtMs},
			sim:   sim,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cache rows: %w", err)
	}

	for i := 1; i < len(best); i++ {
		for j := i; j > 0 && best[j].sim > best[j-1].sim; j-- {
			best[j], best[j-1] = best[j-1], best[j]
		}
	}
	if len(best) > k {
		best = best[:k]
	}

	hits := make([]ports.CacheHit, len(best))
	for i, b := range best {
		hits[i] = ports.CacheHit{Point: b.point, Similarity: b.sim}
	}
	return hits, nil
}

// CacheUpsert writes or replaces a cache point.
func (s *Store) CacheUpsert(ctx context.Context, point ports.CachePoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_points (id, embedding, query_text, payload, created_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding=excluded.embedding,
			query_text=excluded.query_text,
			payload=excluded.payload,
			created_at_ms=excluded.created_at_ms`,
		point.ID, encodeFloat32s(point.Embedding), point.QueryText, point.Payload, point.CreatedAtMs)
	if err != nil {
		return fmt.Errorf("upserting cache point %s: %w", point.ID, err)
	}
	return nil
}

func pushTopK(h *scoredHeap, item ports.Scored, k int) {
	if k <= 0 {
		return
	}
	if h.Len() < k {
		heap.Push(h, item)
		return
	}
	if item.Score > (*h)[0].Score {
		(*h)[0] = item
		heap.Fix(h, 0)
	}
}

func drainDescending(h *scoredHeap) []ports.Scored {
	n := h.Len()
	if n == 0 {
		return nil
	}
	out := make([]ports.Scored, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ports.Scored)
	}
	return out
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func encodeIndices(idx []int) []byte {
	buf := make([]byte, len(idx)*4)
	for i, v := range idx {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func decodeIndices(b []byte) ([]int, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]int, len(b)/4)
	for i := range v {
		v[i] = int(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity between a and b, given a's precomputed
// L2 norm.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// scoredHeap is a min-heap of ports.Scored ordered by Score, used to track
// the top-k candidates during a single linear scan.
type scoredHeap []ports.Scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(ports.Scored)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
