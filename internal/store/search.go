package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// vectorIndexRowThreshold matches the point past which a plain
// brute-force scan over chunks_vec stops being "fast enough" on its
// own, per the store's lazy vector-index contract.
const vectorIndexRowThreshold = 1000

// ensureFTSIndex creates the FTS5 virtual table and backfills it from
// the chunks table, at most once per store lifetime (reset by Clear).
func (s *ChunkStore) ensureFTSIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ftsIndexed {
		return nil
	}

	if _, err := s.db.ExecContext(ctx,
		"CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(chunk_id UNINDEXED, content)"); err != nil {
		return fmt.Errorf("create fts index: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, content FROM chunks")
	if err != nil {
		return fmt.Errorf("read chunks to backfill fts index: %w", err)
	}
	type idContent struct{ id, content string }
	var existing []idContent
	for rows.Next() {
		var r idContent
		if err := rows.Scan(&r.id, &r.content); err != nil {
			rows.Close()
			return fmt.Errorf("scan chunk for fts backfill: %w", err)
		}
		existing = append(existing, r)
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return rowsErr
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fts backfill transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertStmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare fts backfill insert: %w", err)
	}
	defer insertStmt.Close()

	for _, r := range existing {
		if _, err := insertStmt.ExecContext(ctx, r.id, ftsContent(r.content)); err != nil {
			return fmt.Errorf("backfill fts entry %s: %w", r.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fts backfill: %w", err)
	}

	s.ftsIndexed = true
	return nil
}

// ensureVectorIndex performs a one-time, best-effort query-planner
// refresh once the store holds enough rows that a brute-force scan
// stops being cheap. Failure here is never fatal — search still works
// via the unoptimized scan.
func (s *ChunkStore) ensureVectorIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vecIndexed {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks_vec").Scan(&count); err != nil {
		return fmt.Errorf("count vectors: %w", err)
	}
	if count <= vectorIndexRowThreshold {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, "ANALYZE chunks_vec"); err != nil {
		s.logger.Debug("vector_index_build_skipped", "error", err)
		return nil
	}
	s.vecIndexed = true
	return nil
}

// SearchVector performs a pure k-nearest-neighbor search over the
// embedding column, ranked by ascending cosine distance.
func (s *ChunkStore) SearchVector(ctx context.Context, query []float32, k int) (*SearchResults, error) {
	start := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	queryBytes, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.file_path, c.start_line, c.end_line, c.content, v.distance
		FROM (
			SELECT chunk_id, vec_distance_cosine(embedding, ?) AS distance
			FROM chunks_vec
			ORDER BY distance
			LIMIT ?
		) v
		JOIN chunks c ON c.id = v.chunk_id
		ORDER BY v.distance
	`, queryBytes, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		if err := rows.Scan(&r.FilePath, &r.StartLine, &r.EndLine, &r.Content, &distance); err != nil {
			return nil, fmt.Errorf("scan vector result: %w", err)
		}
		r.Score = distance
		r.MatchType = MatchTypeVector
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	total, err := s.countLocked(ctx)
	if err != nil {
		return nil, err
	}

	return &SearchResults{
		Results:     results,
		QueryTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		TotalChunks: total,
	}, nil
}

// SearchHybrid combines vector search and full-text search via
// reciprocal-rank fusion. If the full-text index cannot be built, it
// falls back to a vector-only search reporting match_type "vector"
// rather than failing.
func (s *ChunkStore) SearchHybrid(ctx context.Context, query []float32, text string, k int) (*SearchResults, error) {
	start := time.Now()

	if err := s.ensureFTSIndex(ctx); err != nil {
		s.logger.Warn("fts_index_unavailable_falling_back_to_vector_search", "error", err)
		return s.SearchVector(ctx, query, k)
	}
	if err := s.ensureVectorIndex(ctx); err != nil {
		s.logger.Debug("vector_index_build_failed", "error", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	bm25Hits, err := s.bm25SearchLocked(ctx, text, k)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}

	queryBytes, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}
	vecHits, err := s.vectorHitsLocked(ctx, queryBytes, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	fused := fuseRRF(bm25Hits, vecHits, k)

	results, err := s.resultsForFusedLocked(ctx, fused)
	if err != nil {
		return nil, err
	}

	total, err := s.countLocked(ctx)
	if err != nil {
		return nil, err
	}

	return &SearchResults{
		Results:     results,
		QueryTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		TotalChunks: total,
	}, nil
}

func (s *ChunkStore) bm25SearchLocked(ctx context.Context, text string, k int) ([]bm25Hit, error) {
	tokens := FilterStopWords(TokenizeCode(text), codeStopWords)
	if len(tokens) == 0 {
		return nil, nil
	}
	matchQuery := strings.Join(tokens, " ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?
	`, matchQuery, k)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var hits []bm25Hit
	for rows.Next() {
		var h bm25Hit
		var rawScore float64
		if err := rows.Scan(&h.id, &rawScore); err != nil {
			return nil, err
		}
		h.score = -rawScore // fts5 bm25() is negative; higher positive = better match
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *ChunkStore) vectorHitsLocked(ctx context.Context, queryBytes []byte, k int) ([]vecHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, vec_distance_cosine(embedding, ?) AS distance
		FROM chunks_vec
		ORDER BY distance
		LIMIT ?
	`, queryBytes, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []vecHit
	for rows.Next() {
		var h vecHit
		if err := rows.Scan(&h.id, &h.distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *ChunkStore) resultsForFusedLocked(ctx context.Context, fused []fusedHit) ([]*SearchResult, error) {
	if len(fused) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(fused))
	args := make([]any, len(fused))
	for i, f := range fused {
		placeholders[i] = "?"
		args[i] = f.id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, file_path, start_line, end_line, content FROM chunks WHERE id IN (%s)",
		strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("load fused chunk rows: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*SearchResult, len(fused))
	for rows.Next() {
		var id string
		var r SearchResult
		if err := rows.Scan(&id, &r.FilePath, &r.StartLine, &r.EndLine, &r.Content); err != nil {
			return nil, err
		}
		r.MatchType = MatchTypeHybrid
		byID[id] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]*SearchResult, 0, len(fused))
	for _, f := range fused {
		r, ok := byID[f.id]
		if !ok {
			continue
		}
		r.Score = f.rrfScore
		results = append(results, r)
	}
	return results, nil
}
