package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

var codeStopWords = BuildStopWordMap(DefaultCodeStopWords)

// DefaultCodeStopWords contains programming keywords filtered out of
// FTS5 content so they never dominate a match.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

func ftsContent(content string) string {
	tokens := FilterStopWords(TokenizeCode(content), codeStopWords)
	return strings.Join(tokens, " ")
}

// Add appends chunks to the store. Callers that might collide on id
// should use Upsert instead.
func (s *ChunkStore) Add(ctx context.Context, chunks []*Chunk) error {
	return s.write(ctx, chunks, false)
}

// Upsert inserts chunks with an absent id and replaces every field on
// a colliding id.
func (s *ChunkStore) Upsert(ctx context.Context, chunks []*Chunk) error {
	return s.write(ctx, chunks, true)
}

func (s *ChunkStore) write(ctx context.Context, chunks []*Chunk, replaceExisting bool) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deleteChunk, deleteVec, deleteFTS *sql.Stmt
	if replaceExisting {
		deleteChunk, err = tx.PrepareContext(ctx, "DELETE FROM chunks WHERE id = ?")
		if err != nil {
			return fmt.Errorf("prepare chunk delete: %w", err)
		}
		defer deleteChunk.Close()

		deleteVec, err = tx.PrepareContext(ctx, "DELETE FROM chunks_vec WHERE chunk_id = ?")
		if err != nil {
			return fmt.Errorf("prepare vector delete: %w", err)
		}
		defer deleteVec.Close()

		if s.ftsIndexed {
			deleteFTS, err = tx.PrepareContext(ctx, "DELETE FROM chunks_fts WHERE chunk_id = ?")
			if err != nil {
				return fmt.Errorf("prepare fts delete: %w", err)
			}
			defer deleteFTS.Close()
		}
	}

	insertChunk, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_path, chunk_index, start_line, end_line, content, file_hash, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer insertChunk.Close()

	insertVec, err := tx.PrepareContext(ctx, "INSERT INTO chunks_vec (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare vector insert: %w", err)
	}
	defer insertVec.Close()

	var insertFTS *sql.Stmt
	if s.ftsIndexed {
		insertFTS, err = tx.PrepareContext(ctx, "INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)")
		if err != nil {
			return fmt.Errorf("prepare fts insert: %w", err)
		}
		defer insertFTS.Close()
	}

	for _, c := range chunks {
		if len(c.Embedding) != s.dimensions {
			return ErrDimensionMismatch{Expected: s.dimensions, Got: len(c.Embedding)}
		}

		if replaceExisting {
			if _, err := deleteChunk.ExecContext(ctx, c.ID); err != nil {
				return fmt.Errorf("delete existing chunk %s: %w", c.ID, err)
			}
			if _, err := deleteVec.ExecContext(ctx, c.ID); err != nil {
				return fmt.Errorf("delete existing vector %s: %w", c.ID, err)
			}
			if deleteFTS != nil {
				if _, err := deleteFTS.ExecContext(ctx, c.ID); err != nil {
					return fmt.Errorf("delete existing fts entry %s: %w", c.ID, err)
				}
			}
		}

		indexedAt := c.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now().UTC()
		}
		if _, err := insertChunk.ExecContext(ctx, c.ID, c.FilePath, c.ChunkIndex, c.StartLine, c.EndLine,
			c.Content, c.FileHash, indexedAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}

		embBytes, err := sqlite_vec.SerializeFloat32(c.Embedding)
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %s: %w", c.ID, err)
		}
		if _, err := insertVec.ExecContext(ctx, c.ID, embBytes); err != nil {
			return fmt.Errorf("insert vector for chunk %s: %w", c.ID, err)
		}

		if insertFTS != nil {
			if _, err := insertFTS.ExecContext(ctx, c.ID, ftsContent(c.Content)); err != nil {
				return fmt.Errorf("insert fts entry for chunk %s: %w", c.ID, err)
			}
		}
	}

	return tx.Commit()
}

// DeleteByFile removes every chunk whose file_path matches path,
// returning the number of rows removed. path is untrusted input: it is
// embedded into the SQL predicate with single quotes doubled rather
// than passed as a parameter, matching the escaping rule the rest of
// this store's delete paths rely on.
func (s *ChunkStore) DeleteByFile(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	safe := escapeSQLString(path)

	idRows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM chunks WHERE file_path = '%s'", safe))
	if err != nil {
		return 0, fmt.Errorf("select chunk ids for %s: %w", path, err)
	}
	var ids []string
	for idRows.Next() {
		var id string
		if err := idRows.Scan(&id); err != nil {
			idRows.Close()
			return 0, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := idRows.Err(); err != nil {
		idRows.Close()
		return 0, err
	}
	idRows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM chunks WHERE file_path = '%s'", safe)); err != nil {
		return 0, fmt.Errorf("delete chunks for %s: %w", path, err)
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM chunks_vec WHERE chunk_id IN (%s)", inClause), args...); err != nil {
		return 0, fmt.Errorf("delete vectors for %s: %w", path, err)
	}
	if s.ftsIndexed {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM chunks_fts WHERE chunk_id IN (%s)", inClause), args...); err != nil {
			return 0, fmt.Errorf("delete fts entries for %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete for %s: %w", path, err)
	}
	return len(ids), nil
}

// GetFileHash returns the stored hash of any chunk for path, and
// whether one was found.
func (s *ChunkStore) GetFileHash(ctx context.Context, path string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	safe := escapeSQLString(path)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT file_hash FROM chunks WHERE file_path = '%s' LIMIT 1", safe))

	var hash string
	if err := row.Scan(&hash); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get file hash for %s: %w", path, err)
	}
	return hash, true, nil
}

// GetIndexedFiles returns the set of distinct file_paths currently
// represented in the store. Only the file_path column is projected —
// the embedding column is never materialized.
func (s *ChunkStore) GetIndexedFiles(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT file_path FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("list indexed files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan file path: %w", err)
		}
		files[path] = struct{}{}
	}
	return files, rows.Err()
}

// Count returns the total number of chunks in the store.
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(ctx)
}

func (s *ChunkStore) countLocked(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// Clear removes every chunk and resets the lazy index flags so the
// next search rebuilds them from scratch.
func (s *ChunkStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS chunks",
		"DROP TABLE IF EXISTS chunks_vec",
		"DROP TABLE IF EXISTS chunks_fts",
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear store (%s): %w", stmt, err)
		}
	}
	if err := createSchema(s.db, s.dimensions); err != nil {
		return fmt.Errorf("recreate schema after clear: %w", err)
	}
	s.ftsIndexed = false
	s.vecIndexed = false
	return nil
}
