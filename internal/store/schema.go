package store

import (
	"database/sql"
	"fmt"
)

const createChunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	content TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	indexed_at TEXT NOT NULL
)
`

const createChunksFileIndex = `
CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path)
`

// createSchema creates the chunks table, its supporting index, and
// sqlite-vec's vec0 table. The FTS5 virtual table is created lazily
// (ensureFTSIndex) rather than here; vec0 is created eagerly since it is
// the only place embeddings can be written and Add/Upsert need it from
// their very first call.
func createSchema(db *sql.DB, dimensions int) error {
	if _, err := db.Exec(createChunksTable); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}
	if _, err := db.Exec(createChunksFileIndex); err != nil {
		return fmt.Errorf("create chunks index: %w", err)
	}
	if err := createVectorTable(db, dimensions); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}
	return nil
}

func createVectorTable(db *sql.DB, dimensions int) error {
	createSQL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d]
		)`, dimensions)
	_, err := db.Exec(createSQL)
	return err
}

// escapeSQLString escapes a string for embedding directly into a SQL
// predicate, doubling single quotes per the SQL standard. Used for
// delete_by_file and get_file_hash, whose file_path argument is
// untrusted input.
func escapeSQLString(value string) string {
	escaped := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		if value[i] == '\'' {
			escaped = append(escaped, '\'', '\'')
			continue
		}
		escaped = append(escaped, value[i])
	}
	return string(escaped)
}
