package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

var registerVectorExtensionOnce sync.Once

// registerVectorExtension wires sqlite-vec into every future database/sql
// connection. It must run before any ChunkStore opens a database.
func registerVectorExtension() {
	registerVectorExtensionOnce.Do(sqlite_vec.Auto)
}

const chunksDBFile = "chunks.db"

// ChunkStore is a single project's persistent chunk database: chunk
// content and metadata in a plain table, embeddings in a sqlite-vec
// vec0 virtual table, and an FTS5 full-text index built lazily at
// first hybrid search.
type ChunkStore struct {
	mu         sync.RWMutex
	db         *sql.DB
	rootDir    string
	dimensions int
	logger     *slog.Logger

	ftsIndexed bool
	vecIndexed bool
}

// NewChunkStore opens (creating if absent) the chunk store rooted at
// rootDir. If the underlying database fails to open, rootDir's
// contents are wiped and the open is retried exactly once. If the
// chunks table itself is unopenable once connected, it is dropped and
// recreated.
func NewChunkStore(rootDir string, dimensions int, logger *slog.Logger) (*ChunkStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registerVectorExtension()

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk store directory: %w", err)
	}

	dbPath := filepath.Join(rootDir, chunksDBFile)
	db, err := openAndPing(dbPath)
	if err != nil {
		logger.Warn("chunk_store_connection_failed", "root_dir", rootDir, "error", err,
			"action", "clearing and reconnecting")
		if clearErr := clearDirContents(rootDir); clearErr != nil {
			return nil, fmt.Errorf("clear corrupted chunk store directory: %w", clearErr)
		}
		db, err = openAndPing(dbPath)
		if err != nil {
			return nil, fmt.Errorf("reconnect to chunk store after clearing directory: %w", err)
		}
	}

	s := &ChunkStore{db: db, rootDir: rootDir, dimensions: dimensions, logger: logger}
	if err := s.openSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("chunk_store_connected", "root_dir", rootDir)
	return s, nil
}

func openAndPing(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func clearDirContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// openSchema creates the base schema, recovering once from a corrupted
// chunks table by dropping and recreating it.
func (s *ChunkStore) openSchema() error {
	if err := createSchema(s.db, s.dimensions); err != nil {
		s.logger.Warn("chunk_table_open_failed", "error", err, "action", "dropping and recreating table")
		for _, stmt := range []string{
			"DROP TABLE IF EXISTS chunks",
			"DROP TABLE IF EXISTS chunks_vec",
			"DROP TABLE IF EXISTS chunks_fts",
		} {
			_, _ = s.db.Exec(stmt)
		}
		if err := createSchema(s.db, s.dimensions); err != nil {
			return fmt.Errorf("recreate chunks schema after corruption: %w", err)
		}
		s.logger.Info("chunk_table_recreated_after_corruption")
	}
	return nil
}

// Close flushes the WAL and closes the underlying database.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
