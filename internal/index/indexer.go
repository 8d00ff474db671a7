// Package index implements the Indexer: the component that orchestrates
// discovery, chunking, and embedding into a project's ChunkStore, for
// both a full-tree reindex and a single changed file.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lgrepd/lgrepd/internal/chunk"
	"github.com/lgrepd/lgrepd/internal/discovery"
	"github.com/lgrepd/lgrepd/internal/embed"
	"github.com/lgrepd/lgrepd/internal/store"
)

// Status is the aggregate result of a full-tree index run.
type Status struct {
	FileCount   int
	ChunkCount  int
	TotalTokens int
	DurationMs  float64
}

// Indexer orchestrates discovery -> chunking -> embedding -> store for
// one project, rooted at RootDir.
type Indexer struct {
	RootDir   string
	Discovery *discovery.Discovery
	Chunker   chunk.Chunker
	Embedder  embed.Embedder
	Store     *store.ChunkStore
	Logger    *slog.Logger
}

// New builds an Indexer for one project.
func New(rootDir string, disc *discovery.Discovery, chunker chunk.Chunker, embedder embed.Embedder, st *store.ChunkStore, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		RootDir:   rootDir,
		Discovery: disc,
		Chunker:   chunker,
		Embedder:  embedder,
		Store:     st,
		Logger:    logger,
	}
}

// IndexAll reindexes the whole tree: snapshot discovery, delete
// anything indexed that no longer exists on disk, then index every file
// in the snapshot. A single file's failure is logged and skipped; it
// never aborts the run.
func (ix *Indexer) IndexAll(ctx context.Context) (*Status, error) {
	start := time.Now()

	results, err := ix.Discovery.Walk(ctx, discovery.Options{RootDir: ix.RootDir})
	if err != nil {
		return nil, fmt.Errorf("start discovery walk: %w", err)
	}

	var snapshot []*discovery.File
	for r := range results {
		if r.Error != nil {
			ix.Logger.Warn("discovery_error", "root_dir", ix.RootDir, "error", r.Error)
			continue
		}
		snapshot = append(snapshot, r.File)
	}

	onDisk := make(map[string]struct{}, len(snapshot))
	for _, f := range snapshot {
		onDisk[f.Path] = struct{}{}
	}

	indexed, err := ix.Store.GetIndexedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexed files: %w", err)
	}
	for path := range indexed {
		if _, ok := onDisk[path]; ok {
			continue
		}
		if _, err := ix.Store.DeleteByFile(ctx, path); err != nil {
			ix.Logger.Warn("stale_file_delete_failed", "path", path, "error", err)
		}
	}

	status := &Status{}
	for _, f := range snapshot {
		n, tokens, err := ix.IndexFile(ctx, f.AbsPath)
		if err != nil {
			ix.Logger.Warn("index_file_failed", "path", f.Path, "error", err)
			continue
		}
		status.FileCount++
		status.ChunkCount += n
		status.TotalTokens += tokens
	}

	status.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
	return status, nil
}

// IndexFile indexes one file, returning the number of chunks written
// and tokens billed. absPath must live under RootDir. An unchanged
// content hash skips embedding and writing entirely.
func (ix *Indexer) IndexFile(ctx context.Context, absPath string) (int, int, error) {
	relPath, err := filepath.Rel(ix.RootDir, absPath)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve project-relative path: %w", err)
	}
	relPath = filepath.ToSlash(relPath)

	content, err := os.ReadFile(absPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read file: %w", err)
	}

	hash := contentHash(content)
	if existing, found, err := ix.Store.GetFileHash(ctx, relPath); err != nil {
		return 0, 0, fmt.Errorf("get stored file hash: %w", err)
	} else if found && existing == hash {
		return 0, 0, nil
	}

	chunks, err := ix.Chunker.Chunk(ctx, &chunk.FileInput{
		Path:     relPath,
		Content:  content,
		Language: discovery.DetectLanguage(relPath),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("chunk file: %w", err)
	}
	if len(chunks) == 0 {
		if _, err := ix.Store.DeleteByFile(ctx, relPath); err != nil {
			return 0, 0, fmt.Errorf("delete file with no chunks: %w", err)
		}
		return 0, 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, tokens, err := ix.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, 0, fmt.Errorf("embed chunks: %w", err)
	}

	now := time.Now().UTC()
	storeChunks := make([]*store.Chunk, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = &store.Chunk{
			ID:         chunkID(relPath, hash, c.ChunkIndex),
			FilePath:   relPath,
			ChunkIndex: c.ChunkIndex,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			Content:    c.Text,
			Embedding:  vectors[i],
			FileHash:   hash,
			IndexedAt:  now,
		}
	}

	// Delete-then-add, not upsert: upsert-by-id would not remove trailing
	// chunks left over from a file that shrank.
	if _, err := ix.Store.DeleteByFile(ctx, relPath); err != nil {
		return 0, 0, fmt.Errorf("delete previous chunks before re-add: %w", err)
	}
	if err := ix.Store.Add(ctx, storeChunks); err != nil {
		return 0, 0, fmt.Errorf("add new chunks: %w", err)
	}

	return len(storeChunks), tokens, nil
}

// DeleteByFile removes every chunk indexed for relPath. Used by the
// watcher on a delete event, where there is no content left to hash or
// chunk and the index must simply drop whatever it has for that path.
func (ix *Indexer) DeleteByFile(ctx context.Context, relPath string) error {
	_, err := ix.Store.DeleteByFile(ctx, relPath)
	return err
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// chunkID is content-addressable on (file_path, file_hash, chunk_index)
// so re-indexing an unchanged file reproduces identical ids.
func chunkID(relPath, fileHash string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", relPath, fileHash, chunkIndex)))
	return hex.EncodeToString(sum[:])
}
