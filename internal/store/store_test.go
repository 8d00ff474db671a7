package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimensions = 4

func newTestStore(t *testing.T) *ChunkStore {
	t.Helper()
	s, err := NewChunkStore(t.TempDir(), testDimensions, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testChunk(id, filePath, content string, vec []float32) *Chunk {
	return &Chunk{
		ID:         id,
		FilePath:   filePath,
		ChunkIndex: 0,
		StartLine:  1,
		EndLine:    5,
		Content:    content,
		Embedding:  vec,
		FileHash:   "hash-" + filePath,
		IndexedAt:  time.Now().UTC(),
	}
}

func TestNewChunkStore_CreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewChunkStore(dir, testDimensions, slog.Default())
	require.NoError(t, err)
	defer s.Close()

	_, statErr := os.Stat(filepath.Join(dir, chunksDBFile))
	assert.NoError(t, statErr)
}

func TestNewChunkStore_ReopenExistingStore_PreservesData(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewChunkStore(dir, testDimensions, slog.Default())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s1.Add(ctx, []*Chunk{
		testChunk("c1", "a.go", "package a", []float32{1, 0, 0, 0}),
	}))
	require.NoError(t, s1.Close())

	s2, err := NewChunkStore(dir, testDimensions, slog.Default())
	require.NoError(t, err)
	defer s2.Close()

	count, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChunkStore_Add_AndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Add(ctx, []*Chunk{
		testChunk("c1", "a.go", "func A() {}", []float32{1, 0, 0, 0}),
		testChunk("c2", "b.go", "func B() {}", []float32{0, 1, 0, 0}),
	})
	require.NoError(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestChunkStore_Add_EmptyInput_IsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(context.Background(), nil))

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChunkStore_Add_DimensionMismatch_ReturnsError(t *testing.T) {
	s := newTestStore(t)
	err := s.Add(context.Background(), []*Chunk{
		testChunk("c1", "a.go", "content", []float32{1, 2}),
	})
	require.Error(t, err)
	var mismatch ErrDimensionMismatch
	assert.ErrorAs(t, err, &mismatch)
	assert.Equal(t, testDimensions, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)
}

func TestChunkStore_Upsert_ReplacesExistingChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("c1", "a.go", "original content", []float32{1, 0, 0, 0}),
	}))
	require.NoError(t, s.Upsert(ctx, []*Chunk{
		testChunk("c1", "a.go", "replaced content", []float32{0, 0, 0, 1}),
	}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "upsert on a colliding id must replace, not duplicate")

	hash, ok, err := s.GetFileHash(ctx, "a.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hash-a.go", hash)
}

func TestChunkStore_DeleteByFile_RemovesMatchingChunksOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("c1", "a.go", "content a", []float32{1, 0, 0, 0}),
		testChunk("c2", "a.go", "content a2", []float32{0, 1, 0, 0}),
		testChunk("c3", "b.go", "content b", []float32{0, 0, 1, 0}),
	}))

	deleted, err := s.DeleteByFile(ctx, "a.go")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	files, err := s.GetIndexedFiles(ctx)
	require.NoError(t, err)
	assert.NotContains(t, files, "a.go")
	assert.Contains(t, files, "b.go")
}

func TestChunkStore_DeleteByFile_SQLInjectionAttempt_DeletesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("c1", "safe.py", "content", []float32{1, 0, 0, 0}),
		testChunk("c2", "evil.py", "content", []float32{0, 1, 0, 0}),
	}))

	deleted, err := s.DeleteByFile(ctx, "' OR '1'='1")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestChunkStore_DeleteByFile_PathContainingQuote_DeletesExactMatchOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	quoted := "weird's-file.go"
	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("c1", quoted, "content", []float32{1, 0, 0, 0}),
		testChunk("c2", "normal.go", "content", []float32{0, 1, 0, 0}),
	}))

	deleted, err := s.DeleteByFile(ctx, quoted)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChunkStore_GetFileHash_AbsentFile_ReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetFileHash(context.Background(), "missing.go")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChunkStore_GetIndexedFiles_ReturnsDistinctPaths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("c1", "a.go", "content", []float32{1, 0, 0, 0}),
		testChunk("c2", "a.go", "content2", []float32{0, 1, 0, 0}),
		testChunk("c3", "b.go", "content3", []float32{0, 0, 1, 0}),
	}))

	files, err := s.GetIndexedFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, files, "a.go")
	assert.Contains(t, files, "b.go")
}

func TestChunkStore_Clear_RemovesAllChunksAndResetsFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("c1", "a.go", "content", []float32{1, 0, 0, 0}),
	}))
	require.NoError(t, s.ensureFTSIndex(ctx))
	assert.True(t, s.ftsIndexed)

	require.NoError(t, s.Clear(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.False(t, s.ftsIndexed)
	assert.False(t, s.vecIndexed)
}

func TestEscapeSQLString_DoublesSingleQuotes(t *testing.T) {
	assert.Equal(t, "''", escapeSQLString("'"))
	assert.Equal(t, "it''s", escapeSQLString("it's"))
	assert.Equal(t, "no quotes", escapeSQLString("no quotes"))
	assert.Equal(t, "a''b''c", escapeSQLString("a'b'c"))
}
