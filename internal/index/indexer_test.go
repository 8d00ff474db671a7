package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgrepd/lgrepd/internal/chunk"
	"github.com/lgrepd/lgrepd/internal/discovery"
	"github.com/lgrepd/lgrepd/internal/store"
)

const testDimensions = 4

// fakeEmbedder returns a deterministic vector per call and counts how
// many times it was invoked, so tests can assert the hash-skip contract
// (no embedding calls on an unchanged file).
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, int, error) {
	f.calls++
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return vecs, len(texts) * 10, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func newTestIndexer(t *testing.T, rootDir string) (*Indexer, *fakeEmbedder) {
	t.Helper()
	disc, err := discovery.New()
	require.NoError(t, err)

	st, err := store.NewChunkStore(t.TempDir(), testDimensions, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	embedder := &fakeEmbedder{}
	ix := New(rootDir, disc, chunk.NewDispatcher(chunk.NewLanguageRegistry()), embedder, st, slog.Default())
	return ix, embedder
}

func writeFile(t *testing.T, dir, relPath, content string) string {
	t.Helper()
	abs := filepath.Join(dir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func TestIndexFile_HashSkip_NoEmbeddingOnUnchangedFile(t *testing.T) {
	root := t.TempDir()
	abs := writeFile(t, root, "auth.go", `package auth

func Login(user string, password string) error {
	if user == "" {
		return errEmptyUser
	}
	if password == "" {
		return errEmptyPassword
	}
	return checkCredentials(user, password)
}
`)

	ix, embedder := newTestIndexer(t, root)
	ctx := context.Background()

	n, _, err := ix.IndexFile(ctx, abs)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	callsAfterFirst := embedder.calls
	assert.Greater(t, callsAfterFirst, 0)

	n2, tokens2, err := ix.IndexFile(ctx, abs)
	require.NoError(t, err)
	assert.Equal(t, 0, n2)
	assert.Equal(t, 0, tokens2)
	assert.Equal(t, callsAfterFirst, embedder.calls, "unchanged file must not trigger further embedding calls")

	count, err := ix.Store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestIndexFile_EmptyFileProducesNoChunks(t *testing.T) {
	root := t.TempDir()
	abs := writeFile(t, root, "empty.go", "   \n\t\n")

	ix, _ := newTestIndexer(t, root)
	n, tokens, err := ix.IndexFile(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, tokens)
}

func TestIndexFile_ShrinkingFileDropsTrailingChunks(t *testing.T) {
	root := t.TempDir()
	big := `package main

func A() int {
	total := 0
	for i := 0; i < 10; i++ {
		total += i * 2
	}
	return total
}

func B() int {
	values := []int{1, 2, 3, 4, 5}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return sum
}

func C() int {
	result := 1
	for i := 1; i <= 6; i++ {
		result *= i
	}
	return result
}
`
	abs := writeFile(t, root, "main.go", big)

	ix, _ := newTestIndexer(t, root)
	ctx := context.Background()

	n1, _, err := ix.IndexFile(ctx, abs)
	require.NoError(t, err)
	require.Greater(t, n1, 1)

	small := `package main

func A() int {
	total := 0
	for i := 0; i < 10; i++ {
		total += i * 2
	}
	return total
}
`
	require.NoError(t, os.WriteFile(abs, []byte(small), 0o644))

	n2, _, err := ix.IndexFile(ctx, abs)
	require.NoError(t, err)
	assert.Less(t, n2, n1)

	count, err := ix.Store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n2, count)
}

func TestIndexAll_StaleReconciliation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.go", `package main

func Keep() string {
	parts := []string{"this", "file", "stays", "indexed"}
	return strings.Join(parts, " ")
}
`)
	staleAbs := writeFile(t, root, "gone.go", `package main

func Gone() string {
	parts := []string{"this", "file", "will", "be", "removed"}
	return strings.Join(parts, " ")
}
`)

	ix, _ := newTestIndexer(t, root)
	ctx := context.Background()

	status, err := ix.IndexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.FileCount)
	assert.Greater(t, status.ChunkCount, 0)

	require.NoError(t, os.Remove(staleAbs))

	status2, err := ix.IndexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status2.FileCount)

	files, err := ix.Store.GetIndexedFiles(ctx)
	require.NoError(t, err)
	_, hasGone := files["gone.go"]
	assert.False(t, hasGone)
	_, hasKeep := files["keep.go"]
	assert.True(t, hasKeep)
}
