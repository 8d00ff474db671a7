package chunk

import (
	"context"
)

// Dispatcher is the Chunker implementation the Indexer calls: it routes
// a file to the markdown chunker, the tree-sitter code chunker, or the
// line-based fallback by its recognized language, then applies the
// shared finalize step (dense ChunkIndex, TokenCount, MinChunkTokens
// floor) exactly once regardless of which path produced the chunks.
type Dispatcher struct {
	code     *CodeChunker
	markdown *MarkdownChunker
	fallback *LineChunker
}

// NewDispatcher builds a Dispatcher over the given language registry.
// An optional maxTokens overrides the chunk token budget for both the
// code chunker and the line-based fallback.
func NewDispatcher(registry *LanguageRegistry, maxTokens ...int) *Dispatcher {
	return &Dispatcher{
		code:     NewCodeChunker(registry, maxTokens...),
		markdown: NewMarkdownChunker(),
		fallback: NewLineChunker(maxTokens...),
	}
}

// Close releases any resources held by the underlying chunkers.
func (d *Dispatcher) Close() {
	d.code.Close()
}

// Chunk splits file into chunks: syntax-aware for recognized
// languages, falling back to line-based splitting for everything else.
// Empty or whitespace-only content yields zero chunks, never an error.
// CodeChunker and MarkdownChunker each run their chunks through the
// shared finalize() step themselves; LineChunker's output is finalized
// here since it has no symbol/section structure to fold in.
func (d *Dispatcher) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	switch file.Language {
	case "markdown":
		return d.markdown.Chunk(ctx, file)
	case "":
		chunks, err := d.fallback.Chunk(ctx, file)
		if err != nil {
			return nil, err
		}
		return finalize(chunks), nil
	default:
		return d.code.Chunk(ctx, file)
	}
}

var _ Chunker = (*Dispatcher)(nil)
