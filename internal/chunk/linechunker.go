package chunk

import (
	"context"
	"strings"
)

// LineChunker is the fallback splitter for any file whose language the
// registry does not recognize, or whose AST carries no symbol nodes
// worth chunking on. It accumulates lines until the token budget is hit.
type LineChunker struct {
	maxTokens int
}

// NewLineChunker creates a fallback chunker. An optional maxTokens
// overrides the default budget; zero or omitted keeps DefaultMaxChunkTokens.
func NewLineChunker(maxTokens ...int) *LineChunker {
	mt := DefaultMaxChunkTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		mt = maxTokens[0]
	}
	return &LineChunker{maxTokens: mt}
}

// Chunk splits file content by accumulating whole lines until the
// token budget is reached.
func (c *LineChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return splitLines(content, 1, c.maxTokens), nil
}

// splitLines accumulates lines of text into chunks no larger than
// maxTokens, starting line numbering at startLine.
func splitLines(text string, startLine, maxTokens int) []*Chunk {
	lines := strings.Split(text, "\n")
	var chunks []*Chunk

	var buf []string
	bufTokens := 0
	bufStart := startLine

	flush := func(endLine int) {
		if len(buf) == 0 {
			return
		}
		chunks = append(chunks, &Chunk{
			Text:      strings.Join(buf, "\n"),
			StartLine: bufStart,
			EndLine:   endLine,
		})
		buf = nil
		bufTokens = 0
	}

	for i, line := range lines {
		lineNo := startLine + i
		if len(buf) == 0 {
			bufStart = lineNo
		}
		buf = append(buf, line)
		bufTokens += estimateTokens(line)
		if bufTokens >= maxTokens {
			flush(lineNo)
		}
	}
	flush(startLine + len(lines) - 1)

	return chunks
}

// locateLines implements the 50-character line-mapping policy: find
// the chunk's leading text within source and map the offset to a line
// via cumulative newline counting. Any failure to locate the text
// defaults to line 1 for both bounds, never failing the chunk.
func locateLines(source []byte, chunkText string) (startLine, endLine int) {
	prefix := chunkText
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	if prefix == "" {
		return 1, 1
	}

	offset := strings.Index(string(source), prefix)
	if offset < 0 {
		return 1, 1
	}

	startLine = 1 + strings.Count(string(source[:offset]), "\n")

	endOffset := offset + len(chunkText)
	if endOffset > len(source) {
		endOffset = len(source)
	}
	endLine = 1 + strings.Count(string(source[:endOffset]), "\n")
	if endLine < startLine {
		endLine = startLine
	}
	return startLine, endLine
}
