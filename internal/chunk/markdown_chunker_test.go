package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownChunker_SupportedExtensions(t *testing.T) {
	c := NewMarkdownChunker()
	assert.ElementsMatch(t, []string{".md", ".markdown", ".mdx"}, c.SupportedExtensions())
}

func TestMarkdownChunker_EmptyFile_ReturnsNoChunks(t *testing.T) {
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.md", Content: []byte("  \n\n ")})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestMarkdownChunker_Frontmatter_ExtractedAsOwnChunk(t *testing.T) {
	content := "---\ntitle: Example Document\nauthor: someone\ntags: docs, markdown, testing, chunking\ndescription: a longer frontmatter block used to clear the token floor\n---\n\n# Heading\n\nSome body content that is long enough to survive the token floor.\n"

	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.md", Content: []byte(content)})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	found := false
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "title: Example Document") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMarkdownChunker_HeaderSections_OneChunkPerSection(t *testing.T) {
	content := `# Introduction

This is the introduction section with enough words in it to clear the token floor easily.

## Background

This is the background section, also long enough on its own to survive the minimum token threshold.
`
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(content)})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0].Text, "# Introduction")
	assert.Contains(t, chunks[1].Text, "## Background")
}

func TestMarkdownChunker_HeaderOnlySection_Skipped(t *testing.T) {
	content := `# Introduction

This section has real content that is long enough to clear the minimum token floor on its own.

## Empty Section
`
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(content)})
	require.NoError(t, err)

	for _, ch := range chunks {
		assert.NotContains(t, ch.Text, "## Empty Section")
	}
}

func TestMarkdownChunker_NoHeaders_ChunksByParagraph(t *testing.T) {
	content := "First paragraph with plenty of words to clear the token floor on its own merit.\n\nSecond paragraph, also with plenty of words to clear the same token floor easily.\n"

	// Paragraphs are packed up to the token budget; 15 + 14 tokens exceeds
	// a 20-token budget, so the split falls on the paragraph boundary.
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MaxChunkTokens: 20})
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(content)})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0].Text, "First paragraph")
	assert.Contains(t, chunks[1].Text, "Second paragraph")
}

func TestMarkdownChunker_LargeSection_SplitByParagraphWithContinuationMarker(t *testing.T) {
	var body strings.Builder
	body.WriteString("# Big Section\n\n")
	for i := 0; i < 200; i++ {
		body.WriteString("This is paragraph number filler text to pad out the section well past the configured token budget for a single chunk.\n\n")
	}

	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MaxChunkTokens: 100})
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(body.String())})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	foundMarker := false
	for _, ch := range chunks[1:] {
		if strings.Contains(ch.Text, "<!-- Section: Big Section -->") {
			foundMarker = true
		}
	}
	assert.True(t, foundMarker)
}

func TestMarkdownChunker_CodeBlockNotSplitMidFence(t *testing.T) {
	var pad strings.Builder
	for i := 0; i < 60; i++ {
		pad.WriteString("padding text to push this section over the token budget threshold for testing purposes only.\n\n")
	}

	content := "# Section\n\n" + pad.String() + "```go\nfunc example() {\n\treturn\n}\n```\n\nmore trailing text after the fenced code block that also has some length to it.\n"

	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MaxChunkTokens: 80})
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(content)})
	require.NoError(t, err)

	for _, ch := range chunks {
		if strings.Contains(ch.Text, "```go") {
			assert.Equal(t, 2, strings.Count(ch.Text, "```"))
		}
	}
}

func TestMarkdownChunker_ChunkIndicesAreDense(t *testing.T) {
	content := `# One

Enough words here to clear the minimum token floor for this first section easily.

# Two

Enough words here as well to clear the minimum token floor for this second section.
`
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(content)})
	require.NoError(t, err)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
	}
}

func TestLocateLines_FindsOffsetWithinSource(t *testing.T) {
	source := []byte("line one\nline two\nline three\nline four\n")
	start, end := locateLines(source, "line three\nline four")
	assert.Equal(t, 3, start)
	assert.Equal(t, 4, end)
}

func TestLocateLines_NotFound_DefaultsToOne(t *testing.T) {
	source := []byte("line one\nline two\n")
	start, end := locateLines(source, "not present anywhere in the source")
	assert.Equal(t, 1, start)
	assert.Equal(t, 1, end)
}

func TestLocateLines_EmptyChunkText_DefaultsToOne(t *testing.T) {
	source := []byte("line one\nline two\n")
	start, end := locateLines(source, "")
	assert.Equal(t, 1, start)
	assert.Equal(t, 1, end)
}
