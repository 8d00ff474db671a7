package chunk

import (
	"context"
	"regexp"
	"strings"
)

// MarkdownChunkerOptions configures the markdown chunker behavior.
type MarkdownChunkerOptions struct {
	MaxChunkTokens int // default: DefaultMaxChunkTokens
}

// MarkdownChunker implements header-based Markdown chunking: each
// section under a header becomes a chunk, split further by paragraph
// when it exceeds the token budget.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

var (
	// ATX headers, levels 1-6.
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

	// Leading --- frontmatter block.
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

	// Fenced code blocks, fence metadata included.
	codeBlockPattern = regexp.MustCompile("(?s)```[^`]*```")

	// Self-closing MDX components: <Component ... />
	mdxSelfClosingPattern = regexp.MustCompile(`<[A-Z][a-zA-Z0-9]*[^>]*/\s*>`)

	// Pipe tables: a header row, optionally a separator row and body rows.
	tablePattern = regexp.MustCompile(`(?m)^\|.+\|$(\n^\|[-:|]+\|$)?(\n^\|.+\|$)*`)
)

// NewMarkdownChunker creates a new markdown chunker with default options.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a new markdown chunker with custom options.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	return &MarkdownChunker{options: opts}
}

// Close releases chunker resources. MarkdownChunker is stateless.
func (c *MarkdownChunker) Close() {}

// SupportedExtensions returns file extensions this chunker handles.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// Chunk splits a markdown file into semantic chunks, one per header
// section (split further by paragraph when oversized), falling back to
// plain paragraph chunking when the file carries no headers at all.
func (c *MarkdownChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var raw []*Chunk
	remaining := content

	if fm := frontmatterPattern.FindString(remaining); fm != "" {
		raw = append(raw, c.locatedChunk(file.Content, fm))
		remaining = remaining[len(fm):]
	}

	sections := c.parseSections(remaining)
	if len(sections) == 0 {
		raw = append(raw, c.chunkByParagraphs(file.Content, remaining)...)
		return finalize(raw), nil
	}

	for _, sec := range sections {
		raw = append(raw, c.createSectionChunks(file.Content, sec)...)
	}
	return finalize(raw), nil
}

// section represents a markdown section with header info.
type section struct {
	headerLevel int
	headerTitle string
	headerPath  string
	content     string
}

// parseSections parses markdown content into sections, one per header,
// tracking a breadcrumb header path through a 6-level header stack.
func (c *MarkdownChunker) parseSections(content string) []*section {
	lines := strings.Split(content, "\n")
	var sections []*section
	headerStack := make([]string, 6)

	var current *section
	var body strings.Builder

	for _, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			if current != nil {
				current.content = body.String()
				sections = append(sections, current)
				body.Reset()
			}

			level := len(match[1])
			title := strings.TrimSpace(match[2])

			headerStack[level-1] = title
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}

			var pathParts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					pathParts = append(pathParts, headerStack[i])
				}
			}

			current = &section{
				headerLevel: level,
				headerTitle: title,
				headerPath:  strings.Join(pathParts, " > "),
			}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}

	if current != nil {
		current.content = body.String()
		sections = append(sections, current)
	}

	return sections
}

// createSectionChunks creates one or more chunks from a section,
// splitting it by paragraph when it exceeds the token budget.
func (c *MarkdownChunker) createSectionChunks(source []byte, sec *section) []*Chunk {
	content := strings.TrimRight(sec.content, "\n")

	trimmed := strings.TrimSpace(content)
	if lines := strings.Split(trimmed, "\n"); len(lines) <= 1 && headerPattern.MatchString(trimmed) {
		// Section has only its own header line, no body.
		return nil
	}

	if estimateTokens(content) <= c.options.MaxChunkTokens {
		return []*Chunk{c.locatedChunk(source, content)}
	}

	return c.splitLargeSection(source, sec, content)
}

// splitLargeSection splits a large section into multiple chunks by
// paragraph, preserving atomic blocks (code fences, tables, MDX
// components) and prefixing continuation chunks with their section path.
func (c *MarkdownChunker) splitLargeSection(source []byte, sec *section, content string) []*Chunk {
	atomicBlocks := c.findAtomicBlocks(content)
	paragraphs := c.splitByParagraphs(content, atomicBlocks)

	var chunks []*Chunk
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, c.locatedChunk(source, current.String()))
		current.Reset()
	}

	for i, para := range paragraphs {
		paraTokens := estimateTokens(para)
		currentTokens := estimateTokens(current.String())

		if current.Len() > 0 && currentTokens+paraTokens > c.options.MaxChunkTokens {
			flush()
			if i > 0 {
				current.WriteString("<!-- Section: ")
				current.WriteString(sec.headerPath)
				current.WriteString(" -->\n\n")
			}
		}

		current.WriteString(para)
		current.WriteString("\n\n")
	}
	flush()

	return chunks
}

// findAtomicBlocks finds positions of blocks that shouldn't be split.
func (c *MarkdownChunker) findAtomicBlocks(content string) [][]int {
	var blocks [][]int
	blocks = append(blocks, codeBlockPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, tablePattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, mdxSelfClosingPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, c.findMDXBlockComponents(content)...)
	return blocks
}

// findMDXBlockComponents finds MDX block components without backreferences.
func (c *MarkdownChunker) findMDXBlockComponents(content string) [][]int {
	var locs [][]int

	openTagPattern := regexp.MustCompile(`<([A-Z][a-zA-Z0-9]*)[^/>]*>`)
	matches := openTagPattern.FindAllStringSubmatchIndex(content, -1)

	for _, match := range matches {
		if len(match) < 4 {
			continue
		}
		tagName := content[match[2]:match[3]]
		closeTag := "</" + tagName + ">"
		startPos := match[0]

		closePos := strings.Index(content[match[1]:], closeTag)
		if closePos != -1 {
			endPos := match[1] + closePos + len(closeTag)
			locs = append(locs, []int{startPos, endPos})
		}
	}

	return locs
}

// splitByParagraphs splits content by blank lines, then re-merges any
// paragraph split in the middle of an atomic block.
func (c *MarkdownChunker) splitByParagraphs(content string, _ [][]int) []string {
	parts := strings.Split(content, "\n\n")

	var paragraphs []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return c.mergeAtomicBlocks(paragraphs)
}

// mergeAtomicBlocks merges paragraphs that are part of a fenced code block
// split apart by the blank-line split above.
func (c *MarkdownChunker) mergeAtomicBlocks(paragraphs []string) []string {
	var result []string
	var inCodeBlock bool
	var codeBlock strings.Builder

	for _, para := range paragraphs {
		if inCodeBlock {
			codeBlock.WriteString("\n\n")
			codeBlock.WriteString(para)
			if strings.Contains(para, "```") {
				result = append(result, codeBlock.String())
				codeBlock.Reset()
				inCodeBlock = false
			}
			continue
		}

		if openCount := strings.Count(para, "```"); openCount > 0 && openCount%2 == 1 {
			inCodeBlock = true
			codeBlock.WriteString(para)
			continue
		}

		result = append(result, para)
	}

	if inCodeBlock {
		result = append(result, codeBlock.String())
	}

	return result
}

// chunkByParagraphs chunks content with no headers at all by paragraph.
func (c *MarkdownChunker) chunkByParagraphs(source []byte, content string) []*Chunk {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []*Chunk
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, c.locatedChunk(source, current.String()))
		current.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		paraTokens := estimateTokens(para)
		currentTokens := estimateTokens(current.String())
		if current.Len() > 0 && currentTokens+paraTokens > c.options.MaxChunkTokens {
			flush()
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// locatedChunk builds a chunk from text, locating its line range within
// source via the 50-character line-mapping policy: section and
// paragraph text is assembled through repeated substring and regex
// extraction, which does not itself carry byte offsets forward.
func (c *MarkdownChunker) locatedChunk(source []byte, text string) *Chunk {
	text = strings.TrimRight(text, "\n ")
	startLine, endLine := locateLines(source, text)
	return &Chunk{
		Text:      text,
		StartLine: startLine,
		EndLine:   endLine,
	}
}
