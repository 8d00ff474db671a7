package chunk

import (
	"context"
	"strings"
)

// CodeChunker implements AST-aware code chunking using tree-sitter for
// languages the registry knows, and falls back to a line-based
// splitter for everything else.
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	fallback  *LineChunker
	maxTokens int
}

// NewCodeChunker creates a code chunker over the given language
// registry. An optional maxTokens overrides the token budget applied
// both to oversized-symbol splitting and to the line-based fallback.
func NewCodeChunker(registry *LanguageRegistry, maxTokens ...int) *CodeChunker {
	mt := DefaultMaxChunkTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		mt = maxTokens[0]
	}
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		fallback:  NewLineChunker(mt),
		maxTokens: mt,
	}
}

// Close releases chunker resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// Chunk splits a file into semantic chunks. Chunks below MinChunkTokens
// are dropped and ChunkIndex is assigned densely over the survivors.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if strings.TrimSpace(string(file.Content)) == "" {
		return nil, nil
	}

	var raw []*Chunk
	if _, supported := c.registry.GetByName(file.Language); supported {
		tree, err := c.parser.Parse(ctx, file.Content, file.Language)
		if err == nil {
			raw = c.chunkFromTree(tree, file)
		}
	}
	if raw == nil {
		var err error
		raw, err = c.fallback.Chunk(ctx, file)
		if err != nil {
			return nil, err
		}
	}

	return finalize(raw), nil
}

// chunkFromTree walks the parsed tree for symbol-defining nodes and
// turns each into one chunk (splitting oversized ones by line), or nil
// if the tree has no symbols worth chunking on, signaling the caller to
// fall back to line-based chunking.
func (c *CodeChunker) chunkFromTree(tree *Tree, file *FileInput) []*Chunk {
	nodes := c.findSymbolNodes(tree, file.Language)
	if len(nodes) == 0 {
		return nil
	}

	var chunks []*Chunk
	for _, n := range nodes {
		text := string(tree.Source[n.node.StartByte:n.node.EndByte])
		if docStart, ok := c.docCommentStart(n.node, tree.Source, n.symbol.DocComment); ok {
			text = string(tree.Source[docStart:n.node.EndByte])
		}

		if estimateTokens(text) <= c.maxTokens {
			chunks = append(chunks, &Chunk{
				Text:      text,
				StartLine: n.symbol.StartLine,
				EndLine:   n.symbol.EndLine,
			})
			continue
		}
		chunks = append(chunks, splitLines(text, n.symbol.StartLine, c.maxTokens)...)
	}
	return chunks
}

type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

func (c *CodeChunker) findSymbolNodes(tree *Tree, language string) []*symbolNodeInfo {
	config, ok := c.registry.GetByName(language)
	if !ok {
		return nil
	}

	symbolTypes := symbolKinds(config)

	var nodes []*symbolNodeInfo
	tree.Root.Walk(func(n *Node) bool {
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			if sym := c.extractor.extractSpecialSymbol(n, tree.Source, language); sym != nil {
				nodes = append(nodes, &symbolNodeInfo{node: n, symbol: sym})
				return true
			}
		}
		if symType, ok := symbolTypes[n.Type]; ok {
			name := c.extractor.extractName(n, tree.Source, language)
			if name != "" {
				nodes = append(nodes, &symbolNodeInfo{node: n, symbol: &Symbol{
					Name:       name,
					Type:       symType,
					StartLine:  int(n.StartPoint.Row) + 1,
					EndLine:    int(n.EndPoint.Row) + 1,
					DocComment: c.extractor.extractDocComment(n, tree.Source, language),
				}})
			}
		}
		return true
	})
	return nodes
}

// docCommentStart locates where a doc comment preceding node begins, so
// it can be folded into the chunk text.
func (c *CodeChunker) docCommentStart(n *Node, source []byte, docComment string) (int, bool) {
	if docComment == "" {
		return 0, false
	}
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}
	return lineStart, true
}

// estimateTokens is the whitespace-split token estimate used when the
// parser itself does not report a token count.
func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

// finalize assigns dense chunk indices, drops chunks below
// MinChunkTokens, and fills in TokenCount.
func finalize(chunks []*Chunk) []*Chunk {
	out := make([]*Chunk, 0, len(chunks))
	for _, ch := range chunks {
		ch.TokenCount = estimateTokens(ch.Text)
		if ch.TokenCount < MinChunkTokens {
			continue
		}
		ch.ChunkIndex = len(out)
		out = append(out, ch)
	}
	return out
}
