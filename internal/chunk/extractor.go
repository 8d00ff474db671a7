package chunk

import (
	"strings"
)

// symbolKinds flattens a language config's node-type lists into one
// lookup table from grammar node type to the Symbol taxonomy.
func symbolKinds(config *LanguageConfig) map[string]SymbolType {
	kinds := make(map[string]SymbolType)
	add := func(types []string, kind SymbolType) {
		for _, t := range types {
			kinds[t] = kind
		}
	}
	add(config.FunctionTypes, SymbolTypeFunction)
	add(config.MethodTypes, SymbolTypeMethod)
	add(config.ClassTypes, SymbolTypeClass)
	add(config.InterfaceTypes, SymbolTypeInterface)
	add(config.TypeDefTypes, SymbolTypeType)
	add(config.ConstantTypes, SymbolTypeConstant)
	add(config.VariableTypes, SymbolTypeVariable)
	return kinds
}

// SymbolExtractor locates named symbols in a parsed AST. The code
// chunker drives it node by node; Extract walks a whole tree.
type SymbolExtractor struct {
	registry *LanguageRegistry
}

// NewSymbolExtractorWithRegistry creates an extractor over registry.
func NewSymbolExtractorWithRegistry(registry *LanguageRegistry) *SymbolExtractor {
	return &SymbolExtractor{registry: registry}
}

// Extract returns every named symbol in tree, in walk order. Always
// returns a non-nil slice.
func (e *SymbolExtractor) Extract(tree *Tree, source []byte) []*Symbol {
	symbols := []*Symbol{}
	if tree == nil || tree.Root == nil {
		return symbols
	}
	config, ok := e.registry.GetByName(tree.Language)
	if !ok {
		return symbols
	}

	kinds := symbolKinds(config)
	tree.Root.Walk(func(n *Node) bool {
		if sym := e.symbolFor(n, source, kinds, tree.Language); sym != nil {
			symbols = append(symbols, sym)
		}
		return true
	})
	return symbols
}

// symbolFor builds a Symbol for n if it is a symbol-defining node.
func (e *SymbolExtractor) symbolFor(n *Node, source []byte, kinds map[string]SymbolType, language string) *Symbol {
	kind, ok := kinds[n.Type]
	if !ok {
		return e.extractSpecialSymbol(n, source, language)
	}

	name := e.extractName(n, source, language)
	if name == "" {
		return nil
	}

	return &Symbol{
		Name:       name,
		Type:       kind,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: e.extractDocComment(n, source, language),
	}
}

// extractName pulls the declared name out of a symbol node. Each
// grammar buries the identifier somewhere different.
func (e *SymbolExtractor) extractName(n *Node, source []byte, language string) string {
	switch language {
	case "go":
		return goSymbolName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return jsSymbolName(n, source)
	default:
		return childContent(n, source, "identifier")
	}
}

// childContent returns the source text of the first direct child whose
// type matches any of types, in the order given.
func childContent(n *Node, source []byte, types ...string) string {
	for _, t := range types {
		if c := n.FindChildByType(t); c != nil {
			return c.GetContent(source)
		}
	}
	return ""
}

func goSymbolName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		return childContent(n, source, "identifier")
	case "method_declaration":
		// The method name is a field_identifier; the plain identifier
		// under a method node is the receiver.
		return childContent(n, source, "field_identifier")
	case "type_declaration":
		if spec := n.FindChildByType("type_spec"); spec != nil {
			return childContent(spec, source, "type_identifier")
		}
	case "const_declaration":
		// Grouped const blocks carry one const_spec per name; the first
		// name stands in for the group.
		if spec := n.FindChildByType("const_spec"); spec != nil {
			return childContent(spec, source, "identifier")
		}
	case "var_declaration":
		if spec := n.FindChildByType("var_spec"); spec != nil {
			return childContent(spec, source, "identifier")
		}
	}
	return ""
}

func jsSymbolName(n *Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		for _, decl := range n.FindChildrenByType("variable_declarator") {
			if name := childContent(decl, source, "identifier"); name != "" {
				return name
			}
		}
		return ""
	}
	return childContent(n, source, "identifier", "type_identifier")
}

// extractSpecialSymbol catches function values bound through const/let/
// var in the JS family, which the grammar reports as declarations
// rather than function nodes.
func (e *SymbolExtractor) extractSpecialSymbol(n *Node, source []byte, language string) *Symbol {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
	default:
		return nil
	}
	if n.Type != "lexical_declaration" && n.Type != "variable_declaration" {
		return nil
	}
	return e.extractJSVariableFunctionSymbol(n, source)
}

// extractJSVariableFunctionSymbol returns a function Symbol for the
// first declarator in n that binds a name to an arrow function or
// function expression, or nil if none does.
func (e *SymbolExtractor) extractJSVariableFunctionSymbol(n *Node, source []byte) *Symbol {
	for _, decl := range n.FindChildrenByType("variable_declarator") {
		name := childContent(decl, source, "identifier")
		if name == "" {
			continue
		}
		if decl.FindChildByType("arrow_function") == nil &&
			decl.FindChildByType("function") == nil &&
			decl.FindChildByType("function_expression") == nil {
			continue
		}
		return &Symbol{
			Name:      name,
			Type:      SymbolTypeFunction,
			StartLine: int(n.StartPoint.Row) + 1,
			EndLine:   int(n.EndPoint.Row) + 1,
		}
	}
	return nil
}

// extractDocComment returns the line comment directly above n with its
// marker stripped, or "". Python documents with docstrings inside the
// body, which the chunk text already carries, so it gets nothing here.
func (e *SymbolExtractor) extractDocComment(n *Node, source []byte, language string) string {
	switch language {
	case "go", "javascript", "jsx", "typescript", "tsx":
	default:
		return ""
	}
	if n.StartPoint.Row == 0 {
		return ""
	}

	line := precedingLine(source, int(n.StartByte))
	if strings.HasPrefix(line, "//") {
		return strings.TrimPrefix(line, "//")
	}
	return ""
}

// precedingLine returns the trimmed text of the line before the line
// containing offset, or "" at the top of the file.
func precedingLine(source []byte, offset int) string {
	lineStart := offset
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}

	prevEnd := lineStart - 1
	prevStart := prevEnd
	for prevStart > 0 && source[prevStart-1] != '\n' {
		prevStart--
	}
	return strings.TrimSpace(string(source[prevStart:prevEnd]))
}
