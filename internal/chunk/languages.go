package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry holds the languages with a compiled-in tree-sitter
// grammar and their symbol-node configurations. Every other recognized
// language falls back to line-based chunking.
type LanguageRegistry struct {
	mu        sync.RWMutex
	configs   map[string]*LanguageConfig
	extToLang map[string]string
	grammars  map[string]*sitter.Language
}

type grammarEntry struct {
	config  *LanguageConfig
	grammar *sitter.Language
}

// defaultGrammars enumerates the built-in languages. TSX and JSX share
// their base language's symbol configuration but parse with their own
// grammar (TSX) or the plain JS grammar (JSX).
func defaultGrammars() []grammarEntry {
	goConfig := &LanguageConfig{
		Name:          "go",
		Extensions:    []string{".go"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_declaration"},
		TypeDefTypes:  []string{"type_declaration"}, // structs and interfaces both
		ConstantTypes: []string{"const_declaration"},
		VariableTypes: []string{"var_declaration"},
	}

	tsConfig := &LanguageConfig{
		Name:           "typescript",
		Extensions:     []string{".ts"},
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{"method_definition"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		TypeDefTypes:   []string{"type_alias_declaration"},
		ConstantTypes:  []string{"lexical_declaration"},
		VariableTypes:  []string{"variable_declaration"},
	}
	tsxConfig := shareConfig(tsConfig, "tsx", ".tsx")

	jsConfig := &LanguageConfig{
		Name:          "javascript",
		Extensions:    []string{".js", ".mjs"},
		FunctionTypes: []string{"function_declaration", "function"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
		ConstantTypes: []string{"lexical_declaration"},
		VariableTypes: []string{"variable_declaration"},
	}
	jsxConfig := shareConfig(jsConfig, "jsx", ".jsx")

	pyConfig := &LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py"},
		FunctionTypes: []string{"function_definition"}, // methods included: same node type inside a class
		ClassTypes:    []string{"class_definition"},
		VariableTypes: []string{"assignment"}, // module-level bindings
	}

	return []grammarEntry{
		{goConfig, golang.GetLanguage()},
		{tsConfig, typescript.GetLanguage()},
		{tsxConfig, tsx.GetLanguage()},
		{jsConfig, javascript.GetLanguage()},
		{jsxConfig, javascript.GetLanguage()},
		{pyConfig, python.GetLanguage()},
	}
}

// shareConfig copies base's node-type lists under a new name/extension.
func shareConfig(base *LanguageConfig, name, ext string) *LanguageConfig {
	cp := *base
	cp.Name = name
	cp.Extensions = []string{ext}
	return &cp
}

// NewLanguageRegistry creates a registry with the built-in languages.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:   make(map[string]*LanguageConfig),
		extToLang: make(map[string]string),
		grammars:  make(map[string]*sitter.Language),
	}
	for _, entry := range defaultGrammars() {
		r.register(entry.config, entry.grammar)
	}
	return r
}

func (r *LanguageRegistry) register(config *LanguageConfig, grammar *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.grammars[config.Name] = grammar
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

// GetByExtension returns the config for a file extension, with or
// without its leading dot.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[langName]
	return config, ok
}

// GetByName returns the config for a language name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grammar, ok := r.grammars[name]
	return grammar, ok
}

// SupportedExtensions returns every extension with a registered grammar.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}
