package discovery

import (
	"path/filepath"
	"strings"
)

// languageMap maps file extensions and well-known bare filenames to the
// recognized language identifiers the Chunker dispatches on. Unlisted
// extensions fall back to line-based chunking.
var languageMap = map[string]string{
	".py":  "python",
	".pyi": "python",

	".js":  "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".jsx": "javascript",

	".ts":  "typescript",
	".tsx": "typescript",

	".rs": "rust",

	".go": "go",

	".rb":   "ruby",
	".rake": "ruby",

	".java": "java",

	".c": "c",
	".h": "c",

	".cpp": "cpp",
	".cc":  "cpp",
	".cxx": "cpp",
	".hpp": "cpp",
	".hxx": "cpp",

	".cs": "c_sharp",

	".php": "php",

	".swift": "swift",

	".kt":  "kotlin",
	".kts": "kotlin",

	".scala": "scala",

	".lua": "lua",

	".r": "r",

	".jl": "julia",

	".ex":  "elixir",
	".exs": "elixir",

	".erl": "erlang",
	".hrl": "erlang",

	".hs": "haskell",

	".ml":  "ocaml",
	".mli": "ocaml",

	".sh":   "bash",
	".bash": "bash",

	".yaml": "yaml",
	".yml":  "yaml",

	".json": "json",

	".toml": "toml",

	".md":       "markdown",
	".markdown": "markdown",

	".sql": "sql",
}

// DetectLanguage returns the recognized language identifier for a
// project-relative path, or "" if the extension is unrecognized.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageMap[ext]; ok {
		return lang
	}
	return ""
}
