package store

import (
	"regexp"
	"strings"
	"unicode"
)

// identRegex pulls identifier-shaped runs out of raw chunk content;
// punctuation and operators fall away here, underscores survive so
// snake_case can be split below.
var identRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// TokenizeCode turns chunk content into the lowercase token stream that
// feeds the full-text index: identifiers are split on underscores and
// case boundaries, and anything shorter than two characters is dropped.
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range identRegex.FindAllString(text, -1) {
		for _, t := range SplitCodeToken(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// SplitCodeToken splits one identifier into its words: underscores
// first, then case boundaries within each underscore-delimited part.
func SplitCodeToken(token string) []string {
	if !strings.Contains(token, "_") {
		return SplitCamelCase(token)
	}

	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, SplitCamelCase(part)...)
		}
	}
	return result
}

// SplitCamelCase splits camelCase and PascalCase words, keeping
// acronym runs together: "parseHTTPRequest" yields parse, HTTP,
// Request. Always returns a non-nil slice.
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	runes := []rune(s)
	boundary := func(i int) bool {
		if i == 0 || !unicode.IsUpper(runes[i]) {
			return false
		}
		// An upper rune starts a new word when it follows lowercase, or
		// when it starts the trailing word of an acronym run (HTTPHandler
		// splits before the final H).
		if unicode.IsLower(runes[i-1]) {
			return true
		}
		return i+1 < len(runes) && unicode.IsLower(runes[i+1])
	}

	var result []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if boundary(i) {
			result = append(result, string(runes[start:i]))
			start = i
		}
	}
	return append(result, string(runes[start:]))
}

// FilterStopWords drops tokens whose lowercase form appears in stopWords.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap lowers a stop-word list into a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
