// Package mcperr implements the error taxonomy and envelope translation
// used by every tool handler. Tool handlers never let an internal error
// cross the transport boundary: they run it through Translate and emit a
// short, user-facing {"error": "..."} envelope instead.
package mcperr

import (
	"context"
	"encoding/json"
	"errors"
)

// Sentinel errors covering the taxonomy every tool handler translates.
var (
	// ErrNotADirectory is input validation: the path argument does not
	// resolve to an existing directory.
	ErrNotADirectory = errors.New("path does not exist or is not a directory")

	// ErrEmptyQuery is input validation: a search query was blank.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrMissingAPIKey is a configuration error: no embedding API key.
	ErrMissingAPIKey = errors.New("embedding API key is not configured")

	// ErrCapacityExceeded is a configuration error: the registry is full.
	ErrCapacityExceeded = errors.New("maximum project limit reached")

	// ErrAutoIndexFailed is the uniform error all followers of a failed
	// leader auto-index receive.
	ErrAutoIndexFailed = errors.New("failed to auto-index project on first search")

	// ErrEmbeddingUnavailable is a dependency failure: the remote
	// embedding service could not be reached after retries.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// ToolError is the JSON envelope every failed tool call returns.
type ToolError struct {
	Error string `json:"error"`
}

// Translate maps any error into a short, user-facing sentence: no stack
// traces, no internal type names. Details belong in the structured log,
// not in the returned message.
func Translate(err error) ToolError {
	switch {
	case err == nil:
		return ToolError{}
	case errors.Is(err, ErrNotADirectory):
		return ToolError{Error: "Path does not exist or is not a directory."}
	case errors.Is(err, ErrEmptyQuery):
		return ToolError{Error: "Query must not be empty."}
	case errors.Is(err, ErrMissingAPIKey):
		return ToolError{Error: "No embedding API key configured. Set VOYAGE_API_KEY."}
	case errors.Is(err, ErrCapacityExceeded):
		return ToolError{Error: "Maximum project limit reached. Restart the server or evict unused projects."}
	case errors.Is(err, ErrAutoIndexFailed):
		return ToolError{Error: "Failed to auto-index project on first search"}
	case errors.Is(err, ErrEmbeddingUnavailable):
		return ToolError{Error: "Embedding service unavailable. Try again shortly."}
	case errors.Is(err, context.DeadlineExceeded):
		return ToolError{Error: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return ToolError{Error: "Request was canceled."}
	default:
		return ToolError{Error: "Check server logs for details."}
	}
}

// Envelope marshals a ToolError to its JSON string form. json.Marshal is
// always used (never hand-built strings) so a message containing quotes
// can't corrupt the envelope.
func (e ToolError) Envelope() string {
	b, err := json.Marshal(e)
	if err != nil {
		// json.Marshal on a struct of plain strings cannot fail; this is
		// an unreachable-code guard per the "internal invariant" category.
		return `{"error":"Check server logs for details."}`
	}
	return string(b)
}
