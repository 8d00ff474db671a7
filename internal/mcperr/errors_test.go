package mcperr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateKnownErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrNotADirectory, "Path does not exist or is not a directory."},
		{ErrMissingAPIKey, "No embedding API key configured. Set VOYAGE_API_KEY."},
		{ErrCapacityExceeded, "Maximum project limit reached. Restart the server or evict unused projects."},
		{ErrAutoIndexFailed, "Failed to auto-index project on first search"},
		{context.DeadlineExceeded, "Request timed out."},
		{errors.New("some unexpected internal panic-like error"), "Check server logs for details."},
	}

	for _, tc := range cases {
		got := Translate(tc.err)
		assert.Equal(t, tc.want, got.Error)
	}
}

func TestTranslateWrappedError(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrMissingAPIKey)
	got := Translate(wrapped)
	assert.Equal(t, "No embedding API key configured. Set VOYAGE_API_KEY.", got.Error)
}

func TestEnvelopeIsValidJSON(t *testing.T) {
	te := Translate(ErrNotADirectory)
	assert.Equal(t, `{"error":"Path does not exist or is not a directory."}`, te.Envelope())
}

func TestEnvelopeEscapesQuotes(t *testing.T) {
	te := ToolError{Error: `message with "quotes" inside`}
	assert.Contains(t, te.Envelope(), `\"quotes\"`)
}
