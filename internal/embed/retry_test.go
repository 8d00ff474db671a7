package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ExhaustsAllAttempts(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, MaxRetries, calls)
	assert.Contains(t, err.Error(), "failed after 5 attempts")
}

func TestRetryWithBackoff_NonRetryableError_StopsImmediately(t *testing.T) {
	calls := 0
	sentinel := &NonRetryableError{Err: errors.New("bad credentials")}
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Same(t, sentinel, mustBeNonRetryable(t, err))
}

func mustBeNonRetryable(t *testing.T, err error) *NonRetryableError {
	t.Helper()
	var nre *NonRetryableError
	require.ErrorAs(t, err, &nre)
	return nre
}

func TestRetryWithBackoff_ContextCancelled_StopsBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryWithBackoff(ctx, func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetryWithBackoff_ContextCancelled_DuringBackoffDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	err := retryWithBackoff(ctx, func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestIsNonRetryable(t *testing.T) {
	assert.True(t, isNonRetryable(&NonRetryableError{Err: errors.New("x")}))
	assert.False(t, isNonRetryable(errors.New("plain")))
	assert.False(t, isNonRetryable(nil))

	wrapped := errorsWrap(&NonRetryableError{Err: errors.New("inner")})
	assert.True(t, isNonRetryable(wrapped))
}

func errorsWrap(err error) error {
	return &wrappedErr{err: err}
}

type wrappedErr struct{ err error }

func (w *wrappedErr) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrappedErr) Unwrap() error { return w.err }
