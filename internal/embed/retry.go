package embed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// NonRetryableError wraps an error the remote service reports as
// permanent (authentication, malformed request) so retryWithBackoff
// can tell it apart from a transient failure and give up immediately.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

func isNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// retryWithBackoff retries fn up to MaxRetries times. The delay before
// attempt n (zero-based) is 1*2^n seconds plus uniform jitter in
// [0, 1) second. A NonRetryableError propagates on the first attempt
// without waiting.
func retryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		if isNonRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == MaxRetries-1 {
			break
		}

		delay := time.Duration(float64(time.Second)*float64(int64(1)<<uint(attempt))) + time.Duration(rand.Float64()*float64(time.Second))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", MaxRetries, lastErr)
}
