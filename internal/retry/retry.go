// Package retry implements the exponential-backoff policy the Python
// original expresses with tenacity's @retry(stop_after_attempt(3),
// wait_exponential(min=..., max=...)) (see
// original_source/adapters/embedder.py and llm_client.py). No example
// repo in the pack calls an exponential-backoff library at a real call
// site (cenkalti/backoff appears only as an indirect dependency), so
// this is a small stdlib helper rather than an additional third-party
// dependency with no grounded usage pattern.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/apperrors"
)

// Do calls fn up to attempts times, retrying only errors for which
// apperrors.Retryable reports true. Backoff doubles each attempt
// starting at min, capped at max.
func Do(ctx context.Context, attempts int, minDelay, maxDelay time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Min(
				float64(maxDelay),
				float64(minDelay)*math.Pow(2, float64(attempt-1)),
			))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !apperrors.Retryable(err) {
			return err
		}
	}
	return lastErr
}
