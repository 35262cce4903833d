package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/apperrors"
)

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func(attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDo_RetriesTransportErrorUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func(attempt int) error {
		calls++
		if calls < 3 {
			return apperrors.ErrTransport
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func(attempt int) error {
		calls++
		return apperrors.ErrTransport
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryNonRetryableError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func(attempt int) error {
		calls++
		return apperrors.ErrInvalidResponse
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidResponse)
	require.Equal(t, 1, calls)
}

func TestDo_RetriesRateLimitedAsTransport(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func(attempt int) error {
		calls++
		if calls < 2 {
			return apperrors.RateLimited(errors.New("429"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDo_ContextCancelledDuringBackoffStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, 5, 20*time.Millisecond, 50*time.Millisecond, func(attempt int) error {
		calls++
		if calls == 1 {
			cancel()
		}
		return apperrors.ErrTransport
	})
	require.Error(t, err)
	require.LessOrEqual(t, calls, 2)
}
