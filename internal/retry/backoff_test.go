package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "whatsingest/internal/errors"
)

func fastConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       false,
	}
}

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	b := NewBackoff(fastConfig())

	calls := 0
	err := b.WithRetry(context.Background(), CategoryNetwork, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesRetryableErrors(t *testing.T) {
	b := NewBackoff(fastConfig())

	calls := 0
	err := b.WithRetry(context.Background(), CategoryNetwork, func() error {
		calls++
		if calls < 3 {
			return apperrors.NewNetworkError("fetch", errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhaustsAttemptBudget(t *testing.T) {
	b := NewBackoff(fastConfig())

	calls := 0
	err := b.WithRetry(context.Background(), CategoryNetwork, func() error {
		calls++
		return apperrors.NewNetworkError("fetch", errors.New("connection reset"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, apperrors.ErrCodeNetwork, apperrors.GetCode(err))
}

func TestWithRetryNeverRetriesAuthenticationErrors(t *testing.T) {
	b := NewBackoff(fastConfig())

	calls := 0
	err := b.WithRetry(context.Background(), CategoryAuthentication, func() error {
		calls++
		return apperrors.NewAuthError("401 Unauthorized")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "bad credentials cannot succeed on retry")
}

func TestWithRetryHonorsRetryableFlag(t *testing.T) {
	b := NewBackoff(fastConfig())

	calls := 0
	notRetryable := apperrors.New(apperrors.ErrCodeValidationFailed, "bad input")
	err := b.WithRetry(context.Background(), CategoryNetwork, func() error {
		calls++
		return notRetryable
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryUntypedErrorsByCategory(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		calls    int
	}{
		{"network retries untyped", CategoryNetwork, 3},
		{"media retries untyped", CategoryMedia, 3},
		{"authentication does not", CategoryAuthentication, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(fastConfig())

			calls := 0
			err := b.WithRetry(context.Background(), tt.category, func() error {
				calls++
				return errors.New("boom")
			})

			require.Error(t, err)
			assert.Equal(t, tt.calls, calls)
		})
	}
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	b := NewBackoff(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.WithRetry(ctx, CategoryNetwork, func() error {
		t.Fatal("operation must not run on a cancelled context")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelayGrowsAndCaps(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
		Jitter:       false,
	})

	assert.Equal(t, 100*time.Millisecond, b.GetNextDelay(1))
	assert.Equal(t, 200*time.Millisecond, b.GetNextDelay(2))
	assert.Equal(t, 400*time.Millisecond, b.GetNextDelay(3))
	assert.Equal(t, time.Second, b.GetNextDelay(5))
	assert.Equal(t, time.Second, b.GetNextDelay(9))
}

func TestCalculateDelayJitterStaysInBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.Jitter = true
	cfg.InitialDelay = 100 * time.Millisecond
	cfg.MaxDelay = 10 * time.Second
	b := NewBackoff(cfg)

	for i := 0; i < 50; i++ {
		delay := b.GetNextDelay(2)
		assert.GreaterOrEqual(t, delay, 150*time.Millisecond)
		assert.LessOrEqual(t, delay, 250*time.Millisecond)
	}
}

func TestHandlerHandleError(t *testing.T) {
	h := NewHandler(fastConfig(), nil)

	t.Run("nil error", func(t *testing.T) {
		assert.NoError(t, h.HandleError(nil, nil, true))
	})

	t.Run("recoverable error is swallowed", func(t *testing.T) {
		err := apperrors.NewNetworkError("fetch", errors.New("timeout"))
		assert.NoError(t, h.HandleError(err, map[string]interface{}{"op": "fetch"}, true))
	})

	t.Run("critical error propagates when raising", func(t *testing.T) {
		err := apperrors.NewMissingConfigError("api_token")
		assert.Equal(t, err, h.HandleError(err, nil, true))
	})

	t.Run("critical error is swallowed when not raising", func(t *testing.T) {
		err := apperrors.NewMissingConfigError("api_token")
		assert.NoError(t, h.HandleError(err, nil, false))
	})
}
