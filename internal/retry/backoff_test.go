package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/internal/apierr"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries: retries,
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   20 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	result := Do(context.Background(), fastConfig(2), func(context.Context) error {
		return nil
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.NoError(t, result.LastError)
	assert.Empty(t, result.RetryReasons)
}

func TestDoRetriesTransportErrors(t *testing.T) {
	attempts := 0
	result := Do(context.Background(), fastConfig(3), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return apierr.Transport("feed", errors.New("connection reset by peer"))
		}
		return nil
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, result.RetryReasons, 2)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	conflict := &apierr.StatusError{Op: "publish", StatusCode: 409}
	result := Do(context.Background(), fastConfig(3), func(context.Context) error {
		attempts++
		return conflict
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, result.LastError, apierr.ErrConflict)
}

func TestDoExhaustsRetries(t *testing.T) {
	result := Do(context.Background(), fastConfig(2), func(context.Context) error {
		return fmt.Errorf("feed: %w", apierr.ErrTransport)
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, result.RetryReasons, 3)
}

func TestDoHonoursContextCancellation(t *testing.T) {
	config := Config{MaxRetries: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	result := Do(ctx, config, func(context.Context) error {
		return apierr.ErrTransport
	}, nil)

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.LastError, context.DeadlineExceeded)
	assert.LessOrEqual(t, result.Attempts, 2)
}

func TestCalculateDelay(t *testing.T) {
	config := Config{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}

	assert.Equal(t, time.Second, calculateDelay(config, 0))
	assert.Equal(t, 2*time.Second, calculateDelay(config, 1))
	assert.Equal(t, 4*time.Second, calculateDelay(config, 2))
	assert.Equal(t, 10*time.Second, calculateDelay(config, 10))
}

func TestCalculateDelayWithJitterStaysNearBase(t *testing.T) {
	config := Config{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0, Jitter: true}
	for i := 0; i < 20; i++ {
		d := calculateDelay(config, 1)
		require.InDelta(t, float64(2*time.Second), float64(d), float64(200*time.Millisecond))
	}
}

func TestIsRetryable(t *testing.T) {
	for _, err := range []error{
		apierr.ErrTransport,
		&apierr.StatusError{Op: "feed", StatusCode: 503},
		errors.New("dial tcp: connection refused"),
		errors.New("unexpected EOF"),
	} {
		assert.True(t, IsRetryable(err), "%v", err)
	}

	for _, err := range []error{
		nil,
		context.Canceled,
		&apierr.StatusError{Op: "feed", StatusCode: 401},
		&apierr.StatusError{Op: "feed", StatusCode: 404},
		&apierr.ConflictError{Op: "delete"},
		apierr.Validation("empty draft"),
		errors.New("invalid input"),
	} {
		assert.False(t, IsRetryable(err), "%v", err)
	}
}
