package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucas-de-lima/paydispatch/internal/retry"
)

func TestRunRetriesUpToMax(t *testing.T) {
	c := retry.New(retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, Jitter: 0})

	attempts := 0
	err := c.Run(context.Background(), func(error) bool { return true }, func(ctx context.Context) error {
		attempts++
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRunStopsOnSuccess(t *testing.T) {
	c := retry.New(retry.DefaultConfig())

	attempts := 0
	err := c.Run(context.Background(), func(error) bool { return true }, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			return nil
		}
		return errors.New("transient")
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRunDoesNotRetryWhenNotRetryable(t *testing.T) {
	c := retry.New(retry.DefaultConfig())

	attempts := 0
	err := c.Run(context.Background(), func(error) bool { return false }, func(ctx context.Context) error {
		attempts++
		return errors.New("permanent")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	c := retry.New(retry.Config{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: 0})
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := c.Run(ctx, func(error) bool { return true }, func(ctx context.Context) error {
		attempts++
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Less(t, attempts, 6)
}
