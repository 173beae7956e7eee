package breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucas-de-lima/paydispatch/internal/breaker"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := breaker.New(breaker.Config{FailureThreshold: 3, ResetTimeout: 30 * time.Second, RingCapacity: 10})

	failing := func() error { return errors.New("boom") }
	for i := 0; i < 3; i++ {
		err := b.Execute(failing)
		require.Error(t, err)
	}

	assert.Equal(t, breaker.Open, b.State())

	err := b.Execute(func() error {
		t.Fatal("fn must not run while breaker is open")
		return nil
	})
	assert.ErrorIs(t, err, breaker.ErrOpen)
}

func TestBreakerHalfOpenRecoversToClosedOnSuccess(t *testing.T) {
	b := breaker.New(breaker.Config{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, RingCapacity: 10})

	require.Error(t, b.Execute(func() error { return errors.New("boom") }))
	require.Equal(t, breaker.Open, b.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, breaker.Closed, b.State())

	stats := b.GetStats()
	assert.Equal(t, 0, stats.FailureCount)
}

func TestBreakerResetClearsCounters(t *testing.T) {
	b := breaker.New(breaker.DefaultConfig())
	require.Error(t, b.Execute(func() error { return errors.New("boom") }))
	b.Reset()
	stats := b.GetStats()
	assert.Equal(t, breaker.Closed, stats.State)
	assert.Equal(t, 0, stats.FailureCount)
	assert.Equal(t, 0, stats.SuccessCount)
}
