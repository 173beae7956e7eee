package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lucas-de-lima/paydispatch/internal/metrics"
)

func TestSnapshotEmpty(t *testing.T) {
	r := metrics.New(time.Second)
	snap := r.Snapshot()
	assert.Equal(t, 0, snap.SampleCount)
}

func TestSnapshotDerivesSuccessRateAndPercentiles(t *testing.T) {
	r := metrics.New(time.Second)
	for i := 0; i < 8; i++ {
		r.Record(10*time.Millisecond, true)
	}
	r.Record(500*time.Millisecond, false)
	r.Record(20*time.Millisecond, true)

	snap := r.Snapshot()
	assert.Equal(t, 10, snap.SampleCount)
	assert.InDelta(t, 0.9, snap.SuccessRate, 0.001)
	assert.GreaterOrEqual(t, snap.P99Ms, snap.P50Ms)
}
