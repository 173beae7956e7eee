package summary_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucas-de-lima/paydispatch/internal/cache"
	"github.com/lucas-de-lima/paydispatch/internal/ledger"
	"github.com/lucas-de-lima/paydispatch/internal/model"
	"github.com/lucas-de-lima/paydispatch/internal/summary"
)

func TestGetFallsBackToStoreOnCacheMiss(t *testing.T) {
	store := ledger.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.PutPayment(ctx, model.Payment{CorrelationID: "a", Amount: decimal.NewFromInt(10), Processor: model.ProcessorDefault, RequestedAt: time.Now()}))

	c := cache.NewMemory()
	agg := summary.New(c, store)

	sum, err := agg.Get(ctx, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.Default.TotalRequests)

	_, ok, err := c.Get(ctx, "payment:summary:null:null")
	require.NoError(t, err)
	assert.True(t, ok, "result must be written back to cache")
}

func TestInvalidatePurgesSummaryKeys(t *testing.T) {
	c := cache.NewMemory()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "payment:summary:a:b", "{}", time.Minute))

	store := ledger.NewMemory()
	agg := summary.New(c, store)
	agg.Invalidate(ctx, "550e8400-e29b-41d4-a716-446655440000")

	_, ok, err := c.Get(ctx, "payment:summary:a:b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupReadsThroughCache(t *testing.T) {
	store := ledger.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.PutPayment(ctx, model.Payment{
		CorrelationID: "c1",
		Amount:        decimal.NewFromInt(42),
		Processor:     model.ProcessorDefault,
		RequestedAt:   time.Now(),
		Status:        model.StatusProcessed,
	}))

	c := cache.NewMemory()
	agg := summary.New(c, store)

	p, ok, err := agg.Lookup(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(42)))

	_, cached, err := c.Get(ctx, "payment:correlation:c1")
	require.NoError(t, err)
	assert.True(t, cached, "lookup must populate the correlation cache")

	agg.Invalidate(ctx, "c1")
	_, cached, err = c.Get(ctx, "payment:correlation:c1")
	require.NoError(t, err)
	assert.False(t, cached, "invalidation must drop the correlation entry")
}

func TestLookupMissing(t *testing.T) {
	agg := summary.New(cache.NewMemory(), ledger.NewMemory())
	_, ok, err := agg.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
