package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucas-de-lima/paydispatch/internal/cache"
)

func TestMemoryCacheGetSetDel(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, m.Del(ctx, "k"))
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must not be returned")
}

func TestMemoryCacheHashAndListExpiry(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.HSet(ctx, "h", "f", "v"))
	require.NoError(t, m.Expire(ctx, "h", time.Millisecond))
	require.NoError(t, m.LPush(ctx, "l", "a"))
	require.NoError(t, m.Expire(ctx, "l", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := m.HGet(ctx, "h", "f")
	require.NoError(t, err)
	assert.False(t, ok, "expired hash must not be returned")

	vals, err := m.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, vals, "expired list must not be returned")
}

func TestMemoryCacheKeysPrefixMatch(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "payment:summary:a:b", "1", 0))
	require.NoError(t, m.Set(ctx, "payment:summary:c:d", "2", 0))
	require.NoError(t, m.Set(ctx, "payment:correlation:x", "3", 0))

	keys, err := m.Keys(ctx, "payment:summary:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestMemoryCacheHashAndList(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.HSet(ctx, "h", "f", "v"))
	v, ok, err := m.HGet(ctx, "h", "f")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, m.LPush(ctx, "l", "a"))
	require.NoError(t, m.LPush(ctx, "l", "b"))
	vals, err := m.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, vals)

	require.NoError(t, m.LTrim(ctx, "l", 0, 0))
	vals, err = m.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, vals)
}
