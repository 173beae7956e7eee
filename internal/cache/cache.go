// Package cache is a short-TTL key/value adapter for summaries, correlation
// lookups, and the health snapshot, backed by Redis with a transparent
// in-memory fallback per replica when Redis is unreachable. The fallback is
// lossy across replicas.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/lucas-de-lima/paydispatch/internal/errs"
)

// Cache is the narrow operation set the core consumes.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, value string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	LPush(ctx context.Context, key, value string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// RedisCache wraps a go-redis client and falls back to an in-memory cache
// transparently when a Redis call fails with any error other than a miss.
type RedisCache struct {
	rdb      *redis.Client
	fallback *MemoryCache
}

// NewRedis creates a Redis-backed cache at the given URL (redis://...). A
// memory fallback is always constructed alongside it.
func NewRedis(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{rdb: redis.NewClient(opts), fallback: NewMemory()}, nil
}

// Ping checks Redis reachability with a short timeout.
func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error { return c.rdb.Close() }

func (c *RedisCache) degrade(op string, err error) {
	log.Warn().Err(err).Str("op", op).Msg(errs.CacheDegraded.Error())
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return v, true, nil
	case err == redis.Nil:
		return "", false, nil
	default:
		c.degrade("get", err)
		return c.fallback.Get(ctx, key)
	}
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.degrade("set", err)
		return c.fallback.Set(ctx, key, value, ttl)
	}
	return nil
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.degrade("del", err)
		return c.fallback.Del(ctx, key)
	}
	return nil
}

func (c *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := c.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		c.degrade("keys", err)
		return c.fallback.Keys(ctx, pattern)
	}
	return keys, nil
}

func (c *RedisCache) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := c.rdb.HGet(ctx, key, field).Result()
	switch {
	case err == nil:
		return v, true, nil
	case err == redis.Nil:
		return "", false, nil
	default:
		c.degrade("hget", err)
		return c.fallback.HGet(ctx, key, field)
	}
}

func (c *RedisCache) HSet(ctx context.Context, key, field, value string) error {
	if err := c.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		c.degrade("hset", err)
		return c.fallback.HSet(ctx, key, field, value)
	}
	return nil
}

func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		c.degrade("expire", err)
		return c.fallback.Expire(ctx, key, ttl)
	}
	return nil
}

func (c *RedisCache) LPush(ctx context.Context, key, value string) error {
	if err := c.rdb.LPush(ctx, key, value).Err(); err != nil {
		c.degrade("lpush", err)
		return c.fallback.LPush(ctx, key, value)
	}
	return nil
}

func (c *RedisCache) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := c.rdb.LTrim(ctx, key, start, stop).Err(); err != nil {
		c.degrade("ltrim", err)
		return c.fallback.LTrim(ctx, key, start, stop)
	}
	return nil
}

func (c *RedisCache) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		c.degrade("lrange", err)
		return c.fallback.LRange(ctx, key, start, stop)
	}
	return vals, nil
}

// entry is one in-memory fallback cache slot.
type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// MemoryCache is a per-replica, lossy-across-replicas fallback used both
// standalone (tests) and beneath RedisCache when Redis is unreachable.
type MemoryCache struct {
	mu     sync.Mutex
	values map[string]entry
	hashes map[string]map[string]string
	lists  map[string][]string

	// deadlines carries Expire-set TTLs for hash and list keys; plain
	// values track expiry on their own entry.
	deadlines map[string]time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *MemoryCache {
	return &MemoryCache{
		values:    make(map[string]entry),
		hashes:    make(map[string]map[string]string),
		lists:     make(map[string][]string),
		deadlines: make(map[string]time.Time),
	}
}

// purgeExpiredLocked drops a hash or list key whose deadline has passed.
// Caller holds mu.
func (m *MemoryCache) purgeExpiredLocked(key string) {
	d, ok := m.deadlines[key]
	if !ok || time.Now().Before(d) {
		return
	}
	delete(m.hashes, key)
	delete(m.lists, key)
	delete(m.deadlines, key)
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok || e.expired(time.Now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.values[key] = entry{value: value, expires: exp}
	return nil
}

func (m *MemoryCache) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.hashes, key)
	delete(m.lists, key)
	delete(m.deadlines, key)
	return nil
}

func (m *MemoryCache) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix, wildcard := splitGlobPrefix(pattern)
	var out []string
	now := time.Now()
	for k, e := range m.values {
		if e.expired(now) {
			continue
		}
		if matchesGlobPrefix(k, prefix, wildcard) {
			out = append(out, k)
		}
	}
	return out, nil
}

// splitGlobPrefix supports the only glob shape the invalidation path uses:
// a literal prefix followed by a single trailing '*' (e.g.
// "payment:summary:*").
func splitGlobPrefix(pattern string) (prefix string, wildcard bool) {
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		return pattern[:len(pattern)-1], true
	}
	return pattern, false
}

func matchesGlobPrefix(key, prefix string, wildcard bool) bool {
	if wildcard {
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	}
	return key == prefix
}

func (m *MemoryCache) HGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked(key)
	h, ok := m.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (m *MemoryCache) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *MemoryCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.values[key]; ok {
		e.expires = time.Now().Add(ttl)
		m.values[key] = e
		return nil
	}
	if _, ok := m.hashes[key]; ok {
		m.deadlines[key] = time.Now().Add(ttl)
		return nil
	}
	if _, ok := m.lists[key]; ok {
		m.deadlines[key] = time.Now().Add(ttl)
	}
	return nil
}

func (m *MemoryCache) LPush(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked(key)
	m.lists[key] = append([]string{value}, m.lists[key]...)
	return nil
}

func (m *MemoryCache) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked(key)
	list := m.lists[key]
	n := int64(len(list))
	if n == 0 {
		return nil
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = n + start
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		m.lists[key] = nil
		return nil
	}
	m.lists[key] = append([]string(nil), list[start:stop+1]...)
	return nil
}

func (m *MemoryCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked(key)
	list := m.lists[key]
	n := int64(len(list))
	if n == 0 {
		return nil, nil
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = n + start
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}
