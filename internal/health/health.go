// Package health runs the background health poller: one worker per replica
// that refreshes each processor's cached snapshot at most every
// PollInterval, publishing through the cache so readers never block on a
// live probe.
package health

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lucas-de-lima/paydispatch/internal/cache"
	"github.com/lucas-de-lima/paydispatch/internal/model"
	"github.com/lucas-de-lima/paydispatch/internal/processor"
)

const (
	// PollInterval is the minimum spacing between probes of one processor.
	PollInterval = 5 * time.Second

	snapshotTTL     = time.Hour
	responseTimeCap = 50
)

func cacheKey(name model.ProcessorName) string { return string(name) }

// Poller runs one background loop per replica, probing both processors at
// PollInterval and publishing results through the Cache.
type Poller struct {
	clients map[model.ProcessorName]*processor.Client
	cache   cache.Cache
}

// New creates a poller over the given processor clients.
func New(clients map[model.ProcessorName]*processor.Client, c cache.Cache) *Poller {
	return &Poller{clients: clients, cache: c}
}

// Run blocks, probing every processor every PollInterval until ctx is
// cancelled. Call it from a goroutine in the composition root.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	p.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	for name, client := range p.clients {
		snap := client.Health(ctx)
		p.publish(ctx, name, snap)
	}
}

func (p *Poller) publish(ctx context.Context, name model.ProcessorName, snap model.HealthSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Warn().Err(err).Str("processor", string(name)).Msg("marshal health snapshot failed")
		return
	}
	key := cacheKey(name)
	if err := p.cache.HSet(ctx, "health:cache", key, string(payload)); err != nil {
		log.Warn().Err(err).Str("processor", string(name)).Msg("publish health snapshot failed")
	}
	_ = p.cache.Expire(ctx, "health:cache", snapshotTTL)

	nowMs := time.Now().UnixMilli()
	if err := p.cache.HSet(ctx, "health:last_check", key, strconv.FormatInt(nowMs, 10)); err != nil {
		log.Warn().Err(err).Str("processor", string(name)).Msg("publish last_check failed")
	}
	_ = p.cache.Expire(ctx, "health:last_check", snapshotTTL)

	rtKey := "health:response_times:" + key
	_ = p.cache.LPush(ctx, rtKey, strconv.Itoa(snap.ResponseTimeMs))
	_ = p.cache.LTrim(ctx, rtKey, 0, responseTimeCap-1)
	_ = p.cache.Expire(ctx, rtKey, snapshotTTL)
}

// Snapshot reads the last published snapshot for a processor without
// probing. A missing or unparseable entry yields a synthetic failing
// snapshot.
func Snapshot(ctx context.Context, c cache.Cache, name model.ProcessorName) model.HealthSnapshot {
	v, ok, err := c.HGet(ctx, "health:cache", cacheKey(name))
	if err != nil || !ok {
		return model.HealthSnapshot{
			Failing:           true,
			MinResponseTimeMs: model.UnhealthySentinelMs,
			LastCheckedAt:     time.Now().UTC(),
			Error:             "no snapshot published yet",
		}
	}
	var snap model.HealthSnapshot
	if err := json.Unmarshal([]byte(v), &snap); err != nil {
		return model.HealthSnapshot{
			Failing:           true,
			MinResponseTimeMs: model.UnhealthySentinelMs,
			LastCheckedAt:     time.Now().UTC(),
			Error:             "corrupt snapshot: " + err.Error(),
		}
	}
	return snap
}
