// Package summary serves aggregate payment queries: cache the (from, to)
// query, fall back to the ledger store on miss, write back with a 5-minute
// TTL, and bypass the cache entirely (logging a warning) if the cached
// shape fails a consistency check.
package summary

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lucas-de-lima/paydispatch/internal/cache"
	"github.com/lucas-de-lima/paydispatch/internal/ledger"
	"github.com/lucas-de-lima/paydispatch/internal/model"
	"github.com/lucas-de-lima/paydispatch/internal/validate"
)

const (
	cacheTTL       = 5 * time.Minute
	correlationTTL = 10 * time.Minute
)

// Aggregator serves summary queries through the cache, falling back to the
// store.
type Aggregator struct {
	cache cache.Cache
	store ledger.Store
}

// New creates an aggregator over the given cache and store.
func New(c cache.Cache, s ledger.Store) *Aggregator {
	return &Aggregator{cache: c, store: s}
}

// Get serves one summary query: cache first, then the store.
func (a *Aggregator) Get(ctx context.Context, from, to *time.Time) (model.Summary, error) {
	key := cacheKey(from, to)

	if cached, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		var s model.Summary
		if err := json.Unmarshal([]byte(cached), &s); err == nil {
			if summaryCheck(s).OK() {
				return s, nil
			}
			log.Warn().Str("key", key).Msg("cached summary failed consistency check, bypassing cache")
		}
	}

	s, err := a.store.GetSummary(ctx, from, to)
	if err != nil {
		return model.Summary{}, err
	}

	if check := summaryCheck(s); !check.OK() {
		log.Warn().Str("key", key).Str("detail", check.FirstFailure()).Msg("computed summary failed consistency check")
		return s, nil
	}

	if payload, err := json.Marshal(s); err == nil {
		if err := a.cache.Set(ctx, key, string(payload), cacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("summary cache write-back failed")
		}
	}
	return s, nil
}

// Invalidate purges every cached summary plus the correlation entry for the
// written payment, called after any successful payment write.
func (a *Aggregator) Invalidate(ctx context.Context, correlationID string) {
	keys, err := a.cache.Keys(ctx, "payment:summary:*")
	if err != nil {
		log.Warn().Err(err).Msg("summary cache invalidation scan failed")
		return
	}
	for _, k := range keys {
		if err := a.cache.Del(ctx, k); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("summary cache invalidation delete failed")
		}
	}
	if err := a.cache.Del(ctx, correlationKey(correlationID)); err != nil {
		log.Warn().Err(err).Str("correlation_id", correlationID).Msg("correlation cache invalidation failed")
	}
}

// Lookup returns the ledger row for one correlation id through the cache,
// populating it with a 10-minute TTL on miss.
func (a *Aggregator) Lookup(ctx context.Context, correlationID string) (model.Payment, bool, error) {
	key := correlationKey(correlationID)
	if cached, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		var p model.Payment
		if err := json.Unmarshal([]byte(cached), &p); err == nil {
			return p, true, nil
		}
	}

	p, ok, err := a.store.GetPayment(ctx, correlationID)
	if err != nil || !ok {
		return model.Payment{}, false, err
	}
	if payload, err := json.Marshal(p); err == nil {
		if err := a.cache.Set(ctx, key, string(payload), correlationTTL); err != nil {
			log.Warn().Err(err).Str("correlation_id", correlationID).Msg("correlation cache write-back failed")
		}
	}
	return p, true, nil
}

func summaryCheck(s model.Summary) validate.Result {
	return validate.SummaryStructure(s.Default.TotalRequests, s.Fallback.TotalRequests, s.Default.TotalAmount, s.Fallback.TotalAmount)
}

func correlationKey(id string) string { return "payment:correlation:" + id }

func cacheKey(from, to *time.Time) string {
	f, t := "null", "null"
	if from != nil {
		f = from.UTC().Format(time.RFC3339)
	}
	if to != nil {
		t = to.UTC().Format(time.RFC3339)
	}
	return "payment:summary:" + f + ":" + t
}
