// Package retry implements a bounded exponential-backoff retry coordinator
// wrapping a single operation, independent of the circuit breaker. The
// composition is Breaker(Retry(Call)): the breaker never sees individual
// retry attempts, only the final outcome.
package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Config controls retry attempts and backoff shape.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64 // fraction of the computed delay, e.g. 0.10 for +/-10%
}

// DefaultConfig returns the retry tuning used for payment submission.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
		Jitter:     0.10,
	}
}

// Coordinator runs one operation with bounded retries.
type Coordinator struct {
	cfg     Config
	randMu  sync.Mutex
	randSrc *rand.Rand
}

// New creates a retry coordinator with the given config.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		randSrc: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run invokes fn up to cfg.MaxRetries+1 times, waiting between attempts per
// the backoff formula. It propagates the last error if every
// attempt fails, and stops early (without extra waiting) if ctx is
// cancelled. retryable, when non-nil, is consulted after each failure: if
// it returns false the error is returned immediately without further
// attempts (used so PERMANENT/VALIDATION errors are not retried).
func (c *Coordinator) Run(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == c.cfg.MaxRetries+1 {
			break
		}
		delay := c.backoff(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

// backoff computes the delay between attempt i and i+1:
// min(base * multiplier^(i-1) + uniform(+/- jitter * that), max).
func (c *Coordinator) backoff(attempt int) time.Duration {
	base := float64(c.cfg.BaseDelay) * math.Pow(c.cfg.Multiplier, float64(attempt-1))
	if max := float64(c.cfg.MaxDelay); base > max {
		base = max
	}
	jitterRange := base * c.cfg.Jitter
	c.randMu.Lock()
	r := c.randSrc.Float64()
	c.randMu.Unlock()
	delta := (r*2 - 1) * jitterRange
	total := base + delta
	if total < 0 {
		total = 0
	}
	d := time.Duration(total)
	if cap := c.cfg.MaxDelay; d > cap {
		d = cap
	}
	return d
}

// Settings returns the coordinator's configuration, for reporting endpoints.
func (c *Coordinator) Settings() Config { return c.cfg }
