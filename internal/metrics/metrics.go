// Package metrics records request outcomes in a bounded ring of the last
// 1000 samples, with derived percentiles, throughput, and success rate
// computed on demand. Alongside the in-memory ring it records each outcome
// in a Prometheus latency histogram and outcome counter for /metrics; the
// derived values themselves are not exported to Prometheus.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	ringCapacity   = 1000
	tailWindowSize = 100
	defaultWindow  = 60 * time.Second
)

// sample is one recorded request outcome.
type sample struct {
	at      time.Time
	latency time.Duration
	ok      bool
}

// Snapshot is the derived view served by /health/performance.
type Snapshot struct {
	AvgMs       float64
	MinMs       int64
	MaxMs       int64
	P50Ms       int64
	P95Ms       int64
	P99Ms       int64
	ThroughputS float64
	SuccessRate float64
	SampleCount int
}

// Recorder is a bounded ring of outcomes, safe for concurrent use.
type Recorder struct {
	p99Threshold time.Duration

	mu   sync.Mutex
	buf  []sample
	next int
	size int

	latencyHist *prometheus.HistogramVec
	outcomes    *prometheus.CounterVec
}

// New creates a recorder that logs a warning whenever p99 latency exceeds
// p99Threshold.
func New(p99Threshold time.Duration) *Recorder {
	r := &Recorder{
		p99Threshold: p99Threshold,
		buf:          make([]sample, ringCapacity),
		latencyHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paydispatch_request_duration_seconds",
			Help:    "Latency of dispatched payment submissions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paydispatch_requests_total",
			Help: "Total payment submissions by outcome.",
		}, []string{"outcome"}),
	}
	return r
}

// Collectors returns the Prometheus collectors for registration at the
// composition root.
func (r *Recorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.latencyHist, r.outcomes}
}

// Record appends one outcome to the ring and updates the Prometheus
// exposition.
func (r *Recorder) Record(latency time.Duration, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	r.latencyHist.WithLabelValues(outcome).Observe(latency.Seconds())
	r.outcomes.WithLabelValues(outcome).Inc()

	r.mu.Lock()
	r.buf[r.next] = sample{at: time.Now(), latency: latency, ok: ok}
	r.next = (r.next + 1) % ringCapacity
	if r.size < ringCapacity {
		r.size++
	}
	r.mu.Unlock()

	if snap := r.Snapshot(); snap.P99Ms > r.p99Threshold.Milliseconds() {
		log.Warn().
			Int64("p99_ms", snap.P99Ms).
			Int64("threshold_ms", r.p99Threshold.Milliseconds()).
			Msg("p99 latency exceeds threshold")
	}
}

// Snapshot computes derived values from the last tailWindowSize samples
// (avg/min/max/percentiles) and the full ring (throughput over the default
// window).
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	all := r.orderedLocked()
	r.mu.Unlock()

	if len(all) == 0 {
		return Snapshot{}
	}

	tail := all
	if len(tail) > tailWindowSize {
		tail = tail[len(tail)-tailWindowSize:]
	}

	var sum time.Duration
	min, max := tail[0].latency, tail[0].latency
	okCount := 0
	sorted := make([]time.Duration, len(tail))
	for i, s := range tail {
		sum += s.latency
		if s.latency < min {
			min = s.latency
		}
		if s.latency > max {
			max = s.latency
		}
		if s.ok {
			okCount++
		}
		sorted[i] = s.latency
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	now := time.Now()
	throughputCount := 0
	for _, s := range all {
		if now.Sub(s.at) <= defaultWindow {
			throughputCount++
		}
	}

	return Snapshot{
		AvgMs:       float64(sum.Milliseconds()) / float64(len(tail)),
		MinMs:       min.Milliseconds(),
		MaxMs:       max.Milliseconds(),
		P50Ms:       percentile(sorted, 0.50).Milliseconds(),
		P95Ms:       percentile(sorted, 0.95).Milliseconds(),
		P99Ms:       percentile(sorted, 0.99).Milliseconds(),
		ThroughputS: float64(throughputCount) / defaultWindow.Seconds(),
		SuccessRate: float64(okCount) / float64(len(tail)),
		SampleCount: len(all),
	}
}

// orderedLocked returns the ring's contents oldest-first. Caller holds mu.
func (r *Recorder) orderedLocked() []sample {
	out := make([]sample, r.size)
	if r.size < ringCapacity {
		copy(out, r.buf[:r.size])
		return out
	}
	copy(out, r.buf[r.next:])
	copy(out[ringCapacity-r.next:], r.buf[:r.next])
	return out
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
