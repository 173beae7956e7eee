// Package errs is the dispatch engine's error taxonomy, shared by every
// component that needs to classify a failure the same way the dispatcher
// does. Kept as its own package (rather than living in internal/dispatch)
// since the processor client, cache, and ledger adapters all need to raise
// these without importing the dispatcher itself.
package errs

import "errors"

var (
	// Validation marks client-provided data that failed a consistency
	// check. Never retried, surfaced as 400.
	Validation = errors.New("validation")

	// BreakerOpen marks a breaker short-circuit. The dispatcher treats this
	// as an immediate processor failure: no retry, no backoff.
	BreakerOpen = errors.New("circuit breaker open")

	// Transient marks a processor timeout, network error, or 5xx. Eligible
	// for retry within the coordinator.
	Transient = errors.New("transient processor error")

	// Permanent marks a processor 4xx (other than auth). Not retried,
	// escalated to the other processor by the dispatcher.
	Permanent = errors.New("permanent processor error")

	// Persistence marks a store write failure after a successful processor
	// call. The processor side effect has already occurred; there is no
	// compensation.
	Persistence = errors.New("ledger persistence failure")

	// Unavailable marks both processors exhausted (or both breakers open).
	Unavailable = errors.New("both processors unavailable")

	// CacheDegraded is not returned to callers (the core continues with
	// its in-memory fallback), but components log through this sentinel so
	// the warning carries a consistent classification.
	CacheDegraded = errors.New("cache degraded")
)
