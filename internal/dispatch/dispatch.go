// Package dispatch is the top-level per-request control flow: validate a
// payment, attempt the default processor wrapped by breaker+retry, fall
// back on failure, persist the outcome, invalidate caches, and record
// metrics and audit entries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lucas-de-lima/paydispatch/internal/audit"
	"github.com/lucas-de-lima/paydispatch/internal/breaker"
	"github.com/lucas-de-lima/paydispatch/internal/errs"
	"github.com/lucas-de-lima/paydispatch/internal/ledger"
	"github.com/lucas-de-lima/paydispatch/internal/metrics"
	"github.com/lucas-de-lima/paydispatch/internal/model"
	"github.com/lucas-de-lima/paydispatch/internal/processor"
	"github.com/lucas-de-lima/paydispatch/internal/retry"
	"github.com/lucas-de-lima/paydispatch/internal/summary"
	"github.com/lucas-de-lima/paydispatch/internal/validate"
)

// route is one processor wired with its own breaker and retry coordinator:
// the Breaker(Retry(Call)) composition, per processor.
type route struct {
	name    model.ProcessorName
	client  *processor.Client
	breaker *breaker.Breaker
	retry   *retry.Coordinator
}

// Result is the outcome of a successful submit.
type Result struct {
	Processor     model.ProcessorName
	CorrelationID string
	Amount        decimal.Decimal
	Status        model.PaymentStatus
}

// Dispatcher composes the processor routes with the ledger, summary cache,
// metrics recorder, and audit trail.
type Dispatcher struct {
	defaultRoute  *route
	fallbackRoute *route
	store         ledger.Store
	summary       *summary.Aggregator
	metrics       *metrics.Recorder
	audit         *audit.Store
	simulate      bool
}

// New wires one Dispatcher from its collaborators. defaultClient and
// fallbackClient are the two processor.Client instances; breakerCfg and
// retryCfg apply identically to both routes.
func New(
	defaultClient, fallbackClient *processor.Client,
	breakerCfg breaker.Config, retryCfg retry.Config,
	store ledger.Store, agg *summary.Aggregator, rec *metrics.Recorder, aud *audit.Store,
	simulate bool,
) *Dispatcher {
	return &Dispatcher{
		defaultRoute: &route{
			name: model.ProcessorDefault, client: defaultClient,
			breaker: breaker.New(breakerCfg), retry: retry.New(retryCfg),
		},
		fallbackRoute: &route{
			name: model.ProcessorFallback, client: fallbackClient,
			breaker: breaker.New(breakerCfg), retry: retry.New(retryCfg),
		},
		store:    store,
		summary:  agg,
		metrics:  rec,
		audit:    aud,
		simulate: simulate,
	}
}

// DefaultBreaker and FallbackBreaker expose the per-route breakers for
// reporting and administrative reset endpoints.
func (d *Dispatcher) DefaultBreaker() *breaker.Breaker  { return d.defaultRoute.breaker }
func (d *Dispatcher) FallbackBreaker() *breaker.Breaker { return d.fallbackRoute.breaker }

// RetrySettings exposes the per-route retry tuning for reporting endpoints.
func (d *Dispatcher) RetrySettings() retry.Config { return d.defaultRoute.retry.Settings() }

// ResetBreakers forces both circuit breakers back to CLOSED.
func (d *Dispatcher) ResetBreakers() {
	d.defaultRoute.breaker.Reset()
	d.fallbackRoute.breaker.Reset()
}

// Submit runs the full dispatch sequence for one payment request: the
// default route first, the fallback on any processor failure, and a
// simulated success once both are exhausted, when simulation is enabled.
// A ledger write failure after a successful processor call is returned as
// a persistence error without trying the other processor.
func (d *Dispatcher) Submit(ctx context.Context, correlationID string, amount decimal.Decimal) (Result, error) {
	requestedAt := time.Now().UTC()

	if check := validate.PaymentRequest(correlationID, amount); !check.OK() {
		d.recordAudit(correlationID, "", "preflight_check", "failure", check.FirstFailure())
		return Result{}, fmt.Errorf("%w: %s", errs.Validation, check.FirstFailure())
	}

	// Best-effort dedup: a found row means a prior submit already charged
	// this id, so answer from the ledger instead of calling a processor
	// again. Lookup failures fall through; the store's unique index is the
	// enforcer either way.
	existing, found, lookupErr := d.store.GetPayment(ctx, correlationID)
	if dup := validate.NoDuplicateCorrelationID(found, lookupErr); !dup.Passed {
		d.recordAudit(correlationID, string(existing.Processor), "duplicate_submit", "success", dup.Detail)
		return Result{
			Processor:     existing.Processor,
			CorrelationID: correlationID,
			Amount:        existing.Amount,
			Status:        existing.Status,
		}, nil
	}

	start := time.Now()
	res, err := d.tryRoute(ctx, d.defaultRoute, correlationID, amount, requestedAt)
	if err == nil {
		d.metrics.Record(time.Since(start), true)
		return res, nil
	}
	if errors.Is(err, errs.Persistence) {
		d.metrics.Record(time.Since(start), false)
		return Result{}, err
	}
	d.recordAudit(correlationID, string(d.defaultRoute.name), "route_failed", "failure", err.Error())

	res, err = d.tryRoute(ctx, d.fallbackRoute, correlationID, amount, requestedAt)
	if err == nil {
		d.metrics.Record(time.Since(start), true)
		return res, nil
	}
	if errors.Is(err, errs.Persistence) {
		d.metrics.Record(time.Since(start), false)
		return Result{}, err
	}
	d.recordAudit(correlationID, string(d.fallbackRoute.name), "route_failed", "failure", err.Error())

	if d.simulate {
		res, err := d.persist(ctx, correlationID, amount, model.ProcessorSimulated, requestedAt)
		d.metrics.Record(time.Since(start), err == nil)
		if err != nil {
			return Result{}, err
		}
		return res, nil
	}

	d.metrics.Record(time.Since(start), false)
	return Result{}, fmt.Errorf("%w: both processors exhausted", errs.Unavailable)
}

// tryRoute runs Breaker(Retry(Call)) against one processor and, on success,
// persists and invalidates caches.
func (d *Dispatcher) tryRoute(ctx context.Context, r *route, correlationID string, amount decimal.Decimal, requestedAt time.Time) (Result, error) {
	var lastLatency time.Duration
	execErr := r.breaker.Execute(func() error {
		return r.retry.Run(ctx, isRetryable, func(ctx context.Context) error {
			_, latency, err := r.client.Pay(ctx, correlationID, amount, requestedAt)
			lastLatency = latency
			return err
		})
	})

	if execErr != nil {
		if errors.Is(execErr, breaker.ErrOpen) {
			d.recordAudit(correlationID, string(r.name), "breaker_open", "failure", "")
			return Result{}, fmt.Errorf("%w", errs.BreakerOpen)
		}
		return Result{}, execErr
	}

	d.recordAudit(correlationID, string(r.name), "processor_call", "success", lastLatency.String())
	return d.persist(ctx, correlationID, amount, r.name, requestedAt)
}

// persist writes the ledger row and invalidates caches. The write strictly
// precedes invalidation and the returned response.
func (d *Dispatcher) persist(ctx context.Context, correlationID string, amount decimal.Decimal, proc model.ProcessorName, requestedAt time.Time) (Result, error) {
	pay := model.Payment{
		CorrelationID: correlationID,
		Amount:        amount,
		Processor:     proc,
		RequestedAt:   requestedAt,
		ProcessedAt:   time.Now().UTC(),
		Status:        model.StatusProcessed,
	}
	if err := d.store.PutPayment(ctx, pay); err != nil {
		log.Error().Err(err).Str("correlation_id", correlationID).Msg("DATABASE_OPERATION FAILED")
		d.recordAudit(correlationID, string(proc), "persist", "failure", err.Error())
		return Result{}, fmt.Errorf("%w", errs.Persistence)
	}
	d.summary.Invalidate(ctx, correlationID)
	d.recordAudit(correlationID, string(proc), "persisted", "success", "")
	return Result{Processor: proc, CorrelationID: correlationID, Amount: amount, Status: model.StatusProcessed}, nil
}

func (d *Dispatcher) recordAudit(correlationID, proc, stage, outcome, detail string) {
	if d.audit == nil {
		return
	}
	if err := d.audit.Record(audit.Entry{
		CorrelationID: correlationID,
		Processor:     proc,
		Stage:         stage,
		Outcome:       outcome,
		Detail:        detail,
	}); err != nil {
		log.Warn().Err(err).Str("correlation_id", correlationID).Msg("audit record failed")
	}
}

// isRetryable decides whether the retry coordinator should attempt again:
// TRANSIENT errors are retried, VALIDATION/PERMANENT are not.
func isRetryable(err error) bool {
	return errors.Is(err, errs.Transient)
}
