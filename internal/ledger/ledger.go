// Package ledger is the persistent payment store: idempotent inserts and
// range-aggregated summaries over a pooled Postgres connection.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lucas-de-lima/paydispatch/internal/errs"
	"github.com/lucas-de-lima/paydispatch/internal/model"
	"github.com/lucas-de-lima/paydispatch/internal/validate"
)

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	id SERIAL PRIMARY KEY,
	correlation_id UUID UNIQUE NOT NULL,
	amount DECIMAL(10,2) NOT NULL,
	processor_type TEXT NOT NULL CHECK (processor_type IN ('default','fallback','simulated')),
	requested_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	status TEXT NOT NULL DEFAULT 'processed' CHECK (status IN ('processed','failed','pending')),
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_payments_correlation_id ON payments (correlation_id);
CREATE INDEX IF NOT EXISTS idx_payments_processor_type ON payments (processor_type);
CREATE INDEX IF NOT EXISTS idx_payments_requested_at ON payments (requested_at);
CREATE INDEX IF NOT EXISTS idx_payments_processed_at ON payments (processed_at);
`

// Store is the interface the dispatcher and summary aggregator consume;
// satisfied by *Postgres and, in tests, by *Memory.
type Store interface {
	PutPayment(ctx context.Context, p model.Payment) error
	GetSummary(ctx context.Context, from, to *time.Time) (model.Summary, error)
	GetPayment(ctx context.Context, correlationID string) (model.Payment, bool, error)
	PoolStats() PoolStats
}

// PoolStats is the subset of pgxpool.Stat surfaced to /health/stats.
type PoolStats struct {
	AcquiredConns int32
	IdleConns     int32
	MaxConns      int32
	TotalConns    int32
}

// Postgres is the pgxpool-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens the pool (min 5, max 25 conns, 30s idle timeout, 2s connect
// timeout) and ensures the schema exists.
func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MinConns = 5
	cfg.MaxConns = 25
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.ConnConfig.ConnectTimeout = 2 * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open pool: %v", errs.Persistence, err)
	}

	migrateCtx, cancel2 := context.WithTimeout(ctx, 30*time.Second)
	defer cancel2()
	if _, err := pool.Exec(migrateCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: migrate schema: %v", errs.Persistence, err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }

// PutPayment inserts a row with status processed. A correlation-id conflict
// is never an error: it is a successful idempotent insert, the original
// record wins.
func (p *Postgres) PutPayment(ctx context.Context, pay model.Payment) error {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := p.pool.Exec(queryCtx, `
		INSERT INTO payments (correlation_id, amount, processor_type, requested_at, status)
		VALUES ($1, $2, $3, $4, 'processed')
		ON CONFLICT (correlation_id) DO NOTHING`,
		pay.CorrelationID, pay.Amount, string(pay.Processor), pay.RequestedAt)
	if err != nil {
		return fmt.Errorf("%w: put_payment: %v", errs.Persistence, err)
	}
	return nil
}

// GetSummary aggregates totals per processor over the optional closed
// interval [from, to] on requested_at, restricted to processed rows.
func (p *Postgres) GetSummary(ctx context.Context, from, to *time.Time) (model.Summary, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := p.pool.Query(queryCtx, `
		SELECT processor_type, COUNT(*), COALESCE(SUM(amount), 0)
		FROM payments
		WHERE status = 'processed'
		  AND ($1::timestamptz IS NULL OR requested_at >= $1)
		  AND ($2::timestamptz IS NULL OR requested_at <= $2)
		GROUP BY processor_type`, from, to)
	if err != nil {
		return model.Summary{}, fmt.Errorf("%w: get_summary: %v", errs.Persistence, err)
	}
	defer rows.Close()

	summary := model.Summary{}
	for rows.Next() {
		var processorType string
		var count int64
		var total decimal.Decimal
		if err := rows.Scan(&processorType, &count, &total); err != nil {
			return model.Summary{}, fmt.Errorf("%w: scan summary row: %v", errs.Persistence, err)
		}
		// simulated rows never contribute to customer summaries; anything
		// else outside the two dispatchable processors is bad ledger data.
		if check := validate.ProcessorType(processorType); !check.Passed {
			if model.ProcessorName(processorType) != model.ProcessorSimulated {
				log.Warn().Str("processor_type", processorType).Str("detail", check.Detail).Msg("ledger row group skipped")
			}
			continue
		}
		ps := model.ProcessorSummary{TotalRequests: count, TotalAmount: total}
		if model.ProcessorName(processorType) == model.ProcessorDefault {
			summary.Default = ps
		} else {
			summary.Fallback = ps
		}
	}
	if err := rows.Err(); err != nil {
		return model.Summary{}, fmt.Errorf("%w: get_summary: %v", errs.Persistence, err)
	}
	return summary, nil
}

// GetPayment returns the row for a correlation id, if any.
func (p *Postgres) GetPayment(ctx context.Context, correlationID string) (model.Payment, bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var pay model.Payment
	var status string
	var processorType string
	var errMsg *string
	err := p.pool.QueryRow(queryCtx, `
		SELECT correlation_id, amount, processor_type, requested_at, processed_at, status, error_message
		FROM payments WHERE correlation_id = $1`, correlationID).
		Scan(&pay.CorrelationID, &pay.Amount, &processorType, &pay.RequestedAt, &pay.ProcessedAt, &status, &errMsg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Payment{}, false, nil
		}
		return model.Payment{}, false, fmt.Errorf("%w: get_payment: %v", errs.Persistence, err)
	}
	pay.Processor = model.ProcessorName(processorType)
	pay.Status = model.PaymentStatus(status)
	if errMsg != nil {
		pay.ErrorMessage = *errMsg
	}
	return pay, true, nil
}

// PoolStats reads live pool occupancy for /health/stats.
func (p *Postgres) PoolStats() PoolStats {
	s := p.pool.Stat()
	return PoolStats{
		AcquiredConns: s.AcquiredConns(),
		IdleConns:     s.IdleConns(),
		MaxConns:      s.MaxConns(),
		TotalConns:    s.TotalConns(),
	}
}
