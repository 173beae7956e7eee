// Package model holds the data types shared across the dispatch engine:
// payment records, processor health snapshots, and summary shapes.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessorName identifies which payment processor handled (or was asked
// to handle) a payment.
type ProcessorName string

const (
	ProcessorDefault   ProcessorName = "default"
	ProcessorFallback  ProcessorName = "fallback"
	ProcessorSimulated ProcessorName = "simulated"
)

// PaymentStatus is the lifecycle state of a ledger row. Only Processed rows
// contribute to summaries.
type PaymentStatus string

const (
	StatusProcessed PaymentStatus = "processed"
	StatusFailed    PaymentStatus = "failed"
	StatusPending   PaymentStatus = "pending"
)

// Payment is a single ledger record: an authoritative, idempotent record of
// one correlation id having been charged (or attempted) against a processor.
type Payment struct {
	CorrelationID string
	Amount        decimal.Decimal
	Processor     ProcessorName
	RequestedAt   time.Time
	ProcessedAt   time.Time
	Status        PaymentStatus
	ErrorMessage  string
}

// ProcessorSummary is the aggregate view of one processor's activity over a
// time window.
type ProcessorSummary struct {
	TotalRequests int64           `json:"totalRequests"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

// Summary is the full response shape for the summary query: both processor
// keys are always present, numeric fields default to zero.
type Summary struct {
	Default  ProcessorSummary `json:"default"`
	Fallback ProcessorSummary `json:"fallback"`
}

// HealthSnapshot is the cached view of a processor's last health probe.
type HealthSnapshot struct {
	Failing           bool      `json:"failing"`
	MinResponseTimeMs int       `json:"minResponseTime"`
	ResponseTimeMs    int       `json:"responseTimeMs,omitempty"`
	LastCheckedAt     time.Time `json:"lastCheckedAt"`
	Error             string    `json:"error,omitempty"`
	StatusCode        int       `json:"statusCode,omitempty"`
}

// IsHealthy is the negation of Failing.
func (h HealthSnapshot) IsHealthy() bool { return !h.Failing }

// UnhealthySentinelMs is the minResponseTime value synthesized when a probe
// errors out entirely.
const UnhealthySentinelMs = 999999
