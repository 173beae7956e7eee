// Package validate holds the local, synchronous, side-effect-free
// consistency checks run before dispatch and over summary results. None of
// these panic; each returns a pass/fail result suitable for logging or
// surfacing as a 400.
package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var correlationIDPattern = regexp.MustCompile(
	`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`,
)

// Check is a single named pass/fail result.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Result aggregates checks for one validated entity.
type Result struct {
	Checks []Check
}

// OK reports whether every check in the result passed.
func (r Result) OK() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// FirstFailure returns the detail of the first failing check, or "" if all
// passed.
func (r Result) FirstFailure() string {
	for _, c := range r.Checks {
		if !c.Passed {
			return c.Detail
		}
	}
	return ""
}

func add(r *Result, name string, passed bool, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, Passed: passed, Detail: detail})
}

// CorrelationIDFormat checks a correlation id against the UUID v4 pattern,
// case-insensitively.
func CorrelationIDFormat(id string) Check {
	ok := correlationIDPattern.MatchString(strings.ToLower(id))
	detail := ""
	if !ok {
		detail = "correlation_id must be a UUID v4"
	}
	return Check{Name: "correlation_id_format", Passed: ok, Detail: detail}
}

// AmountFormat checks that amount is finite, strictly positive, and carries
// at most two decimal places.
func AmountFormat(amount decimal.Decimal) Check {
	if !amount.IsPositive() {
		return Check{Name: "amount_format", Passed: false, Detail: "amount must be strictly positive"}
	}
	cents := amount.Mul(decimal.NewFromInt(100))
	if !cents.Equal(cents.Truncate(0)) {
		return Check{Name: "amount_format", Passed: false, Detail: "amount must have at most two decimal places"}
	}
	return Check{Name: "amount_format", Passed: true}
}

// ProcessorType checks that name is one of the two client-selectable
// processors (simulated is an internal outcome, never a client input).
func ProcessorType(name string) Check {
	ok := name == "default" || name == "fallback"
	detail := ""
	if !ok {
		detail = "processor must be one of: default, fallback"
	}
	return Check{Name: "processor_type", Passed: ok, Detail: detail}
}

// TimestampFormat checks that s parses as RFC3339 and carries both a 'T' and
// a 'Z' UTC marker.
func TimestampFormat(s string) Check {
	if !strings.Contains(s, "T") || !strings.Contains(s, "Z") {
		return Check{Name: "timestamp_format", Passed: false, Detail: "timestamp must be UTC ISO-8601 with T and Z"}
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return Check{Name: "timestamp_format", Passed: false, Detail: "timestamp must be parseable RFC3339"}
	}
	return Check{Name: "timestamp_format", Passed: true}
}

// NoDuplicateCorrelationID classifies the outcome of a best-effort ledger
// lookup for a correlation id. A lookup error counts as a pass: the check
// never blocks a submission, the store's unique index is the enforcer.
func NoDuplicateCorrelationID(exists bool, lookupErr error) Check {
	if lookupErr == nil && exists {
		return Check{Name: "no_duplicate_correlation_id", Passed: false, Detail: "correlation_id already recorded"}
	}
	return Check{Name: "no_duplicate_correlation_id", Passed: true}
}

// PaymentRequest runs every check applicable to an incoming payment
// submission.
func PaymentRequest(correlationID string, amount decimal.Decimal) Result {
	var r Result
	cf := CorrelationIDFormat(correlationID)
	add(&r, cf.Name, cf.Passed, cf.Detail)
	af := AmountFormat(amount)
	add(&r, af.Name, af.Passed, af.Detail)
	return r
}

// SummaryStructure checks that a summary carries both processor keys with
// non-negative numeric fields (summary_structure + summary_amounts +
// summary_counts collapsed into one pass, since the shape is fixed Go
// structs rather than a dynamically-keyed map).
func SummaryStructure(defaultRequests, fallbackRequests int64, defaultAmount, fallbackAmount decimal.Decimal) Result {
	var r Result
	add(&r, "summary_counts", defaultRequests >= 0 && fallbackRequests >= 0, "counts must be >= 0")
	add(&r, "summary_amounts", !defaultAmount.IsNegative() && !fallbackAmount.IsNegative(), "amounts must be >= 0")
	return r
}

// DateRange checks that, when both bounds are present, from <= to.
func DateRange(from, to *time.Time) Check {
	if from != nil && to != nil && from.After(*to) {
		return Check{Name: "date_range", Passed: false, Detail: "from must not be after to"}
	}
	return Check{Name: "date_range", Passed: true}
}
