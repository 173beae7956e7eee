package validate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/lucas-de-lima/paydispatch/internal/validate"
)

func TestCorrelationIDFormat(t *testing.T) {
	assert.True(t, validate.CorrelationIDFormat("550e8400-e29b-41d4-a716-446655440000").Passed)
	assert.False(t, validate.CorrelationIDFormat("550e8400-e29b-11d4-a716-446655440000").Passed, "UUID v1 must fail")
	assert.False(t, validate.CorrelationIDFormat("not-a-uuid").Passed)
}

func TestAmountFormat(t *testing.T) {
	assert.True(t, validate.AmountFormat(decimal.NewFromFloat(0.01)).Passed)
	assert.False(t, validate.AmountFormat(decimal.NewFromInt(0)).Passed)
	assert.False(t, validate.AmountFormat(decimal.NewFromFloat(100.555)).Passed, "three decimal places must fail")
	assert.True(t, validate.AmountFormat(decimal.NewFromFloat(100.50)).Passed)
}

func TestProcessorType(t *testing.T) {
	assert.True(t, validate.ProcessorType("default").Passed)
	assert.True(t, validate.ProcessorType("fallback").Passed)
	assert.False(t, validate.ProcessorType("simulated").Passed, "simulated is an internal outcome, not a dispatchable processor")
	assert.False(t, validate.ProcessorType("visa").Passed)
}

func TestTimestampFormat(t *testing.T) {
	assert.True(t, validate.TimestampFormat("2026-07-31T10:00:00.000Z").Passed)
	assert.False(t, validate.TimestampFormat("2026-07-31 10:00:00").Passed, "missing T and Z")
	assert.False(t, validate.TimestampFormat("2026-07-31T10:00:00.000").Passed, "missing Z")
}

func TestDateRange(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, validate.DateRange(&earlier, &later).Passed)
	assert.False(t, validate.DateRange(&later, &earlier).Passed)
	assert.True(t, validate.DateRange(nil, nil).Passed)
}

func TestSummaryStructure(t *testing.T) {
	ok := validate.SummaryStructure(1, 2, decimal.NewFromInt(10), decimal.NewFromInt(20))
	assert.True(t, ok.OK())

	bad := validate.SummaryStructure(-1, 2, decimal.NewFromInt(10), decimal.NewFromInt(20))
	assert.False(t, bad.OK())
}

func TestNoDuplicateCorrelationID(t *testing.T) {
	assert.True(t, validate.NoDuplicateCorrelationID(false, nil).Passed)
	assert.False(t, validate.NoDuplicateCorrelationID(true, nil).Passed)
	assert.True(t, validate.NoDuplicateCorrelationID(true, errors.New("lookup failed")).Passed, "lookup errors must never block")
}

func TestPaymentRequest(t *testing.T) {
	ok := validate.PaymentRequest("550e8400-e29b-41d4-a716-446655440000", decimal.NewFromFloat(100.50))
	assert.True(t, ok.OK())

	bad := validate.PaymentRequest("not-a-uuid", decimal.NewFromFloat(0))
	assert.False(t, bad.OK())
}
