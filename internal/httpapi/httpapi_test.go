package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucas-de-lima/paydispatch/internal/audit"
	"github.com/lucas-de-lima/paydispatch/internal/breaker"
	"github.com/lucas-de-lima/paydispatch/internal/cache"
	"github.com/lucas-de-lima/paydispatch/internal/dispatch"
	"github.com/lucas-de-lima/paydispatch/internal/httpapi"
	"github.com/lucas-de-lima/paydispatch/internal/ledger"
	"github.com/lucas-de-lima/paydispatch/internal/metrics"
	"github.com/lucas-de-lima/paydispatch/internal/model"
	"github.com/lucas-de-lima/paydispatch/internal/processor"
	"github.com/lucas-de-lima/paydispatch/internal/retry"
	"github.com/lucas-de-lima/paydispatch/internal/summary"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	defaultSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(defaultSrv.Close)
	fallbackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(fallbackSrv.Close)

	defaultClient := processor.New(model.ProcessorDefault, defaultSrv.URL, defaultSrv.Client())
	fallbackClient := processor.New(model.ProcessorFallback, fallbackSrv.URL, fallbackSrv.Client())

	store := ledger.NewMemory()
	c := cache.NewMemory()
	agg := summary.New(c, store)
	rec := metrics.New(time.Second)

	auditStore, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	d := dispatch.New(defaultClient, fallbackClient, breaker.DefaultConfig(), retry.DefaultConfig(), store, agg, rec, auditStore, false)
	return httpapi.New(d, agg, c, store, rec, auditStore).Handler()
}

func TestSubmitPaymentHappyPath(t *testing.T) {
	h := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"correlationId": "550e8400-e29b-41d4-a716-446655440000", "amount": 100.50})
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "default", resp["processor"])
}

func TestSubmitPaymentValidationFailure(t *testing.T) {
	h := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"correlationId": "not-a-uuid", "amount": 100.50})
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitPaymentRejectsThreeDecimalPlaces(t *testing.T) {
	h := newTestServer(t)

	body := []byte(`{"correlationId": "550e8400-e29b-41d4-a716-446655440000", "amount": 100.555}`)
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code, "three decimal places must not be silently rounded")
}

func TestSummaryEndpointReturnsBothProcessorKeys(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/payments/summary", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "default")
	assert.Contains(t, resp, "fallback")
}

func TestLivenessEndpoint(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFoundHandler(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummaryRejectsInvertedDateRange(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/payments/summary?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulateBatchEndpoint(t *testing.T) {
	h := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"count": 5, "amount": 1.25})
	req := httptest.NewRequest(http.MethodPost, "/health/simulate-batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 5, resp["requested"])
	assert.EqualValues(t, 5, resp["approved"])
	assert.EqualValues(t, 1, resp["approvalRate"])
}

func TestProcessorHealthReportsRetrySettings(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/payment-processors", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "processors")
	assert.Contains(t, resp, "circuitBreakers")
	assert.Contains(t, resp, "retry")
}

func TestResetCircuitBreakersEndpoint(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/health/reset-circuit-breakers", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
