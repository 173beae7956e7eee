// Package httpapi is the service's external interface: a gorilla/mux
// router exposing payment submission, summary queries, health/reporting
// endpoints, and administrative resets. Request parsing and DTO schema
// validation live here, outside the dispatch core.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lucas-de-lima/paydispatch/internal/audit"
	"github.com/lucas-de-lima/paydispatch/internal/cache"
	"github.com/lucas-de-lima/paydispatch/internal/dispatch"
	"github.com/lucas-de-lima/paydispatch/internal/errs"
	"github.com/lucas-de-lima/paydispatch/internal/health"
	"github.com/lucas-de-lima/paydispatch/internal/ledger"
	"github.com/lucas-de-lima/paydispatch/internal/metrics"
	"github.com/lucas-de-lima/paydispatch/internal/model"
	"github.com/lucas-de-lima/paydispatch/internal/summary"
	"github.com/lucas-de-lima/paydispatch/internal/validate"
)

const serviceVersion = "1.0.0"

var dtoValidator = validator.New()

// paymentRequestDTO is the wire shape of POST /payments. Amount is kept as
// the raw JSON number so the precision check sees the client's exact value,
// not a float-rounded one.
type paymentRequestDTO struct {
	CorrelationID string      `json:"correlationId" validate:"required,uuid4"`
	Amount        json.Number `json:"amount" validate:"required"`
}

// Server holds every collaborator the router dispatches to.
type Server struct {
	router     *mux.Router
	dispatcher *dispatch.Dispatcher
	summary    *summary.Aggregator
	cache      cache.Cache
	store      ledger.Store
	recorder   *metrics.Recorder
	audit      *audit.Store
	startedAt  time.Time
}

// New builds the router and registers every route.
func New(d *dispatch.Dispatcher, s *summary.Aggregator, c cache.Cache, store ledger.Store, rec *metrics.Recorder, aud *audit.Store) *Server {
	srv := &Server{
		router:     mux.NewRouter(),
		dispatcher: d,
		summary:    s,
		cache:      c,
		store:      store,
		recorder:   rec,
		audit:      aud,
		startedAt:  time.Now().UTC(),
	}
	srv.routes()
	return srv
}

// Handler returns the http.Handler to serve.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.HandleFunc("/payments", s.handleSubmitPayment).Methods(http.MethodPost)
	s.router.HandleFunc("/payments/summary", s.handleSummary).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleLiveness).Methods(http.MethodGet)
	s.router.HandleFunc("/health/payment-processors", s.handleProcessorHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/health/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/health/performance", s.handlePerformance).Methods(http.MethodGet)
	s.router.HandleFunc("/health/audit", s.handleAuditAll).Methods(http.MethodGet)
	s.router.HandleFunc("/health/audit/{correlationId}", s.handleAuditOne).Methods(http.MethodGet)
	s.router.HandleFunc("/health/simulate-batch", s.handleSimulateBatch).Methods(http.MethodPost)
	s.router.HandleFunc("/health/reset-circuit-breakers", s.handleResetBreakers).Methods(http.MethodPost)
	s.router.HandleFunc("/health/clear-health-cache", s.handleClearHealthCache).Methods(http.MethodPost)
	s.router.HandleFunc("/health/clear-audit-logs", s.handleClearAuditLogs).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	var dto paymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := dtoValidator.Struct(dto); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "details": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(dto.Amount.String())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "details": "amount must be a number"})
		return
	}
	res, err := s.dispatcher.Submit(r.Context(), dto.CorrelationID, amount)
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "payment processed",
		"correlationId": res.CorrelationID,
		"amount":        res.Amount,
		"processor":     res.Processor,
	})
}

func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.Validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, errs.Unavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	case errors.Is(err, errs.Persistence):
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if check := validate.DateRange(from, to); !check.Passed {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": check.Detail})
		return
	}
	sum, err := s.summary.Get(r.Context(), from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func parseDateRange(r *http.Request) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "paydispatch",
		"version":   serviceVersion,
	})
}

func (s *Server) handleProcessorHealth(w http.ResponseWriter, r *http.Request) {
	defaultSnap := health.Snapshot(r.Context(), s.cache, model.ProcessorDefault)
	fallbackSnap := health.Snapshot(r.Context(), s.cache, model.ProcessorFallback)

	status := http.StatusOK
	if defaultSnap.Failing && fallbackSnap.Failing {
		status = http.StatusServiceUnavailable
	}

	retryCfg := s.dispatcher.RetrySettings()
	writeJSON(w, status, map[string]any{
		"processors": map[string]any{
			"default":  defaultSnap,
			"fallback": fallbackSnap,
		},
		"circuitBreakers": map[string]any{
			"default":  s.dispatcher.DefaultBreaker().GetStats(),
			"fallback": s.dispatcher.FallbackBreaker().GetStats(),
		},
		"retry": map[string]any{
			"maxRetries":  retryCfg.MaxRetries,
			"baseDelayMs": retryCfg.BaseDelay.Milliseconds(),
			"maxDelayMs":  retryCfg.MaxDelay.Milliseconds(),
			"multiplier":  retryCfg.Multiplier,
			"jitter":      retryCfg.Jitter,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptimeSeconds": time.Since(s.startedAt).Seconds(),
		"dbPool":        s.store.PoolStats(),
		"circuitBreakers": map[string]any{
			"default":  s.dispatcher.DefaultBreaker().GetStats(),
			"fallback": s.dispatcher.FallbackBreaker().GetStats(),
		},
		"metrics": s.recorder.Snapshot(),
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"latency":   s.recorder.Snapshot(),
		"dbPool":    s.store.PoolStats(),
		"checkedAt": time.Now().UTC(),
	})
}

func (s *Server) handleAuditAll(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audit.All()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleAuditOne(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["correlationId"]
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "correlationId must be a UUID"})
		return
	}
	entries, err := s.audit.ForCorrelationID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	body := map[string]any{"correlationId": id, "entries": entries}
	if pay, ok, err := s.summary.Lookup(r.Context(), id); err == nil && ok {
		body["payment"] = map[string]any{
			"amount":      pay.Amount,
			"processor":   pay.Processor,
			"requestedAt": pay.RequestedAt,
			"processedAt": pay.ProcessedAt,
			"status":      pay.Status,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// simulateBatchDTO is the admin request firing N synthetic payments through
// the real dispatch path.
type simulateBatchDTO struct {
	Count  int         `json:"count" validate:"required,gt=0,lte=1000"`
	Amount json.Number `json:"amount" validate:"required"`
}

func (s *Server) handleSimulateBatch(w http.ResponseWriter, r *http.Request) {
	var dto simulateBatchDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := dtoValidator.Struct(dto); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "details": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(dto.Amount.String())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "details": "amount must be a number"})
		return
	}
	if check := validate.AmountFormat(amount); !check.Passed {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "details": check.Detail})
		return
	}

	approved := 0
	byProcessor := map[model.ProcessorName]int{}
	for i := 0; i < dto.Count; i++ {
		res, err := s.dispatcher.Submit(r.Context(), uuid.NewString(), amount)
		if err != nil {
			continue
		}
		approved++
		byProcessor[res.Processor]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requested":    dto.Count,
		"approved":     approved,
		"approvalRate": float64(approved) / float64(dto.Count),
		"byProcessor":  byProcessor,
	})
}

func (s *Server) handleResetBreakers(w http.ResponseWriter, r *http.Request) {
	s.dispatcher.ResetBreakers()
	log.Info().Msg("circuit breakers reset via admin endpoint")
	writeJSON(w, http.StatusOK, map[string]any{"message": "circuit breakers reset"})
}

func (s *Server) handleClearHealthCache(w http.ResponseWriter, r *http.Request) {
	for _, key := range []string{"health:cache", "health:last_check"} {
		_ = s.cache.Del(r.Context(), key)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "health cache cleared"})
}

func (s *Server) handleClearAuditLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.audit.Clear(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "audit logs cleared"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found", "path": r.URL.Path})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("write json response failed")
	}
}

