// Package processor implements the typed HTTP client for one external
// payment processor: the payment POST and the service-health GET.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lucas-de-lima/paydispatch/internal/errs"
	"github.com/lucas-de-lima/paydispatch/internal/model"
)

const userAgent = "paydispatch-processor-client/1.0"

// PayTimeout and HealthTimeout are the fixed per-call budgets.
const (
	PayTimeout    = 10 * time.Second
	HealthTimeout = 3 * time.Second
)

// payRequest is the wire payload sent to a processor's POST /payments.
type payRequest struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
	RequestedAt   string  `json:"requestedAt"`
}

// healthResponse is the wire payload returned by GET /payments/service-health.
type healthResponse struct {
	Failing         bool `json:"failing"`
	MinResponseTime int  `json:"minResponseTime"`
}

// PayResult is the outcome of a successful pay call.
type PayResult struct {
	StatusCode int
	Latency    time.Duration
}

// Client calls one external payment processor over HTTP.
type Client struct {
	Name    model.ProcessorName
	BaseURL string
	HTTP    *http.Client
}

// New creates a client for one processor. The http.Client is expected to be
// pre-configured (connection pooling, keep-alives); timeouts are applied
// per-call via context, not via the client's own Timeout field, so pay and
// health probes can carry distinct budgets.
func New(name model.ProcessorName, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}
	return &Client{Name: name, BaseURL: baseURL, HTTP: httpClient}
}

// Pay posts a payment to the processor. Latency is measured and returned
// regardless of outcome; failed calls still consume the budget.
func (c *Client) Pay(ctx context.Context, correlationID string, amount decimal.Decimal, requestedAt time.Time) (PayResult, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, PayTimeout)
	defer cancel()

	amt, _ := amount.Float64()
	body := payRequest{
		CorrelationID: correlationID,
		Amount:        amt,
		RequestedAt:   requestedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return PayResult{}, 0, fmt.Errorf("%w: marshal payment payload: %v", errs.Transient, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/payments", bytes.NewReader(payload))
	if err != nil {
		return PayResult{}, 0, fmt.Errorf("%w: build request: %v", errs.Transient, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return PayResult{}, elapsed, fmt.Errorf("%w: %s: %v", errs.Transient, c.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return PayResult{StatusCode: resp.StatusCode, Latency: elapsed}, elapsed, nil
	}
	if resp.StatusCode >= 500 {
		return PayResult{}, elapsed, fmt.Errorf("%w: %s returned %d", errs.Transient, c.Name, resp.StatusCode)
	}
	return PayResult{}, elapsed, fmt.Errorf("%w: %s returned %d", errs.Permanent, c.Name, resp.StatusCode)
}

// Health probes the processor's service-health endpoint. On any failure it
// synthesizes a failing snapshot with the sentinel minResponseTime rather
// than returning an error: callers (the poller) treat a failed probe as
// data, not an exception.
func (c *Client) Health(ctx context.Context) model.HealthSnapshot {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/payments/service-health", nil)
	if err != nil {
		return failingSnapshot(0, err.Error(), 0)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return failingSnapshot(elapsed, err.Error(), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failingSnapshot(elapsed, fmt.Sprintf("unexpected status %d", resp.StatusCode), resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return failingSnapshot(elapsed, err.Error(), resp.StatusCode)
	}

	return model.HealthSnapshot{
		Failing:           body.Failing,
		MinResponseTimeMs: body.MinResponseTime,
		ResponseTimeMs:    int(elapsed.Milliseconds()),
		LastCheckedAt:     time.Now().UTC(),
		StatusCode:        resp.StatusCode,
	}
}

func failingSnapshot(elapsed time.Duration, errMsg string, statusCode int) model.HealthSnapshot {
	return model.HealthSnapshot{
		Failing:           true,
		MinResponseTimeMs: model.UnhealthySentinelMs,
		ResponseTimeMs:    int(elapsed.Milliseconds()),
		LastCheckedAt:     time.Now().UTC(),
		Error:             errMsg,
		StatusCode:        statusCode,
	}
}
