package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/lucas-de-lima/paydispatch/internal/model"
)

// Memory is an in-process Store used by dispatcher and summary tests in
// place of a live Postgres instance.
type Memory struct {
	mu   sync.Mutex
	rows map[string]model.Payment
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]model.Payment)}
}

func (m *Memory) PutPayment(_ context.Context, p model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[p.CorrelationID]; exists {
		return nil
	}
	if p.Status == "" {
		p.Status = model.StatusProcessed
	}
	m.rows[p.CorrelationID] = p
	return nil
}

func (m *Memory) GetSummary(_ context.Context, from, to *time.Time) (model.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := model.Summary{}
	for _, p := range m.rows {
		if p.Status != model.StatusProcessed {
			continue
		}
		if from != nil && p.RequestedAt.Before(*from) {
			continue
		}
		if to != nil && p.RequestedAt.After(*to) {
			continue
		}
		switch p.Processor {
		case model.ProcessorDefault:
			summary.Default.TotalRequests++
			summary.Default.TotalAmount = summary.Default.TotalAmount.Add(p.Amount)
		case model.ProcessorFallback:
			summary.Fallback.TotalRequests++
			summary.Fallback.TotalAmount = summary.Fallback.TotalAmount.Add(p.Amount)
		}
	}
	return summary, nil
}

func (m *Memory) GetPayment(_ context.Context, correlationID string) (model.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[correlationID]
	return p, ok, nil
}

func (m *Memory) PoolStats() PoolStats {
	return PoolStats{}
}
