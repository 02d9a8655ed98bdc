package sink

import (
	"context"
	"sync"

	"pictopercept/internal/models"
)

// MemorySink keeps records in process. It is used for local runs and tests.
type MemorySink struct {
	mu        sync.RWMutex
	records   map[string]models.ResponseRecord
	order     []string
	summaries map[string]models.SessionSummary
	writes    int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		records:   make(map[string]models.ResponseRecord),
		summaries: make(map[string]models.SessionSummary),
	}
}

func (m *MemorySink) Write(ctx context.Context, record models.ResponseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	key := record.Key()
	if _, exists := m.records[key]; exists {
		return nil
	}
	m.records[key] = record
	m.order = append(m.order, key)
	return nil
}

func (m *MemorySink) WriteSummary(ctx context.Context, summary models.SessionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.summaries[summary.SessionID]; !exists {
		m.summaries[summary.SessionID] = summary
	}
	return nil
}

// Records returns the stored records in first-write order.
func (m *MemorySink) Records() []models.ResponseRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ResponseRecord, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.records[key])
	}
	return out
}

// Writes counts every Write call, including ones absorbed as duplicates.
func (m *MemorySink) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MemorySink) Summary(sessionID string) (models.SessionSummary, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[sessionID]
	return s, ok
}
