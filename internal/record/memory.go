package record

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"ingest/pkg/models"
)

// MemoryStore keeps summaries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records []models.BatchSummary
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Insert(ctx context.Context, summary models.BatchSummary) (*models.BatchSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, insertError("memory", err)
	}
	stored, err := prepare(summary, time.Now())
	if err != nil {
		return nil, err
	}
	stored.ID = uuid.NewString()
	stored.Addresses = slices.Clone(stored.Addresses)

	m.mu.Lock()
	m.records = append(m.records, stored)
	m.mu.Unlock()

	out := stored
	return &out, nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]models.BatchSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = listLimit(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.BatchSummary, 0, min(limit, len(m.records)))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// Len returns the number of stored summaries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryStore) Close(context.Context) error { return nil }
