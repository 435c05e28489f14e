package history

import (
	"context"
	"sync"

	"github.com/modpilot/internal/pending"
)

// Store keeps the outcomes of successful submissions for display
type Store interface {
	RecordOutcome(ctx context.Context, outcome *pending.Outcome) error
	// List returns outcomes newest first. projectID 0 lists every project.
	List(ctx context.Context, projectID int, limit int) ([]*pending.Outcome, error)
}

const defaultMemoryCapacity = 500

// MemoryStore keeps a bounded number of outcomes in memory
type MemoryStore struct {
	mu       sync.RWMutex
	outcomes []*pending.Outcome
	capacity int
}

// NewMemoryStore creates a store holding at most capacity outcomes
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// RecordOutcome implements pending.OutcomeRecorder
func (m *MemoryStore) RecordOutcome(_ context.Context, outcome *pending.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outcomes = append(m.outcomes, outcome)
	if over := len(m.outcomes) - m.capacity; over > 0 {
		m.outcomes = append([]*pending.Outcome(nil), m.outcomes[over:]...)
	}
	return nil
}

// List implements Store
func (m *MemoryStore) List(_ context.Context, projectID int, limit int) ([]*pending.Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*pending.Outcome, 0)
	for i := len(m.outcomes) - 1; i >= 0; i-- {
		o := m.outcomes[i]
		if projectID != 0 && o.ProjectID != projectID {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
