package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure ProgressStore implements the interface.
var _ driven.ProgressStore = (*ProgressStore)(nil)

// ProgressStore is an in-memory implementation of driven.ProgressStore.
// It counts saves so tests can check the checkpoint cadence.
type ProgressStore struct {
	mu    sync.RWMutex
	runs  map[string]domain.IngestRun
	saves int
}

// NewProgressStore creates a new in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		runs: make(map[string]domain.IngestRun),
	}
}

// SaveRun stores or updates a checkpoint.
func (s *ProgressStore) SaveRun(_ context.Context, run *domain.IngestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.UpdatedAt = time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = run.UpdatedAt
	}
	stored := *run
	stored.Stats.Errors = slices.Clone(run.Stats.Errors)
	s.runs[run.ID] = stored
	s.saves++
	return nil
}

// GetRun retrieves a checkpoint by run ID.
func (s *ProgressStore) GetRun(_ context.Context, id string) (*domain.IngestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

// Saves returns the number of SaveRun calls.
func (s *ProgressStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
