package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"token-arena/internal/domain"
	"token-arena/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []domain.PoolState
	summaries map[string]*domain.CycleSummary // keyed by run_id/cycle
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{summaries: make(map[string]*domain.CycleSummary)}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// SavePoolSnapshot persists a full pool state snapshot.
func (s *SnapshotStore) SavePoolSnapshot(_ context.Context, snapshot *domain.PoolState) error {
	if snapshot == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot.Clone())
	return nil
}

// LoadLatestPoolSnapshot retrieves the most recently saved snapshot.
func (s *SnapshotStore) LoadLatestPoolSnapshot(_ context.Context) (*domain.PoolState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, storage.ErrNotFound
	}
	cp := s.snapshots[len(s.snapshots)-1].Clone()
	return &cp, nil
}

// SaveCycleSummary persists a completed-cycle summary.
func (s *SnapshotStore) SaveCycleSummary(_ context.Context, summary *domain.CycleSummary) error {
	if summary == nil || summary.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := summaryKey(summary.RunID, summary.Cycle)
	if _, exists := s.summaries[key]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *summary
	s.summaries[key] = &cp
	return nil
}

// GetCycleSummaries retrieves all summaries for a run, ordered by cycle ASC.
func (s *SnapshotStore) GetCycleSummaries(_ context.Context, runID string) ([]*domain.CycleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CycleSummary
	for _, sum := range s.summaries {
		if sum.RunID != runID {
			continue
		}
		cp := *sum
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cycle < out[j].Cycle })
	return out, nil
}

func summaryKey(runID string, cycle uint64) string {
	return fmt.Sprintf("%s/%d", runID, cycle)
}
