package memory

import (
	"context"
	"sort"
	"sync"

	"token-arena/internal/domain"
	"token-arena/internal/storage"
)

// AgentStore is an in-memory implementation of storage.AgentStore.
type AgentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AgentRef
}

// NewAgentStore creates a new in-memory agent store.
func NewAgentStore() *AgentStore {
	return &AgentStore{data: make(map[string]*domain.AgentRef)}
}

// Compile-time interface check.
var _ storage.AgentStore = (*AgentStore)(nil)

// Insert adds a new agent. Returns ErrDuplicateKey if the ID exists.
func (s *AgentStore) Insert(_ context.Context, a *domain.AgentRef) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *a
	s.data[a.ID] = &cp
	return nil
}

// InsertBulk adds multiple agents atomically.
func (s *AgentStore) InsertBulk(_ context.Context, agents []*domain.AgentRef) error {
	if len(agents) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		if a == nil || a.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[a.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[a.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batch[a.ID] = struct{}{}
	}

	for _, a := range agents {
		cp := *a
		s.data[a.ID] = &cp
	}
	return nil
}

// GetByID retrieves an agent. Returns ErrNotFound if it does not exist.
func (s *AgentStore) GetByID(_ context.Context, agentID string) (*domain.AgentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[agentID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// List retrieves all agents ordered by ID.
func (s *AgentStore) List(_ context.Context) ([]*domain.AgentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AgentRef, 0, len(s.data))
	for _, a := range s.data {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
