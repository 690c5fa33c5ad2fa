package memory

import (
	"context"
	"sort"
	"sync"

	"token-arena/internal/domain"
	"token-arena/internal/storage"
)

// MessageStore is an in-memory implementation of storage.MessageStore.
type MessageStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AgentMessage
}

// NewMessageStore creates a new in-memory message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{data: make(map[string]*domain.AgentMessage)}
}

// Compile-time interface check.
var _ storage.MessageStore = (*MessageStore)(nil)

// Insert adds a message. Returns ErrDuplicateKey if message_id exists.
func (s *MessageStore) Insert(_ context.Context, m *domain.AgentMessage) error {
	if m == nil || m.MessageID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[m.MessageID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *m
	s.data[m.MessageID] = &cp
	return nil
}

// GetRecent retrieves the most recent messages, newest first, up to limit.
func (s *MessageStore) GetRecent(_ context.Context, limit int) ([]*domain.AgentMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.AgentMessage, 0, len(s.data))
	for _, m := range s.data {
		cp := *m
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].PostedAt.Equal(all[j].PostedAt) {
			return all[i].MessageID > all[j].MessageID
		}
		return all[i].PostedAt.After(all[j].PostedAt)
	})

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
