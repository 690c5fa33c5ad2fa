package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"token-arena/internal/domain"
	"token-arena/internal/storage"
)

// TradeLog is an in-memory implementation of storage.TradeLog.
type TradeLog struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRecord // keyed by trade_id
}

// NewTradeLog creates a new in-memory trade log.
func NewTradeLog() *TradeLog {
	return &TradeLog{data: make(map[string]*domain.TradeRecord)}
}

// Compile-time interface check.
var _ storage.TradeLog = (*TradeLog)(nil)

// Insert adds a trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeLog) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *t
	s.data[t.TradeID] = &cp
	return nil
}

// InsertBulk adds multiple trades atomically.
func (s *TradeLog) InsertBulk(_ context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batch[t.TradeID] = struct{}{}
	}

	for _, t := range trades {
		cp := *t
		s.data[t.TradeID] = &cp
	}
	return nil
}

// GetByTimeRange retrieves trades within [start, end] inclusive, ordered by
// timestamp ASC.
func (s *TradeLog) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeRecord
	for _, t := range s.data {
		if t.Timestamp.Before(start) || t.Timestamp.After(end) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sortTrades(out)
	return out, nil
}

// GetByAgentID retrieves all trades for an agent, ordered by timestamp ASC.
func (s *TradeLog) GetByAgentID(_ context.Context, agentID string) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeRecord
	for _, t := range s.data {
		if t.AgentID != agentID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sortTrades(out)
	return out, nil
}

func sortTrades(trades []*domain.TradeRecord) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].Timestamp.Equal(trades[j].Timestamp) {
			return trades[i].TradeID < trades[j].TradeID
		}
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}
