// Package storage defines the persistence collaborator consumed by the
// simulation core. The orchestrator only ever talks to these interfaces;
// memory, postgres, and clickhouse implementations live in subpackages.
package storage

import (
	"context"
	"time"

	"token-arena/internal/domain"
)

// AgentStore provides access to the agent registry. Agents are written once
// at spawn time and read-only afterwards.
type AgentStore interface {
	// Insert adds a new agent. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, a *domain.AgentRef) error

	// InsertBulk adds multiple agents atomically. Fails the whole batch on
	// any duplicate.
	InsertBulk(ctx context.Context, agents []*domain.AgentRef) error

	// GetByID retrieves an agent. Returns ErrNotFound if it does not exist.
	GetByID(ctx context.Context, agentID string) (*domain.AgentRef, error)

	// List retrieves all agents ordered by ID.
	List(ctx context.Context) ([]*domain.AgentRef, error)
}

// TradeLog provides append-only access to committed trades.
type TradeLog interface {
	// Insert adds a trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// InsertBulk adds multiple trades atomically.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByTimeRange retrieves trades within [start, end] inclusive,
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.TradeRecord, error)

	// GetByAgentID retrieves all trades for an agent, ordered by timestamp ASC.
	GetByAgentID(ctx context.Context, agentID string) ([]*domain.TradeRecord, error)
}

// MessageStore provides access to agent social messages.
type MessageStore interface {
	// Insert adds a message. Returns ErrDuplicateKey if message_id exists.
	Insert(ctx context.Context, m *domain.AgentMessage) error

	// GetRecent retrieves the most recent messages, newest first, up to limit.
	GetRecent(ctx context.Context, limit int) ([]*domain.AgentMessage, error)
}

// SnapshotStore persists point-in-time pool snapshots and cycle summaries,
// and supplies the latest snapshot on orchestrator startup/recovery.
type SnapshotStore interface {
	// SavePoolSnapshot persists a full pool state snapshot.
	SavePoolSnapshot(ctx context.Context, snapshot *domain.PoolState) error

	// LoadLatestPoolSnapshot retrieves the most recently saved snapshot.
	// Returns ErrNotFound when none exists.
	LoadLatestPoolSnapshot(ctx context.Context) (*domain.PoolState, error)

	// SaveCycleSummary persists a completed-cycle summary. Returns
	// ErrDuplicateKey for a (run_id, cycle) that was already written.
	SaveCycleSummary(ctx context.Context, summary *domain.CycleSummary) error

	// GetCycleSummaries retrieves all summaries for a run, ordered by cycle ASC.
	GetCycleSummaries(ctx context.Context, runID string) ([]*domain.CycleSummary, error)
}
