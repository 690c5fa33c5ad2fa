package postgres

import (
	"context"
	"fmt"

	"token-arena/internal/domain"
	"token-arena/internal/storage"
)

// AgentStore implements storage.AgentStore using PostgreSQL.
type AgentStore struct {
	pool *Pool
}

// NewAgentStore creates a new AgentStore.
func NewAgentStore(pool *Pool) *AgentStore {
	return &AgentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AgentStore = (*AgentStore)(nil)

const insertAgentQuery = `
	INSERT INTO agents (
		agent_id, name, personality, risk_tolerance, trade_frequency, max_position_size
	) VALUES ($1, $2, $3, $4, $5, $6)
`

// Insert adds a new agent. Returns ErrDuplicateKey if the ID exists.
func (s *AgentStore) Insert(ctx context.Context, a *domain.AgentRef) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertAgentQuery,
		a.ID, a.Name, string(a.Personality),
		a.RiskTolerance, a.TradeFrequency, a.MaxPositionSize,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// InsertBulk adds multiple agents atomically.
func (s *AgentStore) InsertBulk(ctx context.Context, agents []*domain.AgentRef) error {
	if len(agents) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range agents {
		if a == nil || a.ID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertAgentQuery,
			a.ID, a.Name, string(a.Personality),
			a.RiskTolerance, a.TradeFrequency, a.MaxPositionSize,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert agent in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves an agent. Returns ErrNotFound if it does not exist.
func (s *AgentStore) GetByID(ctx context.Context, agentID string) (*domain.AgentRef, error) {
	query := `
		SELECT agent_id, name, personality, risk_tolerance, trade_frequency, max_position_size
		FROM agents
		WHERE agent_id = $1
	`
	var a domain.AgentRef
	var personality string
	err := s.pool.QueryRow(ctx, query, agentID).Scan(
		&a.ID, &a.Name, &personality,
		&a.RiskTolerance, &a.TradeFrequency, &a.MaxPositionSize,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get agent by id: %w", err)
	}
	a.Personality = domain.Personality(personality)
	return &a, nil
}

// List retrieves all agents ordered by ID.
func (s *AgentStore) List(ctx context.Context) ([]*domain.AgentRef, error) {
	query := `
		SELECT agent_id, name, personality, risk_tolerance, trade_frequency, max_position_size
		FROM agents
		ORDER BY agent_id ASC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*domain.AgentRef
	for rows.Next() {
		var a domain.AgentRef
		var personality string
		if err := rows.Scan(
			&a.ID, &a.Name, &personality,
			&a.RiskTolerance, &a.TradeFrequency, &a.MaxPositionSize,
		); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Personality = domain.Personality(personality)
		out = append(out, &a)
	}
	return out, rows.Err()
}
