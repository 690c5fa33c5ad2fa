package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"token-arena/internal/domain"
	"token-arena/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL. Pool
// snapshots are stored whole as JSONB: they are point-in-time documents read
// back only on recovery, never queried field-by-field.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// SavePoolSnapshot persists a full pool state snapshot.
func (s *SnapshotStore) SavePoolSnapshot(ctx context.Context, snapshot *domain.PoolState) error {
	if snapshot == nil {
		return storage.ErrInvalidInput
	}

	doc, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal pool snapshot: %w", err)
	}

	query := `INSERT INTO pool_snapshots (version, state) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, query, snapshot.Version, doc); err != nil {
		return fmt.Errorf("insert pool snapshot: %w", err)
	}
	return nil
}

// LoadLatestPoolSnapshot retrieves the most recently saved snapshot.
func (s *SnapshotStore) LoadLatestPoolSnapshot(ctx context.Context) (*domain.PoolState, error) {
	query := `SELECT state FROM pool_snapshots ORDER BY id DESC LIMIT 1`

	var doc []byte
	if err := s.pool.QueryRow(ctx, query).Scan(&doc); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load latest pool snapshot: %w", err)
	}

	var snapshot domain.PoolState
	if err := json.Unmarshal(doc, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal pool snapshot: %w", err)
	}
	return &snapshot, nil
}

// SaveCycleSummary persists a completed-cycle summary.
func (s *SnapshotStore) SaveCycleSummary(ctx context.Context, summary *domain.CycleSummary) error {
	if summary == nil || summary.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO cycle_summaries (
			run_id, cycle, completed_at, trades, volume,
			open_price, close_price,
			agents_succeeded, agents_skipped, agents_failed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		summary.RunID, summary.Cycle, summary.CompletedAt, summary.Trades, summary.Volume,
		summary.OpenPrice, summary.ClosePrice,
		summary.AgentsSucceeded, summary.AgentsSkipped, summary.AgentsFailed,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert cycle summary: %w", err)
	}
	return nil
}

// GetCycleSummaries retrieves all summaries for a run, ordered by cycle ASC.
func (s *SnapshotStore) GetCycleSummaries(ctx context.Context, runID string) ([]*domain.CycleSummary, error) {
	query := `
		SELECT run_id, cycle, completed_at, trades, volume::text,
		       open_price::text, close_price::text,
		       agents_succeeded, agents_skipped, agents_failed
		FROM cycle_summaries
		WHERE run_id = $1
		ORDER BY cycle ASC
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query cycle summaries: %w", err)
	}
	defer rows.Close()

	var out []*domain.CycleSummary
	for rows.Next() {
		var sum domain.CycleSummary
		if err := rows.Scan(
			&sum.RunID, &sum.Cycle, &sum.CompletedAt, &sum.Trades, &sum.Volume,
			&sum.OpenPrice, &sum.ClosePrice,
			&sum.AgentsSucceeded, &sum.AgentsSkipped, &sum.AgentsFailed,
		); err != nil {
			return nil, fmt.Errorf("scan cycle summary: %w", err)
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}
