package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"token-arena/internal/domain"
	"token-arena/internal/storage"
)

// TradeLog implements storage.TradeLog using PostgreSQL. Decimal amounts are
// stored as NUMERIC and round-trip through strings.
type TradeLog struct {
	pool *Pool
}

// NewTradeLog creates a new TradeLog.
func NewTradeLog(pool *Pool) *TradeLog {
	return &TradeLog{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeLog = (*TradeLog)(nil)

const insertTradeQuery = `
	INSERT INTO trades (
		trade_id, agent_id, direction,
		input_amount, output_amount, price, price_impact, fee_amount,
		executed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// Insert adds a trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeLog) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeQuery,
		t.TradeID, t.AgentID, string(t.Direction),
		t.InputAmount.String(), t.OutputAmount.String(), t.Price.String(),
		t.PriceImpact.String(), t.FeeAmount.String(),
		t.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically.
func (s *TradeLog) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertTradeQuery,
			t.TradeID, t.AgentID, string(t.Direction),
			t.InputAmount.String(), t.OutputAmount.String(), t.Price.String(),
			t.PriceImpact.String(), t.FeeAmount.String(),
			t.Timestamp,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const selectTradeColumns = `
	trade_id, agent_id, direction,
	input_amount::text, output_amount::text, price::text, price_impact::text, fee_amount::text,
	executed_at
`

// GetByTimeRange retrieves trades within [start, end] inclusive, ordered by
// timestamp ASC.
func (s *TradeLog) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + selectTradeColumns + `
		FROM trades
		WHERE executed_at >= $1 AND executed_at <= $2
		ORDER BY executed_at ASC, trade_id ASC
	`
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query trades by time range: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByAgentID retrieves all trades for an agent, ordered by timestamp ASC.
func (s *TradeLog) GetByAgentID(ctx context.Context, agentID string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + selectTradeColumns + `
		FROM trades
		WHERE agent_id = $1
		ORDER BY executed_at ASC, trade_id ASC
	`
	rows, err := s.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("query trades by agent: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var out []*domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var direction string
		var input, output, price, impact, fee string
		if err := rows.Scan(
			&t.TradeID, &t.AgentID, &direction,
			&input, &output, &price, &impact, &fee,
			&t.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Direction = domain.TradeDirection(direction)

		var err error
		if t.InputAmount, err = decimal.NewFromString(input); err != nil {
			return nil, fmt.Errorf("parse input_amount: %w", err)
		}
		if t.OutputAmount, err = decimal.NewFromString(output); err != nil {
			return nil, fmt.Errorf("parse output_amount: %w", err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if t.PriceImpact, err = decimal.NewFromString(impact); err != nil {
			return nil, fmt.Errorf("parse price_impact: %w", err)
		}
		if t.FeeAmount, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("parse fee_amount: %w", err)
		}

		out = append(out, &t)
	}
	return out, rows.Err()
}
