package clickhouse

import (
	"context"
	"fmt"

	"token-arena/internal/domain"
)

// Archive mirrors committed trades and price samples into ClickHouse for
// offline analysis. Amounts are stored as Float64: the archive serves
// analytics queries, not the pool invariant, so decimal exactness is not
// required here.
type Archive struct {
	conn *Conn
}

// NewArchive creates a new Archive.
func NewArchive(conn *Conn) *Archive {
	return &Archive{conn: conn}
}

// ArchiveTrades batch-inserts trade records.
func (a *Archive) ArchiveTrades(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO trade_archive (
			trade_id, agent_id, direction,
			input_amount, output_amount, price, price_impact, fee_amount,
			executed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare trade batch: %w", err)
	}

	for _, t := range trades {
		input, _ := t.InputAmount.Float64()
		output, _ := t.OutputAmount.Float64()
		price, _ := t.Price.Float64()
		impact, _ := t.PriceImpact.Float64()
		fee, _ := t.FeeAmount.Float64()

		if err := batch.Append(
			t.TradeID, t.AgentID, string(t.Direction),
			input, output, price, impact, fee,
			t.Timestamp,
		); err != nil {
			return fmt.Errorf("append trade to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send trade batch: %w", err)
	}
	return nil
}

// ArchivePrices batch-inserts price samples tagged with the pool version
// they were observed at.
func (a *Archive) ArchivePrices(ctx context.Context, points []domain.PricePoint, version uint64) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO price_archive (sampled_at, price, version)
	`)
	if err != nil {
		return fmt.Errorf("prepare price batch: %w", err)
	}

	for _, p := range points {
		price, _ := p.Price.Float64()
		if err := batch.Append(p.Timestamp, price, version); err != nil {
			return fmt.Errorf("append price to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send price batch: %w", err)
	}
	return nil
}
