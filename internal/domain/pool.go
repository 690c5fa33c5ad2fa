package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeDirection indicates which side of the pool a trade enters.
type TradeDirection string

const (
	// DirectionBuy spends base currency and receives tokens.
	DirectionBuy TradeDirection = "BUY"
	// DirectionSell spends tokens and receives base currency.
	DirectionSell TradeDirection = "SELL"
)

// PricePoint is a single sample in the pool's price history.
type PricePoint struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

// TradeRecord is one executed swap against the pool. Immutable once created.
type TradeRecord struct {
	TradeID      string
	AgentID      string
	Direction    TradeDirection
	InputAmount  decimal.Decimal // amount spent (base for BUY, token for SELL)
	OutputAmount decimal.Decimal // amount received
	Price        decimal.Decimal // realized base-per-token fill price
	PriceImpact  decimal.Decimal // fractional deviation from pre-trade spot
	FeeAmount    decimal.Decimal // fee deducted from input, accrues to reserves
	Timestamp    time.Time
}

// PoolState is the full state of the constant-product pool plus derived
// 24h market statistics. The price convention throughout is base-per-token:
// CurrentPrice = BaseReserve / TokenReserve.
//
// Invariant: InvariantK == BaseReserve * TokenReserve immediately before and
// after every committed swap, up to explicit fee accrual. Version increments
// on every mutation; readers use it to detect stale cached copies.
type PoolState struct {
	BaseReserve  decimal.Decimal
	TokenReserve decimal.Decimal
	InvariantK   decimal.Decimal
	CurrentPrice decimal.Decimal

	Volume       decimal.Decimal // all-time traded input volume
	Volume24h    decimal.Decimal
	High24h      decimal.Decimal
	Low24h       decimal.Decimal
	Volatility   decimal.Decimal // stddev of log-returns over the 24h window
	LastTradedAt time.Time

	PriceHistory []PricePoint  // 24h retention, oldest first
	RecentTrades []TradeRecord // 24h retention, oldest first

	Version uint64
}

// Clone returns a deep copy so readers never alias the owner's slices.
func (p PoolState) Clone() PoolState {
	out := p
	out.PriceHistory = make([]PricePoint, len(p.PriceHistory))
	copy(out.PriceHistory, p.PriceHistory)
	out.RecentTrades = make([]TradeRecord, len(p.RecentTrades))
	copy(out.RecentTrades, p.RecentTrades)
	return out
}

// SpotPrice returns BaseReserve/TokenReserve, the marginal base-per-token
// price. Zero if the token reserve is empty.
func (p PoolState) SpotPrice() decimal.Decimal {
	if p.TokenReserve.IsZero() {
		return decimal.Zero
	}
	return p.BaseReserve.Div(p.TokenReserve)
}
