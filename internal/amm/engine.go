// Package amm implements constant-product (x*y=k) swap pricing over a pool
// snapshot. The engine is pure: Quote and Apply never mutate their inputs,
// Apply returns the proposed post-trade state for the pool owner to commit.
package amm

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"token-arena/internal/domain"
)

// Engine errors.
var (
	// ErrInsufficientLiquidity rejects a single trade: non-positive input,
	// input below the minimum trade size, or output exceeding the reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for trade")

	// ErrInvariantViolation means the pool snapshot failed the k == x*y
	// re-validation before a commit. It indicates a serialization or
	// arithmetic defect and is fatal to the simulation run.
	ErrInvariantViolation = errors.New("pool invariant violation")
)

// quoteScale is the decimal precision of reserve arithmetic. The reserve
// quotient k/(r+in) is rounded up at this scale, so the trader's output is
// rounded down: rounding always favors the pool and k never drifts below
// its pre-trade value.
const quoteScale = 12

// invariantTolerance is the relative tolerance for the k == x*y check,
// covering accumulated quoteScale rounding in the pool's favor.
var invariantTolerance = decimal.New(1, -9) // 1e-9

// Engine prices swaps against a constant-product pool.
type Engine struct {
	feeRate      decimal.Decimal // fractional, 0 <= feeRate < 1
	minTradeSize decimal.Decimal // smallest accepted input amount
}

// NewEngine creates an engine with a fixed fee rate and minimum trade size.
func NewEngine(feeRate, minTradeSize decimal.Decimal) (*Engine, error) {
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate must be in [0,1): %s", feeRate)
	}
	if minTradeSize.IsNegative() {
		return nil, fmt.Errorf("minimum trade size must be >= 0: %s", minTradeSize)
	}
	return &Engine{feeRate: feeRate, minTradeSize: minTradeSize}, nil
}

// Quote is the priced result of a prospective swap.
type Quote struct {
	OutputAmount decimal.Decimal
	ExecPrice    decimal.Decimal // realized base-per-token fill price
	PriceImpact  decimal.Decimal // |exec - spot| / spot
	FeeAmount    decimal.Decimal
}

// Quote computes the output for spending input against the pool:
//
//	out = opposite - k / (same + input*(1-feeRate))
//
// where same is the reserve the input enters (base for BUY, token for SELL)
// and opposite is the reserve the output leaves.
func (e *Engine) Quote(pool domain.PoolState, direction domain.TradeDirection, input decimal.Decimal) (Quote, error) {
	if input.LessThanOrEqual(decimal.Zero) {
		return Quote{}, fmt.Errorf("%w: non-positive input %s", ErrInsufficientLiquidity, input)
	}
	if input.LessThan(e.minTradeSize) {
		return Quote{}, fmt.Errorf("%w: input %s below minimum trade size %s", ErrInsufficientLiquidity, input, e.minTradeSize)
	}
	if pool.BaseReserve.LessThanOrEqual(decimal.Zero) || pool.TokenReserve.LessThanOrEqual(decimal.Zero) {
		return Quote{}, fmt.Errorf("%w: empty reserve", ErrInsufficientLiquidity)
	}

	same, opposite := pool.BaseReserve, pool.TokenReserve
	if direction == domain.DirectionSell {
		same, opposite = pool.TokenReserve, pool.BaseReserve
	}

	// Fee is deducted from the input for pricing purposes; rounded up so the
	// effective input (and therefore the output) rounds in the pool's favor.
	fee := input.Mul(e.feeRate).RoundUp(quoteScale)
	inputAfterFee := input.Sub(fee)
	if inputAfterFee.LessThanOrEqual(decimal.Zero) {
		return Quote{}, fmt.Errorf("%w: input consumed entirely by fee", ErrInsufficientLiquidity)
	}

	// out = opposite - k/(same + inAfterFee), quotient rounded up.
	newSame := same.Add(inputAfterFee)
	quotient := pool.InvariantK.Div(newSame).RoundUp(quoteScale)
	output := opposite.Sub(quotient)

	if output.LessThanOrEqual(decimal.Zero) || output.GreaterThanOrEqual(opposite) {
		return Quote{}, fmt.Errorf("%w: output %s against reserve %s", ErrInsufficientLiquidity, output, opposite)
	}

	spot := pool.SpotPrice()

	// Realized base-per-token price of the fill.
	var exec decimal.Decimal
	if direction == domain.DirectionBuy {
		exec = input.Div(output)
	} else {
		exec = output.Div(input)
	}

	impact := decimal.Zero
	if spot.IsPositive() {
		impact = exec.Sub(spot).Abs().Div(spot)
	}

	return Quote{
		OutputAmount: output,
		ExecPrice:    exec,
		PriceImpact:  impact,
		FeeAmount:    fee,
	}, nil
}

// Apply re-validates the invariant against the current snapshot, prices the
// swap, and returns the post-trade pool state plus the trade record. The full
// input (fee included) enters the reserve, so the fee accrues to the pool and
// InvariantK is recomputed from the new reserves.
//
// The re-validation is the explicit serialization point: two commits priced
// against the same stale snapshot cannot both pass it once the first lands.
func (e *Engine) Apply(pool domain.PoolState, direction domain.TradeDirection, input decimal.Decimal, agentID string, now time.Time) (domain.PoolState, domain.TradeRecord, error) {
	if err := CheckInvariant(pool); err != nil {
		return domain.PoolState{}, domain.TradeRecord{}, err
	}

	q, err := e.Quote(pool, direction, input)
	if err != nil {
		return domain.PoolState{}, domain.TradeRecord{}, err
	}

	next := pool
	if direction == domain.DirectionBuy {
		next.BaseReserve = pool.BaseReserve.Add(input)
		next.TokenReserve = pool.TokenReserve.Sub(q.OutputAmount)
	} else {
		next.TokenReserve = pool.TokenReserve.Add(input)
		next.BaseReserve = pool.BaseReserve.Sub(q.OutputAmount)
	}
	next.InvariantK = next.BaseReserve.Mul(next.TokenReserve)
	next.CurrentPrice = next.SpotPrice()
	next.LastTradedAt = now
	next.Volume = pool.Volume.Add(input)

	record := domain.TradeRecord{
		TradeID:      uuid.NewString(),
		AgentID:      agentID,
		Direction:    direction,
		InputAmount:  input,
		OutputAmount: q.OutputAmount,
		Price:        q.ExecPrice,
		PriceImpact:  q.PriceImpact,
		FeeAmount:    q.FeeAmount,
		Timestamp:    now,
	}

	return next, record, nil
}

// CheckInvariant verifies k == base*token within the relative rounding
// tolerance. Failure is fatal; see ErrInvariantViolation.
func CheckInvariant(pool domain.PoolState) error {
	product := pool.BaseReserve.Mul(pool.TokenReserve)
	if pool.InvariantK.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: non-positive k %s", ErrInvariantViolation, pool.InvariantK)
	}
	diff := product.Sub(pool.InvariantK).Abs()
	if diff.GreaterThan(pool.InvariantK.Mul(invariantTolerance)) {
		return fmt.Errorf("%w: k=%s but reserves multiply to %s", ErrInvariantViolation, pool.InvariantK, product)
	}
	return nil
}
