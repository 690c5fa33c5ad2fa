// Package market maintains rolling 24h statistics over executed trades.
package market

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"token-arena/internal/domain"
)

// Window is the retention period for trades and price samples.
const Window = 24 * time.Hour

// Stats are the derived market statistics for the current window.
type Stats struct {
	Volume24h  decimal.Decimal
	High24h    decimal.Decimal
	Low24h     decimal.Decimal
	Volatility decimal.Decimal // sample stddev of log-returns between consecutive samples
	Change24h  decimal.Decimal // fractional change vs the oldest in-window sample
	TradeCount int
}

// Aggregator keeps a bounded sliding window of trades and price samples.
// Pruning advances a head index and periodically compacts, so each Record is
// O(window size) at worst and amortized O(evicted); nothing ever scans
// all-time history. Not safe for concurrent use: the pool store serializes
// access.
type Aggregator struct {
	trades []domain.TradeRecord
	prices []domain.PricePoint
	volume decimal.Decimal // running sum of in-window trade inputs
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{volume: decimal.Zero}
}

// Seed primes the window from persisted history, oldest first.
func (a *Aggregator) Seed(trades []domain.TradeRecord, prices []domain.PricePoint) {
	a.trades = append(a.trades[:0], trades...)
	a.prices = append(a.prices[:0], prices...)
	a.volume = decimal.Zero
	for _, t := range a.trades {
		a.volume = a.volume.Add(t.InputAmount)
	}
}

// Record appends an executed trade and its post-trade price sample, prunes
// everything older than the window, and returns the recomputed stats.
func (a *Aggregator) Record(trade domain.TradeRecord, price decimal.Decimal) Stats {
	a.trades = append(a.trades, trade)
	a.prices = append(a.prices, domain.PricePoint{Timestamp: trade.Timestamp, Price: price})
	a.volume = a.volume.Add(trade.InputAmount)
	a.prune(trade.Timestamp)
	return a.compute()
}

// StatsAt prunes against now and returns current stats without recording.
func (a *Aggregator) StatsAt(now time.Time) Stats {
	a.prune(now)
	return a.compute()
}

// Trades returns the in-window trades, oldest first.
func (a *Aggregator) Trades() []domain.TradeRecord {
	out := make([]domain.TradeRecord, len(a.trades))
	copy(out, a.trades)
	return out
}

// Prices returns the in-window price samples, oldest first.
func (a *Aggregator) Prices() []domain.PricePoint {
	out := make([]domain.PricePoint, len(a.prices))
	copy(out, a.prices)
	return out
}

func (a *Aggregator) prune(now time.Time) {
	cutoff := now.Add(-Window)

	i := 0
	for i < len(a.trades) && !a.trades[i].Timestamp.After(cutoff) {
		a.volume = a.volume.Sub(a.trades[i].InputAmount)
		i++
	}
	if i > 0 {
		a.trades = append(a.trades[:0], a.trades[i:]...)
	}

	j := 0
	for j < len(a.prices) && !a.prices[j].Timestamp.After(cutoff) {
		j++
	}
	if j > 0 {
		a.prices = append(a.prices[:0], a.prices[j:]...)
	}
}

func (a *Aggregator) compute() Stats {
	s := Stats{
		Volume24h:  a.volume,
		High24h:    decimal.Zero,
		Low24h:     decimal.Zero,
		Volatility: decimal.Zero,
		Change24h:  decimal.Zero,
		TradeCount: len(a.trades),
	}
	if len(a.prices) == 0 {
		return s
	}

	s.High24h = a.prices[0].Price
	s.Low24h = a.prices[0].Price
	for _, p := range a.prices[1:] {
		if p.Price.GreaterThan(s.High24h) {
			s.High24h = p.Price
		}
		if p.Price.LessThan(s.Low24h) {
			s.Low24h = p.Price
		}
	}

	oldest := a.prices[0].Price
	newest := a.prices[len(a.prices)-1].Price
	if oldest.IsPositive() {
		s.Change24h = newest.Sub(oldest).Div(oldest)
	}

	s.Volatility = a.volatility()
	return s
}

// volatility is the sample standard deviation of log-returns between
// consecutive in-window price samples. Deterministic for a given trade
// sequence; zero with fewer than three samples (needs two returns).
func (a *Aggregator) volatility() decimal.Decimal {
	if len(a.prices) < 3 {
		return decimal.Zero
	}

	returns := make([]float64, 0, len(a.prices)-1)
	for i := 1; i < len(a.prices); i++ {
		prev, _ := a.prices[i-1].Price.Float64()
		cur, _ := a.prices[i].Price.Float64()
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) < 2 {
		return decimal.Zero
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	variance := sq / float64(len(returns)-1)

	return decimal.NewFromFloat(math.Sqrt(variance)).Round(quotePrecision)
}

// quotePrecision bounds the volatility decimal so snapshots stay compact.
const quotePrecision = 10
