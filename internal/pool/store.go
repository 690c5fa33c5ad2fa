// Package pool owns the authoritative PoolState. It is the single logical
// resource of the simulation: all commits are serialized through one mutex,
// so trade decisions may be produced concurrently but reserves are only ever
// updated by one writer at a time. Readers always receive a consistent
// snapshot, never a partially-updated reserve pair.
package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"token-arena/internal/amm"
	"token-arena/internal/domain"
	"token-arena/internal/market"
)

// Store is the Pool State Store. Only Store mutates reserves and InvariantK;
// every other component works on snapshots.
type Store struct {
	mu     sync.Mutex
	state  domain.PoolState
	agg    *market.Aggregator
	engine *amm.Engine

	now      func() time.Time
	onMutate func() // cache invalidation hook, called outside the lock
	logger   *logrus.Entry
}

// Options configures a Store.
type Options struct {
	BaseReserve  decimal.Decimal
	TokenReserve decimal.Decimal
	Engine       *amm.Engine
	Logger       *logrus.Logger

	// Now overrides the clock (tests). Defaults to time.Now.
	Now func() time.Time

	// OnMutate is invoked after every committed mutation, outside the lock.
	OnMutate func()
}

// NewStore seeds a pool with the given reserves. InvariantK and the spot
// price are computed from the seed.
func NewStore(opts Options) (*Store, error) {
	if opts.BaseReserve.LessThanOrEqual(decimal.Zero) || opts.TokenReserve.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("pool reserves must be positive: base=%s token=%s", opts.BaseReserve, opts.TokenReserve)
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("pool store requires an AMM engine")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	state := domain.PoolState{
		BaseReserve:  opts.BaseReserve,
		TokenReserve: opts.TokenReserve,
		InvariantK:   opts.BaseReserve.Mul(opts.TokenReserve),
		Volume:       decimal.Zero,
		Volume24h:    decimal.Zero,
		High24h:      decimal.Zero,
		Low24h:       decimal.Zero,
		Volatility:   decimal.Zero,
		Version:      1,
	}
	state.CurrentPrice = state.SpotPrice()

	return &Store{
		state:    state,
		agg:      market.NewAggregator(),
		engine:   opts.Engine,
		now:      now,
		onMutate: opts.OnMutate,
		logger:   logger.WithField("component", "pool"),
	}, nil
}

// Restore replaces the pool state with a persisted snapshot, reseeding the
// aggregator window from its history. Used on startup recovery.
func (s *Store) Restore(snapshot domain.PoolState) error {
	if err := amm.CheckInvariant(snapshot); err != nil {
		return fmt.Errorf("restore pool snapshot: %w", err)
	}

	s.mu.Lock()
	s.state = snapshot.Clone()
	s.state.Version++
	s.agg.Seed(snapshot.RecentTrades, snapshot.PriceHistory)
	version := s.state.Version
	s.mu.Unlock()

	s.logger.WithField("version", version).Info("pool state restored from snapshot")
	s.notify()
	return nil
}

// Commit prices and applies a swap atomically. The AMM engine re-validates
// the invariant against the state under the lock, so a commit can never be
// priced against a stale reserve pair.
func (s *Store) Commit(direction domain.TradeDirection, input decimal.Decimal, agentID string) (domain.TradeRecord, error) {
	s.mu.Lock()
	now := s.now()

	next, record, err := s.engine.Apply(s.state, direction, input, agentID, now)
	if err != nil {
		s.mu.Unlock()
		return domain.TradeRecord{}, err
	}

	stats := s.agg.Record(record, next.CurrentPrice)
	next.Volume24h = stats.Volume24h
	next.High24h = stats.High24h
	next.Low24h = stats.Low24h
	next.Volatility = stats.Volatility
	next.PriceHistory = s.agg.Prices()
	next.RecentTrades = s.agg.Trades()
	next.Version = s.state.Version + 1

	s.state = next
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"trade_id":  record.TradeID,
		"agent_id":  agentID,
		"direction": record.Direction,
		"input":     record.InputAmount.String(),
		"output":    record.OutputAmount.String(),
		"price":     next.CurrentPrice.String(),
	}).Debug("trade committed")

	s.notify()
	return record, nil
}

// Snapshot returns a deep copy of the current pool state.
func (s *Store) Snapshot() domain.PoolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Version returns the current mutation counter. The cache consults it to
// detect stale entries.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Version
}

// MarketSnapshot derives the read-only market view handed to agents.
func (s *Store) MarketSnapshot() domain.MarketSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := s.agg.StatsAt(now)

	return domain.MarketSnapshot{
		Price:       s.state.CurrentPrice,
		Change24h:   stats.Change24h,
		Volume24h:   stats.Volume24h,
		High24h:     stats.High24h,
		Low24h:      stats.Low24h,
		Volatility:  stats.Volatility,
		TradeCount:  stats.TradeCount,
		BaseReserve: s.state.BaseReserve,
		TakenAt:     now,
		Version:     s.state.Version,
	}
}

func (s *Store) notify() {
	if s.onMutate != nil {
		s.onMutate()
	}
}
