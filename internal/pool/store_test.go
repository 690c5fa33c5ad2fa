package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-arena/internal/amm"
	"token-arena/internal/domain"
)

func newTestStore(t *testing.T, feeRate string) *Store {
	t.Helper()
	engine, err := amm.NewEngine(decimal.RequireFromString(feeRate), decimal.Zero)
	require.NoError(t, err)

	store, err := NewStore(Options{
		BaseReserve:  decimal.NewFromInt(100),
		TokenReserve: decimal.NewFromInt(100000),
		Engine:       engine,
	})
	require.NoError(t, err)
	return store
}

func TestNewStore_SeedsInvariantAndPrice(t *testing.T) {
	store := newTestStore(t, "0")
	state := store.Snapshot()

	assert.True(t, state.InvariantK.Equal(decimal.NewFromInt(10_000_000)))
	assert.True(t, state.CurrentPrice.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, uint64(1), state.Version)
}

func TestNewStore_RejectsBadSeed(t *testing.T) {
	engine, err := amm.NewEngine(decimal.Zero, decimal.Zero)
	require.NoError(t, err)

	_, err = NewStore(Options{
		BaseReserve:  decimal.Zero,
		TokenReserve: decimal.NewFromInt(100),
		Engine:       engine,
	})
	assert.Error(t, err)

	_, err = NewStore(Options{
		BaseReserve:  decimal.NewFromInt(100),
		TokenReserve: decimal.NewFromInt(100000),
	})
	assert.Error(t, err, "engine is required")
}

func TestStore_CommitUpdatesStateAndVersion(t *testing.T) {
	store := newTestStore(t, "0")

	record, err := store.Commit(domain.DirectionBuy, decimal.NewFromInt(10), "agent-1")
	require.NoError(t, err)
	assert.NotEmpty(t, record.TradeID)
	assert.Equal(t, "agent-1", record.AgentID)

	state := store.Snapshot()
	assert.Equal(t, uint64(2), state.Version, "commit bumps the version")
	assert.True(t, state.BaseReserve.Equal(decimal.NewFromInt(110)))
	assert.True(t, state.Volume24h.Equal(decimal.NewFromInt(10)))
	assert.Len(t, state.RecentTrades, 1)
	assert.Len(t, state.PriceHistory, 1)
	require.NoError(t, amm.CheckInvariant(state))
}

func TestStore_CommitRejectionLeavesStateUntouched(t *testing.T) {
	store := newTestStore(t, "0")
	before := store.Snapshot()

	_, err := store.Commit(domain.DirectionBuy, decimal.Zero, "agent-1")
	require.ErrorIs(t, err, amm.ErrInsufficientLiquidity)

	after := store.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, before.BaseReserve.Equal(after.BaseReserve))
}

func TestStore_OnMutateFiresPerCommit(t *testing.T) {
	engine, err := amm.NewEngine(decimal.Zero, decimal.Zero)
	require.NoError(t, err)

	var mu sync.Mutex
	fired := 0
	store, err := NewStore(Options{
		BaseReserve:  decimal.NewFromInt(100),
		TokenReserve: decimal.NewFromInt(100000),
		Engine:       engine,
		OnMutate: func() {
			mu.Lock()
			fired++
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	_, err = store.Commit(domain.DirectionBuy, decimal.NewFromInt(1), "a")
	require.NoError(t, err)
	_, err = store.Commit(domain.DirectionSell, decimal.NewFromInt(500), "a")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, fired)
}

// Concurrent commits must serialize: every trade prices against the state
// the previous one produced, and the invariant survives the whole burst.
func TestStore_ConcurrentCommitsPreserveInvariant(t *testing.T) {
	store := newTestStore(t, "0.003")

	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				direction := domain.DirectionBuy
				input := decimal.NewFromFloat(0.5)
				if (w+i)%2 == 1 {
					direction = domain.DirectionSell
					input = decimal.NewFromInt(200)
				}
				_, err := store.Commit(direction, input, "agent")
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	state := store.Snapshot()
	require.NoError(t, amm.CheckInvariant(state))
	assert.Equal(t, uint64(1+workers*perWorker), state.Version)
	assert.Len(t, state.RecentTrades, workers*perWorker)
}

func TestStore_RestoreReseedsAggregator(t *testing.T) {
	store := newTestStore(t, "0")
	_, err := store.Commit(domain.DirectionBuy, decimal.NewFromInt(10), "agent-1")
	require.NoError(t, err)
	saved := store.Snapshot()

	restored := newTestStore(t, "0")
	require.NoError(t, restored.Restore(saved))

	state := restored.Snapshot()
	assert.True(t, state.BaseReserve.Equal(saved.BaseReserve))
	assert.True(t, state.Volume24h.Equal(saved.Volume24h))
	assert.Len(t, state.RecentTrades, 1)
	assert.Equal(t, saved.Version+1, state.Version, "restore itself is a mutation")

	snap := restored.MarketSnapshot()
	assert.Equal(t, 1, snap.TradeCount, "market stats must be recomputed from the restored window")
}

func TestStore_RestoreRejectsCorruptSnapshot(t *testing.T) {
	store := newTestStore(t, "0")
	bad := store.Snapshot()
	bad.InvariantK = decimal.NewFromInt(1)

	err := store.Restore(bad)
	assert.ErrorIs(t, err, amm.ErrInvariantViolation)
}

func TestStore_MarketSnapshotIsConsistent(t *testing.T) {
	store := newTestStore(t, "0")
	_, err := store.Commit(domain.DirectionBuy, decimal.NewFromInt(10), "agent-1")
	require.NoError(t, err)

	snap := store.MarketSnapshot()
	state := store.Snapshot()

	assert.True(t, snap.Price.Equal(state.CurrentPrice))
	assert.True(t, snap.BaseReserve.Equal(state.BaseReserve))
	assert.Equal(t, state.Version, snap.Version)
	assert.WithinDuration(t, time.Now(), snap.TakenAt, time.Minute)
}
