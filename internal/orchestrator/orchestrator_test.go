package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-arena/internal/amm"
	"token-arena/internal/decision"
	"token-arena/internal/domain"
	"token-arena/internal/messaging"
	"token-arena/internal/pool"
	"token-arena/internal/retry"
	"token-arena/internal/scheduler"
	"token-arena/internal/storage"
	"token-arena/internal/storage/memory"
)

type funcDecider func(ctx context.Context, req decision.Request) (*domain.Decision, error)

func (f funcDecider) Decide(ctx context.Context, req decision.Request) (*domain.Decision, error) {
	return f(ctx, req)
}

func holdDecider() funcDecider {
	return func(ctx context.Context, req decision.Request) (*domain.Decision, error) {
		return &domain.Decision{AgentID: req.Agent.ID, Action: domain.ActionHold}, nil
	}
}

// blockingDecider never answers until the dispatch is cancelled, so phases
// only ever advance on timer expiry.
func blockingDecider() funcDecider {
	return func(ctx context.Context, req decision.Request) (*domain.Decision, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func testRunConfig(phaseDuration time.Duration, speed float64) domain.RunConfig {
	return domain.RunConfig{
		AgentCount:        10,
		MaxAgentsPerPhase: 5,
		PhaseDuration:     phaseDuration,
		SpeedMultiplier:   speed,
		PersonalityMix: map[domain.Personality]float64{
			domain.PersonalityModerate:   0.5,
			domain.PersonalityAggressive: 0.5,
		},
	}
}

type fixture struct {
	orch      *Orchestrator
	pool      *pool.Store
	snapshots storage.SnapshotStore
}

func newFixture(t *testing.T, decider decision.Decider, snapshots storage.SnapshotStore) *fixture {
	t.Helper()

	engine, err := amm.NewEngine(decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	poolStore, err := pool.NewStore(pool.Options{
		BaseReserve:  decimal.NewFromInt(100),
		TokenReserve: decimal.NewFromInt(100000),
		Engine:       engine,
	})
	require.NoError(t, err)

	if snapshots == nil {
		snapshots = memory.NewSnapshotStore()
	}

	sched := scheduler.New(scheduler.Options{
		Decider:         decider,
		Pool:            poolStore,
		Board:           messaging.NewBoard(messaging.Options{}),
		PerAgentTimeout: time.Minute,
	})

	orch, err := New(Options{
		Pool:            poolStore,
		Scheduler:       sched,
		Snapshots:       snapshots,
		Agents:          memory.NewAgentStore(),
		Trades:          memory.NewTradeLog(),
		ShutdownTimeout: 5 * time.Second,
		SpawnSeed:       42,
		Retry:           retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if orch.Status().Status != domain.StatusStopped {
			_ = orch.Stop()
		}
	})

	return &fixture{orch: orch, pool: poolStore, snapshots: snapshots}
}

func TestStart_RejectsInvalidConfig(t *testing.T) {
	f := newFixture(t, holdDecider(), nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*domain.RunConfig)
	}{
		{"zero agents", func(c *domain.RunConfig) { c.AgentCount = 0 }},
		{"zero max per phase", func(c *domain.RunConfig) { c.MaxAgentsPerPhase = 0 }},
		{"zero phase duration", func(c *domain.RunConfig) { c.PhaseDuration = 0 }},
		{"zero speed", func(c *domain.RunConfig) { c.SpeedMultiplier = 0 }},
		{"negative speed", func(c *domain.RunConfig) { c.SpeedMultiplier = -1 }},
		{"empty mix", func(c *domain.RunConfig) { c.PersonalityMix = nil }},
		{"negative weight", func(c *domain.RunConfig) {
			c.PersonalityMix = map[domain.Personality]float64{domain.PersonalityModerate: -1}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testRunConfig(time.Second, 1)
			tc.mutate(&cfg)
			err := f.orch.Start(ctx, cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Equal(t, domain.StatusStopped, f.orch.Status().Status, "rejected start must not change state")
		})
	}
}

func TestStart_NormalizesPersonalityMix(t *testing.T) {
	cfg := testRunConfig(time.Second, 1)
	cfg.PersonalityMix = map[domain.Personality]float64{
		domain.PersonalityModerate:   2,
		domain.PersonalityAggressive: 2,
	}
	require.NoError(t, validateConfig(&cfg))
	assert.InDelta(t, 0.5, cfg.PersonalityMix[domain.PersonalityModerate], 1e-9)
	assert.InDelta(t, 0.5, cfg.PersonalityMix[domain.PersonalityAggressive], 1e-9)
}

func TestStart_OnlyFromStopped(t *testing.T) {
	f := newFixture(t, blockingDecider(), nil)
	ctx := context.Background()

	require.NoError(t, f.orch.Start(ctx, testRunConfig(time.Minute, 1)))
	err := f.orch.Start(ctx, testRunConfig(time.Minute, 1))
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, f.orch.Stop())
	assert.Equal(t, domain.StatusStopped, f.orch.Status().Status)

	// Stopped again: a fresh start is accepted.
	require.NoError(t, f.orch.Start(ctx, testRunConfig(time.Minute, 1)))
}

func TestControls_RequireRunningState(t *testing.T) {
	f := newFixture(t, blockingDecider(), nil)

	assert.ErrorIs(t, f.orch.Pause(), ErrNotRunning)
	assert.ErrorIs(t, f.orch.Resume(), ErrNotRunning)
	assert.ErrorIs(t, f.orch.Stop(), ErrNotRunning)
	assert.ErrorIs(t, f.orch.SetSpeed(2), ErrNotRunning)
	assert.ErrorIs(t, f.orch.SetSpeed(0), ErrInvalidSpeed)

	require.NoError(t, f.orch.Start(context.Background(), testRunConfig(time.Minute, 1)))
	assert.ErrorIs(t, f.orch.Resume(), ErrNotPaused, "resume is only valid from Paused")
}

func awaitStatus(t *testing.T, f *fixture, timeout time.Duration, cond func(Status) bool) Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last Status
	for time.Now().Before(deadline) {
		last = f.orch.Status()
		if cond(last) {
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s; last status %+v", timeout, last)
	return last
}

func TestRunLoop_PhaseOrderIsCyclic(t *testing.T) {
	var mu sync.Mutex
	var observed []domain.Phase
	decider := funcDecider(func(ctx context.Context, req decision.Request) (*domain.Decision, error) {
		mu.Lock()
		if n := len(observed); n == 0 || observed[n-1] != req.Phase {
			observed = append(observed, req.Phase)
		}
		mu.Unlock()
		return &domain.Decision{AgentID: req.Agent.ID, Action: domain.ActionHold}, nil
	})

	f := newFixture(t, decider, nil)
	require.NoError(t, f.orch.Start(context.Background(), testRunConfig(10*time.Second, 1)))

	awaitStatus(t, f, 10*time.Second, func(s Status) bool { return s.CycleCount >= 2 })
	require.NoError(t, f.orch.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(observed), 6)

	// Agent-dispatching phases repeat in cycle order; Reporting dispatches no
	// agents and sits between Trading and the next MarketAnalysis.
	dispatchCycle := []domain.Phase{domain.PhaseMarketAnalysis, domain.PhaseSocial, domain.PhaseTrading}
	for i, phase := range observed {
		assert.Equal(t, dispatchCycle[i%3], phase, "phase %d out of order", i)
	}
}

func TestRunLoop_ReportingPersistsCycleSummaries(t *testing.T) {
	snapshots := memory.NewSnapshotStore()
	f := newFixture(t, holdDecider(), snapshots)
	ctx := context.Background()

	require.NoError(t, f.orch.Start(ctx, testRunConfig(10*time.Second, 1)))
	status := awaitStatus(t, f, 10*time.Second, func(s Status) bool { return s.CycleCount >= 2 })
	require.NoError(t, f.orch.Stop())

	summaries, err := snapshots.GetCycleSummaries(ctx, status.RunID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(summaries), 2)

	for i, s := range summaries {
		assert.Equal(t, uint64(i), s.Cycle, "summaries must be consecutive cycles")
		assert.Equal(t, status.RunID, s.RunID)
		assert.NotEmpty(t, s.OpenPrice)
		assert.NotEmpty(t, s.ClosePrice)
	}

	// Reporting also saves pool snapshots.
	_, err = snapshots.LoadLatestPoolSnapshot(ctx)
	assert.NoError(t, err)
}

func TestRunLoop_PhaseTimeoutForcesAdvance(t *testing.T) {
	f := newFixture(t, blockingDecider(), nil)

	// 50ms phases: the stuck batch must not stall the cycle.
	require.NoError(t, f.orch.Start(context.Background(), testRunConfig(50*time.Millisecond, 1)))
	awaitStatus(t, f, 5*time.Second, func(s Status) bool { return s.CycleCount >= 1 })
}

func TestPause_FreezesPhaseProgress(t *testing.T) {
	f := newFixture(t, blockingDecider(), nil)
	require.NoError(t, f.orch.Start(context.Background(), testRunConfig(10*time.Second, 1)))

	awaitStatus(t, f, 2*time.Second, func(s Status) bool { return s.PhaseProgressPercent > 0 })
	require.NoError(t, f.orch.Pause())

	paused := f.orch.Status()
	assert.Equal(t, domain.StatusPaused, paused.Status)
	assert.Equal(t, domain.PhaseMarketAnalysis, paused.CurrentPhase)
	assert.Greater(t, paused.PhaseProgressPercent, 0.0)

	time.Sleep(150 * time.Millisecond)
	frozen := f.orch.Status()
	assert.Equal(t, paused.PhaseProgressPercent, frozen.PhaseProgressPercent,
		"elapsed phase time must not advance while paused")

	require.NoError(t, f.orch.Resume())
	resumed := awaitStatus(t, f, 2*time.Second, func(s Status) bool {
		return s.Status == domain.StatusRunning && s.PhaseProgressPercent > paused.PhaseProgressPercent
	})
	assert.Equal(t, domain.PhaseMarketAnalysis, resumed.CurrentPhase,
		"resume must continue the same phase, not skip or reset it")
}

func TestSetSpeed_RescalesRemainingBudget(t *testing.T) {
	f := newFixture(t, blockingDecider(), nil)

	// At speed 1 a 5s phase has seconds to run; at speed 200 the remaining
	// budget collapses to ~25ms of wall time.
	require.NoError(t, f.orch.Start(context.Background(), testRunConfig(5*time.Second, 1)))
	awaitStatus(t, f, 2*time.Second, func(s Status) bool { return s.Status == domain.StatusRunning })

	require.NoError(t, f.orch.SetSpeed(200))
	awaitStatus(t, f, 5*time.Second, func(s Status) bool { return s.CycleCount >= 1 })

	status := f.orch.Status()
	assert.Equal(t, 200.0, status.SpeedMultiplier)
}

func TestSetSpeed_AllowedWhilePaused(t *testing.T) {
	f := newFixture(t, blockingDecider(), nil)
	require.NoError(t, f.orch.Start(context.Background(), testRunConfig(10*time.Second, 1)))
	require.NoError(t, f.orch.Pause())

	require.NoError(t, f.orch.SetSpeed(4))
	assert.Equal(t, 4.0, f.orch.Status().SpeedMultiplier)
	assert.Equal(t, domain.StatusPaused, f.orch.Status().Status)
}

func TestStop_DrainsInFlightBatch(t *testing.T) {
	started := make(chan struct{}, 64)
	decider := funcDecider(func(ctx context.Context, req decision.Request) (*domain.Decision, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	f := newFixture(t, decider, nil)
	require.NoError(t, f.orch.Start(context.Background(), testRunConfig(time.Minute, 1)))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("no dispatch before stop")
	}

	done := make(chan error, 1)
	go func() { done <- f.orch.Stop() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not drain the in-flight batch")
	}
	assert.Equal(t, domain.StatusStopped, f.orch.Status().Status)
}

func TestStart_RecoversLatestPoolSnapshot(t *testing.T) {
	snapshots := memory.NewSnapshotStore()
	ctx := context.Background()

	// Persist a snapshot that differs from the fresh seed.
	engine, err := amm.NewEngine(decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	seedStore, err := pool.NewStore(pool.Options{
		BaseReserve:  decimal.NewFromInt(100),
		TokenReserve: decimal.NewFromInt(100000),
		Engine:       engine,
	})
	require.NoError(t, err)
	_, err = seedStore.Commit(domain.DirectionBuy, decimal.NewFromInt(10), "bootstrap")
	require.NoError(t, err)
	saved := seedStore.Snapshot()
	require.NoError(t, snapshots.SavePoolSnapshot(ctx, &saved))

	f := newFixture(t, blockingDecider(), snapshots)
	require.NoError(t, f.orch.Start(ctx, testRunConfig(time.Minute, 1)))

	state := f.pool.Snapshot()
	assert.True(t, state.BaseReserve.Equal(decimal.NewFromInt(110)),
		"pool must be seeded from the persisted snapshot, got base %s", state.BaseReserve)
	assert.Len(t, state.RecentTrades, 1)
}

// flakySnapshotStore fails SaveCycleSummary a fixed number of times, then
// delegates to the in-memory store.
type flakySnapshotStore struct {
	*memory.SnapshotStore
	mu        sync.Mutex
	failures  int
	attempted int
}

func (s *flakySnapshotStore) SaveCycleSummary(ctx context.Context, summary *domain.CycleSummary) error {
	s.mu.Lock()
	s.attempted++
	fail := s.attempted <= s.failures
	s.mu.Unlock()
	if fail {
		return errors.New("storage temporarily unavailable")
	}
	return s.SnapshotStore.SaveCycleSummary(ctx, summary)
}

func TestRunLoop_PersistenceFailureKeepsSummaryPending(t *testing.T) {
	snapshots := &flakySnapshotStore{SnapshotStore: memory.NewSnapshotStore(), failures: 2}
	f := newFixture(t, holdDecider(), snapshots)
	ctx := context.Background()

	require.NoError(t, f.orch.Start(ctx, testRunConfig(10*time.Second, 1)))
	status := awaitStatus(t, f, 15*time.Second, func(s Status) bool { return s.CycleCount >= 2 })
	require.NoError(t, f.orch.Stop())

	// Cycle 0's summary failed both retry attempts, stayed pending, and was
	// written together with cycle 1's.
	summaries, err := snapshots.GetCycleSummaries(ctx, status.RunID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(summaries), 2)
	assert.Equal(t, uint64(0), summaries[0].Cycle)
	assert.Equal(t, uint64(1), summaries[1].Cycle)
}

func TestStatus_StateVersionAdvancesOnTransitions(t *testing.T) {
	f := newFixture(t, blockingDecider(), nil)
	v0 := f.orch.StateVersion()

	require.NoError(t, f.orch.Start(context.Background(), testRunConfig(time.Minute, 1)))
	awaitStatus(t, f, 2*time.Second, func(s Status) bool { return s.Status == domain.StatusRunning })
	v1 := f.orch.StateVersion()
	assert.Greater(t, v1, v0)

	require.NoError(t, f.orch.Pause())
	assert.Greater(t, f.orch.StateVersion(), v1)
}
