// Package orchestrator runs the simulation phase cycle. A single run-loop
// goroutine owns the SimulationRun and the phase timer; control calls
// (pause/resume/stop/setSpeed) are commands delivered over a channel, so the
// run state is only ever mutated by its owner. Phases advance when the agent
// batch drains or the phase budget expires, whichever comes first.
//
// The phase budget is accounted in simulation time: running at speed s, wall
// time dt consumes dt*s of the budget. Pausing freezes the accumulated
// consumption; changing speed re-arms the timer with the remaining budget at
// the new rate, so agent cadence has no wall-clock discontinuity.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"token-arena/internal/agents"
	"token-arena/internal/domain"
	"token-arena/internal/observability"
	"token-arena/internal/pool"
	"token-arena/internal/retry"
	"token-arena/internal/scheduler"
	"token-arena/internal/storage"
)

var (
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrNotRunning     = errors.New("simulation not running")
	ErrNotPaused      = errors.New("simulation not paused")
	ErrInvalidConfig  = errors.New("invalid run configuration")
	ErrInvalidSpeed   = errors.New("speed multiplier must be positive")
	ErrRunFailed      = errors.New("simulation run is in error state")
)

// Status is the read-only view handed to the control surface and the cache.
type Status struct {
	RunID                string                `json:"runId"`
	Status               domain.RunStatus      `json:"status"`
	CurrentPhase         domain.Phase          `json:"currentPhase"`
	PhaseProgressPercent float64               `json:"phaseProgressPercent"`
	SpeedMultiplier      float64               `json:"speedMultiplier"`
	CycleCount           uint64                `json:"cycleCount"`
	ActiveAgents         int                   `json:"activeAgents"`
	LastError            string                `json:"lastError,omitempty"`
	Market               domain.MarketSnapshot `json:"market"`
}

// Options configures an Orchestrator.
type Options struct {
	Pool      *pool.Store
	Scheduler *scheduler.Scheduler
	Snapshots storage.SnapshotStore
	Agents    storage.AgentStore
	Trades    storage.TradeLog
	Logger    *logrus.Logger

	// Retry governs persistence writes during the Reporting phase.
	Retry retry.Config

	// ShutdownTimeout bounds the in-flight batch drain on stop. Default 10s.
	ShutdownTimeout time.Duration

	// SpawnSeed seeds the population spawner (tests). 0 derives from the clock.
	SpawnSeed int64

	// OnTransition is invoked after every phase transition and status change,
	// outside the run loop's critical section (cache invalidation hook).
	OnTransition func()
}

// Orchestrator owns the single active simulation run.
type Orchestrator struct {
	pool      *pool.Store
	sched     *scheduler.Scheduler
	snapshots storage.SnapshotStore
	agents    storage.AgentStore
	trades    storage.TradeLog
	logger    *logrus.Entry

	retryCfg        retry.Config
	shutdownTimeout time.Duration
	spawnSeed       int64
	onTransition    func()

	mu        sync.Mutex
	starting  bool // guards the window between a Start being accepted and its run loop publishing
	cmds      chan command
	loopDone  chan struct{}
	published published
	version   uint64 // bumped on every publish, consulted by the cache
}

// published is the run-loop's exported view, updated under mu on every state
// change. Progress is derived at read time from resumedAt so Status() stays
// current between publishes.
type published struct {
	run          domain.SimulationRun
	budget       time.Duration // phase budget in simulation time
	consumed     time.Duration // simulation time consumed before resumedAt
	resumedAt    time.Time     // zero when not running
	activeAgents int
}

// New creates an Orchestrator in the Stopped state.
func New(opts Options) (*Orchestrator, error) {
	if opts.Pool == nil || opts.Scheduler == nil {
		return nil, fmt.Errorf("orchestrator requires a pool store and a scheduler")
	}
	if opts.Snapshots == nil || opts.Agents == nil || opts.Trades == nil {
		return nil, fmt.Errorf("orchestrator requires snapshot, agent, and trade stores")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}

	return &Orchestrator{
		pool:            opts.Pool,
		sched:           opts.Scheduler,
		snapshots:       opts.Snapshots,
		agents:          opts.Agents,
		trades:          opts.Trades,
		logger:          logger.WithField("component", "orchestrator"),
		retryCfg:        opts.Retry,
		shutdownTimeout: opts.ShutdownTimeout,
		spawnSeed:       opts.SpawnSeed,
		onTransition:    opts.OnTransition,
		published: published{
			run: domain.SimulationRun{Status: domain.StatusStopped},
		},
	}, nil
}

// Start validates cfg, spawns the agent population, recovers the latest pool
// snapshot if one exists, and launches the run loop in
// Running{MarketAnalysis}. Valid only from Stopped; invalid configuration is
// rejected synchronously with no state change.
func (o *Orchestrator) Start(ctx context.Context, cfg domain.RunConfig) error {
	if err := validateConfig(&cfg); err != nil {
		return err
	}

	o.mu.Lock()
	if o.starting || o.published.run.Status != domain.StatusStopped {
		status := o.published.run.Status
		o.mu.Unlock()
		return fmt.Errorf("start from %s: %w", status, ErrAlreadyRunning)
	}
	o.starting = true
	o.mu.Unlock()

	started := false
	defer func() {
		if !started {
			o.mu.Lock()
			o.starting = false
			o.mu.Unlock()
		}
	}()

	seed := o.spawnSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	population, err := agents.Spawn(cfg.AgentCount, cfg.PersonalityMix, seed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Population registry writes are best-effort: the simulation runs from
	// memory and persistence failures here only degrade offline analysis.
	if err := retry.Do(ctx, o.retryCfg, func(ctx context.Context) error {
		return o.agents.InsertBulk(ctx, population)
	}); err != nil {
		observability.RecordPersistenceFailure()
		o.logger.WithError(err).Warn("agent registry write failed, continuing")
	}

	if err := o.recoverPool(ctx); err != nil {
		return err
	}

	now := time.Now()
	run := domain.SimulationRun{
		RunID:           uuid.NewString(),
		Status:          domain.StatusRunning,
		CurrentPhase:    domain.PhaseMarketAnalysis,
		PhaseStartedAt:  now,
		SpeedMultiplier: cfg.SpeedMultiplier,
		Config:          cfg,
		StartedAt:       now,
	}

	activeAgents := len(population)
	if cfg.MaxAgentsPerPhase < activeAgents {
		activeAgents = cfg.MaxAgentsPerPhase
	}

	o.mu.Lock()
	o.cmds = make(chan command)
	o.loopDone = make(chan struct{})
	cmds, done := o.cmds, o.loopDone
	o.published = published{run: run, budget: cfg.PhaseDuration, activeAgents: activeAgents}
	o.version++
	o.starting = false
	o.mu.Unlock()
	started = true

	o.logger.WithFields(logrus.Fields{
		"run_id":      run.RunID,
		"agent_count": cfg.AgentCount,
		"speed":       cfg.SpeedMultiplier,
	}).Info("simulation started")

	go o.runLoop(run, population, cmds, done)
	return nil
}

// Pause freezes the phase timer and cancels the in-flight batch. Elapsed
// phase time is preserved. Valid only from Running.
func (o *Orchestrator) Pause() error { return o.send(cmdPause, 0) }

// Resume re-arms the phase timer with the preserved remaining budget and
// redispatches the current phase. Valid only from Paused.
func (o *Orchestrator) Resume() error { return o.send(cmdResume, 0) }

// Stop tears the run down gracefully: cancels dispatches, drains within the
// shutdown timeout, persists a final pool snapshot. Valid from any
// non-Stopped state.
func (o *Orchestrator) Stop() error {
	if err := o.send(cmdStop, 0); err != nil {
		return err
	}
	o.mu.Lock()
	done := o.loopDone
	o.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// SetSpeed rescales the remaining phase timer proportionally. Valid from
// Running or Paused.
func (o *Orchestrator) SetSpeed(multiplier float64) error {
	if multiplier <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, multiplier)
	}
	return o.send(cmdSetSpeed, multiplier)
}

// Status returns a consistent snapshot of the run plus the current market
// view. Safe from any goroutine in any state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	p := o.published
	o.mu.Unlock()

	progress := 0.0
	if p.budget > 0 {
		consumed := p.consumed
		if p.run.Status == domain.StatusRunning && !p.resumedAt.IsZero() {
			consumed += time.Duration(float64(time.Since(p.resumedAt)) * p.run.SpeedMultiplier)
		}
		progress = float64(consumed) / float64(p.budget) * 100
		if progress > 100 {
			progress = 100
		}
	}

	return Status{
		RunID:                p.run.RunID,
		Status:               p.run.Status,
		CurrentPhase:         p.run.CurrentPhase,
		PhaseProgressPercent: progress,
		SpeedMultiplier:      p.run.SpeedMultiplier,
		CycleCount:           p.run.CycleCount,
		ActiveAgents:         p.activeAgents,
		LastError:            p.run.LastError,
		Market:               o.pool.MarketSnapshot(),
	}
}

// StateVersion is the publish counter. The status cache treats a mismatch as
// stale regardless of TTL.
func (o *Orchestrator) StateVersion() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.version
}

func (o *Orchestrator) recoverPool(ctx context.Context) error {
	snapshot, err := o.snapshots.LoadLatestPoolSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load pool snapshot: %w", err)
	}
	if err := o.pool.Restore(*snapshot); err != nil {
		return fmt.Errorf("restore pool snapshot: %w", err)
	}
	return nil
}

func validateConfig(cfg *domain.RunConfig) error {
	if cfg.AgentCount <= 0 {
		return fmt.Errorf("%w: agentCount must be positive, got %d", ErrInvalidConfig, cfg.AgentCount)
	}
	if cfg.MaxAgentsPerPhase <= 0 {
		return fmt.Errorf("%w: maxAgentsPerPhase must be positive, got %d", ErrInvalidConfig, cfg.MaxAgentsPerPhase)
	}
	if cfg.PhaseDuration <= 0 {
		return fmt.Errorf("%w: phaseDuration must be positive, got %s", ErrInvalidConfig, cfg.PhaseDuration)
	}
	if cfg.SpeedMultiplier <= 0 {
		return fmt.Errorf("%w: speed must be positive, got %v", ErrInvalidConfig, cfg.SpeedMultiplier)
	}
	if len(cfg.PersonalityMix) == 0 {
		return fmt.Errorf("%w: personality distribution is empty", ErrInvalidConfig)
	}
	total := 0.0
	for p, w := range cfg.PersonalityMix {
		if w < 0 {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalidConfig, p)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("%w: personality distribution sums to zero", ErrInvalidConfig)
	}
	// Normalize in place so downstream consumers see weights summing to 1.
	for p, w := range cfg.PersonalityMix {
		cfg.PersonalityMix[p] = w / total
	}
	return nil
}

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
	cmdStop
	cmdSetSpeed
)

type command struct {
	kind  cmdKind
	speed float64
	reply chan error
}

func (o *Orchestrator) send(kind cmdKind, speed float64) error {
	o.mu.Lock()
	cmds, done := o.cmds, o.loopDone
	status := o.published.run.Status
	o.mu.Unlock()

	if cmds == nil || status == domain.StatusStopped {
		return ErrNotRunning
	}

	cmd := command{kind: kind, speed: speed, reply: make(chan error, 1)}
	select {
	case cmds <- cmd:
		return <-cmd.reply
	case <-done:
		return ErrNotRunning
	}
}

// cycleAccumulator gathers one cycle's results across its phases.
type cycleAccumulator struct {
	openPrice decimal.Decimal
	volume    decimal.Decimal
	trades    []domain.TradeRecord
	succeeded int
	skipped   int
	failed    int
}

func newAccumulator(openPrice decimal.Decimal) cycleAccumulator {
	return cycleAccumulator{openPrice: openPrice, volume: decimal.Zero}
}

func (a *cycleAccumulator) absorb(summary *scheduler.BatchSummary) {
	a.succeeded += summary.Succeeded
	a.skipped += summary.Skipped
	a.failed += summary.Failed
	for _, t := range summary.Trades {
		a.volume = a.volume.Add(t.InputAmount)
		a.trades = append(a.trades, t)
	}
}

// batchResult is what one phase's worker goroutine delivers back to the loop.
type batchResult struct {
	summary *scheduler.BatchSummary
	pending []*domain.CycleSummary // reporting summaries that failed to persist
	err     error                  // fatal (invariant violation)
}

type inflight struct {
	cancel context.CancelFunc
	done   chan batchResult
}

// loopState is owned exclusively by the run loop goroutine.
type loopState struct {
	run        domain.SimulationRun
	population []*domain.AgentRef

	budget    time.Duration // per-phase, simulation time
	consumed  time.Duration
	resumedAt time.Time
	phaseWall time.Time // wall time the phase was entered, for metrics

	acc     cycleAccumulator
	pending []*domain.CycleSummary
	batch   *inflight
}

func (o *Orchestrator) runLoop(run domain.SimulationRun, population []*domain.AgentRef, cmds chan command, done chan struct{}) {
	defer close(done)

	st := &loopState{
		run:        run,
		population: population,
		budget:     run.Config.PhaseDuration,
		acc:        newAccumulator(o.pool.Snapshot().CurrentPrice),
	}

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer stopTimer(timer)

	o.startPhase(st, timer)

	for {
		var batchDone chan batchResult
		if st.batch != nil {
			batchDone = st.batch.done
		}

		select {
		case cmd := <-cmds:
			if o.handleCommand(st, timer, cmd) {
				return
			}

		case <-timer.C:
			// Budget expired: force-advance. Unfinished agents are cancelled
			// and roll over; the scheduler only marks successes as active.
			o.cancelBatch(st)
			o.advancePhase(st, timer, "timeout")

		case res := <-batchDone:
			st.batch = nil
			if res.err != nil {
				o.enterError(st, timer, res.err)
				continue
			}
			if res.summary != nil {
				st.acc.absorb(res.summary)
			}
			st.pending = res.pending
			o.advancePhase(st, timer, "batch_complete")
		}
	}
}

// handleCommand processes one control command. Returns true when the loop
// should exit (stop completed).
func (o *Orchestrator) handleCommand(st *loopState, timer *time.Timer, cmd command) bool {
	switch cmd.kind {
	case cmdPause:
		if st.run.Status != domain.StatusRunning {
			cmd.reply <- fmt.Errorf("pause from %s: %w", st.run.Status, ErrNotRunning)
			return false
		}
		stopTimer(timer)
		st.consumed += simElapsed(st)
		st.resumedAt = time.Time{}
		o.cancelBatch(st)
		st.run.Status = domain.StatusPaused
		o.publish(st)
		o.logger.WithField("phase", st.run.CurrentPhase).Info("simulation paused")
		cmd.reply <- nil

	case cmdResume:
		if st.run.Status != domain.StatusPaused {
			cmd.reply <- fmt.Errorf("resume from %s: %w", st.run.Status, ErrNotPaused)
			return false
		}
		st.run.Status = domain.StatusRunning
		st.resumedAt = time.Now()
		timer.Reset(remainingWall(st))
		o.dispatch(st)
		o.publish(st)
		o.logger.WithField("phase", st.run.CurrentPhase).Info("simulation resumed")
		cmd.reply <- nil

	case cmdSetSpeed:
		if st.run.Status != domain.StatusRunning && st.run.Status != domain.StatusPaused {
			cmd.reply <- fmt.Errorf("setSpeed from %s: %w", st.run.Status, ErrNotRunning)
			return false
		}
		if st.run.Status == domain.StatusRunning {
			// Fold wall time at the old speed into consumed, then re-arm the
			// timer for the remaining budget at the new speed.
			stopTimer(timer)
			st.consumed += simElapsed(st)
			st.resumedAt = time.Now()
		}
		st.run.SpeedMultiplier = cmd.speed
		if st.run.Status == domain.StatusRunning {
			timer.Reset(remainingWall(st))
		}
		o.publish(st)
		o.logger.WithField("speed", cmd.speed).Info("speed changed")
		cmd.reply <- nil

	case cmdStop:
		stopTimer(timer)
		o.cancelBatch(st)
		o.finalSnapshot(st)
		st.run.Status = domain.StatusStopped
		st.resumedAt = time.Time{}
		o.publish(st)
		o.logger.WithFields(logrus.Fields{
			"run_id": st.run.RunID,
			"cycles": st.run.CycleCount,
		}).Info("simulation stopped")
		cmd.reply <- nil
		return true
	}
	return false
}

// startPhase arms the timer for a fresh budget and dispatches the phase work.
func (o *Orchestrator) startPhase(st *loopState, timer *time.Timer) {
	st.consumed = 0
	st.resumedAt = time.Now()
	st.phaseWall = st.resumedAt
	st.run.PhaseStartedAt = st.resumedAt
	timer.Reset(remainingWall(st))
	o.dispatch(st)
	o.publish(st)
}

// advancePhase moves to the next phase in the cycle, closing the cycle when
// leaving Reporting.
func (o *Orchestrator) advancePhase(st *loopState, timer *time.Timer, reason string) {
	stopTimer(timer)
	completed := st.run.CurrentPhase
	observability.RecordPhaseCompleted(string(completed), reason, time.Since(st.phaseWall).Seconds())

	o.logger.WithFields(logrus.Fields{
		"phase":  completed,
		"reason": reason,
		"cycle":  st.run.CycleCount,
	}).Debug("phase completed")

	if completed == domain.PhaseReporting {
		st.run.CycleCount++
		observability.RecordCycleCompleted()
		st.acc = newAccumulator(o.pool.Snapshot().CurrentPrice)
	}

	st.run.CurrentPhase = domain.NextPhase(completed)
	o.startPhase(st, timer)
}

// dispatch launches the phase's work goroutine. Reporting persists the cycle
// summary synchronously inside its goroutine; every other phase runs an agent
// batch.
func (o *Orchestrator) dispatch(st *loopState) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan batchResult, 1)
	st.batch = &inflight{cancel: cancel, done: done}

	if st.run.CurrentPhase == domain.PhaseReporting {
		summary := o.buildSummary(st)
		pending := append(st.pending, summary)
		trades := append([]domain.TradeRecord(nil), st.acc.trades...)
		go func() {
			defer cancel()
			done <- batchResult{pending: o.persistCycle(ctx, trades, pending)}
		}()
		return
	}

	phase := st.run.CurrentPhase
	cycle := st.run.CycleCount
	population := st.population
	maxAgents := st.run.Config.MaxAgentsPerPhase
	pending := st.pending
	go func() {
		defer cancel()
		summary, err := o.sched.RunBatch(ctx, phase, cycle, population, maxAgents)
		done <- batchResult{summary: summary, pending: pending, err: err}
	}()
}

func (o *Orchestrator) buildSummary(st *loopState) *domain.CycleSummary {
	pool := o.pool.Snapshot()
	return &domain.CycleSummary{
		RunID:           st.run.RunID,
		Cycle:           st.run.CycleCount,
		CompletedAt:     time.Now(),
		Trades:          len(st.acc.trades),
		Volume:          st.acc.volume.String(),
		OpenPrice:       st.acc.openPrice.String(),
		ClosePrice:      pool.CurrentPrice.String(),
		AgentsSucceeded: st.acc.succeeded,
		AgentsSkipped:   st.acc.skipped,
		AgentsFailed:    st.acc.failed,
	}
}

// persistCycle writes the cycle's trades, a pool snapshot, and all pending
// cycle summaries. Summaries that still fail after retries are returned to
// stay pending for the next Reporting phase; the simulation proceeds from
// memory.
func (o *Orchestrator) persistCycle(ctx context.Context, trades []domain.TradeRecord, summaries []*domain.CycleSummary) []*domain.CycleSummary {
	cfg := o.retryCfg
	cfg.OnRetry = func(attempt int, err error) {
		observability.RecordPersistenceRetry()
		o.logger.WithField("attempt", attempt).WithError(err).Warn("persistence write retrying")
	}

	if len(trades) > 0 {
		refs := make([]*domain.TradeRecord, len(trades))
		for i := range trades {
			refs[i] = &trades[i]
		}
		err := retry.Do(ctx, cfg, func(ctx context.Context) error {
			err := o.trades.InsertBulk(ctx, refs)
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil
			}
			return err
		})
		if err != nil {
			observability.RecordPersistenceFailure()
			o.logger.WithError(err).Error("trade log write failed")
		}
	}

	snapshot := o.pool.Snapshot()
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return o.snapshots.SavePoolSnapshot(ctx, &snapshot)
	})
	if err != nil {
		observability.RecordPersistenceFailure()
		o.logger.WithError(err).Error("pool snapshot write failed")
	} else {
		observability.RecordSnapshotSaved()
	}

	var stillPending []*domain.CycleSummary
	for _, summary := range summaries {
		err := retry.Do(ctx, cfg, func(ctx context.Context) error {
			err := o.snapshots.SaveCycleSummary(ctx, summary)
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil
			}
			return err
		})
		if err != nil {
			observability.RecordPersistenceFailure()
			o.logger.WithFields(logrus.Fields{
				"cycle": summary.Cycle,
			}).WithError(err).Error("cycle summary write failed, kept pending")
			stillPending = append(stillPending, summary)
		}
	}
	return stillPending
}

// enterError transitions the run to Error. Only Stop is accepted afterwards.
func (o *Orchestrator) enterError(st *loopState, timer *time.Timer, err error) {
	stopTimer(timer)
	o.cancelBatch(st)
	st.run.Status = domain.StatusError
	st.run.LastError = err.Error()
	st.resumedAt = time.Time{}
	o.publish(st)
	o.logger.WithError(err).Error("simulation entered error state")
}

// cancelBatch cancels the in-flight work and drains its result within the
// shutdown timeout, so no dispatch outlives the transition.
func (o *Orchestrator) cancelBatch(st *loopState) {
	if st.batch == nil {
		return
	}
	st.batch.cancel()
	select {
	case res := <-st.batch.done:
		if res.summary != nil {
			st.acc.absorb(res.summary)
		}
		if res.pending != nil {
			st.pending = res.pending
		}
	case <-time.After(o.shutdownTimeout):
		o.logger.Warn("batch did not drain within shutdown timeout")
	}
	st.batch = nil
}

// finalSnapshot persists the pool state on stop, best-effort.
func (o *Orchestrator) finalSnapshot(st *loopState) {
	ctx, cancel := context.WithTimeout(context.Background(), o.shutdownTimeout)
	defer cancel()
	st.pending = o.persistCycle(ctx, nil, st.pending)
}

func (o *Orchestrator) publish(st *loopState) {
	activeAgents := 0
	if st.batch != nil && st.run.CurrentPhase != domain.PhaseReporting {
		activeAgents = len(st.population)
		if st.run.Config.MaxAgentsPerPhase < activeAgents {
			activeAgents = st.run.Config.MaxAgentsPerPhase
		}
	}

	o.mu.Lock()
	o.published = published{
		run:          st.run,
		budget:       st.budget,
		consumed:     st.consumed,
		resumedAt:    st.resumedAt,
		activeAgents: activeAgents,
	}
	o.version++
	o.mu.Unlock()

	if o.onTransition != nil {
		o.onTransition()
	}
}

// simElapsed is the simulation time consumed since the last resume.
func simElapsed(st *loopState) time.Duration {
	if st.resumedAt.IsZero() {
		return 0
	}
	return time.Duration(float64(time.Since(st.resumedAt)) * st.run.SpeedMultiplier)
}

// remainingWall converts the remaining simulation-time budget into wall time
// at the current speed.
func remainingWall(st *loopState) time.Duration {
	remaining := st.budget - st.consumed
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / st.run.SpeedMultiplier)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
