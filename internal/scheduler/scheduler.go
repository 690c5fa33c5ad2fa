// Package scheduler runs one bounded agent batch per simulation phase:
// select fairly, fan out decisioning, collect with timeouts, and apply
// results. Decisions are produced in parallel; pool commits are applied one
// at a time in the order decisions complete, relying on the pool store's
// single-writer discipline for the serialization point.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"token-arena/internal/amm"
	"token-arena/internal/decision"
	"token-arena/internal/domain"
	"token-arena/internal/messaging"
	"token-arena/internal/observability"
	"token-arena/internal/pool"
)

// BatchSummary reports what happened in one phase batch.
type BatchSummary struct {
	Phase     domain.Phase
	Selected  int
	Succeeded int // decision obtained and applied (Hold counts)
	Skipped   int // decision timeout/failure, or batch cancelled first
	Failed    int // decision applied but rejected (e.g. insufficient liquidity)
	Trades    []domain.TradeRecord
}

// Scheduler selects and dispatches agent batches.
type Scheduler struct {
	decider decision.Decider
	pool    *pool.Store
	board   *messaging.Board
	logger  *logrus.Entry

	maxConcurrent   int
	perAgentTimeout time.Duration
	messageLimit    int

	mu         sync.Mutex
	lastActive map[string]uint64 // agent ID → cycle of last successful turn
}

// Options configures a Scheduler.
type Options struct {
	Decider decision.Decider
	Pool    *pool.Store
	Board   *messaging.Board
	Logger  *logrus.Logger

	// MaxConcurrent bounds in-flight decision calls, distinct from the
	// per-phase agent bound: the decision collaborator may be rate-limited.
	// Default 8.
	MaxConcurrent int

	// PerAgentTimeout bounds each decision call. Default 5s.
	PerAgentTimeout time.Duration

	// MessageLimit is how many recent messages each request sees. Default 20.
	MessageLimit int
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.PerAgentTimeout <= 0 {
		opts.PerAgentTimeout = 5 * time.Second
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		decider:         opts.Decider,
		pool:            opts.Pool,
		board:           opts.Board,
		logger:          logger.WithField("component", "scheduler"),
		maxConcurrent:   opts.MaxConcurrent,
		perAgentTimeout: opts.PerAgentTimeout,
		messageLimit:    opts.MessageLimit,
	}
}

// result pairs one agent with its decision outcome.
type result struct {
	agent domain.AgentRef
	dec   *domain.Decision
	err   error
}

// RunBatch executes one phase batch over the population. It returns early
// (with whatever was collected) when ctx is cancelled — the orchestrator
// cancels on phase timeout, pause, and stop. A non-nil error is fatal to the
// simulation run (invariant violation during a commit).
func (s *Scheduler) RunBatch(ctx context.Context, phase domain.Phase, cycle uint64, population []*domain.AgentRef, maxAgents int) (*BatchSummary, error) {
	summary := &BatchSummary{Phase: phase}

	selected := s.selectAgents(population, maxAgents)
	summary.Selected = len(selected)
	if len(selected) == 0 {
		return summary, nil
	}
	observability.RecordAgentsDispatched(string(phase), len(selected))

	snapshot := s.pool.MarketSnapshot()
	messages := s.board.Recent(s.messageLimit)

	results := make(chan result, len(selected))
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for _, agent := range selected {
		wg.Add(1)
		go func(agent domain.AgentRef) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{agent: agent, err: ctx.Err()}
				return
			}

			callCtx, cancel := context.WithTimeout(ctx, s.perAgentTimeout)
			defer cancel()

			started := time.Now()
			dec, err := s.decider.Decide(callCtx, decision.Request{
				Agent:    agent,
				Phase:    phase,
				Snapshot: snapshot,
				Messages: messages,
			})
			observability.RecordDecisionLatency(string(phase), time.Since(started).Seconds())

			results <- result{agent: agent, dec: dec, err: err}
		}(*agent)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Apply results sequentially in completion order. Trade commits are the
	// single-writer section; everything else is bookkeeping.
	for r := range results {
		if r.err != nil {
			summary.Skipped++
			observability.RecordAgentSkipped(string(phase))
			s.logger.WithFields(logrus.Fields{
				"phase":    phase,
				"agent_id": r.agent.ID,
			}).WithError(r.err).Warn("agent skipped this phase")
			continue
		}

		applied, trade, err := s.apply(ctx, phase, r)
		if err != nil {
			if errors.Is(err, amm.ErrInvariantViolation) {
				// Serialization bug: surface loudly, fatal to the run.
				return summary, err
			}
			summary.Failed++
			observability.RecordAgentFailed(string(phase))
			s.logger.WithFields(logrus.Fields{
				"phase":    phase,
				"agent_id": r.agent.ID,
				"action":   r.dec.Action,
			}).WithError(err).Warn("agent action rejected")
			continue
		}

		summary.Succeeded++
		s.markActive(r.agent.ID, cycle)
		if applied && trade != nil {
			summary.Trades = append(summary.Trades, *trade)
		}
	}

	return summary, nil
}

// apply routes a decision to its collaborator. Trading actions outside the
// Trading phase are treated as Hold.
func (s *Scheduler) apply(ctx context.Context, phase domain.Phase, r result) (bool, *domain.TradeRecord, error) {
	dec := r.dec

	switch dec.Action {
	case domain.ActionBuy, domain.ActionSell:
		if phase != domain.PhaseTrading {
			return false, nil, nil
		}
		direction := domain.DirectionBuy
		if dec.Action == domain.ActionSell {
			direction = domain.DirectionSell
		}
		trade, err := s.pool.Commit(direction, dec.Amount, r.agent.ID)
		if err != nil {
			return false, nil, err
		}
		observability.RecordTradeCommitted(string(direction))
		return true, &trade, nil

	case domain.ActionMessage:
		if phase != domain.PhaseSocial || dec.Content == "" {
			return false, nil, nil
		}
		if _, err := s.board.Post(ctx, r.agent, dec.Content); err != nil {
			return false, nil, err
		}
		observability.RecordMessagePosted()
		return true, nil, nil

	default: // Hold / analysis
		return false, nil, nil
	}
}

// selectAgents picks up to maxAgents by least-recently-active cycle, ties
// broken by ID. An agent that keeps failing keeps its old cycle mark and so
// keeps selection priority: nothing starves.
func (s *Scheduler) selectAgents(population []*domain.AgentRef, maxAgents int) []*domain.AgentRef {
	if maxAgents <= 0 || len(population) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastActive == nil {
		s.lastActive = make(map[string]uint64, len(population))
	}

	sorted := make([]*domain.AgentRef, len(population))
	copy(sorted, population)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := s.lastActive[sorted[i].ID], s.lastActive[sorted[j].ID]
		if li != lj {
			return li < lj
		}
		return sorted[i].ID < sorted[j].ID
	})

	if len(sorted) > maxAgents {
		sorted = sorted[:maxAgents]
	}
	return sorted
}

func (s *Scheduler) markActive(agentID string, cycle uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// +1 so a cycle-0 turn still differs from "never dispatched".
	s.lastActive[agentID] = cycle + 1
}
