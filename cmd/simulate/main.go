// Package main runs a headless simulation: N full phase cycles against
// in-memory storage with the local personality decider, then prints a
// per-cycle report and the final pool state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"token-arena/internal/amm"
	"token-arena/internal/decision"
	"token-arena/internal/domain"
	"token-arena/internal/messaging"
	"token-arena/internal/orchestrator"
	"token-arena/internal/pool"
	"token-arena/internal/scheduler"
	"token-arena/internal/storage/memory"
)

func main() {
	cycles := flag.Int("cycles", 10, "Number of full phase cycles to run")
	agentCount := flag.Int("agents", 50, "Agent population size")
	maxAgents := flag.Int("max-agents-per-phase", 20, "Agents dispatched per phase")
	phaseMs := flag.Int("phase-duration-ms", 2000, "Phase budget in milliseconds")
	speed := flag.Float64("speed", 10, "Speed multiplier")
	baseReserve := flag.String("base-reserve", "100", "Initial base reserve")
	tokenReserve := flag.String("token-reserve", "100000", "Initial token reserve")
	feeRate := flag.String("fee-rate", "0.003", "Swap fee rate")
	seed := flag.Int64("seed", 0, "Deterministic seed (0 uses the clock)")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	base := decimal.RequireFromString(*baseReserve)
	token := decimal.RequireFromString(*tokenReserve)
	fee := decimal.RequireFromString(*feeRate)

	engine, err := amm.NewEngine(fee, decimal.New(1, -6))
	if err != nil {
		fatal(err)
	}
	poolStore, err := pool.NewStore(pool.Options{
		BaseReserve:  base,
		TokenReserve: token,
		Engine:       engine,
		Logger:       logger,
	})
	if err != nil {
		fatal(err)
	}

	snapshots := memory.NewSnapshotStore()
	decSeed := *seed
	if decSeed == 0 {
		decSeed = time.Now().UnixNano()
	}

	sched := scheduler.New(scheduler.Options{
		Decider: decision.NewPersonalityDecider(decSeed),
		Pool:    poolStore,
		Board:   messaging.NewBoard(messaging.Options{}),
		Logger:  logger,
	})

	orch, err := orchestrator.New(orchestrator.Options{
		Pool:      poolStore,
		Scheduler: sched,
		Snapshots: snapshots,
		Agents:    memory.NewAgentStore(),
		Trades:    memory.NewTradeLog(),
		Logger:    logger,
		SpawnSeed: decSeed,
	})
	if err != nil {
		fatal(err)
	}

	cfg := domain.RunConfig{
		AgentCount:        *agentCount,
		MaxAgentsPerPhase: *maxAgents,
		PhaseDuration:     time.Duration(*phaseMs) * time.Millisecond,
		SpeedMultiplier:   *speed,
		PersonalityMix: map[domain.Personality]float64{
			domain.PersonalityConservative:  0.2,
			domain.PersonalityModerate:      0.3,
			domain.PersonalityAggressive:    0.2,
			domain.PersonalityTrendFollower: 0.15,
			domain.PersonalityContrarian:    0.15,
		},
	}

	ctx := context.Background()
	started := time.Now()
	if err := orch.Start(ctx, cfg); err != nil {
		fatal(err)
	}

	var runID string
	for {
		status := orch.Status()
		runID = status.RunID
		if status.Status == domain.StatusError {
			fatal(fmt.Errorf("simulation failed: %s", status.LastError))
		}
		if status.CycleCount >= uint64(*cycles) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := orch.Stop(); err != nil {
		fatal(err)
	}
	elapsed := time.Since(started)

	summaries, err := snapshots.GetCycleSummaries(ctx, runID)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Run %s: %d cycles in %s\n\n", runID, *cycles, elapsed.Round(time.Millisecond))
	fmt.Printf("%-6s %-8s %-14s %-14s %-14s %-9s %-8s %-7s\n",
		"cycle", "trades", "volume", "open", "close", "ok", "skipped", "failed")
	for _, s := range summaries {
		fmt.Printf("%-6d %-8d %-14s %-14s %-14s %-9d %-8d %-7d\n",
			s.Cycle, s.Trades, s.Volume, s.OpenPrice, s.ClosePrice,
			s.AgentsSucceeded, s.AgentsSkipped, s.AgentsFailed)
	}

	final := poolStore.Snapshot()
	fmt.Printf("\nFinal pool: base=%s token=%s price=%s k=%s volume24h=%s trades24h=%d\n",
		final.BaseReserve.StringFixed(6), final.TokenReserve.StringFixed(6),
		final.CurrentPrice.StringFixed(10), final.InvariantK.StringFixed(4),
		final.Volume24h.StringFixed(6), len(final.RecentTrades))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
	os.Exit(1)
}
