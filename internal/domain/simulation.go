package domain

import (
	"time"
)

// RunStatus is the lifecycle state of a simulation run.
type RunStatus string

const (
	StatusStopped RunStatus = "STOPPED"
	StatusRunning RunStatus = "RUNNING"
	StatusPaused  RunStatus = "PAUSED"
	StatusError   RunStatus = "ERROR"
)

// Phase is one stage of the simulation cycle. Phases advance cyclically:
// MarketAnalysis → Social → Trading → Reporting → MarketAnalysis …
type Phase string

const (
	PhaseMarketAnalysis Phase = "MARKET_ANALYSIS"
	PhaseSocial         Phase = "SOCIAL"
	PhaseTrading        Phase = "TRADING"
	PhaseReporting      Phase = "REPORTING"
)

// PhaseCycle is the fixed phase order of one simulation cycle.
var PhaseCycle = []Phase{PhaseMarketAnalysis, PhaseSocial, PhaseTrading, PhaseReporting}

// NextPhase returns the phase following p in the cycle.
func NextPhase(p Phase) Phase {
	for i, c := range PhaseCycle {
		if c == p {
			return PhaseCycle[(i+1)%len(PhaseCycle)]
		}
	}
	return PhaseMarketAnalysis
}

// RunConfig is the validated configuration of a simulation run.
type RunConfig struct {
	AgentCount        int
	MaxAgentsPerPhase int
	PhaseDuration     time.Duration
	SpeedMultiplier   float64
	PersonalityMix    map[Personality]float64 // normalized, sums to 1
}

// SimulationRun is the state of the single active simulation. It is owned
// exclusively by the orchestrator's run loop; everything handed out of the
// orchestrator is a copy.
type SimulationRun struct {
	RunID           string
	Status          RunStatus
	CurrentPhase    Phase
	PhaseStartedAt  time.Time
	SpeedMultiplier float64
	Config          RunConfig
	CycleCount      uint64 // completed full cycles
	StartedAt       time.Time
	LastError       string // set when Status == StatusError
}

// CycleSummary is the aggregated result of one completed phase cycle,
// produced during the Reporting phase and handed to persistence.
type CycleSummary struct {
	RunID           string
	Cycle           uint64
	CompletedAt     time.Time
	Trades          int
	Volume          string // decimal string, base units
	OpenPrice       string
	ClosePrice      string
	AgentsSucceeded int
	AgentsSkipped   int
	AgentsFailed    int
}
