package domain

// Personality is the closed set of agent behavioral classes. The orchestrator
// never branches on personality; only the decision collaborator does.
type Personality string

const (
	PersonalityConservative  Personality = "CONSERVATIVE"
	PersonalityModerate      Personality = "MODERATE"
	PersonalityAggressive    Personality = "AGGRESSIVE"
	PersonalityTrendFollower Personality = "TREND_FOLLOWER"
	PersonalityContrarian    Personality = "CONTRARIAN"
)

// Personalities lists every known personality class in a fixed order.
var Personalities = []Personality{
	PersonalityConservative,
	PersonalityModerate,
	PersonalityAggressive,
	PersonalityTrendFollower,
	PersonalityContrarian,
}

// AgentRef identifies an agent plus the read-only behavioral parameters the
// decision collaborator needs. The orchestrator never mutates these.
type AgentRef struct {
	ID              string
	Name            string
	Personality     Personality
	RiskTolerance   float64 // 0..1, appetite for price impact
	TradeFrequency  float64 // 0..1, probability of acting in a trading phase
	MaxPositionSize float64 // cap on a single trade, in base units
}
