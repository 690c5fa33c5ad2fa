package decision

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"token-arena/internal/domain"
)

// trendThreshold is the 24h change beyond which trend-sensitive
// personalities consider the market to be moving.
const trendThreshold = 0.005

// PersonalityDecider is a local, heuristic implementation of Decider. Each
// personality class maps market sentiment to an action differently; the
// mapping is deterministic for a fixed random seed, which keeps simulations
// reproducible in tests.
type PersonalityDecider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPersonalityDecider creates a decider seeded for reproducibility.
func NewPersonalityDecider(seed int64) *PersonalityDecider {
	return &PersonalityDecider{rng: rand.New(rand.NewSource(seed))}
}

// Compile-time interface check.
var _ Decider = (*PersonalityDecider)(nil)

// Decide maps the agent's personality and the market snapshot to an action.
func (d *PersonalityDecider) Decide(ctx context.Context, req Request) (*domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	roll := d.rng.Float64()
	sizing := 0.2 + 0.8*d.rng.Float64()
	d.mu.Unlock()

	sentiment := marketSentiment(req.Snapshot, req.Messages)

	switch req.Phase {
	case domain.PhaseSocial:
		return d.socialDecision(req, sentiment), nil
	case domain.PhaseTrading:
		return d.tradeDecision(req, sentiment, roll, sizing), nil
	default:
		// Analysis turns observe without acting.
		return &domain.Decision{
			AgentID: req.Agent.ID,
			Action:  domain.ActionHold,
			Reason:  fmt.Sprintf("observed market, sentiment %.3f", sentiment),
		}, nil
	}
}

func (d *PersonalityDecider) socialDecision(req Request, sentiment float64) *domain.Decision {
	mood := "neutral on"
	if sentiment > trendThreshold {
		mood = "bullish on"
	} else if sentiment < -trendThreshold {
		mood = "bearish on"
	}
	return &domain.Decision{
		AgentID: req.Agent.ID,
		Action:  domain.ActionMessage,
		Content: fmt.Sprintf("%s is %s the token at %s", req.Agent.Name, mood, req.Snapshot.Price.StringFixed(6)),
		Reason:  fmt.Sprintf("sentiment %.3f", sentiment),
	}
}

func (d *PersonalityDecider) tradeDecision(req Request, sentiment, roll, sizing float64) *domain.Decision {
	agent := req.Agent
	hold := &domain.Decision{AgentID: agent.ID, Action: domain.ActionHold, Reason: "no conviction"}

	// Trade frequency gates whether the agent acts at all this phase.
	if roll > agent.TradeFrequency {
		return hold
	}

	trend, _ := req.Snapshot.Change24h.Float64()
	volatility, _ := req.Snapshot.Volatility.Float64()

	var action domain.Action
	switch agent.Personality {
	case domain.PersonalityConservative:
		// Only enters calm markets, and only on the buy side of weakness.
		if volatility > 0.02 {
			return hold
		}
		if trend < -trendThreshold {
			action = domain.ActionBuy
		} else {
			return hold
		}
	case domain.PersonalityModerate:
		if sentiment > trendThreshold {
			action = domain.ActionBuy
		} else if sentiment < -trendThreshold {
			action = domain.ActionSell
		} else {
			return hold
		}
	case domain.PersonalityAggressive:
		if sentiment >= 0 {
			action = domain.ActionBuy
		} else {
			action = domain.ActionSell
		}
	case domain.PersonalityTrendFollower:
		if trend > trendThreshold {
			action = domain.ActionBuy
		} else if trend < -trendThreshold {
			action = domain.ActionSell
		} else {
			return hold
		}
	case domain.PersonalityContrarian:
		if trend > trendThreshold {
			action = domain.ActionSell
		} else if trend < -trendThreshold {
			action = domain.ActionBuy
		} else {
			return hold
		}
	default:
		return hold
	}

	amount := decimal.NewFromFloat(agent.MaxPositionSize * agent.RiskTolerance * sizing)
	if action == domain.ActionSell && req.Snapshot.Price.IsPositive() {
		// Position sizes are expressed in base units; SELL input is tokens.
		amount = amount.Div(req.Snapshot.Price)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return hold
	}

	return &domain.Decision{
		AgentID: agent.ID,
		Action:  action,
		Amount:  amount.Round(12),
		Reason:  fmt.Sprintf("trend %.4f sentiment %.3f", trend, sentiment),
	}
}

// marketSentiment blends the 24h trend with the average sentiment of recent
// messages. Messages matter: half the signal is social.
func marketSentiment(snapshot domain.MarketSnapshot, messages []domain.AgentMessage) float64 {
	trend, _ := snapshot.Change24h.Float64()

	if len(messages) == 0 {
		return trend
	}
	var social float64
	for _, m := range messages {
		social += m.Sentiment
	}
	social /= float64(len(messages))

	return 0.5*trend + 0.5*social*trendThreshold*4
}
