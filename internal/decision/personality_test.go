package decision

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-arena/internal/domain"
)

func snapshotWithTrend(trend string) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Price:     decimal.RequireFromString("0.001"),
		Change24h: decimal.RequireFromString(trend),
	}
}

func agentOf(p domain.Personality) domain.AgentRef {
	return domain.AgentRef{
		ID:              "agent-1",
		Name:            "agent-001",
		Personality:     p,
		RiskTolerance:   0.5,
		TradeFrequency:  1.0, // always acts, removes the frequency gate
		MaxPositionSize: 5,
	}
}

func decide(t *testing.T, d *PersonalityDecider, req Request) *domain.Decision {
	t.Helper()
	dec, err := d.Decide(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, dec)
	return dec
}

func TestPersonalityDecider_AnalysisPhaseHolds(t *testing.T) {
	d := NewPersonalityDecider(1)
	dec := decide(t, d, Request{
		Agent:    agentOf(domain.PersonalityAggressive),
		Phase:    domain.PhaseMarketAnalysis,
		Snapshot: snapshotWithTrend("0.5"),
	})
	assert.Equal(t, domain.ActionHold, dec.Action)
}

func TestPersonalityDecider_SocialPhaseProducesMessage(t *testing.T) {
	d := NewPersonalityDecider(1)
	dec := decide(t, d, Request{
		Agent:    agentOf(domain.PersonalityModerate),
		Phase:    domain.PhaseSocial,
		Snapshot: snapshotWithTrend("0.1"),
	})
	assert.Equal(t, domain.ActionMessage, dec.Action)
	assert.Contains(t, dec.Content, "bullish")
	assert.Contains(t, dec.Content, "agent-001")
}

func TestPersonalityDecider_TrendFollowerFollowsTrend(t *testing.T) {
	d := NewPersonalityDecider(1)
	agent := agentOf(domain.PersonalityTrendFollower)

	up := decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: snapshotWithTrend("0.1")})
	assert.Equal(t, domain.ActionBuy, up.Action)
	assert.True(t, up.Amount.IsPositive())

	down := decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: snapshotWithTrend("-0.1")})
	assert.Equal(t, domain.ActionSell, down.Action)

	flat := decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: snapshotWithTrend("0")})
	assert.Equal(t, domain.ActionHold, flat.Action)
}

func TestPersonalityDecider_ContrarianFadesTrend(t *testing.T) {
	d := NewPersonalityDecider(1)
	agent := agentOf(domain.PersonalityContrarian)

	up := decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: snapshotWithTrend("0.1")})
	assert.Equal(t, domain.ActionSell, up.Action)

	down := decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: snapshotWithTrend("-0.1")})
	assert.Equal(t, domain.ActionBuy, down.Action)
}

func TestPersonalityDecider_ConservativeAvoidsVolatility(t *testing.T) {
	d := NewPersonalityDecider(1)
	agent := agentOf(domain.PersonalityConservative)

	calm := snapshotWithTrend("-0.1")
	calm.Volatility = decimal.RequireFromString("0.005")
	dec := decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: calm})
	assert.Equal(t, domain.ActionBuy, dec.Action, "buys weakness in a calm market")

	stormy := snapshotWithTrend("-0.1")
	stormy.Volatility = decimal.RequireFromString("0.05")
	dec = decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: stormy})
	assert.Equal(t, domain.ActionHold, dec.Action, "sits out a volatile market")
}

func TestPersonalityDecider_FrequencyGatesTrading(t *testing.T) {
	d := NewPersonalityDecider(1)
	agent := agentOf(domain.PersonalityAggressive)
	agent.TradeFrequency = 0 // never acts

	dec := decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: snapshotWithTrend("0.5")})
	assert.Equal(t, domain.ActionHold, dec.Action)
}

func TestPersonalityDecider_MessagesShiftSentiment(t *testing.T) {
	d := NewPersonalityDecider(1)
	agent := agentOf(domain.PersonalityModerate)

	flat := snapshotWithTrend("0")
	bearishCrowd := []domain.AgentMessage{
		{Sentiment: -1}, {Sentiment: -1}, {Sentiment: -0.5},
	}
	dec := decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: flat, Messages: bearishCrowd})
	assert.Equal(t, domain.ActionSell, dec.Action, "social signal alone moves a moderate")
}

func TestPersonalityDecider_SellAmountIsDenominatedInTokens(t *testing.T) {
	d := NewPersonalityDecider(1)
	agent := agentOf(domain.PersonalityAggressive)

	snap := snapshotWithTrend("-0.1")
	snap.Price = decimal.RequireFromString("0.001")
	dec := decide(t, d, Request{Agent: agent, Phase: domain.PhaseTrading, Snapshot: snap, Messages: []domain.AgentMessage{{Sentiment: -1}}})
	require.Equal(t, domain.ActionSell, dec.Action)

	// Max base exposure is MaxPositionSize, so token amount can be up to
	// MaxPositionSize / price and must exceed the base-unit bound.
	assert.True(t, dec.Amount.GreaterThan(decimal.NewFromInt(5)))
	assert.True(t, dec.Amount.LessThanOrEqual(decimal.NewFromInt(5000)))
}

func TestPersonalityDecider_DeterministicForSeed(t *testing.T) {
	req := Request{
		Agent:    agentOf(domain.PersonalityModerate),
		Phase:    domain.PhaseTrading,
		Snapshot: snapshotWithTrend("0.1"),
	}

	run := func() []*domain.Decision {
		d := NewPersonalityDecider(42)
		out := make([]*domain.Decision, 0, 10)
		for i := 0; i < 10; i++ {
			out = append(out, decide(t, d, req))
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		assert.Equal(t, a[i].Action, b[i].Action)
		assert.True(t, a[i].Amount.Equal(b[i].Amount))
	}
}

func TestPersonalityDecider_CancelledContext(t *testing.T) {
	d := NewPersonalityDecider(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Decide(ctx, Request{Agent: agentOf(domain.PersonalityModerate), Phase: domain.PhaseTrading})
	assert.ErrorIs(t, err, context.Canceled)
}
