package decision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-arena/internal/domain"
)

func remoteTestRequest() Request {
	return Request{
		Agent: domain.AgentRef{
			ID:              "agent-1",
			Name:            "agent-001",
			Personality:     domain.PersonalityAggressive,
			RiskTolerance:   0.8,
			TradeFrequency:  0.9,
			MaxPositionSize: 5,
		},
		Phase: domain.PhaseTrading,
		Snapshot: domain.MarketSnapshot{
			Price:     decimal.RequireFromString("0.0011"),
			Change24h: decimal.RequireFromString("0.05"),
		},
		Messages: []domain.AgentMessage{
			{AgentName: "agent-002", Content: "bullish", Sentiment: 0.5},
		},
	}
}

func TestRemoteDecider_RequiresEndpoint(t *testing.T) {
	_, err := NewRemoteDecider(RemoteOptions{})
	assert.Error(t, err)
}

func TestRemoteDecider_RoundTrip(t *testing.T) {
	var got remoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(remoteResponse{
			Action: "BUY",
			Amount: "1.25",
			Reason: "momentum",
		})
	}))
	defer srv.Close()

	d, err := NewRemoteDecider(RemoteOptions{Endpoint: srv.URL, RatePerSec: 1000, Burst: 10})
	require.NoError(t, err)

	dec, err := d.Decide(context.Background(), remoteTestRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.ActionBuy, dec.Action)
	assert.True(t, dec.Amount.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, "momentum", dec.Reason)
	assert.Equal(t, "agent-1", dec.AgentID)

	assert.Equal(t, "agent-001", got.Agent.Name)
	assert.Equal(t, "AGGRESSIVE", got.Agent.Personality)
	assert.Equal(t, "TRADING", got.Phase)
	assert.Equal(t, "0.0011", got.Market.Price)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, 0.5, got.Messages[0].Sentiment)
}

func TestRemoteDecider_RejectsUnknownAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{Action: "YOLO"})
	}))
	defer srv.Close()

	d, err := NewRemoteDecider(RemoteOptions{Endpoint: srv.URL, RatePerSec: 1000})
	require.NoError(t, err)

	_, err = d.Decide(context.Background(), remoteTestRequest())
	assert.ErrorContains(t, err, "unknown action")
}

func TestRemoteDecider_RejectsBadAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{Action: "BUY", Amount: "lots"})
	}))
	defer srv.Close()

	d, err := NewRemoteDecider(RemoteOptions{Endpoint: srv.URL, RatePerSec: 1000})
	require.NoError(t, err)

	_, err = d.Decide(context.Background(), remoteTestRequest())
	assert.ErrorContains(t, err, "parse decision amount")
}

func TestRemoteDecider_SurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, err := NewRemoteDecider(RemoteOptions{Endpoint: srv.URL, RatePerSec: 1000})
	require.NoError(t, err)

	_, err = d.Decide(context.Background(), remoteTestRequest())
	assert.ErrorContains(t, err, "503")
}

func TestRemoteDecider_ContextCancelDuringRateWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{Action: "HOLD"})
	}))
	defer srv.Close()

	// Burst 1 at a very slow rate: the second call must wait and the
	// cancelled context aborts it.
	d, err := NewRemoteDecider(RemoteOptions{Endpoint: srv.URL, RatePerSec: 0.001, Burst: 1})
	require.NoError(t, err)

	_, err = d.Decide(context.Background(), remoteTestRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.Decide(ctx, remoteTestRequest())
	assert.Error(t, err)
}
