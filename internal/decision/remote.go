package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"token-arena/internal/domain"
)

// RemoteDecider calls an external decision service (typically an LLM-backed
// endpoint) over HTTP. Calls are rate-limited client-side because such
// services throttle aggressively, and bounded by the client timeout so a
// stuck upstream can never hold an agent dispatch open.
type RemoteDecider struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// RemoteOptions configures a RemoteDecider.
type RemoteOptions struct {
	Endpoint   string
	Timeout    time.Duration // per-call HTTP timeout, default 10s
	RatePerSec float64       // sustained request rate, default 5
	Burst      int           // rate burst, default 1
}

// NewRemoteDecider creates an HTTP-backed decider.
func NewRemoteDecider(opts RemoteOptions) (*RemoteDecider, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("remote decider requires an endpoint")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &RemoteDecider{
		endpoint:   opts.Endpoint,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
	}, nil
}

// Compile-time interface check.
var _ Decider = (*RemoteDecider)(nil)

// wire types for the decision service.
type remoteRequest struct {
	Agent    remoteAgent     `json:"agent"`
	Phase    string          `json:"phase"`
	Market   remoteMarket    `json:"market"`
	Messages []remoteMessage `json:"messages"`
}

type remoteAgent struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Personality     string  `json:"personality"`
	RiskTolerance   float64 `json:"risk_tolerance"`
	TradeFrequency  float64 `json:"trade_frequency"`
	MaxPositionSize float64 `json:"max_position_size"`
}

type remoteMarket struct {
	Price      string `json:"price"`
	Change24h  string `json:"change_24h"`
	Volume24h  string `json:"volume_24h"`
	High24h    string `json:"high_24h"`
	Low24h     string `json:"low_24h"`
	Volatility string `json:"volatility"`
	TradeCount int    `json:"trade_count"`
}

type remoteMessage struct {
	Agent     string  `json:"agent"`
	Content   string  `json:"content"`
	Sentiment float64 `json:"sentiment"`
}

type remoteResponse struct {
	Action  string `json:"action"`
	Amount  string `json:"amount,omitempty"`
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Decide posts the request and parses the chosen action.
func (d *RemoteDecider) Decide(ctx context.Context, req Request) (*domain.Decision, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("decision rate limit: %w", err)
	}

	body := remoteRequest{
		Agent: remoteAgent{
			ID:              req.Agent.ID,
			Name:            req.Agent.Name,
			Personality:     string(req.Agent.Personality),
			RiskTolerance:   req.Agent.RiskTolerance,
			TradeFrequency:  req.Agent.TradeFrequency,
			MaxPositionSize: req.Agent.MaxPositionSize,
		},
		Phase: string(req.Phase),
		Market: remoteMarket{
			Price:      req.Snapshot.Price.String(),
			Change24h:  req.Snapshot.Change24h.String(),
			Volume24h:  req.Snapshot.Volume24h.String(),
			High24h:    req.Snapshot.High24h.String(),
			Low24h:     req.Snapshot.Low24h.String(),
			Volatility: req.Snapshot.Volatility.String(),
			TradeCount: req.Snapshot.TradeCount,
		},
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, remoteMessage{
			Agent:     m.AgentName,
			Content:   m.Content,
			Sentiment: m.Sentiment,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal decision request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build decision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call decision service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("decision service returned %d: %s", resp.StatusCode, raw)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode decision response: %w", err)
	}

	decision := &domain.Decision{
		AgentID: req.Agent.ID,
		Action:  domain.Action(out.Action),
		Content: out.Content,
		Reason:  out.Reason,
	}
	switch decision.Action {
	case domain.ActionHold, domain.ActionBuy, domain.ActionSell, domain.ActionMessage:
	default:
		return nil, fmt.Errorf("decision service returned unknown action %q", out.Action)
	}
	if out.Amount != "" {
		amount, err := decimal.NewFromString(out.Amount)
		if err != nil {
			return nil, fmt.Errorf("parse decision amount %q: %w", out.Amount, err)
		}
		decision.Amount = amount
	}

	return decision, nil
}
