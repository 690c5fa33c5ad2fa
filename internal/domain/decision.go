package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is what an agent chose to do with its turn.
type Action string

const (
	ActionHold    Action = "HOLD"
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionMessage Action = "MESSAGE"
)

// Decision is the outcome of one agent decisioning call.
type Decision struct {
	AgentID string
	Action  Action
	Amount  decimal.Decimal // input amount for BUY (base) / SELL (token)
	Content string          // message body for MESSAGE
	Reason  string          // free-form rationale, logging only
}

// AgentMessage is a social message posted by one agent and visible to others
// in subsequent decisioning calls.
type AgentMessage struct {
	MessageID string
	AgentID   string
	AgentName string
	Content   string
	Sentiment float64 // -1 bearish .. +1 bullish
	PostedAt  time.Time
}

// MarketSnapshot is the read-only market view handed to the decision
// collaborator. It is derived from a consistent PoolState snapshot.
type MarketSnapshot struct {
	Price       decimal.Decimal `json:"price"`
	Change24h   decimal.Decimal `json:"change24h"` // fractional change vs the oldest in-window sample
	Volume24h   decimal.Decimal `json:"volume24h"`
	High24h     decimal.Decimal `json:"high24h"`
	Low24h      decimal.Decimal `json:"low24h"`
	Volatility  decimal.Decimal `json:"volatility"`
	TradeCount  int             `json:"tradeCount"` // trades in the 24h window
	BaseReserve decimal.Decimal `json:"baseReserve"`
	TakenAt     time.Time       `json:"takenAt"`
	Version     uint64          `json:"version"`
}
