// Package decision defines the external decision-making collaborator: given
// an agent, a market snapshot, and recent messages, produce that agent's next
// action. The collaborator may be slow, unreliable, or rate-limited; callers
// are expected to apply per-call timeouts and treat failures as "skip this
// agent this phase".
package decision

import (
	"context"

	"token-arena/internal/domain"
)

// Request carries everything a decider may consider for one agent turn.
type Request struct {
	Agent    domain.AgentRef
	Phase    domain.Phase
	Snapshot domain.MarketSnapshot
	Messages []domain.AgentMessage
}

// Decider produces one agent decision per call.
type Decider interface {
	Decide(ctx context.Context, req Request) (*domain.Decision, error)
}
