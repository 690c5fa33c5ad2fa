// Package messaging is the social collaborator: a bounded in-memory board of
// recent agent messages fed back into subsequent decisioning calls.
package messaging

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"token-arena/internal/domain"
	"token-arena/internal/storage"
)

// Board retains at most maxMessages messages no older than maxAge.
type Board struct {
	maxMessages int
	maxAge      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	messages []domain.AgentMessage // oldest first

	store storage.MessageStore // optional write-through persistence
}

// Options configures a Board.
type Options struct {
	MaxMessages int           // default 100
	MaxAge      time.Duration // default 1h
	Store       storage.MessageStore
	Now         func() time.Time
}

// NewBoard creates a message board.
func NewBoard(opts Options) *Board {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 100
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Board{
		maxMessages: opts.MaxMessages,
		maxAge:      opts.MaxAge,
		now:         opts.Now,
		store:       opts.Store,
	}
}

// Post publishes a message from an agent. The sentiment score is derived
// from the content so deciders can weigh the crowd without parsing text.
func (b *Board) Post(ctx context.Context, agent domain.AgentRef, content string) (domain.AgentMessage, error) {
	msg := domain.AgentMessage{
		MessageID: uuid.NewString(),
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Content:   content,
		Sentiment: scoreSentiment(content),
		PostedAt:  b.now(),
	}

	b.mu.Lock()
	b.messages = append(b.messages, msg)
	b.pruneLocked()
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Insert(ctx, &msg); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// Recent returns up to limit messages, newest first.
func (b *Board) Recent(limit int) []domain.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()

	n := len(b.messages)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.AgentMessage, 0, n)
	for i := len(b.messages) - 1; i >= len(b.messages)-n; i-- {
		out = append(out, b.messages[i])
	}
	return out
}

func (b *Board) pruneLocked() {
	cutoff := b.now().Add(-b.maxAge)
	i := 0
	for i < len(b.messages) && b.messages[i].PostedAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.messages = append(b.messages[:0], b.messages[i:]...)
	}
	if over := len(b.messages) - b.maxMessages; over > 0 {
		b.messages = append(b.messages[:0], b.messages[over:]...)
	}
}

// scoreSentiment is a crude lexical score in [-1, 1].
func scoreSentiment(content string) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, w := range []string{"bullish", "buy", "up", "pump", "moon"} {
		if strings.Contains(lower, w) {
			score += 0.5
		}
	}
	for _, w := range []string{"bearish", "sell", "down", "dump", "crash"} {
		if strings.Contains(lower, w) {
			score -= 0.5
		}
	}
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}
