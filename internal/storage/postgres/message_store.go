package postgres

import (
	"context"
	"fmt"

	"token-arena/internal/domain"
	"token-arena/internal/storage"
)

// MessageStore implements storage.MessageStore using PostgreSQL.
type MessageStore struct {
	pool *Pool
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(pool *Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MessageStore = (*MessageStore)(nil)

const insertMessageQuery = `
	INSERT INTO agent_messages (
		message_id, agent_id, agent_name, content, sentiment, posted_at
	) VALUES ($1, $2, $3, $4, $5, $6)
`

// Insert adds a message. Returns ErrDuplicateKey if message_id exists.
func (s *MessageStore) Insert(ctx context.Context, m *domain.AgentMessage) error {
	if m == nil || m.MessageID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertMessageQuery,
		m.MessageID, m.AgentID, m.AgentName, m.Content, m.Sentiment, m.PostedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetRecent retrieves the most recent messages, newest first, up to limit.
func (s *MessageStore) GetRecent(ctx context.Context, limit int) ([]*domain.AgentMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT message_id, agent_id, agent_name, content, sentiment, posted_at
		FROM agent_messages
		ORDER BY posted_at DESC, message_id DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.AgentMessage
	for rows.Next() {
		var m domain.AgentMessage
		if err := rows.Scan(
			&m.MessageID, &m.AgentID, &m.AgentName, &m.Content, &m.Sentiment, &m.PostedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
