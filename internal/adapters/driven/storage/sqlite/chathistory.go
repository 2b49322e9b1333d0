package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// chatHistoryStore implements driven.ChatHistoryStore.
type chatHistoryStore struct {
	store *Store
	now   func() time.Time
}

var _ driven.ChatHistoryStore = (*chatHistoryStore)(nil)

func newChatHistoryStore(s *Store) *chatHistoryStore {
	return &chatHistoryStore{store: s, now: time.Now}
}

// Append stores a turn. Seq is assigned by the database and increases monotonically.
func (c *chatHistoryStore) Append(ctx context.Context, role domain.ChatRole, content string) (domain.ChatTurn, error) {
	switch role {
	case domain.ChatRoleUser, domain.ChatRoleAssistant, domain.ChatRoleMemory:
	default:
		return domain.ChatTurn{}, domain.ValidationErrorf("history", "unknown chat role %q", role)
	}

	turn := domain.ChatTurn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: c.now().UTC(),
	}

	row := c.store.conn().QueryRowContext(ctx, `
		INSERT INTO chat_turns (id, role, content, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING seq
	`, turn.ID, string(turn.Role), turn.Content, formatTime(turn.CreatedAt))
	if err := row.Scan(&turn.Seq); err != nil {
		return domain.ChatTurn{}, fmt.Errorf("appending chat turn: %w", err)
	}
	return turn, nil
}

// Recent returns the last n turns, oldest first.
func (c *chatHistoryStore) Recent(ctx context.Context, n int) ([]domain.ChatTurn, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := c.store.conn().QueryContext(ctx, `
		SELECT seq, id, role, content, created_at FROM (
			SELECT seq, id, role, content, created_at
			FROM chat_turns
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, n)
	if err != nil {
		return nil, fmt.Errorf("querying chat history: %w", err)
	}
	return collect(rows, "chat history", scanChatTurn)
}

func scanChatTurn(row scanner) (*domain.ChatTurn, error) {
	var turn domain.ChatTurn
	var role, created string
	if err := row.Scan(&turn.Seq, &turn.ID, &role, &turn.Content, &created); err != nil {
		return nil, fmt.Errorf("scanning chat turn: %w", err)
	}
	turn.Role = domain.ChatRole(role)
	turn.CreatedAt = parseTime(created)
	return &turn, nil
}

// Count returns the number of stored turns.
func (c *chatHistoryStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.store.conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_turns").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chat turns: %w", err)
	}
	return n, nil
}

// Clear removes every turn. Sequence numbers keep increasing afterwards.
func (c *chatHistoryStore) Clear(ctx context.Context) error {
	if _, err := c.store.conn().ExecContext(ctx, "DELETE FROM chat_turns"); err != nil {
		return fmt.Errorf("clearing chat history: %w", err)
	}
	return nil
}

func (c *chatHistoryStore) Path() string                     { return c.store.Path() }
func (c *chatHistoryStore) Flush(ctx context.Context) error  { return c.store.Flush(ctx) }
func (c *chatHistoryStore) Reload(ctx context.Context) error { return c.store.Reload(ctx) }
func (c *chatHistoryStore) Close() error                     { return c.store.Close() }
