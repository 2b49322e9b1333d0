package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// ChatHistoryStore persists the conversation history.
// Its files live in a single directory so they can be backed up and restored.
type ChatHistoryStore interface {
	// Append stores a turn and returns it with ID, Seq and CreatedAt populated.
	Append(ctx context.Context, role domain.ChatRole, content string) (domain.ChatTurn, error)

	// Recent returns the last n turns, oldest first.
	Recent(ctx context.Context, n int) ([]domain.ChatTurn, error)

	// Count returns the number of stored turns.
	Count(ctx context.Context) (int, error)

	// Clear removes every turn.
	Clear(ctx context.Context) error

	// Path returns the directory holding the history files.
	Path() string

	// Flush checkpoints pending writes into the main database file.
	Flush(ctx context.Context) error

	// Reload reopens the store after its files were replaced.
	Reload(ctx context.Context) error

	// Close releases resources.
	Close() error
}
