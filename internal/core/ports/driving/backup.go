package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// BackupService snapshots and restores the knowledge store.
type BackupService interface {
	// CreateBackup captures the store. A partial or failed manifest is returned
	// together with an error describing the failed components.
	CreateBackup(ctx context.Context, opts domain.BackupOptions) (*domain.BackupManifest, error)

	// ListBackups returns all backups, oldest first, including unreadable ones.
	ListBackups(ctx context.Context) ([]domain.BackupEntry, error)

	// RestoreBackup replaces the live store with a backup chosen by exact name
	// or unique prefix.
	RestoreBackup(ctx context.Context, name string) (*domain.RestoreResult, error)
}
