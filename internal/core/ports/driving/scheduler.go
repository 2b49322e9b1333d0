package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// Scheduler runs backups on the configured cron schedule.
type Scheduler interface {
	// Start runs due tasks until ctx is cancelled or Stop is called.
	// It fails when no schedule is configured.
	Start(ctx context.Context) error

	// Stop ends Start and waits for a running backup to finish.
	Stop() error

	// Status reports the schedule and up to limit recent runs.
	Status(ctx context.Context, limit int) (*domain.ScheduleStatus, error)
}
