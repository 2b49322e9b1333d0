package driven

import (
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// MetricsRecorder receives operational measurements from core services.
// This is an optional service - when nil, nothing is recorded.
type MetricsRecorder interface {
	// ObserveQuery records a finished query.
	ObserveQuery(completeness domain.Completeness, confidence float64, duration time.Duration)

	// ObserveRetrieval records the shape of a retrieval run.
	ObserveRetrieval(iterations, chunks int)

	// IncSecurityFlag counts a chunk flagged by the content validator.
	IncSecurityFlag(reason string)

	// IncError counts a classified error.
	IncError(kind domain.ErrorKind, component string)

	// IncBackup counts a finished backup.
	IncBackup(status domain.BackupStatus)
}
