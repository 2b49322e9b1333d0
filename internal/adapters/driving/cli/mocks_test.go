package cli

import (
	"context"
	"strings"
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

var _ driving.Scheduler = (*mockScheduler)(nil)

// mockMemoryService implements driving.MemoryService for testing.
type mockMemoryService struct {
	err error

	lastIngest  driving.IngestRequest
	lastQuery   driving.QueryRequest
	lastConfirm string
	lastClear   string
	confirmed   int
}

func (m *mockMemoryService) Ingest(_ context.Context, req driving.IngestRequest) (*driving.IngestResult, error) {
	m.lastIngest = req
	if m.err != nil {
		return nil, m.err
	}
	source := req.Source
	if source == "" {
		source = "inline"
	}
	return &driving.IngestResult{Source: source, Chunks: 2, Replaced: 1}, nil
}

func (m *mockMemoryService) Query(_ context.Context, req driving.QueryRequest) (*domain.SynthesisResult, error) {
	m.lastQuery = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.SynthesisResult{
		Query:        req.Query,
		Answer:       "Hold the reset button for ten seconds.",
		Confidence:   0.82,
		Completeness: domain.CompletenessComplete,
		Citations:    []domain.Citation{{Source: "guide.pdf", Snippet: "hold the reset button"}},
		ChunkCount:   3,
		Optimization: &domain.QueryOptimization{
			OptimizedQuery: "router reset procedure",
			Intent:         domain.IntentProcedure,
			Strategy:       domain.StrategyExpanded,
			Variants:       []string{"factory reset router"},
		},
	}, nil
}

func (m *mockMemoryService) Remember(_ context.Context, fact string) (*domain.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Chunk{Content: fact, Source: domain.ConversationSource, SourceType: domain.SourceTypeConversational}, nil
}

func (m *mockMemoryService) ForgetPreview(_ context.Context, description string) (*domain.ForgetPreview, error) {
	if m.err != nil {
		return nil, m.err
	}
	preview := &domain.ForgetPreview{
		Description:        description,
		ConfirmationPhrase: domain.ForgetConfirmationPhrase,
		ExpiresAt:          time.Now().Add(time.Minute),
	}
	if description != "nothing" {
		preview.Candidates = []domain.Chunk{{Content: "wifi is hunter2", Source: "conversation"}}
	}
	return preview, nil
}

func (m *mockMemoryService) ForgetConfirm(_ context.Context, _, confirmation string) (*domain.ForgetResult, error) {
	m.lastConfirm = confirmation
	m.confirmed++
	if !strings.Contains(strings.ToLower(confirmation), domain.ForgetConfirmationPhrase) {
		return &domain.ForgetResult{Warning: "Nothing was deleted."}, nil
	}
	return &domain.ForgetResult{Confirmed: true, Deleted: 1, Strategy: domain.DeleteDirect}, nil
}

func (m *mockMemoryService) ClearAll(_ context.Context, confirmation string) (*domain.ClearResult, error) {
	m.lastClear = confirmation
	if confirmation != domain.ClearConfirmationPhrase {
		return &domain.ClearResult{Warning: "Memory was not cleared."}, nil
	}
	return &domain.ClearResult{Cleared: true, Removed: 42}, nil
}

func (m *mockMemoryService) ErrorSummary(_ context.Context, _ int) domain.ErrorSummary {
	return domain.ErrorSummary{
		Total:       1,
		Recoverable: 1,
		ByKind:      map[domain.ErrorKind]int{domain.KindNetwork: 1},
		ByComponent: map[string]int{"synthesis": 1},
		Recent: []domain.ErrorRecord{{
			Kind:            domain.KindNetwork,
			Component:       "synthesis",
			Message:         "connection refused",
			Recoverable:     true,
			SuggestedAction: domain.KindNetwork.DefaultSuggestedAction(),
			Timestamp:       time.Now(),
		}},
	}
}

// mockBackupService implements driving.BackupService for testing.
type mockBackupService struct {
	err      error
	entries  []domain.BackupEntry
	lastOpts domain.BackupOptions
}

func (m *mockBackupService) CreateBackup(_ context.Context, opts domain.BackupOptions) (*domain.BackupManifest, error) {
	m.lastOpts = opts
	name := opts.Name
	if name == "" {
		name = "backup_20260101_000000"
	}
	status := domain.BackupStatusComplete
	components := map[domain.ComponentName]domain.ComponentResult{
		domain.ComponentVectorStore: {Status: domain.ComponentOK, SizeBytes: 2048},
	}
	if m.err != nil {
		status = domain.BackupStatusPartial
		components[domain.ComponentDocuments] = domain.ComponentResult{Status: domain.ComponentFailed, Error: "permission denied"}
	}
	return &domain.BackupManifest{Name: name, Status: status, Components: components}, m.err
}

func (m *mockBackupService) ListBackups(_ context.Context) ([]domain.BackupEntry, error) {
	return m.entries, nil
}

func (m *mockBackupService) RestoreBackup(_ context.Context, name string) (*domain.RestoreResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.RestoreResult{
		Name:     name,
		Restored: []domain.ComponentName{domain.ComponentVectorStore},
		Skipped:  []domain.ComponentName{domain.ComponentChatHistory},
	}, nil
}

// mockScheduler implements driving.Scheduler for testing.
type mockScheduler struct {
	started bool
	stopped bool
	status  *domain.ScheduleStatus
	err     error
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.started = true
	<-ctx.Done()
	return nil
}

func (m *mockScheduler) Stop() error {
	m.stopped = true
	return nil
}

func (m *mockScheduler) Status(_ context.Context, limit int) (*domain.ScheduleStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	status := *m.status
	if len(status.Recent) > limit {
		status.Recent = status.Recent[:limit]
	}
	return &status, nil
}

// setupTestServices injects mocks and returns a cleanup restoring the previous state.
func setupTestServices() (*mockMemoryService, *mockBackupService, func()) {
	memory := &mockMemoryService{}
	backups := &mockBackupService{}

	oldMemory, oldBackup, oldScheduler := memoryService, backupService, scheduler
	oldEnabled, oldDefaults, oldDocs := schedulerEnabled, backupDefaults, documentsDir

	SetServices(&Services{
		Memory:         memory,
		Backup:         backups,
		BackupDefaults: domain.BackupOptions{IncludeDocuments: true, IncludeChatHistory: true, Format: domain.ArchiveTarGz},
	})

	return memory, backups, func() {
		memoryService, backupService, scheduler = oldMemory, oldBackup, oldScheduler
		schedulerEnabled, backupDefaults, documentsDir = oldEnabled, oldDefaults, oldDocs
		metricsHandler, closeServices = nil, nil
	}
}
