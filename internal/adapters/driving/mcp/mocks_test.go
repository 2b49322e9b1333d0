package mcp

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// mockMemoryService is a mock implementation of driving.MemoryService.
type mockMemoryService struct {
	result  *domain.SynthesisResult
	chunk   *domain.Chunk
	preview *domain.ForgetPreview
	forget  *domain.ForgetResult
	ingest  *driving.IngestResult
	summary domain.ErrorSummary
	err     error

	lastQuery        driving.QueryRequest
	lastIngest       driving.IngestRequest
	lastConfirmation string
	lastLimit        int
}

func (m *mockMemoryService) Ingest(_ context.Context, req driving.IngestRequest) (*driving.IngestResult, error) {
	m.lastIngest = req
	return m.ingest, m.err
}

func (m *mockMemoryService) Query(_ context.Context, req driving.QueryRequest) (*domain.SynthesisResult, error) {
	m.lastQuery = req
	return m.result, m.err
}

func (m *mockMemoryService) Remember(_ context.Context, _ string) (*domain.Chunk, error) {
	return m.chunk, m.err
}

func (m *mockMemoryService) ForgetPreview(_ context.Context, _ string) (*domain.ForgetPreview, error) {
	return m.preview, m.err
}

func (m *mockMemoryService) ForgetConfirm(_ context.Context, _, confirmation string) (*domain.ForgetResult, error) {
	m.lastConfirmation = confirmation
	return m.forget, m.err
}

func (m *mockMemoryService) ClearAll(_ context.Context, _ string) (*domain.ClearResult, error) {
	return &domain.ClearResult{}, m.err
}

func (m *mockMemoryService) ErrorSummary(_ context.Context, limit int) domain.ErrorSummary {
	m.lastLimit = limit
	return m.summary
}

// mockBackupService is a mock implementation of driving.BackupService.
type mockBackupService struct {
	manifest *domain.BackupManifest
	entries  []domain.BackupEntry
	restore  *domain.RestoreResult
	err      error

	lastOpts domain.BackupOptions
}

func (m *mockBackupService) CreateBackup(_ context.Context, opts domain.BackupOptions) (*domain.BackupManifest, error) {
	m.lastOpts = opts
	return m.manifest, m.err
}

func (m *mockBackupService) ListBackups(_ context.Context) ([]domain.BackupEntry, error) {
	return m.entries, m.err
}

func (m *mockBackupService) RestoreBackup(_ context.Context, _ string) (*domain.RestoreResult, error) {
	return m.restore, m.err
}
