package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

func newTestServer(t *testing.T, memory *mockMemoryService, backup *mockBackupService) *Server {
	t.Helper()
	ports := &Ports{Memory: memory}
	if backup != nil {
		ports.Backup = backup
		ports.BackupDefaults = domain.BackupOptions{IncludeDocuments: true, Format: domain.ArchiveTarGz}
	}
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer with citations", func(t *testing.T) {
		memory := &mockMemoryService{
			result: &domain.SynthesisResult{
				Answer:       "Hold the reset button for ten seconds.",
				Confidence:   0.82,
				Completeness: domain.CompletenessComplete,
				Citations:    []domain.Citation{{Source: "guide.pdf", Snippet: "Hold the reset button"}},
				ChunkCount:   2,
			},
		}
		server := newTestServer(t, memory, nil)

		input := QueryInput{Query: "reset router", MaxResults: 5, Source: "guide.pdf", SourceType: "document"}
		_, output, err := server.handleQuery(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "Hold the reset button for ten seconds.", output.Answer)
		assert.Equal(t, 0.82, output.Confidence)
		assert.Equal(t, "complete", output.Completeness)
		require.Len(t, output.Citations, 1)
		assert.Equal(t, "guide.pdf", output.Citations[0].Source)
		assert.Equal(t, 2, output.ChunkCount)

		assert.Equal(t, driving.QueryRequest{
			Query:      "reset router",
			MaxResults: 5,
			Filter:     domain.ChunkFilter{Source: "guide.pdf", SourceType: domain.SourceTypeDocument},
		}, memory.lastQuery)
	})

	t.Run("empty result keeps citations non-nil", func(t *testing.T) {
		empty := domain.EmptySynthesis("anything")
		server := newTestServer(t, &mockMemoryService{result: &empty}, nil)

		_, output, err := server.handleQuery(ctx, nil, QueryInput{Query: "anything"})

		require.NoError(t, err)
		assert.Equal(t, "insufficient", output.Completeness)
		assert.NotNil(t, output.Citations)
		assert.Empty(t, output.Citations)
	})

	t.Run("returns error on failure", func(t *testing.T) {
		server := newTestServer(t, &mockMemoryService{err: domain.ErrInvalidInput}, nil)

		_, _, err := server.handleQuery(ctx, nil, QueryInput{})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestServer_handleRemember(t *testing.T) {
	chunk := &domain.Chunk{
		Content:       "The wifi password is on the fridge.",
		Source:        domain.ConversationSource,
		SourceType:    domain.SourceTypeConversational,
		SequenceIndex: 7,
	}
	server := newTestServer(t, &mockMemoryService{chunk: chunk}, nil)

	_, output, err := server.handleRemember(context.Background(), nil, RememberInput{Fact: chunk.Content})

	require.NoError(t, err)
	assert.Equal(t, chunk.ID(), output.ID)
	assert.Equal(t, "conversation", output.Source)
	assert.Equal(t, "conversational", output.SourceType)
	assert.Equal(t, 7, output.SequenceIndex)
}

func TestServer_handleForget(t *testing.T) {
	ctx := context.Background()
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	memory := &mockMemoryService{
		preview: &domain.ForgetPreview{
			Description:        "wifi password",
			Candidates:         []domain.Chunk{{Content: "wifi is hunter2", Source: "conversation"}},
			ConfirmationPhrase: domain.ForgetConfirmationPhrase,
			ExpiresAt:          expires,
		},
		forget: &domain.ForgetResult{Confirmed: true, Deleted: 1, Strategy: domain.DeleteDirect},
	}
	server := newTestServer(t, memory, nil)

	_, preview, err := server.handleForgetPreview(ctx, nil, ForgetPreviewInput{Description: "wifi password"})
	require.NoError(t, err)
	assert.Equal(t, 1, preview.Count)
	assert.Equal(t, "confirm delete", preview.ConfirmationPhrase)
	assert.Equal(t, "2026-03-01T12:00:00Z", preview.ExpiresAt)
	assert.Equal(t, "wifi is hunter2", preview.Candidates[0].Content)

	_, result, err := server.handleForgetConfirm(ctx, nil, ForgetConfirmInput{
		Description:  "wifi password",
		Confirmation: "yes, confirm delete",
	})
	require.NoError(t, err)
	assert.True(t, result.Confirmed)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, "direct", result.Strategy)
	assert.Equal(t, "yes, confirm delete", memory.lastConfirmation)
}

func TestServer_handleIngest(t *testing.T) {
	memory := &mockMemoryService{ingest: &driving.IngestResult{Source: "notes.md", Chunks: 3, Replaced: 2}}
	server := newTestServer(t, memory, nil)

	input := IngestInput{Path: "/tmp/notes.md", Replace: true, Metadata: map[string]string{"team": "ops"}}
	_, output, err := server.handleIngest(context.Background(), nil, input)

	require.NoError(t, err)
	assert.Equal(t, IngestOutput{Source: "notes.md", Chunks: 3, Replaced: 2}, output)
	assert.Equal(t, "/tmp/notes.md", memory.lastIngest.Path)
	assert.True(t, memory.lastIngest.Replace)
	assert.Equal(t, "ops", memory.lastIngest.Metadata["team"])
}

func TestServer_handleErrorSummary(t *testing.T) {
	memory := &mockMemoryService{
		summary: domain.ErrorSummary{
			Total:       1,
			Recoverable: 1,
			ByKind:      map[domain.ErrorKind]int{domain.KindNetwork: 1},
			ByComponent: map[string]int{"synthesis": 1},
			Recent: []domain.ErrorRecord{{
				Kind:        domain.KindNetwork,
				Component:   "synthesis",
				Message:     "timeout",
				Recoverable: true,
				Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			}},
		},
	}
	server := newTestServer(t, memory, nil)

	_, output, err := server.handleErrorSummary(context.Background(), nil, ErrorSummaryInput{})

	require.NoError(t, err)
	assert.Equal(t, defaultErrorLimit, memory.lastLimit)
	assert.Equal(t, 1, output.ByKind["NetworkError"])
	require.Len(t, output.Recent, 1)
	assert.Equal(t, "2026-01-02T03:04:05Z", output.Recent[0].Timestamp)
}

func TestServer_handleCreateBackup(t *testing.T) {
	ctx := context.Background()
	manifest := &domain.BackupManifest{
		Name:      "backup_20260102_030405",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:    domain.BackupStatusPartial,
		Components: map[domain.ComponentName]domain.ComponentResult{
			domain.ComponentVectorStore: {Status: domain.ComponentOK, SizeBytes: 100},
			domain.ComponentDocuments:   {Status: domain.ComponentFailed, Error: "permission denied"},
		},
	}

	t.Run("partial backup reported as output", func(t *testing.T) {
		backup := &mockBackupService{manifest: manifest, err: errors.New("documents: permission denied")}
		server := newTestServer(t, &mockMemoryService{}, backup)

		compress := true
		_, output, err := server.handleCreateBackup(ctx, nil, CreateBackupInput{Name: "nightly", Compress: &compress})

		require.NoError(t, err)
		assert.Equal(t, "partial", output.Status)
		assert.Equal(t, int64(100), output.SizeBytes)
		assert.Equal(t, "failed", output.Components["documents"].Status)
		assert.Contains(t, output.Problem, "permission denied")

		assert.Equal(t, "nightly", backup.lastOpts.Name)
		assert.True(t, backup.lastOpts.Compress)
		assert.True(t, backup.lastOpts.IncludeDocuments, "defaults carried through")
	})

	t.Run("no manifest is a tool error", func(t *testing.T) {
		backup := &mockBackupService{err: domain.ErrStoreBusy}
		server := newTestServer(t, &mockMemoryService{}, backup)

		_, _, err := server.handleCreateBackup(ctx, nil, CreateBackupInput{})

		assert.ErrorIs(t, err, domain.ErrStoreBusy)
	})
}

func TestServer_handleListAndRestore(t *testing.T) {
	ctx := context.Background()
	backup := &mockBackupService{
		entries: []domain.BackupEntry{
			{Name: "old", Problem: "manifest missing", ModTime: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
			{Name: "new", Archive: true, Manifest: &domain.BackupManifest{Name: "new", Status: domain.BackupStatusComplete}},
		},
		restore: &domain.RestoreResult{
			Name:     "new",
			Restored: []domain.ComponentName{domain.ComponentVectorStore},
			Skipped:  []domain.ComponentName{domain.ComponentChatHistory},
		},
	}
	server := newTestServer(t, &mockMemoryService{}, backup)

	_, list, err := server.handleListBackups(ctx, nil, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "manifest missing", list.Backups[0].Problem)
	assert.Equal(t, "2025-05-01T00:00:00Z", list.Backups[0].CreatedAt)
	assert.Equal(t, "complete", list.Backups[1].Status)
	assert.True(t, list.Backups[1].Archive)

	_, restored, err := server.handleRestoreBackup(ctx, nil, RestoreBackupInput{Name: "new"})
	require.NoError(t, err)
	assert.Equal(t, []string{"vector_store"}, restored.Restored)
	assert.Equal(t, []string{"chat_history"}, restored.Skipped)
}
