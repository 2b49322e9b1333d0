package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Query      string `json:"query" jsonschema:"the question to answer from memory"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum chunks to retrieve (default from config)"`
	Source     string `json:"source,omitempty" jsonschema:"only use chunks from this source"`
	SourceType string `json:"source_type,omitempty" jsonschema:"only use document or conversational chunks"`
	NoCache    bool   `json:"no_cache,omitempty" jsonschema:"bypass the result cache"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer       string           `json:"answer"`
	Confidence   float64          `json:"confidence"`
	Completeness string           `json:"completeness"`
	Citations    []CitationOutput `json:"citations"`
	Warnings     []string         `json:"warnings,omitempty"`
	ChunkCount   int              `json:"chunk_count"`
}

// CitationOutput points an answer back to a source.
type CitationOutput struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet,omitempty"`
}

// RememberInput is the input schema for the remember tool.
type RememberInput struct {
	Fact string `json:"fact" jsonschema:"the fact to store"`
}

// ChunkOutput is a stored chunk.
type ChunkOutput struct {
	ID            string `json:"id"`
	Source        string `json:"source"`
	SourceType    string `json:"source_type"`
	SequenceIndex int    `json:"sequence_index"`
	Content       string `json:"content"`
}

// ForgetPreviewInput is the input schema for the forget_preview tool.
type ForgetPreviewInput struct {
	Description string `json:"description" jsonschema:"what to forget"`
}

// ForgetPreviewOutput lists what forget_confirm would delete.
type ForgetPreviewOutput struct {
	Description        string        `json:"description"`
	Count              int           `json:"count"`
	Candidates         []ChunkOutput `json:"candidates"`
	ConfirmationPhrase string        `json:"confirmation_phrase"`
	ExpiresAt          string        `json:"expires_at"`
}

// ForgetConfirmInput is the input schema for the forget_confirm tool.
type ForgetConfirmInput struct {
	Description  string `json:"description" jsonschema:"the description passed to forget_preview"`
	Confirmation string `json:"confirmation" jsonschema:"must contain the confirmation phrase"`
}

// ForgetConfirmOutput reports a confirmed or refused forget.
type ForgetConfirmOutput struct {
	Confirmed bool   `json:"confirmed"`
	Deleted   int    `json:"deleted"`
	Strategy  string `json:"strategy,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	Path     string            `json:"path,omitempty" jsonschema:"file to ingest"`
	Text     string            `json:"text,omitempty" jsonschema:"inline text to ingest"`
	Source   string            `json:"source,omitempty" jsonschema:"source label (defaults to the file name or inline)"`
	Replace  bool              `json:"replace,omitempty" jsonschema:"delete existing chunks of the same source first"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"attributes attached to every chunk"`
}

// IngestOutput reports what an ingest stored.
type IngestOutput struct {
	Source     string `json:"source"`
	Chunks     int    `json:"chunks"`
	Replaced   int    `json:"replaced"`
	StoredPath string `json:"stored_path,omitempty"`
}

// CreateBackupInput is the input schema for the create_backup tool.
type CreateBackupInput struct {
	Name     string `json:"name,omitempty" jsonschema:"backup name (generated when empty)"`
	Compress *bool  `json:"compress,omitempty" jsonschema:"pack the backup into one archive (default from config)"`
}

// BackupOutput summarises a backup manifest.
type BackupOutput struct {
	Name       string                     `json:"name"`
	CreatedAt  string                     `json:"created_at,omitempty"`
	Status     string                     `json:"status,omitempty"`
	Components map[string]ComponentOutput `json:"components,omitempty"`
	SizeBytes  int64                      `json:"size_bytes"`
	Archive    bool                       `json:"archive"`
	Problem    string                     `json:"problem,omitempty"`
}

// ComponentOutput is the outcome for one backup component.
type ComponentOutput struct {
	Status    string `json:"status"`
	SizeBytes int64  `json:"size_bytes"`
	Error     string `json:"error,omitempty"`
}

// ListBackupsOutput is the output schema for the list_backups tool.
type ListBackupsOutput struct {
	Backups []BackupOutput `json:"backups"`
	Count   int            `json:"count"`
}

// RestoreBackupInput is the input schema for the restore_backup tool.
type RestoreBackupInput struct {
	Name string `json:"name" jsonschema:"backup name or unique prefix"`
}

// RestoreBackupOutput reports what a restore replaced.
type RestoreBackupOutput struct {
	Name     string   `json:"name"`
	Restored []string `json:"restored"`
	Skipped  []string `json:"skipped,omitempty"`
}

// ErrorSummaryInput is the input schema for the error_summary tool.
type ErrorSummaryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum recent errors to return (default 10)"`
}

// ErrorSummaryOutput aggregates recent errors.
type ErrorSummaryOutput struct {
	Total       int                 `json:"total"`
	Recoverable int                 `json:"recoverable"`
	ByKind      map[string]int      `json:"by_kind"`
	ByComponent map[string]int      `json:"by_component"`
	Recent      []ErrorRecordOutput `json:"recent"`
}

// ErrorRecordOutput is one recorded error.
type ErrorRecordOutput struct {
	Kind            string `json:"kind"`
	Component       string `json:"component"`
	Message         string `json:"message"`
	Recoverable     bool   `json:"recoverable"`
	SuggestedAction string `json:"suggested_action,omitempty"`
	Timestamp       string `json:"timestamp"`
}

const defaultErrorLimit = 10

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question from memory, with citations and a confidence score",
	}, s.handleQuery)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a fact from the conversation",
	}, s.handleRemember)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "forget_preview",
		Description: "List the stored chunks a forget request would delete, without deleting them",
	}, s.handleForgetPreview)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "forget_confirm",
		Description: "Delete exactly the chunks listed by the last forget_preview for the same description",
	}, s.handleForgetConfirm)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest",
		Description: "Chunk a file or text and store it as document knowledge",
	}, s.handleIngest)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "error_summary",
		Description: "Report recently recorded errors",
	}, s.handleErrorSummary)

	if s.ports.Backup == nil {
		return
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_backup",
		Description: "Snapshot the memory store",
	}, s.handleCreateBackup)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_backups",
		Description: "List backups, oldest first",
	}, s.handleListBackups)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "restore_backup",
		Description: "Replace the memory store with a backup",
	}, s.handleRestoreBackup)
}

// handleQuery handles the query tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	result, err := s.ports.Memory.Query(ctx, driving.QueryRequest{
		Query:      input.Query,
		MaxResults: input.MaxResults,
		Filter: domain.ChunkFilter{
			Source:     input.Source,
			SourceType: domain.SourceType(input.SourceType),
		},
		NoCache: input.NoCache,
	})
	if err != nil {
		return nil, QueryOutput{}, err
	}

	output := QueryOutput{
		Answer:       result.Answer,
		Confidence:   result.Confidence,
		Completeness: string(result.Completeness),
		Citations:    make([]CitationOutput, len(result.Citations)),
		Warnings:     result.Warnings,
		ChunkCount:   result.ChunkCount,
	}
	for i, c := range result.Citations {
		output.Citations[i] = CitationOutput{Source: c.Source, Snippet: c.Snippet}
	}
	return nil, output, nil
}

// handleRemember handles the remember tool invocation.
func (s *Server) handleRemember(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RememberInput,
) (*mcp.CallToolResult, ChunkOutput, error) {
	chunk, err := s.ports.Memory.Remember(ctx, input.Fact)
	if err != nil {
		return nil, ChunkOutput{}, err
	}
	return nil, toChunkOutput(*chunk), nil
}

// handleForgetPreview handles the forget_preview tool invocation.
func (s *Server) handleForgetPreview(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ForgetPreviewInput,
) (*mcp.CallToolResult, ForgetPreviewOutput, error) {
	preview, err := s.ports.Memory.ForgetPreview(ctx, input.Description)
	if err != nil {
		return nil, ForgetPreviewOutput{}, err
	}

	output := ForgetPreviewOutput{
		Description:        preview.Description,
		Count:              len(preview.Candidates),
		Candidates:         make([]ChunkOutput, len(preview.Candidates)),
		ConfirmationPhrase: preview.ConfirmationPhrase,
		ExpiresAt:          preview.ExpiresAt.UTC().Format(time.RFC3339),
	}
	for i := range preview.Candidates {
		output.Candidates[i] = toChunkOutput(preview.Candidates[i])
	}
	return nil, output, nil
}

// handleForgetConfirm handles the forget_confirm tool invocation.
func (s *Server) handleForgetConfirm(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ForgetConfirmInput,
) (*mcp.CallToolResult, ForgetConfirmOutput, error) {
	result, err := s.ports.Memory.ForgetConfirm(ctx, input.Description, input.Confirmation)
	if err != nil {
		return nil, ForgetConfirmOutput{}, err
	}
	return nil, ForgetConfirmOutput{
		Confirmed: result.Confirmed,
		Deleted:   result.Deleted,
		Strategy:  string(result.Strategy),
		Warning:   result.Warning,
	}, nil
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	result, err := s.ports.Memory.Ingest(ctx, driving.IngestRequest{
		Path:     input.Path,
		Text:     input.Text,
		Source:   input.Source,
		Metadata: input.Metadata,
		Replace:  input.Replace,
	})
	if err != nil {
		return nil, IngestOutput{}, err
	}
	return nil, IngestOutput{
		Source:     result.Source,
		Chunks:     result.Chunks,
		Replaced:   result.Replaced,
		StoredPath: result.StoredPath,
	}, nil
}

// handleErrorSummary handles the error_summary tool invocation.
func (s *Server) handleErrorSummary(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ErrorSummaryInput,
) (*mcp.CallToolResult, ErrorSummaryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultErrorLimit
	}
	return nil, toErrorSummaryOutput(s.ports.Memory.ErrorSummary(ctx, limit)), nil
}

// handleCreateBackup handles the create_backup tool invocation.
// A partial backup is reported in the output rather than as a tool error.
func (s *Server) handleCreateBackup(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CreateBackupInput,
) (*mcp.CallToolResult, BackupOutput, error) {
	opts := s.ports.BackupDefaults
	opts.Name = input.Name
	if input.Compress != nil {
		opts.Compress = *input.Compress
	}

	manifest, err := s.ports.Backup.CreateBackup(ctx, opts)
	if manifest == nil {
		return nil, BackupOutput{}, err
	}

	output := toBackupOutput(domain.BackupEntry{Name: manifest.Name, Archive: manifest.Compressed, Manifest: manifest})
	if err != nil {
		output.Problem = err.Error()
	}
	return nil, output, nil
}

// handleListBackups handles the list_backups tool invocation.
func (s *Server) handleListBackups(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, ListBackupsOutput, error) {
	entries, err := s.ports.Backup.ListBackups(ctx)
	if err != nil {
		return nil, ListBackupsOutput{}, err
	}

	output := ListBackupsOutput{
		Backups: make([]BackupOutput, len(entries)),
		Count:   len(entries),
	}
	for i := range entries {
		output.Backups[i] = toBackupOutput(entries[i])
	}
	return nil, output, nil
}

// handleRestoreBackup handles the restore_backup tool invocation.
func (s *Server) handleRestoreBackup(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RestoreBackupInput,
) (*mcp.CallToolResult, RestoreBackupOutput, error) {
	result, err := s.ports.Backup.RestoreBackup(ctx, input.Name)
	if err != nil {
		return nil, RestoreBackupOutput{}, err
	}
	return nil, RestoreBackupOutput{
		Name:     result.Name,
		Restored: componentNames(result.Restored),
		Skipped:  componentNames(result.Skipped),
	}, nil
}

func toChunkOutput(c domain.Chunk) ChunkOutput {
	return ChunkOutput{
		ID:            c.ID(),
		Source:        c.Source,
		SourceType:    string(c.SourceType),
		SequenceIndex: c.SequenceIndex,
		Content:       c.Content,
	}
}

func toBackupOutput(e domain.BackupEntry) BackupOutput {
	out := BackupOutput{
		Name:    e.Name,
		Archive: e.Archive,
		Problem: e.Problem,
	}
	if created := e.CreatedAt(); !created.IsZero() {
		out.CreatedAt = created.UTC().Format(time.RFC3339)
	}
	if e.Manifest == nil {
		return out
	}

	out.Status = string(e.Manifest.Status)
	out.SizeBytes = e.Manifest.TotalSize()
	out.Components = make(map[string]ComponentOutput, len(e.Manifest.Components))
	for name, c := range e.Manifest.Components {
		out.Components[string(name)] = ComponentOutput{
			Status:    string(c.Status),
			SizeBytes: c.SizeBytes,
			Error:     c.Error,
		}
	}
	return out
}

func toErrorSummaryOutput(summary domain.ErrorSummary) ErrorSummaryOutput {
	out := ErrorSummaryOutput{
		Total:       summary.Total,
		Recoverable: summary.Recoverable,
		ByKind:      make(map[string]int, len(summary.ByKind)),
		ByComponent: summary.ByComponent,
		Recent:      make([]ErrorRecordOutput, len(summary.Recent)),
	}
	if out.ByComponent == nil {
		out.ByComponent = map[string]int{}
	}
	for kind, n := range summary.ByKind {
		out.ByKind[string(kind)] = n
	}
	for i, r := range summary.Recent {
		out.Recent[i] = ErrorRecordOutput{
			Kind:            string(r.Kind),
			Component:       r.Component,
			Message:         r.Message,
			Recoverable:     r.Recoverable,
			SuggestedAction: r.SuggestedAction,
			Timestamp:       r.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return out
}

func componentNames(names []domain.ComponentName) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
