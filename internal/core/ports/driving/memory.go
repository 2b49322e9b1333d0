package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// MemoryService is the upward interface of the memory subsystem.
type MemoryService interface {
	// Ingest chunks a file or text and stores it as document knowledge.
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)

	// Query answers a question from stored knowledge.
	// It always yields a result; only an empty query is rejected.
	Query(ctx context.Context, req QueryRequest) (*domain.SynthesisResult, error)

	// Remember stores a fact from the conversation.
	Remember(ctx context.Context, fact string) (*domain.Chunk, error)

	// ForgetPreview lists what a forget request would delete, without deleting.
	ForgetPreview(ctx context.Context, description string) (*domain.ForgetPreview, error)

	// ForgetConfirm deletes exactly the previewed chunks when the phrase confirms it.
	ForgetConfirm(ctx context.Context, description, confirmation string) (*domain.ForgetResult, error)

	// ClearAll wipes every chunk and the chat history when confirmation is exact.
	ClearAll(ctx context.Context, confirmation string) (*domain.ClearResult, error)

	// ErrorSummary reports recently recorded errors.
	ErrorSummary(ctx context.Context, limit int) domain.ErrorSummary
}

// IngestRequest describes content to ingest. Exactly one of Path or Text is set.
type IngestRequest struct {
	// Path is a file to ingest. It is copied into the documents corpus.
	Path string

	// Text is inline content to ingest.
	Text string

	// Source overrides the source label (defaults to the file name, or "inline").
	Source string

	// Metadata is attached to every chunk.
	Metadata map[string]string

	// Replace deletes existing chunks from the same source first.
	Replace bool
}

// IngestResult reports what an ingest stored.
type IngestResult struct {
	Source   string `json:"source"`
	Chunks   int    `json:"chunks"`
	Replaced int    `json:"replaced"`

	// StoredPath is the corpus copy of an ingested file.
	StoredPath string `json:"stored_path,omitempty"`
}

// QueryRequest describes a question.
type QueryRequest struct {
	Query string

	// MaxResults caps retrieved chunks (0 uses the configured default).
	MaxResults int

	// Filter restricts retrieval to matching chunks.
	Filter domain.ChunkFilter

	// NoCache bypasses the result cache.
	NoCache bool
}
