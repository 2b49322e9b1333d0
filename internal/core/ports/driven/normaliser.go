package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// Normaliser extracts plain text from raw content of a given format.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise transforms raw content into a document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error)
}

// PostProcessor transforms a document into chunks or refines existing chunks.
type PostProcessor interface {
	// Name returns the processor name used in configuration.
	Name() string

	// Process receives the chunks produced so far (nil for the first processor).
	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline runs post-processors in order.
type PostProcessorPipeline interface {
	// Process runs the document through every processor.
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
