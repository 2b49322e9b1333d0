// Package chunker provides a fixed-size text chunking processor.
package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor splits document content into fixed-size chunks measured in runes.
// A chunk ends at the last whitespace in its final fifth when there is one,
// so words are not cut in half.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Size returns the configured chunk size.
func (p *Processor) Size() int { return p.chunkSize }

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int { return p.overlap }

// Process splits the document content into document chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	text := []rune(doc.Content)
	var chunks []domain.Chunk

	for start := 0; start < len(text); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+p.chunkSize, len(text))
		if end < len(text) {
			end = p.softEnd(text, start, end)
		}

		if content := strings.TrimSpace(string(text[start:end])); content != "" {
			chunks = append(chunks, domain.Chunk{
				Content:       content,
				Source:        doc.Source,
				SourceType:    domain.SourceTypeDocument,
				SequenceIndex: len(chunks),
				Metadata:      chunkMetadata(doc),
			})
		}

		if end == len(text) {
			break
		}
		start = max(end-p.overlap, start+1)
	}

	return chunks, nil
}

// softEnd moves end back to just after the last whitespace in the final
// fifth of the window, or returns end unchanged.
func (p *Processor) softEnd(text []rune, start, end int) int {
	floor := end - p.chunkSize/5
	if floor <= start+p.overlap {
		floor = start + p.overlap + 1
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(text[i]) {
			return i + 1
		}
	}
	return end
}

func chunkMetadata(doc *domain.Document) map[string]string {
	meta := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	if doc.Title != "" {
		meta["title"] = doc.Title
	}
	return meta
}
