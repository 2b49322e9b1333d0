// Package postprocessors turns normalised documents into storable chunks.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs processors in order, each receiving the previous one's chunks.
// The first processor is handed nil and creates the chunks.
type Pipeline struct {
	processors []driven.PostProcessor
}

func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Process chunks doc. Sequence indexes are renumbered from zero afterwards,
// so they stay contiguous when a processor drops chunks.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, proc := range p.processors {
		out, err := proc.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", proc.Name(), err)
		}
		chunks = out
	}
	for i := range chunks {
		chunks[i].SequenceIndex = i
	}
	return chunks, nil
}

// Names lists the processors in run order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.processors))
	for _, proc := range p.processors {
		names = append(names, proc.Name())
	}
	return names
}
