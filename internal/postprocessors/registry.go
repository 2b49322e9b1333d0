package postprocessors

import (
	"fmt"
	"maps"
	"slices"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/postprocessors/chunker"
)

// Builder makes a processor from its section of the chunking config.
type Builder func(cfg map[string]any) (driven.PostProcessor, error)

// builders holds the processors a pipeline can name.
var builders = map[string]Builder{
	"chunker": buildChunker,
}

// Available lists the processor names Build accepts, sorted.
func Available() []string {
	return slices.Sorted(maps.Keys(builders))
}

// Build assembles the named processors, in order, into a pipeline.
// cfgs is keyed by processor name; a missing entry means defaults.
func Build(names []string, cfgs map[string]map[string]any) (*Pipeline, error) {
	procs := make([]driven.PostProcessor, 0, len(names))
	for _, name := range names {
		build, ok := builders[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown processor %q", domain.ErrInvalidInput, name)
		}
		proc, err := build(cfgs[name])
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", name, err)
		}
		procs = append(procs, proc)
	}
	return NewPipeline(procs...), nil
}

// DefaultPipeline is the ingest pipeline: one chunker sized by settings.
func DefaultPipeline(settings domain.ChunkingSettings) (*Pipeline, error) {
	return Build([]string{"chunker"}, map[string]map[string]any{
		"chunker": {"chunk_size": settings.Size, "overlap": settings.Overlap},
	})
}

// buildChunker reads chunk_size and overlap, both in characters.
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option
	if size, ok := intFromConfig(cfg, "chunk_size"); ok {
		if size <= 0 {
			return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", domain.ErrInvalidInput, size)
		}
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := intFromConfig(cfg, "overlap"); ok {
		if overlap < 0 {
			return nil, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrInvalidInput, overlap)
		}
		opts = append(opts, chunker.WithOverlap(overlap))
	}
	return chunker.New(opts...), nil
}

// intFromConfig accepts the integer shapes TOML and JSON decoding produce.
func intFromConfig(cfg map[string]any, key string) (int, bool) {
	switch v := cfg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
