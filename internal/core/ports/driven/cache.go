package driven

import "github.com/custodia-labs/recall/internal/core/domain"

// ResultCache caches synthesis results by query key.
// Any mutation of the knowledge store must Clear it.
type ResultCache interface {
	// Get returns a cached result.
	Get(key string) (domain.SynthesisResult, bool)

	// Set stores a result.
	Set(key string, result domain.SynthesisResult)

	// Clear drops every cached result.
	Clear()

	// Close releases resources.
	Close()
}
