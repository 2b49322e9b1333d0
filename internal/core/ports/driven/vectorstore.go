package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// VectorStore stores chunks and returns the most relevant ones for a text query.
// The store owns embedding of queries and chunks, so callers only deal in text.
//
// Implementations:
//   - chromem: embedded vector database persisted to a directory (direct delete)
//   - bleve: lexical index persisted to a directory (direct delete and listing)
//   - memory: append-only JSON snapshot (listing only)
type VectorStore interface {
	// Search returns up to k chunks ranked by relevance to query, with
	// Chunk.Score set. Chunks not matching filter must not be returned.
	Search(ctx context.Context, query string, k int, filter domain.ChunkFilter) ([]domain.Chunk, error)

	// Add stores chunks. Adding a chunk whose identity already exists is a no-op.
	Add(ctx context.Context, chunks []domain.Chunk) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// DeleteCollection removes every chunk.
	DeleteCollection(ctx context.Context) error

	// Capabilities reports which optional operations the store supports.
	Capabilities() Capabilities

	// Path returns the directory holding the store's files.
	Path() string

	// Flush persists any buffered writes so the directory can be copied.
	Flush(ctx context.Context) error

	// Reload reopens the store from its directory after the files were replaced.
	Reload(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Capabilities describes the optional operations a VectorStore supports.
type Capabilities struct {
	// DirectDelete is true when the store implements ChunkDeleter.
	DirectDelete bool

	// Listing is true when the store implements ChunkLister.
	Listing bool

	// Similarity is true when Search scores are cosine similarities, so a
	// fixed cut-off separates related from unrelated chunks. Lexical stores
	// only return chunks sharing a term and leave it false.
	Similarity bool
}

// ChunkDeleter is implemented by stores that can delete individual chunks.
type ChunkDeleter interface {
	// Delete removes the chunks with the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys []domain.ChunkKey) (int, error)

	// DeleteMatching removes every chunk matching filter.
	DeleteMatching(ctx context.Context, filter domain.ChunkFilter) (int, error)
}

// ChunkLister is implemented by stores that can enumerate their contents.
type ChunkLister interface {
	// List returns every chunk matching filter.
	List(ctx context.Context, filter domain.ChunkFilter) ([]domain.Chunk, error)
}
