// Package memory provides an in-memory VectorStore persisted as a JSON snapshot.
//
// The store is append-only: it can list its contents but cannot delete single
// chunks, so forget and replace fall back to rebuilding the collection.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure VectorStore implements the interfaces.
var (
	_ driven.VectorStore = (*VectorStore)(nil)
	_ driven.ChunkLister = (*VectorStore)(nil)
)

// SnapshotFile is the file holding the collection inside the store directory.
const SnapshotFile = "chunks.json"

type entry struct {
	Chunk     domain.Chunk `json:"chunk"`
	Embedding []float32    `json:"embedding"`
}

type snapshot struct {
	Model   string  `json:"model"`
	Entries []entry `json:"entries"`
}

// VectorStore keeps every chunk in memory and rewrites the snapshot on each change.
type VectorStore struct {
	dir      string
	embedder driven.EmbeddingService

	mu      sync.RWMutex
	entries []entry
	ids     map[string]struct{}
}

// NewVectorStore loads the snapshot under dir, creating the directory if needed.
func NewVectorStore(dir string, embedder driven.EmbeddingService) (*VectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("memory: %w", domain.ErrEmbeddingUnavailable)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("memory: %w: %w", domain.ErrVectorStoreUnavailable, err)
	}
	s := &VectorStore{dir: dir, embedder: embedder}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VectorStore) path() string {
	return filepath.Join(s.dir, SnapshotFile)
}

// load replaces the in-memory state with the snapshot. Callers hold mu or own s exclusively.
func (s *VectorStore) load() error {
	s.entries = nil
	s.ids = make(map[string]struct{})

	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memory: %w: %w", domain.ErrVectorStoreUnavailable, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("memory: %w: corrupt snapshot: %w", domain.ErrVectorStoreUnavailable, err)
	}
	if snap.Model != "" && snap.Model != s.embedder.ModelName() {
		return fmt.Errorf("memory: %w: snapshot was embedded with %s, not %s",
			domain.ErrVectorStoreUnavailable, snap.Model, s.embedder.ModelName())
	}
	for _, e := range snap.Entries {
		s.ids[e.Chunk.ID()] = struct{}{}
	}
	s.entries = snap.Entries
	return nil
}

// save writes the snapshot atomically. Callers hold mu.
func (s *VectorStore) save() error {
	data, err := json.Marshal(snapshot{Model: s.embedder.ModelName(), Entries: s.entries})
	if err != nil {
		return fmt.Errorf("memory: encode snapshot: %w", err)
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("memory: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("memory: replace snapshot: %w", err)
	}
	return nil
}

// Search returns up to k chunks ranked by cosine similarity to query.
func (s *VectorStore) Search(ctx context.Context, query string, k int, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	type scored struct {
		chunk domain.Chunk
		score float64
	}

	s.mu.RLock()
	hits := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.Matches(e.Chunk) {
			hits = append(hits, scored{chunk: e.Chunk, score: cosine(q, e.Embedding)})
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(hits, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	out := make([]domain.Chunk, 0, min(k, len(hits)))
	for _, h := range hits[:min(k, len(hits))] {
		c := h.chunk
		c.Score = h.score
		out = append(out, c)
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(-1)
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Add embeds and stores chunks whose identity is not already present.
func (s *VectorStore) Add(ctx context.Context, chunks []domain.Chunk) error {
	s.mu.RLock()
	fresh := make([]domain.Chunk, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		id := c.ID()
		_, stored := s.ids[id]
		_, dup := seen[id]
		if stored || dup {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, c)
	}
	s.mu.RUnlock()

	if len(fresh) == 0 {
		return nil
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("memory: embed chunks: %w", err)
	}
	if len(vectors) != len(fresh) {
		return fmt.Errorf("memory: embedder returned %d vectors for %d chunks", len(vectors), len(fresh))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range fresh {
		id := c.ID()
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.ids[id] = struct{}{}
		s.entries = append(s.entries, entry{Chunk: c, Embedding: vectors[i]})
	}
	return s.save()
}

// List returns every chunk matching filter in insertion order.
func (s *VectorStore) List(_ context.Context, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Chunk
	for _, e := range s.entries {
		if filter.Matches(e.Chunk) {
			out = append(out, e.Chunk)
		}
	}
	return out, nil
}

// Count returns the number of stored chunks.
func (s *VectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// DeleteCollection removes every chunk.
func (s *VectorStore) DeleteCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.ids = make(map[string]struct{})
	return s.save()
}

// Capabilities reports listing support only.
func (s *VectorStore) Capabilities() driven.Capabilities {
	return driven.Capabilities{Listing: true, Similarity: true}
}

// Path returns the store directory.
func (s *VectorStore) Path() string {
	return s.dir
}

// Flush rewrites the snapshot.
func (s *VectorStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// Reload reads the snapshot back from disk.
func (s *VectorStore) Reload(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Close releases resources.
func (s *VectorStore) Close() error {
	return nil
}
