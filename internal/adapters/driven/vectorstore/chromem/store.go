// Package chromem provides a persistent VectorStore backed by chromem-go.
//
// chromem-go writes every document to its own file under the store directory
// as it is added, so the directory can be copied whenever no write is in flight.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure Store implements the interfaces.
var (
	_ driven.VectorStore  = (*Store)(nil)
	_ driven.ChunkDeleter = (*Store)(nil)
	_ driven.ChunkLister  = (*Store)(nil)
)

// Metadata keys. User metadata is stored under metaPrefix.
const (
	keySource     = "source"
	keySourceType = "source_type"
	keySequence   = "sequence_index"
	keyCreatedAt  = "created_at"
	metaPrefix    = "meta."
)

// Store is a chromem-go collection persisted to a directory.
type Store struct {
	dir      string
	name     string
	embedder driven.EmbeddingService

	mu  sync.RWMutex
	db  *chromem.DB
	col *chromem.Collection
}

// New opens (or creates) the collection name under dir.
func New(dir, name string, embedder driven.EmbeddingService) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chromem: %w", domain.ErrEmbeddingUnavailable)
	}
	s := &Store{dir: dir, name: name, embedder: embedder}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	db, err := chromem.NewPersistentDB(s.dir, false)
	if err != nil {
		return fmt.Errorf("chromem: %w: open %s: %w", domain.ErrVectorStoreUnavailable, s.dir, err)
	}
	col, err := db.GetOrCreateCollection(s.name, nil, s.embedFunc)
	if err != nil {
		return fmt.Errorf("chromem: %w: collection %s: %w", domain.ErrVectorStoreUnavailable, s.name, err)
	}
	s.db, s.col = db, col
	return nil
}

// embedFunc lets chromem embed on its own; Add and Search normally pass vectors directly.
func (s *Store) embedFunc(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, text)
}

func (s *Store) collection() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col
}

// Search returns up to k chunks ranked by cosine similarity to query.
func (s *Store) Search(ctx context.Context, query string, k int, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	col := s.collection()
	limit := min(k, col.Count())
	if limit <= 0 {
		return nil, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chromem: embed query: %w", err)
	}

	// nResults may not exceed the collection size; filters may return fewer.
	results, err := col.QueryEmbedding(ctx, emb, limit, where(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(results))
	for _, r := range results {
		c := toChunk(r.Content, r.Metadata)
		c.Score = float64(r.Similarity)
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Add embeds and stores chunks whose identity is not already present.
func (s *Store) Add(ctx context.Context, chunks []domain.Chunk) error {
	col := s.collection()

	fresh := make([]domain.Chunk, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		id := c.ID()
		if seen[id] || s.exists(ctx, col, id) {
			continue
		}
		seen[id] = true
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return nil
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("chromem: embed chunks: %w", err)
	}
	if len(vectors) != len(fresh) {
		return fmt.Errorf("chromem: embedder returned %d vectors for %d chunks", len(vectors), len(fresh))
	}

	docs := make([]chromem.Document, len(fresh))
	for i, c := range fresh {
		docs[i] = chromem.Document{
			ID:        c.ID(),
			Content:   c.Content,
			Embedding: vectors[i],
			Metadata:  metadata(c),
		}
	}

	logger.Debug("chromem: adding %d chunks to %s", len(docs), s.name)
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("chromem: add: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, col *chromem.Collection, id string) bool {
	_, err := col.GetByID(ctx, id)
	return err == nil
}

// List returns every chunk matching filter, ordered by source and position.
// chromem-go has no enumeration API, so this runs an exhaustive query whose
// result count covers the whole collection.
func (s *Store) List(ctx context.Context, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	col := s.collection()
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	probe := make([]float32, max(s.embedder.Dimensions(), 1))
	probe[0] = 1
	results, err := col.QueryEmbedding(ctx, probe, n, where(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: list: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, toChunk(r.Content, r.Metadata))
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].Source != chunks[j].Source {
			return chunks[i].Source < chunks[j].Source
		}
		if chunks[i].SequenceIndex != chunks[j].SequenceIndex {
			return chunks[i].SequenceIndex < chunks[j].SequenceIndex
		}
		return chunks[i].Content < chunks[j].Content
	})
	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(_ context.Context) (int, error) {
	return s.collection().Count(), nil
}

// Delete removes the chunks with the given keys.
func (s *Store) Delete(ctx context.Context, keys []domain.ChunkKey) (int, error) {
	col := s.collection()

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := k.ID()
		if s.exists(ctx, col, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("chromem: delete: %w", err)
	}
	return len(ids), nil
}

// DeleteMatching removes every chunk matching filter.
func (s *Store) DeleteMatching(ctx context.Context, filter domain.ChunkFilter) (int, error) {
	if filter.IsEmpty() {
		n := s.collection().Count()
		return n, s.DeleteCollection(ctx)
	}

	col := s.collection()
	before := col.Count()
	if err := col.Delete(ctx, where(filter), nil); err != nil {
		return 0, fmt.Errorf("chromem: delete matching: %w", err)
	}
	return before - col.Count(), nil
}

// DeleteCollection removes every chunk and recreates an empty collection.
func (s *Store) DeleteCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("chromem: delete collection: %w", err)
	}
	col, err := s.db.GetOrCreateCollection(s.name, nil, s.embedFunc)
	if err != nil {
		return fmt.Errorf("chromem: recreate collection: %w", err)
	}
	s.col = col
	return nil
}

// Capabilities reports direct delete, listing and cosine scores.
func (s *Store) Capabilities() driven.Capabilities {
	return driven.Capabilities{DirectDelete: true, Listing: true, Similarity: true}
}

// Path returns the store directory.
func (s *Store) Path() string {
	return s.dir
}

// Flush is a no-op; documents are written as they are added.
func (s *Store) Flush(_ context.Context) error {
	return nil
}

// Reload reopens the database from disk.
func (s *Store) Reload(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open()
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

func where(f domain.ChunkFilter) map[string]string {
	if f.IsEmpty() {
		return nil
	}
	w := make(map[string]string, 2)
	if f.Source != "" {
		w[keySource] = f.Source
	}
	if f.SourceType != "" {
		w[keySourceType] = string(f.SourceType)
	}
	return w
}

func metadata(c domain.Chunk) map[string]string {
	m := make(map[string]string, len(c.Metadata)+4)
	for k, v := range c.Metadata {
		m[metaPrefix+k] = v
	}
	m[keySource] = c.Source
	m[keySourceType] = string(c.SourceType)
	m[keySequence] = strconv.Itoa(c.SequenceIndex)
	m[keyCreatedAt] = c.CreatedAt.UTC().Format(time.RFC3339Nano)
	return m
}

func toChunk(content string, m map[string]string) domain.Chunk {
	c := domain.Chunk{
		Content:    content,
		Source:     m[keySource],
		SourceType: domain.SourceType(m[keySourceType]),
	}
	c.SequenceIndex, _ = strconv.Atoi(m[keySequence])
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, m[keyCreatedAt])

	for k, v := range m {
		if name, ok := strings.CutPrefix(k, metaPrefix); ok {
			if c.Metadata == nil {
				c.Metadata = make(map[string]string)
			}
			c.Metadata[name] = v
		}
	}
	return c
}
