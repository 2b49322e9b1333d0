// Package bleve provides a lexical VectorStore backed by a bleve index.
//
// Chunks are ranked by full-text relevance instead of embeddings, so this
// backend works without an embedding provider. It supports direct delete
// and listing.
package bleve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/analysis/lang/en"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"

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

// indexDir is the bleve index inside the store directory; bleve refuses to create into an existing directory.
const indexDir = "index.bleve"

// Field names.
const (
	fieldContent    = "content"
	fieldSource     = "source"
	fieldSourceType = "source_type"
	fieldRaw        = "raw"
)

// record is the indexed form of a chunk. Raw is the stored JSON of the whole chunk.
type record struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	SourceType string `json:"source_type"`
	Raw        string `json:"raw"`
}

// Store is a bleve index persisted to a directory.
type Store struct {
	dir string

	mu    sync.RWMutex
	index bleve.Index
}

// New opens (or creates) the index under dir.
func New(dir string) (*Store, error) {
	s := &Store{dir: dir}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, indexDir)
}

func (s *Store) open() error {
	index, err := bleve.Open(s.indexPath())
	if err == bleve.ErrorIndexPathDoesNotExist {
		if err := os.MkdirAll(s.dir, 0o700); err != nil {
			return fmt.Errorf("bleve: %w: %w", domain.ErrVectorStoreUnavailable, err)
		}
		index, err = bleve.New(s.indexPath(), newMapping())
	}
	if err != nil {
		return fmt.Errorf("bleve: %w: open %s: %w", domain.ErrVectorStoreUnavailable, s.indexPath(), err)
	}
	s.index = index
	return nil
}

func newMapping() mapping.IndexMapping {
	content := bleve.NewTextFieldMapping()
	content.Analyzer = en.AnalyzerName
	content.Store = false

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name
	exact.Store = false
	exact.IncludeInAll = false

	raw := bleve.NewTextFieldMapping()
	raw.Index = false
	raw.IncludeInAll = false
	raw.IncludeTermVectors = false

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(fieldContent, content)
	doc.AddFieldMappingsAt(fieldSource, exact)
	doc.AddFieldMappingsAt(fieldSourceType, exact)
	doc.AddFieldMappingsAt(fieldRaw, raw)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

func (s *Store) idx() bleve.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Search returns up to k chunks ranked by text relevance to query.
func (s *Store) Search(_ context.Context, text string, k int, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	match := bleve.NewMatchQuery(text)
	match.SetField(fieldContent)

	req := bleve.NewSearchRequestOptions(withFilter(match, filter), k, 0, false)
	req.Fields = []string{fieldRaw}
	return s.run(req, true)
}

// List returns every chunk matching filter.
func (s *Store) List(_ context.Context, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	index := s.idx()
	total, err := index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("bleve: count: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(withFilter(bleve.NewMatchAllQuery(), filter), int(total), 0, false)
	req.Fields = []string{fieldRaw}
	req.SortBy([]string{"_id"})
	return s.run(req, false)
}

// run executes req. scored copies each hit's relevance into Chunk.Score.
func (s *Store) run(req *bleve.SearchRequest, scored bool) ([]domain.Chunk, error) {
	res, err := s.idx().Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve: search: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(res.Hits))
	for _, hit := range res.Hits {
		raw, _ := hit.Fields[fieldRaw].(string)
		var c domain.Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			logger.Warn("bleve: skipping unreadable chunk %s: %v", hit.ID, err)
			continue
		}
		if scored {
			c.Score = hit.Score
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func withFilter(q query.Query, f domain.ChunkFilter) query.Query {
	if f.IsEmpty() {
		return q
	}
	parts := []query.Query{q}
	if f.Source != "" {
		t := bleve.NewTermQuery(f.Source)
		t.SetField(fieldSource)
		parts = append(parts, t)
	}
	if f.SourceType != "" {
		t := bleve.NewTermQuery(string(f.SourceType))
		t.SetField(fieldSourceType)
		parts = append(parts, t)
	}
	return bleve.NewConjunctionQuery(parts...)
}

// existing returns the subset of ids present in the index.
func (s *Store) existing(ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery(ids), len(ids), 0, false)
	res, err := s.idx().Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve: lookup: %w", err)
	}
	for _, hit := range res.Hits {
		found[hit.ID] = true
	}
	return found, nil
}

// Add indexes chunks whose identity is not already present.
func (s *Store) Add(_ context.Context, chunks []domain.Chunk) error {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID()
	}
	found, err := s.existing(ids)
	if err != nil {
		return err
	}

	index := s.idx()
	batch := index.NewBatch()
	for i, c := range chunks {
		if found[ids[i]] {
			continue
		}
		found[ids[i]] = true

		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("bleve: encode chunk: %w", err)
		}
		if err := batch.Index(ids[i], record{
			Content:    c.Content,
			Source:     c.Source,
			SourceType: string(c.SourceType),
			Raw:        string(raw),
		}); err != nil {
			return fmt.Errorf("bleve: index chunk: %w", err)
		}
	}
	if batch.Size() == 0 {
		return nil
	}

	logger.Debug("bleve: indexing %d chunks", batch.Size())
	if err := index.Batch(batch); err != nil {
		return fmt.Errorf("bleve: batch: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(_ context.Context) (int, error) {
	n, err := s.idx().DocCount()
	if err != nil {
		return 0, fmt.Errorf("bleve: count: %w", err)
	}
	return int(n), nil
}

// Delete removes the chunks with the given keys.
func (s *Store) Delete(_ context.Context, keys []domain.ChunkKey) (int, error) {
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.ID()
	}
	found, err := s.existing(ids)
	if err != nil {
		return 0, err
	}
	return s.deleteIDs(found)
}

// DeleteMatching removes every chunk matching filter.
func (s *Store) DeleteMatching(ctx context.Context, filter domain.ChunkFilter) (int, error) {
	chunks, err := s.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	ids := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		ids[c.ID()] = true
	}
	return s.deleteIDs(ids)
}

func (s *Store) deleteIDs(ids map[string]bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	index := s.idx()
	batch := index.NewBatch()
	for id := range ids {
		batch.Delete(id)
	}
	if err := index.Batch(batch); err != nil {
		return 0, fmt.Errorf("bleve: delete: %w", err)
	}
	return len(ids), nil
}

// DeleteCollection removes the index and creates an empty one.
func (s *Store) DeleteCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("bleve: close: %w", err)
	}
	if err := os.RemoveAll(s.indexPath()); err != nil {
		return fmt.Errorf("bleve: remove index: %w", err)
	}
	return s.open()
}

// Capabilities reports direct delete and listing support.
func (s *Store) Capabilities() driven.Capabilities {
	return driven.Capabilities{DirectDelete: true, Listing: true}
}

// Path returns the store directory.
func (s *Store) Path() string {
	return s.dir
}

// Flush is a no-op; every batch is committed before it returns.
func (s *Store) Flush(_ context.Context) error {
	return nil
}

// Reload closes the index and reopens it from disk.
func (s *Store) Reload(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		logger.Warn("bleve: close before reload: %v", err)
	}
	return s.open()
}

// Close releases the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}
