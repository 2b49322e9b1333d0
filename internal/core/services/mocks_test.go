package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// --- Mock implementations shared by service tests ---

// mockLLM implements driven.LLMService for testing.
type mockLLM struct {
	mu        sync.Mutex
	response  string
	err       error
	prompts   []string
	systems   []string
	delay     time.Duration
	generateF func(prompt string) (string, error)
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.systems = append(m.systems, opts.System)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.generateF != nil {
		return m.generateF(prompt)
	}
	return m.response, m.err
}

func (m *mockLLM) Chat(ctx context.Context, messages []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	if len(messages) == 0 {
		return "", domain.ErrInvalidInput
	}
	return m.Generate(ctx, messages[len(messages)-1].Content, driven.GenerateOptions{})
}

func (m *mockLLM) ModelName() string { return "mock-llm" }

func (m *mockLLM) Ping(_ context.Context) error { return m.err }

func (m *mockLLM) Close() error { return nil }

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// mockVectorStore implements driven.VectorStore with word-overlap search.
type mockVectorStore struct {
	mu       sync.Mutex
	dir      string
	chunks   []domain.Chunk
	searchF  func(query string, k int) ([]domain.Chunk, error)
	queries  []string
	addErr   error
	dropErr  error
	flushErr error
	flushes  int
	reloads  int
	reloadF  func() error
	closed   bool
	snapshot string
}

func newMockVectorStore(dir string) *mockVectorStore {
	return &mockVectorStore{dir: dir}
}

func (m *mockVectorStore) Search(_ context.Context, query string, k int, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	searchF := m.searchF
	m.mu.Unlock()

	if searchF != nil {
		return searchF(query, k)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	words := strings.Fields(strings.ToLower(query))
	var out []domain.Chunk
	for _, c := range m.chunks {
		if !filter.Matches(c) {
			continue
		}
		content := strings.ToLower(c.Content)
		for _, w := range words {
			if strings.Contains(content, w) {
				out = append(out, c)
				break
			}
		}
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (m *mockVectorStore) Add(_ context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	seen := make(map[string]bool, len(m.chunks))
	for _, c := range m.chunks {
		seen[c.ID()] = true
	}
	for _, c := range chunks {
		if seen[c.ID()] {
			continue
		}
		seen[c.ID()] = true
		m.chunks = append(m.chunks, c)
	}
	return nil
}

func (m *mockVectorStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks), nil
}

func (m *mockVectorStore) DeleteCollection(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropErr != nil {
		return m.dropErr
	}
	m.chunks = nil
	return nil
}

func (m *mockVectorStore) Capabilities() driven.Capabilities { return driven.Capabilities{} }

func (m *mockVectorStore) Path() string { return m.dir }

// Flush writes the chunk contents to a file in the store directory.
func (m *mockVectorStore) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	if m.flushErr != nil {
		return m.flushErr
	}
	if m.dir == "" {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, c := range m.chunks {
		b.WriteString(c.Source + "|" + c.Content + "\n")
	}
	return os.WriteFile(filepath.Join(m.dir, "chunks.txt"), []byte(b.String()), 0o600)
}

// Reload records the snapshot file contents found in the store directory.
func (m *mockVectorStore) Reload(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads++
	if m.reloadF != nil {
		return m.reloadF()
	}
	data, err := os.ReadFile(filepath.Join(m.dir, "chunks.txt"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	m.snapshot = string(data)
	return nil
}

func (m *mockVectorStore) Close() error {
	m.closed = true
	return nil
}

func (m *mockVectorStore) all() []domain.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Chunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// mockDeletingStore adds direct deletion to mockVectorStore.
type mockDeletingStore struct {
	*mockVectorStore
}

func (m *mockDeletingStore) Capabilities() driven.Capabilities {
	return driven.Capabilities{DirectDelete: true}
}

func (m *mockDeletingStore) Delete(_ context.Context, keys []domain.ChunkKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k.ID()] = true
	}
	kept := m.chunks[:0]
	deleted := 0
	for _, c := range m.chunks {
		if drop[c.ID()] {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return deleted, nil
}

func (m *mockDeletingStore) DeleteMatching(_ context.Context, filter domain.ChunkFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	deleted := 0
	for _, c := range m.chunks {
		if filter.Matches(c) {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return deleted, nil
}

// mockListingStore adds listing to mockVectorStore.
type mockListingStore struct {
	*mockVectorStore
}

func (m *mockListingStore) Capabilities() driven.Capabilities {
	return driven.Capabilities{Listing: true}
}

func (m *mockListingStore) List(_ context.Context, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Chunk
	for _, c := range m.chunks {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// mockChatHistory implements driven.ChatHistoryStore in memory.
type mockChatHistory struct {
	mu        sync.Mutex
	dir       string
	turns     []domain.ChatTurn
	appendErr error
	flushes   int
	reloads   int
}

func (m *mockChatHistory) Append(_ context.Context, role domain.ChatRole, content string) (domain.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return domain.ChatTurn{}, m.appendErr
	}
	turn := domain.ChatTurn{
		ID:        string(role) + "-" + content,
		Seq:       int64(len(m.turns) + 1),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.turns = append(m.turns, turn)
	return turn, nil
}

func (m *mockChatHistory) Recent(_ context.Context, n int) ([]domain.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n >= len(m.turns) {
		return append([]domain.ChatTurn(nil), m.turns...), nil
	}
	return append([]domain.ChatTurn(nil), m.turns[len(m.turns)-n:]...), nil
}

func (m *mockChatHistory) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns), nil
}

func (m *mockChatHistory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	return nil
}

func (m *mockChatHistory) Path() string { return m.dir }

func (m *mockChatHistory) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	if m.dir == "" {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.dir, "history.txt"), []byte("history"), 0o600)
}

func (m *mockChatHistory) Reload(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads++
	return nil
}

func (m *mockChatHistory) Close() error { return nil }

// mockMetrics implements driven.MetricsRecorder for testing.
type mockMetrics struct {
	mu       sync.Mutex
	queries  []domain.Completeness
	retrieve int
	flags    []string
	errors   map[domain.ErrorKind]int
	backups  []domain.BackupStatus
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{errors: make(map[domain.ErrorKind]int)}
}

func (m *mockMetrics) ObserveQuery(c domain.Completeness, _ float64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, c)
}

func (m *mockMetrics) ObserveRetrieval(_, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrieve++
}

func (m *mockMetrics) IncSecurityFlag(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = append(m.flags, reason)
}

func (m *mockMetrics) IncError(kind domain.ErrorKind, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *mockMetrics) IncBackup(status domain.BackupStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups = append(m.backups, status)
}

// mockCache implements driven.ResultCache with a map.
type mockCache struct {
	mu      sync.Mutex
	entries map[string]domain.SynthesisResult
	clears  int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]domain.SynthesisResult)}
}

func (m *mockCache) Get(key string) (domain.SynthesisResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[key]
	return r, ok
}

func (m *mockCache) Set(key string, r domain.SynthesisResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = r
}

func (m *mockCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]domain.SynthesisResult)
	m.clears++
}

func (m *mockCache) Close() {}

// mockPromptStore implements driven.PromptStore with fixed templates.
type mockPromptStore struct {
	prompts map[string]string
}

func (m *mockPromptStore) Load(name string) (string, error) {
	p, ok := m.prompts[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return p, nil
}

func (m *mockPromptStore) Reload() {}

// Ensure mocks implement interfaces
var _ driven.LLMService = (*mockLLM)(nil)
var _ driven.VectorStore = (*mockVectorStore)(nil)
var _ driven.ChunkDeleter = (*mockDeletingStore)(nil)
var _ driven.ChunkLister = (*mockListingStore)(nil)
var _ driven.ChatHistoryStore = (*mockChatHistory)(nil)
var _ driven.MetricsRecorder = (*mockMetrics)(nil)
var _ driven.ResultCache = (*mockCache)(nil)
var _ driven.PromptStore = (*mockPromptStore)(nil)

func testChunk(source, content string, idx int) domain.Chunk {
	return domain.Chunk{
		Content:       content,
		Source:        source,
		SourceType:    domain.SourceTypeDocument,
		SequenceIndex: idx,
	}
}

// mockScoringStore reports cosine-style scores looked up by content.
type mockScoringStore struct {
	*mockDeletingStore
	scores map[string]float64
}

func (m *mockScoringStore) Capabilities() driven.Capabilities {
	return driven.Capabilities{DirectDelete: true, Similarity: true}
}

func (m *mockScoringStore) Search(ctx context.Context, query string, k int, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	found, err := m.mockVectorStore.Search(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	for i := range found {
		found[i].Score = m.scores[found[i].Content]
	}
	return found, nil
}

// mockFullStore supports both direct deletion and listing.
type mockFullStore struct {
	*mockDeletingStore
}

func (m *mockFullStore) Capabilities() driven.Capabilities {
	return driven.Capabilities{DirectDelete: true, Listing: true}
}

func (m *mockFullStore) List(ctx context.Context, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	return (&mockListingStore{m.mockVectorStore}).List(ctx, filter)
}
