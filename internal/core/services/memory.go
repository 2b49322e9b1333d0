package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

const componentMemory = "memory"

// InlineSource labels text ingested without a source name.
const InlineSource = "inline"

// clearWarning is returned for every refused clear, whatever was supplied.
var clearWarning = fmt.Sprintf("Memory was not cleared. Type %q exactly to delete every stored chunk and the chat history.",
	domain.ClearConfirmationPhrase)

// Ensure MemoryService implements the interface.
var _ driving.MemoryService = (*MemoryService)(nil)

// MemoryService is the memory subsystem: it stores knowledge and answers
// questions from it with citations and a confidence score.
type MemoryService struct {
	settings   domain.Settings
	store      driven.VectorStore
	pipeline   driven.PostProcessorPipeline
	normaliser driven.Normaliser
	history    driven.ChatHistoryStore
	cache      driven.ResultCache
	metrics    driven.MetricsRecorder
	lock       *StoreLock
	tracker    *ErrorTracker

	optimizer *QueryOptimizer
	retrieval *RetrievalEngine
	validator *ContentValidator
	synthesis *SynthesisEngine

	mu      sync.Mutex
	pending map[string]domain.ForgetPreview
	now     func() time.Time
}

// NewMemoryService creates the memory service.
// llm may be nil, in which case queries are not rewritten and answers are extractive.
// lock should be shared with the BackupManager so backups exclude writes.
func NewMemoryService(
	settings domain.Settings,
	store driven.VectorStore,
	llm driven.LLMService,
	pipeline driven.PostProcessorPipeline,
	lock *StoreLock,
	tracker *ErrorTracker,
) *MemoryService {
	if lock == nil {
		lock = NewStoreLock()
	}
	if tracker == nil {
		tracker = NewErrorTracker(DefaultErrorHistory)
	}
	return &MemoryService{
		settings:  settings,
		store:     store,
		pipeline:  pipeline,
		lock:      lock,
		tracker:   tracker,
		optimizer: NewQueryOptimizer(llm, settings.Optimizer, settings.Retrieval.MaxVariants, tracker),
		retrieval: NewRetrievalEngine(store, settings.Retrieval, tracker),
		validator: NewContentValidator(settings.Security),
		synthesis: NewSynthesisEngine(llm, settings.Synthesis, tracker),
		pending:   make(map[string]domain.ForgetPreview),
		now:       time.Now,
	}
}

// SetChatHistory sets the conversation history store.
func (m *MemoryService) SetChatHistory(h driven.ChatHistoryStore) {
	m.history = h
}

// SetNormaliser sets the normaliser applied to ingested files.
func (m *MemoryService) SetNormaliser(n driven.Normaliser) {
	m.normaliser = n
}

// SetCache sets the query result cache.
func (m *MemoryService) SetCache(c driven.ResultCache) {
	m.cache = c
}

// SetMetrics sets the metrics recorder on the service and its engines.
func (m *MemoryService) SetMetrics(r driven.MetricsRecorder) {
	m.metrics = r
	m.retrieval.SetMetrics(r)
	m.validator.SetMetrics(r)
	m.tracker.SetMetrics(r)
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (m *MemoryService) SetPromptStore(store driven.PromptStore) {
	m.optimizer.SetPromptStore(store)
	m.synthesis.SetPromptStore(store)
}

// SetTokenCounter sets the counter used to budget synthesis prompts.
func (m *MemoryService) SetTokenCounter(tc driven.TokenCounter) {
	m.synthesis.SetTokenCounter(tc)
}

// Tracker returns the error tracker shared by the service's components.
func (m *MemoryService) Tracker() *ErrorTracker {
	return m.tracker
}

// ==================== Ingest ====================

// Ingest chunks a file or inline text and stores it as document knowledge.
func (m *MemoryService) Ingest(ctx context.Context, req driving.IngestRequest) (*driving.IngestResult, error) {
	text := strings.TrimSpace(req.Text)
	if (req.Path == "") == (text == "") {
		return nil, domain.ValidationErrorf(componentMemory, "exactly one of path or text is required")
	}

	raw := &domain.RawDocument{Source: req.Source, Path: req.Path, Metadata: req.Metadata}
	if req.Path != "" {
		content, err := readIngestFile(req.Path)
		if err != nil {
			return nil, m.fail("ingest", err)
		}
		raw.Content = content
		raw.MIMEType = domain.MIMETypeForPath(req.Path)
		if raw.Source == "" {
			raw.Source = filepath.Base(req.Path)
		}
	} else {
		raw.Content = []byte(text)
		if raw.Source == "" {
			raw.Source = InlineSource
		}
	}

	doc, err := m.normalise(ctx, raw)
	if err != nil {
		return nil, m.fail("ingest", err)
	}

	chunks, err := m.pipeline.Process(ctx, doc)
	if err != nil {
		return nil, m.fail("ingest", fmt.Errorf("chunk %s: %w", raw.Source, err))
	}
	if len(chunks) == 0 {
		return nil, domain.ValidationErrorf(componentMemory, "%s contains no text to ingest", raw.Source)
	}

	created := m.now().UTC()
	for i := range chunks {
		chunks[i].Source = raw.Source
		chunks[i].SourceType = domain.SourceTypeDocument
		chunks[i].CreatedAt = created
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	result := &driving.IngestResult{Source: raw.Source, Chunks: len(chunks)}

	var previous []domain.ChunkKey
	if req.Replace {
		if previous, err = m.sourceKeys(ctx, raw.Source); err != nil {
			return nil, m.fail("ingest", err)
		}
	}

	if req.Path != "" {
		stored, err := m.storeInCorpus(req.Path)
		if err != nil {
			return nil, m.fail("ingest", err)
		}
		result.StoredPath = stored
	}

	if err := m.store.Add(ctx, chunks); err != nil {
		return nil, m.fail("ingest", err)
	}
	m.invalidate()

	// The new version is stored; only now drop what it no longer contains.
	if stale := staleKeys(previous, chunks); len(stale) > 0 {
		n, _, err := m.deleteChunks(ctx, "ingest", domain.ChunkFilter{}, stale)
		if err != nil {
			return nil, m.fail("ingest", err)
		}
		result.Replaced = n
	}

	logger.Info("memory: ingested %s (%d chunks, %d replaced)", raw.Source, len(chunks), result.Replaced)
	return result, nil
}

// sourceKeys lists the keys stored for source. Replacing a source needs them
// to tell superseded chunks from re-ingested ones.
func (m *MemoryService) sourceKeys(ctx context.Context, source string) ([]domain.ChunkKey, error) {
	lister, ok := m.store.(driven.ChunkLister)
	if !ok || !m.store.Capabilities().Listing {
		return nil, domain.NewError(domain.KindDependency, componentMemory, "ingest",
			fmt.Errorf("%w: the %s store cannot list chunks to replace",
				domain.ErrCapabilityUnsupported, m.settings.VectorStore.Backend))
	}
	found, err := lister.List(ctx, domain.ChunkFilter{Source: source})
	if err != nil {
		return nil, Wrap(componentMemory, "ingest", err)
	}
	keys := make([]domain.ChunkKey, len(found))
	for i, c := range found {
		keys[i] = c.Key()
	}
	return keys, nil
}

// staleKeys returns the keys of previous that chunks does not contain.
func staleKeys(previous []domain.ChunkKey, chunks []domain.Chunk) []domain.ChunkKey {
	current := make(map[domain.ChunkKey]bool, len(chunks))
	for _, c := range chunks {
		current[c.Key()] = true
	}
	var stale []domain.ChunkKey
	for _, k := range previous {
		if !current[k] {
			stale = append(stale, k)
		}
	}
	return stale
}

// readIngestFile validates that path is a readable regular file and reads it.
func readIngestFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ValidationErrorf(componentMemory, "file %s does not exist", path)
	}
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, domain.ValidationErrorf(componentMemory, "%s is not a regular file", path)
	}
	return os.ReadFile(path)
}

// normalise converts raw content to a document. Without a normaliser only
// UTF-8 text is accepted and it is used as-is.
func (m *MemoryService) normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if m.normaliser != nil {
		doc, err := m.normaliser.Normalise(ctx, raw)
		if errors.Is(err, domain.ErrUnsupportedType) || errors.Is(err, domain.ErrInvalidInput) {
			return nil, domain.NewError(domain.KindValidation, componentMemory, "ingest", err)
		}
		return doc, err
	}

	if !utf8.Valid(raw.Content) {
		return nil, domain.ValidationErrorf(componentMemory, "%s is not UTF-8 text", raw.Source)
	}
	meta := make(map[string]string, len(raw.Metadata))
	for k, v := range raw.Metadata {
		meta[k] = v
	}
	return &domain.Document{
		Source:   raw.Source,
		Title:    raw.Source,
		Content:  string(raw.Content),
		Metadata: meta,
	}, nil
}

// storeInCorpus copies path into the documents directory unless it already
// lives there, and returns the corpus path. Caller holds the write lock.
func (m *MemoryService) storeInCorpus(path string) (string, error) {
	corpus := m.settings.Paths.DocumentsDir
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if rel, err := filepath.Rel(corpus, abs); err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel) {
		return abs, nil
	}

	if err := os.MkdirAll(corpus, 0o700); err != nil {
		return "", err
	}
	dest := filepath.Join(corpus, filepath.Base(abs))
	if _, err := copyFile(abs, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// ==================== Query ====================

// Query answers a question from stored knowledge. Only an empty query is an
// error; every dependency failure degrades to a lower-quality answer.
func (m *MemoryService) Query(ctx context.Context, req driving.QueryRequest) (*domain.SynthesisResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ValidationErrorf(componentMemory, "query must not be empty")
	}
	started := m.now()

	key := cacheKey(query, req.Filter, req.MaxResults)
	useCache := m.cache != nil && m.settings.Cache.Enabled && !req.NoCache
	if useCache {
		if cached, ok := m.cache.Get(key); ok {
			logger.Debug("memory: cache hit for %q", query)
			m.recordTurns(ctx, query, cached.Answer)
			m.observe(cached, started)
			return &cached, nil
		}
	}

	logger.Section("Query")
	opt := m.optimizer.Optimize(ctx, query, m.recentTurns(ctx))

	m.lock.RLock()
	retrieved := m.retrieval.Retrieve(ctx, opt, req.MaxResults, req.Filter)
	m.lock.RUnlock()

	candidates := m.validator.Annotate(retrieved.Chunks)
	result := m.synthesis.Synthesize(ctx, query, candidates)
	result.Optimization = &opt
	if n := len(retrieved.Failures); n > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d of %d searches failed; the answer may be incomplete", n, retrieved.Iterations))
	}

	m.recordTurns(ctx, query, result.Answer)
	m.observe(result, started)

	if useCache && len(retrieved.Failures) == 0 && ctx.Err() == nil {
		m.cache.Set(key, result)
	}
	return &result, nil
}

// recentTurns returns the conversation context for the optimizer.
func (m *MemoryService) recentTurns(ctx context.Context) []domain.ChatTurn {
	if m.history == nil || m.settings.History.Turns <= 0 {
		return nil
	}
	return WithFallback(m.tracker, componentMemory, []domain.ChatTurn(nil), func() ([]domain.ChatTurn, error) {
		return m.history.Recent(ctx, m.settings.History.Turns)
	})
}

// recordTurns appends the exchange to the chat history. Failures are recoverable.
func (m *MemoryService) recordTurns(ctx context.Context, query, answer string) {
	if m.history == nil {
		return
	}
	for _, turn := range []struct {
		role    domain.ChatRole
		content string
	}{{domain.ChatRoleUser, query}, {domain.ChatRoleAssistant, answer}} {
		if _, err := m.history.Append(ctx, turn.role, turn.content); err != nil {
			m.tracker.Record(componentMemory, Wrap(componentMemory, "history", err), true)
			return
		}
	}
}

func (m *MemoryService) observe(result domain.SynthesisResult, started time.Time) {
	if m.metrics != nil {
		m.metrics.ObserveQuery(result.Completeness, result.Confidence, m.now().Sub(started))
	}
}

// cacheKey identifies a query by its normalised text, filter and result cap.
func cacheKey(query string, filter domain.ChunkFilter, maxResults int) string {
	return strings.Join([]string{
		normaliseText(query),
		filter.Source,
		string(filter.SourceType),
		strconv.Itoa(maxResults),
	}, "\x1f")
}

// normaliseText lower-cases s and collapses whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ==================== Remember ====================

// Remember stores a fact from the conversation. Remembering the same fact
// twice stores it once.
func (m *MemoryService) Remember(ctx context.Context, fact string) (*domain.Chunk, error) {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return nil, domain.ValidationErrorf(componentMemory, "fact must not be empty")
	}

	chunk := domain.Chunk{
		Content:    fact,
		Source:     domain.ConversationSource,
		SourceType: domain.SourceTypeConversational,
		CreatedAt:  m.now().UTC(),
		Metadata:   map[string]string{},
	}

	m.lock.Lock()
	err := m.store.Add(ctx, []domain.Chunk{chunk})
	m.lock.Unlock()
	if err != nil {
		return nil, m.fail("remember", err)
	}
	m.invalidate()

	if m.history != nil {
		if _, err := m.history.Append(ctx, domain.ChatRoleMemory, fact); err != nil {
			m.tracker.Record(componentMemory, Wrap(componentMemory, "history", err), true)
		}
	}

	logger.Info("memory: remembered %q", truncateRunes(fact, 60))
	return &chunk, nil
}

// ==================== Forget ====================

// ForgetPreview lists what a forget request would delete without deleting it.
// The preview is kept until it expires or is confirmed.
func (m *MemoryService) ForgetPreview(ctx context.Context, description string) (*domain.ForgetPreview, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, domain.ValidationErrorf(componentMemory, "forget description must not be empty")
	}

	limit := m.settings.Forget.PreviewLimit
	m.lock.RLock()
	found, err := m.store.Search(ctx, description, limit, domain.ChunkFilter{})
	m.lock.RUnlock()
	if err != nil {
		return nil, m.fail("forget-preview", err)
	}

	if m.store.Capabilities().Similarity {
		related := found[:0:0]
		for _, c := range found {
			if c.Score >= m.settings.Forget.MinSimilarity {
				related = append(related, c)
			}
		}
		found = related
	}

	candidates := domain.DedupChunks(found)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	preview := domain.ForgetPreview{
		Description:        description,
		Candidates:         candidates,
		ConfirmationPhrase: domain.ForgetConfirmationPhrase,
		ExpiresAt:          m.now().Add(m.settings.Forget.PreviewTTL),
	}

	m.mu.Lock()
	m.prunePending()
	m.pending[normaliseText(description)] = preview
	m.mu.Unlock()

	logger.Debug("memory: forget preview %q matched %d chunks", description, len(candidates))
	out := preview
	out.Candidates = append([]domain.Chunk(nil), candidates...)
	return &out, nil
}

// ForgetConfirm deletes exactly the chunks of the pending preview for
// description. Without the confirmation phrase nothing is deleted.
func (m *MemoryService) ForgetConfirm(ctx context.Context, description, confirmation string) (*domain.ForgetResult, error) {
	if !strings.Contains(normaliseText(confirmation), domain.ForgetConfirmationPhrase) {
		return &domain.ForgetResult{
			Confirmed: false,
			Warning: fmt.Sprintf("Nothing was deleted. Include %q in the confirmation to delete the previewed chunks.",
				domain.ForgetConfirmationPhrase),
		}, nil
	}

	key := normaliseText(description)
	m.mu.Lock()
	m.prunePending()
	preview, ok := m.pending[key]
	m.mu.Unlock()
	if !ok {
		return nil, domain.NewError(domain.KindValidation, componentMemory, "forget",
			fmt.Errorf("%w for %q; run a preview first", domain.ErrNoPendingPreview, strings.TrimSpace(description)))
	}

	release, err := m.lock.AcquireExclusive("forget")
	if err != nil {
		return nil, err
	}
	defer release()

	result := &domain.ForgetResult{Confirmed: true}
	if len(preview.Candidates) > 0 {
		keys := make([]domain.ChunkKey, len(preview.Candidates))
		for i, c := range preview.Candidates {
			keys[i] = c.Key()
		}
		n, strategy, err := m.deleteChunks(ctx, "forget", domain.ChunkFilter{}, keys)
		if err != nil {
			return nil, m.fail("forget", err)
		}
		result.Deleted = n
		result.Strategy = strategy
		m.invalidate()
	}

	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()

	logger.Info("memory: forgot %d chunks for %q (%s)", result.Deleted, preview.Description, result.Strategy)
	return result, nil
}

// prunePending drops expired previews. Caller holds m.mu.
func (m *MemoryService) prunePending() {
	now := m.now()
	for k, p := range m.pending {
		if now.After(p.ExpiresAt) {
			delete(m.pending, k)
		}
	}
}

// deleteChunks removes chunks by key, or every chunk matching filter when
// keys is nil. Stores that cannot delete directly are rebuilt from a listing.
// Caller holds the write side of the store lock.
func (m *MemoryService) deleteChunks(
	ctx context.Context,
	op string,
	filter domain.ChunkFilter,
	keys []domain.ChunkKey,
) (int, domain.DeleteStrategy, error) {
	caps := m.store.Capabilities()

	if deleter, ok := m.store.(driven.ChunkDeleter); ok && caps.DirectDelete {
		var n int
		var err error
		if keys != nil {
			n, err = deleter.Delete(ctx, keys)
		} else {
			n, err = deleter.DeleteMatching(ctx, filter)
		}
		if err != nil {
			return 0, domain.DeleteDirect, Wrap(componentMemory, op, err)
		}
		return n, domain.DeleteDirect, nil
	}

	if lister, ok := m.store.(driven.ChunkLister); ok && caps.Listing {
		n, err := m.rebuildWithout(ctx, lister, filter, keys)
		if err != nil {
			return 0, domain.DeleteRebuild, Wrap(componentMemory, op, err)
		}
		return n, domain.DeleteRebuild, nil
	}

	return 0, "", domain.NewError(domain.KindDependency, componentMemory, op,
		fmt.Errorf("%w: the %s store supports neither direct deletion nor listing",
			domain.ErrCapabilityUnsupported, m.settings.VectorStore.Backend))
}

// rebuildWithout drops the collection and re-adds every chunk not selected.
func (m *MemoryService) rebuildWithout(
	ctx context.Context,
	lister driven.ChunkLister,
	filter domain.ChunkFilter,
	keys []domain.ChunkKey,
) (int, error) {
	all, err := lister.List(ctx, domain.ChunkFilter{})
	if err != nil {
		return 0, err
	}

	drop := func(c domain.Chunk) bool { return filter.Matches(c) }
	if keys != nil {
		selected := make(map[domain.ChunkKey]bool, len(keys))
		for _, k := range keys {
			selected[k] = true
		}
		drop = func(c domain.Chunk) bool { return selected[c.Key()] }
	}

	keep := make([]domain.Chunk, 0, len(all))
	for _, c := range all {
		if !drop(c) {
			keep = append(keep, c)
		}
	}
	removed := len(all) - len(keep)
	if removed == 0 {
		return 0, nil
	}

	if err := m.store.DeleteCollection(ctx); err != nil {
		return 0, err
	}
	if len(keep) > 0 {
		if err := m.store.Add(context.WithoutCancel(ctx), keep); err != nil {
			logger.Error("memory: rebuild lost %d chunks after dropping the collection: %v", len(keep), err)
			return 0, err
		}
	}
	return removed, nil
}

// ==================== Clear ====================

// ClearAll wipes every chunk and the chat history. Anything other than the
// exact confirmation phrase is refused with the same warning.
func (m *MemoryService) ClearAll(ctx context.Context, confirmation string) (*domain.ClearResult, error) {
	if confirmation != domain.ClearConfirmationPhrase {
		return &domain.ClearResult{Cleared: false, Warning: clearWarning}, nil
	}

	release, err := m.lock.AcquireExclusive("clear")
	if err != nil {
		return nil, err
	}
	defer release()

	removed, err := m.store.Count(ctx)
	if err != nil {
		m.tracker.Record(componentMemory, Wrap(componentMemory, "clear", err), true)
		removed = 0
	}

	if err := m.store.DeleteCollection(ctx); err != nil {
		return nil, m.fail("clear", err)
	}
	m.invalidate()

	m.mu.Lock()
	m.pending = make(map[string]domain.ForgetPreview)
	m.mu.Unlock()

	if m.history != nil {
		if err := m.history.Clear(ctx); err != nil {
			return &domain.ClearResult{Cleared: true, Removed: removed}, m.fail("clear", err)
		}
	}

	logger.Warn("memory: cleared %d chunks and the chat history", removed)
	return &domain.ClearResult{Cleared: true, Removed: removed}, nil
}

// ==================== Errors ====================

// ErrorSummary reports recently recorded errors.
func (m *MemoryService) ErrorSummary(_ context.Context, limit int) domain.ErrorSummary {
	return m.tracker.Summary(limit)
}

// fail classifies err, records it as non-recoverable and returns it.
func (m *MemoryService) fail(op string, err error) error {
	wrapped := Wrap(componentMemory, op, err)
	m.tracker.Record(componentMemory, wrapped, false)
	return wrapped
}

// invalidate drops cached answers after the store changed.
func (m *MemoryService) invalidate() {
	if m.cache != nil {
		m.cache.Clear()
	}
}
