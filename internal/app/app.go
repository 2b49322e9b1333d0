// Package app composes the driven adapters and core services into a running
// memory subsystem for the CLI and MCP entry points.
package app

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/custodia-labs/recall/internal/adapters/driven/ai"
	"github.com/custodia-labs/recall/internal/adapters/driven/cache/ristretto"
	"github.com/custodia-labs/recall/internal/adapters/driven/config/file"
	"github.com/custodia-labs/recall/internal/adapters/driven/metrics/prometheus"
	"github.com/custodia-labs/recall/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/recall/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/recall/internal/adapters/driven/tokens/tiktoken"
	"github.com/custodia-labs/recall/internal/adapters/driven/vectorstore/bleve"
	"github.com/custodia-labs/recall/internal/adapters/driven/vectorstore/chromem"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/services"
	"github.com/custodia-labs/recall/internal/logger"
	"github.com/custodia-labs/recall/internal/normalisers"
	"github.com/custodia-labs/recall/internal/postprocessors"
)

// App holds the composed services and the resources they own.
type App struct {
	Settings  domain.Settings
	Memory    *services.MemoryService
	Store     driven.VectorStore
	Backups   *services.BackupManager
	Scheduler *services.Scheduler
	Metrics   *prometheus.Recorder
	Warnings  []string

	closers []func() error
}

// Options controls composition.
type Options struct {
	// ConfigDir holds config.toml and .env. Defaults to ~/.recall.
	ConfigDir string
}

// New loads configuration and builds every service. On error, anything
// already opened is closed.
func New(opts Options) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	configDir := opts.ConfigDir
	if configDir == "" {
		if configDir, err = file.DefaultConfigDir(); err != nil {
			return nil, err
		}
	}
	if err = file.LoadEnv(configDir); err != nil {
		return nil, err
	}
	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, err
	}
	a.Settings, err = file.LoadSettings(configStore, configDir)
	if err != nil {
		return nil, err
	}
	s := a.Settings

	issues, err := services.NewPathValidator(services.DefaultPathSpecs(s.Paths)...).ValidateAll()
	for _, issue := range issues {
		logger.Debug("app: path %s (%s): %v", issue.Spec.Name, issue.Spec.Path, issue.Err)
	}
	if err != nil {
		return nil, err
	}

	models, err := ai.Initialise(s)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { models.Close(); return nil })
	a.Warnings = append(a.Warnings, models.Warnings...)

	store, err := openVectorStore(s, models.EmbeddingService)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	a.Store = store

	historyDB, err := sqlite.NewStore(s.Paths.ChatHistoryDir, sqlite.HistoryFile)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, historyDB.Close)
	history := historyDB.ChatHistoryStore()

	stateDB, err := sqlite.NewStore(s.Paths.StateDir, sqlite.ScheduleFile)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, stateDB.Close)

	pipeline, err := postprocessors.DefaultPipeline(s.Chunking)
	if err != nil {
		return nil, err
	}

	prompts, err := file.NewPromptStore(s.Paths.PromptsDir)
	if err != nil {
		return nil, err
	}

	a.Metrics = prometheus.New()
	tracker := services.NewErrorTracker(services.DefaultErrorHistory)
	lock := services.NewStoreLock()

	a.Memory = services.NewMemoryService(s, store, models.LLMService, pipeline, lock, tracker)
	a.Memory.SetChatHistory(history)
	a.Memory.SetNormaliser(normalisers.DefaultRegistry())
	a.Memory.SetPromptStore(prompts)
	a.Memory.SetMetrics(a.Metrics)

	// Prompt budgeting only matters when a model writes the answer.
	if models.LLMService != nil {
		if counter, err := tiktoken.New(s.LLM.Model); err == nil {
			a.Memory.SetTokenCounter(counter)
		} else {
			logger.Debug("app: token counter unavailable, estimating from characters: %v", err)
		}
	}

	var cache driven.ResultCache
	if s.Cache.Enabled {
		c, err := ristretto.New(s.Cache)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { c.Close(); return nil })
		cache = c
		a.Memory.SetCache(cache)
	}

	a.Backups = services.NewBackupManager(s.Paths, s.Backup, store, history, lock, tracker)
	a.Backups.SetMetrics(a.Metrics)
	if cache != nil {
		a.Backups.SetCache(cache)
	}

	a.Scheduler = services.NewScheduler(domain.SchedulerConfigFromBackup(s.Backup), stateDB.SchedulerStore(), a.Backups)
	a.Scheduler.SetBackupOptions(a.BackupOptions())
	a.Scheduler.SetTracker(tracker)

	return a, nil
}

// BackupOptions returns backup options from the configured defaults.
func (a *App) BackupOptions() domain.BackupOptions {
	return domain.BackupOptions{
		IncludeDocuments:   a.Settings.Backup.IncludeDocuments,
		IncludeChatHistory: a.Settings.Backup.IncludeChatHistory,
		Compress:           a.Settings.Backup.Compress,
		Format:             a.Settings.Backup.Format,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}

// openVectorStore opens the configured backend in the vector store directory.
func openVectorStore(s domain.Settings, embedder driven.EmbeddingService) (driven.VectorStore, error) {
	dir := s.Paths.VectorStoreDir
	switch s.VectorStore.Backend {
	case domain.VectorBackendChromem:
		return chromem.New(dir, s.VectorStore.Collection, embedder)
	case domain.VectorBackendBleve:
		return bleve.New(dir)
	case domain.VectorBackendMemory:
		return memory.NewVectorStore(dir, embedder)
	default:
		return nil, fmt.Errorf("%w: unknown vector store backend %q", domain.ErrInvalidInput, s.VectorStore.Backend)
	}
}
