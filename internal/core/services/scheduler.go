package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

const componentScheduler = "scheduler"

// historyRetention is the number of results kept per task.
const historyRetention = 100

// defaultTick is how often the scheduler looks for due tasks.
const defaultTick = time.Minute

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler runs scheduled backups.
// It is a pure core service with no external control API.
type Scheduler struct {
	config  domain.SchedulerConfig
	store   driven.SchedulerStore
	backups driving.BackupService
	opts    domain.BackupOptions
	tracker *ErrorTracker
	tick    time.Duration
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	inflight map[string]bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	backups driving.BackupService,
) *Scheduler {
	return &Scheduler{
		config:   config,
		store:    store,
		backups:  backups,
		tick:     defaultTick,
		now:      time.Now,
		inflight: make(map[string]bool),
	}
}

// SetBackupOptions sets the options used for scheduled backups.
func (s *Scheduler) SetBackupOptions(opts domain.BackupOptions) {
	s.opts = opts
}

// SetTracker sets the tracker that records failed runs.
func (s *Scheduler) SetTracker(t *ErrorTracker) {
	s.tracker = t
}

// ParseSchedule parses a cron expression: five fields, or a descriptor such as @daily.
func ParseSchedule(spec string) (*cronexpr.Expression, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, domain.ValidationErrorf(componentScheduler, "invalid schedule %q: %v", spec, err)
	}
	return expr, nil
}

// NextRun returns the first time after from that spec fires.
func NextRun(spec string, from time.Time) (time.Time, error) {
	expr, err := ParseSchedule(spec)
	if err != nil {
		return time.Time{}, err
	}
	next := expr.Next(from)
	if next.IsZero() {
		return time.Time{}, domain.ValidationErrorf(componentScheduler, "schedule %q never fires", spec)
	}
	return next, nil
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		return domain.ValidationErrorf(componentScheduler, "no backup schedule is configured")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	return s.run(ctx, stopCh)
}

// Stop gracefully shuts down the scheduler, waiting for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// initialiseTasks ensures all configured tasks exist in the store and
// removes stored tasks this build no longer runs.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	if cfg := s.config.GetTaskConfig(domain.TaskIDMemoryBackup); cfg.Enabled {
		if err := s.ensureTask(ctx, domain.TaskIDMemoryBackup, "Memory Backup", cfg); err != nil {
			return err
		}
	}

	stored, err := s.store.ListTasks(ctx)
	if err != nil {
		return Wrap(componentScheduler, "list tasks", err)
	}
	for _, task := range stored {
		if slices.Contains(domain.KnownTaskIDs(), task.ID) {
			continue
		}
		logger.Info("scheduler: removing unknown task %s", task.ID)
		if err := s.store.DeleteTask(ctx, task.ID); err != nil {
			logger.Warn("scheduler: failed to remove task %s: %v", task.ID, err)
		}
	}
	return nil
}

// Status reports the backup schedule, the stored task and up to limit recent
// runs. It works whether or not the scheduler is running.
func (s *Scheduler) Status(ctx context.Context, limit int) (*domain.ScheduleStatus, error) {
	cfg := s.config.GetTaskConfig(domain.TaskIDMemoryBackup)
	status := &domain.ScheduleStatus{
		Enabled:  s.config.Enabled && cfg.Enabled,
		Schedule: cfg.Schedule,
		Recent:   []domain.TaskResult{},
	}

	task, err := s.store.GetTask(ctx, domain.TaskIDMemoryBackup)
	if err != nil {
		return nil, Wrap(componentScheduler, "status", err)
	}
	status.Task = task

	if limit > 0 {
		history, err := s.store.GetTaskHistory(ctx, domain.TaskIDMemoryBackup, limit)
		if err != nil {
			return nil, Wrap(componentScheduler, "status", err)
		}
		if history != nil {
			status.Recent = history
		}
	}
	return status, nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	next, err := NextRun(cfg.Schedule, s.now())
	if err != nil {
		return err
	}

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return Wrap(componentScheduler, "load task", err)
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Schedule: cfg.Schedule,
			NextRun:  next,
		}
	} else if task.Schedule != cfg.Schedule {
		task.Schedule = cfg.Schedule
		task.NextRun = next
	}
	task.Enabled = cfg.Enabled

	if err := s.store.SaveTask(ctx, task); err != nil {
		return Wrap(componentScheduler, "save task", err)
	}
	logger.Debug("scheduler: %s next runs at %s", id, task.NextRun.Format(time.RFC3339))
	return nil
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	// Catch up on anything missed while not running.
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks starts every enabled task whose next run has passed.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list tasks: %v", err)
		return
	}

	now := s.now()
	for i := range tasks {
		task := tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, &task)
		}
	}
}

// runTask executes a single task in the background. A task that is still
// running is not started again.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.inflight[task.ID] {
		s.mu.Unlock()
		logger.Debug("scheduler: %s is still running, skipping", task.ID)
		return
	}
	s.inflight[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, task.ID)
			s.mu.Unlock()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: s.now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDMemoryBackup:
			result.ItemsProcessed, err = s.runBackup(ctx)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = s.now()
		if err != nil {
			result.Error = err.Error()
			task.LastError = err.Error()
			if s.tracker != nil {
				s.tracker.Record(componentScheduler, Wrap(componentScheduler, task.ID, err), true)
			}
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}

		task.LastRun = result.StartedAt
		next, nextErr := NextRun(task.Schedule, result.EndedAt)
		if nextErr != nil {
			logger.Warn("scheduler: disabling %s: %v", task.ID, nextErr)
			task.Enabled = false
		}
		task.NextRun = next

		// Persist even if ctx was cancelled mid-run.
		saveCtx := context.WithoutCancel(ctx)
		if saveErr := s.store.SaveTask(saveCtx, task); saveErr != nil {
			logger.Warn("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}
		if recordErr := s.store.RecordResult(saveCtx, result); recordErr != nil {
			logger.Warn("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}
		if pruneErr := s.store.PruneHistory(saveCtx, historyRetention); pruneErr != nil {
			logger.Warn("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// runBackup creates a backup and returns how many components it captured.
func (s *Scheduler) runBackup(ctx context.Context) (int, error) {
	if s.backups == nil {
		return 0, nil
	}

	manifest, err := s.backups.CreateBackup(ctx, s.opts)
	captured := 0
	if manifest != nil {
		for _, c := range manifest.Components {
			if c.Status == domain.ComponentOK {
				captured++
			}
		}
	}
	if err != nil {
		return captured, err
	}
	logger.Info("scheduler: backup %s complete (%d components)", manifest.Name, captured)
	return captured, nil
}

// String describes the scheduler state for status output.
func (s *Scheduler) String() string {
	cfg := s.config.GetTaskConfig(domain.TaskIDMemoryBackup)
	if !s.config.Enabled || !cfg.Enabled {
		return "scheduled backups disabled"
	}
	return fmt.Sprintf("scheduled backups on %q", cfg.Schedule)
}
