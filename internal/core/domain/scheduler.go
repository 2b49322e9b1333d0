package domain

import "time"

// ScheduledTask is a recurring job and the bookkeeping that survives restarts.
type ScheduledTask struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Enabled  bool   `json:"enabled"`

	// NextRun is zero until the schedule has been evaluated; a zero or past
	// NextRun is due immediately, which is how missed runs are caught up.
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
}

// TaskResult is one run of a task.
type TaskResult struct {
	TaskID    string    `json:"task_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`

	// ItemsProcessed counts the backup components captured.
	ItemsProcessed int `json:"items_processed"`
}

// Duration returns how long the run took.
func (r TaskResult) Duration() time.Duration {
	if r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// ScheduleStatus reports the backup schedule and its recent runs.
type ScheduleStatus struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`

	// Task is nil until the scheduler has run once.
	Task *ScheduledTask `json:"task,omitempty"`

	// Recent runs, most recent first.
	Recent []TaskResult `json:"recent"`
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// TaskConfigs holds per-task configuration keyed by task ID.
	TaskConfigs map[string]TaskConfig
}

// TaskConfig configures one task.
type TaskConfig struct {
	Enabled bool

	// Schedule is a cron expression (five fields or a descriptor such as @daily).
	Schedule string
}

// GetTaskConfig returns the configuration for taskID, or a disabled zero value.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// SchedulerConfigFromBackup builds the scheduler configuration for backup settings.
// An empty schedule disables the scheduler.
func SchedulerConfigFromBackup(b BackupSettings) SchedulerConfig {
	enabled := b.Schedule != ""
	return SchedulerConfig{
		Enabled: enabled,
		TaskConfigs: map[string]TaskConfig{
			TaskIDMemoryBackup: {
				Enabled:  enabled,
				Schedule: b.Schedule,
			},
		},
	}
}

// TaskIDMemoryBackup is the scheduled backup task.
const TaskIDMemoryBackup = "memory-backup"

// KnownTaskIDs returns the IDs of every built-in task.
func KnownTaskIDs() []string {
	return []string{TaskIDMemoryBackup}
}
