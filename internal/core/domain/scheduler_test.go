package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerConfigFromBackup(t *testing.T) {
	config := SchedulerConfigFromBackup(BackupSettings{Schedule: "0 3 * * *"})

	assert.True(t, config.Enabled)
	assert.Len(t, config.TaskConfigs, 1)

	backupCfg := config.TaskConfigs[TaskIDMemoryBackup]
	assert.True(t, backupCfg.Enabled)
	assert.Equal(t, "0 3 * * *", backupCfg.Schedule)
}

func TestSchedulerConfigFromBackup_EmptyScheduleDisables(t *testing.T) {
	config := SchedulerConfigFromBackup(BackupSettings{})

	assert.False(t, config.Enabled)
	assert.False(t, config.GetTaskConfig(TaskIDMemoryBackup).Enabled)
}

func TestSchedulerConfig_GetTaskConfig(t *testing.T) {
	config := SchedulerConfigFromBackup(BackupSettings{Schedule: "@daily"})

	// Existing task
	backupCfg := config.GetTaskConfig(TaskIDMemoryBackup)
	assert.True(t, backupCfg.Enabled)
	assert.Equal(t, "@daily", backupCfg.Schedule)

	// Non-existent task
	unknownCfg := config.GetTaskConfig("unknown-task")
	assert.False(t, unknownCfg.Enabled)
	assert.Empty(t, unknownCfg.Schedule)
}

func TestSchedulerConfig_GetTaskConfig_NilMap(t *testing.T) {
	config := SchedulerConfig{
		Enabled:     true,
		TaskConfigs: nil,
	}

	cfg := config.GetTaskConfig("any-task")
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.Schedule)
}

func TestKnownTaskIDs(t *testing.T) {
	assert.Equal(t, []string{"memory-backup"}, KnownTaskIDs())
}

func TestTaskResult_Duration(t *testing.T) {
	start := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	r := TaskResult{StartedAt: start, EndedAt: start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, r.Duration())

	r.EndedAt = time.Time{}
	assert.Zero(t, r.Duration(), "unfinished runs have no duration")
}
