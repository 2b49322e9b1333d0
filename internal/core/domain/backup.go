package domain

import (
	"fmt"
	"time"
)

// BackupStatus is the overall outcome of a backup.
type BackupStatus string

// Backup statuses.
const (
	BackupStatusComplete BackupStatus = "complete"
	BackupStatusPartial  BackupStatus = "partial"
	BackupStatusFailed   BackupStatus = "failed"
)

// ComponentName identifies a part of the knowledge store captured by a backup.
type ComponentName string

// Backup components. The name is also the directory name inside a backup.
const (
	ComponentVectorStore ComponentName = "vector_store"
	ComponentDocuments   ComponentName = "documents"
	ComponentChatHistory ComponentName = "chat_history"
)

// AllComponents returns the components in backup order.
func AllComponents() []ComponentName {
	return []ComponentName{ComponentVectorStore, ComponentDocuments, ComponentChatHistory}
}

// ComponentStatus is the outcome for a single component.
type ComponentStatus string

// Component statuses.
const (
	ComponentOK      ComponentStatus = "ok"
	ComponentFailed  ComponentStatus = "failed"
	ComponentSkipped ComponentStatus = "skipped"
)

// ComponentResult records what happened to one component during a backup.
type ComponentResult struct {
	Status    ComponentStatus `json:"status"`
	SizeBytes int64           `json:"size_bytes"`
	Error     string          `json:"error,omitempty"`
}

// ArchiveFormat selects the compression container for a backup.
type ArchiveFormat string

// Archive formats.
const (
	ArchiveTarGz ArchiveFormat = "tar.gz"
	ArchiveZip   ArchiveFormat = "zip"
)

// IsValid returns true if the format is recognised.
func (f ArchiveFormat) IsValid() bool {
	return f == ArchiveTarGz || f == ArchiveZip
}

// Extension returns the file extension including the leading dot.
func (f ArchiveFormat) Extension() string {
	return "." + string(f)
}

// ManifestFileName is the manifest file inside every backup.
const ManifestFileName = "manifest.json"

// BackupManifest describes one backup. It is written once and never modified.
type BackupManifest struct {
	Name       string                            `json:"name"`
	CreatedAt  time.Time                         `json:"created_at"`
	Status     BackupStatus                      `json:"status"`
	Components map[ComponentName]ComponentResult `json:"components"`
	Compressed bool                              `json:"compressed"`
	Format     ArchiveFormat                     `json:"format,omitempty"`
}

// TotalSize returns the summed size of all captured components.
func (m *BackupManifest) TotalSize() int64 {
	var total int64
	for _, c := range m.Components {
		total += c.SizeBytes
	}
	return total
}

// ResolveStatus derives the overall status from the component results.
// Skipped components do not count against the backup.
func (m *BackupManifest) ResolveStatus() BackupStatus {
	ok, failed := 0, 0
	for _, c := range m.Components {
		switch c.Status {
		case ComponentOK:
			ok++
		case ComponentFailed:
			failed++
		}
	}
	switch {
	case failed == 0 && ok > 0:
		return BackupStatusComplete
	case ok > 0:
		return BackupStatusPartial
	default:
		return BackupStatusFailed
	}
}

// BackupOptions configures a backup.
type BackupOptions struct {
	// Name of the backup. Generated from the clock when empty.
	Name string

	// IncludeDocuments copies the source document corpus.
	IncludeDocuments bool

	// IncludeChatHistory copies the conversation history.
	IncludeChatHistory bool

	// Compress packs the backup into a single archive.
	Compress bool

	// Format selects the archive container when Compress is set.
	Format ArchiveFormat
}

// DefaultBackupName returns the generated name for a backup taken at t.
func DefaultBackupName(t time.Time) string {
	return fmt.Sprintf("backup_%s", t.Format("20060102_150405"))
}

// BackupEntry is a row in a backup listing.
type BackupEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`

	// Archive is true when the backup is a single compressed file.
	Archive bool `json:"archive"`

	// Manifest is nil when the manifest is missing or unreadable.
	Manifest *BackupManifest `json:"manifest,omitempty"`

	// Problem describes a corrupt or missing manifest.
	Problem string `json:"problem,omitempty"`

	// ModTime is the filesystem modification time, used when no manifest exists.
	ModTime time.Time `json:"mod_time"`
}

// CreatedAt returns the manifest time, or the modification time when unknown.
func (e BackupEntry) CreatedAt() time.Time {
	if e.Manifest != nil && !e.Manifest.CreatedAt.IsZero() {
		return e.Manifest.CreatedAt
	}
	return e.ModTime
}

// RestoreResult reports what a restore replaced.
type RestoreResult struct {
	Name     string          `json:"name"`
	Restored []ComponentName `json:"restored"`
	Skipped  []ComponentName `json:"skipped,omitempty"`
}

// BackupState is the backup manager state machine position.
type BackupState string

// Backup manager states.
const (
	BackupStateIdle            BackupState = "idle"
	BackupStateSnapshotting    BackupState = "snapshotting"
	BackupStateManifestWritten BackupState = "manifest-written"
	BackupStateFailed          BackupState = "failed"
	BackupStateRestoring       BackupState = "restoring"
)
