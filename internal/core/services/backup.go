package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

const componentBackup = "backup"

// Suffixes of sibling directories used while swapping a component during restore.
const (
	restoreStagedSuffix = ".restore"
	restoreOldSuffix    = ".old"
)

var backupNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Ensure BackupManager implements the interface.
var _ driving.BackupService = (*BackupManager)(nil)

// BackupManager snapshots the knowledge store into named backups and restores them.
type BackupManager struct {
	paths    domain.PathSettings
	settings domain.BackupSettings
	store    driven.VectorStore
	history  driven.ChatHistoryStore
	lock     *StoreLock
	tracker  *ErrorTracker
	cache    driven.ResultCache
	metrics  driven.MetricsRecorder

	state     *atomic.String
	stateHook func(domain.BackupState)
	now       func() time.Time
}

// NewBackupManager creates a backup manager. history may be nil.
func NewBackupManager(
	paths domain.PathSettings,
	settings domain.BackupSettings,
	store driven.VectorStore,
	history driven.ChatHistoryStore,
	lock *StoreLock,
	tracker *ErrorTracker,
) *BackupManager {
	if lock == nil {
		lock = NewStoreLock()
	}
	return &BackupManager{
		paths:    paths,
		settings: settings,
		store:    store,
		history:  history,
		lock:     lock,
		tracker:  tracker,
		state:    atomic.NewString(string(domain.BackupStateIdle)),
		now:      time.Now,
	}
}

// SetCache sets the query cache invalidated by a restore.
func (m *BackupManager) SetCache(c driven.ResultCache) {
	m.cache = c
}

// SetMetrics sets the recorder for backup outcomes.
func (m *BackupManager) SetMetrics(r driven.MetricsRecorder) {
	m.metrics = r
}

// State returns the current position in the backup state machine.
func (m *BackupManager) State() domain.BackupState {
	return domain.BackupState(m.state.Load())
}

func (m *BackupManager) setState(s domain.BackupState) {
	m.state.Store(string(s))
	if m.stateHook != nil {
		m.stateHook(s)
	}
}

// ==================== Create ====================

// CreateBackup snapshots the store. The manifest records every component's
// outcome; when any selected component failed the manifest is returned with
// an error.
func (m *BackupManager) CreateBackup(ctx context.Context, opts domain.BackupOptions) (*domain.BackupManifest, error) {
	createdAt := m.now().UTC()
	name := opts.Name
	if name == "" {
		name = domain.DefaultBackupName(createdAt)
	}
	if !backupNamePattern.MatchString(name) {
		return nil, domain.ValidationErrorf(componentBackup, "backup name %q may only contain letters, digits, '.', '_' and '-'", name)
	}
	format := opts.Format
	if format == "" {
		format = domain.ArchiveTarGz
	}
	if opts.Compress && !format.IsValid() {
		return nil, domain.ValidationErrorf(componentBackup, "unknown archive format %q", format)
	}
	if m.backupExists(name) {
		return nil, domain.NewError(domain.KindValidation, componentBackup, "create",
			fmt.Errorf("%w: backup %q", domain.ErrAlreadyExists, name))
	}

	release, err := m.lock.AcquireExclusive("backup")
	if err != nil {
		return nil, err
	}
	defer release()

	m.setState(domain.BackupStateSnapshotting)
	defer m.setState(domain.BackupStateIdle)

	stagingRoot := filepath.Join(m.paths.BackupsDir, ".staging-"+name)
	snapshotDir := filepath.Join(stagingRoot, name)
	defer os.RemoveAll(stagingRoot)

	if err := os.RemoveAll(stagingRoot); err != nil {
		m.setState(domain.BackupStateFailed)
		return nil, Wrap(componentBackup, "stage", err)
	}
	if err := os.MkdirAll(snapshotDir, 0o700); err != nil {
		m.setState(domain.BackupStateFailed)
		return nil, Wrap(componentBackup, "stage", err)
	}

	manifest := &domain.BackupManifest{
		Name:       name,
		CreatedAt:  createdAt,
		Components: make(map[domain.ComponentName]domain.ComponentResult),
	}

	var errs *multierror.Error
	for _, comp := range domain.AllComponents() {
		if !m.selected(comp, opts) {
			manifest.Components[comp] = domain.ComponentResult{Status: domain.ComponentSkipped}
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			manifest.Components[comp] = domain.ComponentResult{Status: domain.ComponentFailed, Error: ctxErr.Error()}
			continue
		}

		size, err := m.captureComponent(ctx, comp, filepath.Join(snapshotDir, string(comp)))
		if err != nil {
			logger.Warn("backup: %s failed: %v", comp, err)
			manifest.Components[comp] = domain.ComponentResult{Status: domain.ComponentFailed, Error: err.Error()}
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", comp, err))
			continue
		}
		manifest.Components[comp] = domain.ComponentResult{Status: domain.ComponentOK, SizeBytes: size}
	}

	cancelled := ctx.Err()
	manifest.Status = manifest.ResolveStatus()
	if cancelled != nil {
		manifest.Status = domain.BackupStatusFailed
	}
	compress := opts.Compress && cancelled == nil
	manifest.Compressed = compress
	if compress {
		manifest.Format = format
	}

	if err := writeManifest(snapshotDir, manifest); err != nil {
		m.setState(domain.BackupStateFailed)
		return nil, Wrap(componentBackup, "manifest", err)
	}

	// Publishing must finish even when the caller has gone away.
	if err := m.publish(context.WithoutCancel(ctx), snapshotDir, name, compress, format); err != nil {
		m.setState(domain.BackupStateFailed)
		return nil, Wrap(componentBackup, "publish", err)
	}
	if cancelled != nil {
		m.setState(domain.BackupStateFailed)
	} else {
		m.setState(domain.BackupStateManifestWritten)
	}

	if m.metrics != nil {
		m.metrics.IncBackup(manifest.Status)
	}
	logger.Info("backup: %s written (%s, %d bytes)", name, manifest.Status, manifest.TotalSize())

	if cancelled != nil {
		if m.tracker != nil {
			m.tracker.Record(componentBackup, cancelled, false)
		}
		return manifest, cancelled
	}

	if manifest.Status == domain.BackupStatusComplete {
		if err := m.prune(); err != nil {
			logger.Warn("backup: retention failed: %v", err)
		}
		return manifest, nil
	}

	err = domain.NewError(aggregateKind(errs), componentBackup, "create",
		fmt.Errorf("backup %s is %s: %w", name, manifest.Status, errs.ErrorOrNil()))
	if m.tracker != nil {
		m.tracker.Record(componentBackup, err, false)
	}
	return manifest, err
}

func (m *BackupManager) selected(comp domain.ComponentName, opts domain.BackupOptions) bool {
	switch comp {
	case domain.ComponentDocuments:
		return opts.IncludeDocuments
	case domain.ComponentChatHistory:
		return opts.IncludeChatHistory
	default:
		return true
	}
}

// captureComponent flushes the owning store and copies its directory to dst.
func (m *BackupManager) captureComponent(ctx context.Context, comp domain.ComponentName, dst string) (int64, error) {
	switch comp {
	case domain.ComponentVectorStore:
		if err := m.store.Flush(ctx); err != nil {
			return 0, fmt.Errorf("flush vector store: %w", err)
		}
	case domain.ComponentChatHistory:
		if m.history != nil {
			if err := m.history.Flush(ctx); err != nil {
				return 0, fmt.Errorf("flush chat history: %w", err)
			}
		}
	}
	return copyDir(ctx, m.componentDir(comp), dst)
}

// componentDir returns the live directory of a component.
func (m *BackupManager) componentDir(comp domain.ComponentName) string {
	switch comp {
	case domain.ComponentVectorStore:
		if p := m.store.Path(); p != "" {
			return p
		}
		return m.paths.VectorStoreDir
	case domain.ComponentChatHistory:
		if m.history != nil && m.history.Path() != "" {
			return m.history.Path()
		}
		return m.paths.ChatHistoryDir
	default:
		return m.paths.DocumentsDir
	}
}

func (m *BackupManager) publish(ctx context.Context, snapshotDir, name string, compress bool, format domain.ArchiveFormat) error {
	if !compress {
		return os.Rename(snapshotDir, filepath.Join(m.paths.BackupsDir, name))
	}
	final := filepath.Join(m.paths.BackupsDir, name+format.Extension())
	tmp := final + ".tmp"
	if err := writeArchive(ctx, snapshotDir, tmp, format); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

func (m *BackupManager) backupExists(name string) bool {
	candidates := []string{name, name + domain.ArchiveTarGz.Extension(), name + domain.ArchiveZip.Extension()}
	for _, c := range candidates {
		if _, err := os.Stat(filepath.Join(m.paths.BackupsDir, c)); err == nil {
			return true
		}
	}
	return false
}

// prune removes the oldest backups beyond MaxBackupFiles.
func (m *BackupManager) prune() error {
	if m.settings.MaxBackupFiles <= 0 {
		return nil
	}
	entries, err := m.list()
	if err != nil {
		return err
	}
	excess := len(entries) - m.settings.MaxBackupFiles
	var result *multierror.Error
	for i := 0; i < excess; i++ {
		logger.Info("backup: pruning %s", entries[i].Name)
		if err := os.RemoveAll(entries[i].Path); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func writeManifest(dir string, manifest *domain.BackupManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, domain.ManifestFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, domain.ManifestFileName))
}

// ==================== List ====================

// ListBackups returns every backup, oldest first.
func (m *BackupManager) ListBackups(_ context.Context) ([]domain.BackupEntry, error) {
	entries, err := m.list()
	if err != nil {
		return nil, Wrap(componentBackup, "list", err)
	}
	return entries, nil
}

func (m *BackupManager) list() ([]domain.BackupEntry, error) {
	dirEntries, err := os.ReadDir(m.paths.BackupsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.BackupEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	entries := []domain.BackupEntry{}
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entry := domain.BackupEntry{
			Path:    filepath.Join(m.paths.BackupsDir, de.Name()),
			ModTime: info.ModTime(),
		}

		if de.IsDir() {
			entry.Name = de.Name()
			entry.Manifest, entry.Problem = readDirManifest(entry.Path)
			entries = append(entries, entry)
			continue
		}

		format, ok := archiveFormatOf(de.Name())
		if !ok {
			continue
		}
		entry.Name = strings.TrimSuffix(de.Name(), format.Extension())
		entry.Archive = true
		manifest, err := readArchiveManifest(entry.Path, format)
		if err != nil {
			entry.Problem = manifestProblem(err)
		} else {
			entry.Manifest = manifest
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ci, cj := entries[i].CreatedAt(), entries[j].CreatedAt()
		if ci.Equal(cj) {
			return entries[i].Name < entries[j].Name
		}
		return ci.Before(cj)
	})
	return entries, nil
}

func readDirManifest(dir string) (*domain.BackupManifest, string) {
	data, err := os.ReadFile(filepath.Join(dir, domain.ManifestFileName))
	if err != nil {
		return nil, manifestProblem(err)
	}
	var manifest domain.BackupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, manifestProblem(fmt.Errorf("parse manifest: %w", err))
	}
	return &manifest, ""
}

func manifestProblem(err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return "manifest missing"
	}
	return "manifest unreadable: " + err.Error()
}

func archiveFormatOf(fileName string) (domain.ArchiveFormat, bool) {
	for _, f := range []domain.ArchiveFormat{domain.ArchiveTarGz, domain.ArchiveZip} {
		if strings.HasSuffix(fileName, f.Extension()) {
			return f, true
		}
	}
	return "", false
}

// ==================== Restore ====================

// RestoreBackup replaces the live components with those captured in the named backup.
func (m *BackupManager) RestoreBackup(ctx context.Context, name string) (*domain.RestoreResult, error) {
	entry, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	if entry.Manifest == nil {
		return nil, domain.ValidationErrorf(componentBackup, "backup %s cannot be restored: %s", entry.Name, entry.Problem)
	}
	if entry.Manifest.Status == domain.BackupStatusFailed {
		return nil, domain.ValidationErrorf(componentBackup, "backup %s failed and cannot be restored", entry.Name)
	}

	release, err := m.lock.AcquireExclusive("restore")
	if err != nil {
		return nil, err
	}
	defer release()

	m.setState(domain.BackupStateRestoring)
	defer m.setState(domain.BackupStateIdle)

	result, err := m.restore(ctx, entry)
	if err != nil {
		err = Wrap(componentBackup, "restore", err)
		if m.tracker != nil {
			m.tracker.Record(componentBackup, err, false)
		}
		return nil, err
	}
	if m.cache != nil {
		m.cache.Clear()
	}
	logger.Info("backup: restored %s (%d components)", entry.Name, len(result.Restored))
	return result, nil
}

func (m *BackupManager) restore(ctx context.Context, entry domain.BackupEntry) (*domain.RestoreResult, error) {
	root := entry.Path
	if entry.Archive {
		format, _ := archiveFormatOf(filepath.Base(entry.Path))
		if err := os.MkdirAll(m.paths.TempDir, 0o700); err != nil {
			return nil, err
		}
		tmp, err := os.MkdirTemp(m.paths.TempDir, "restore-*")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmp)
		if root, err = extractArchive(ctx, entry.Path, tmp, format); err != nil {
			return nil, err
		}
	}

	result := &domain.RestoreResult{Name: entry.Name}
	var restore []domain.ComponentName
	for _, comp := range domain.AllComponents() {
		if entry.Manifest.Components[comp].Status == domain.ComponentOK {
			restore = append(restore, comp)
		} else {
			result.Skipped = append(result.Skipped, comp)
		}
	}

	// Stage every component next to its live directory before touching anything.
	staged := make(map[domain.ComponentName]string, len(restore))
	defer func() {
		for _, p := range staged {
			_ = os.RemoveAll(p)
		}
	}()
	for _, comp := range restore {
		live := m.componentDir(comp)
		dst := live + restoreStagedSuffix
		_ = os.RemoveAll(dst)
		if _, err := copyDir(ctx, filepath.Join(root, string(comp)), dst); err != nil {
			return nil, fmt.Errorf("stage %s: %w", comp, err)
		}
		staged[comp] = dst
	}

	var swapped []domain.ComponentName
	for _, comp := range restore {
		if err := swapDir(m.componentDir(comp), staged[comp]); err != nil {
			m.rollback(swapped)
			return nil, fmt.Errorf("replace %s: %w", comp, err)
		}
		delete(staged, comp)
		swapped = append(swapped, comp)
	}

	for _, comp := range swapped {
		_ = os.RemoveAll(m.componentDir(comp) + restoreOldSuffix)
	}

	var errs *multierror.Error
	for _, comp := range swapped {
		if err := m.reload(ctx, comp); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("reload %s: %w", comp, err))
		}
	}
	result.Restored = swapped
	return result, errs.ErrorOrNil()
}

// swapDir moves live aside and staged into its place, undoing the first move on failure.
func swapDir(live, staged string) error {
	old := live + restoreOldSuffix
	_ = os.RemoveAll(old)

	hadLive := true
	if err := os.Rename(live, old); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		hadLive = false
	}
	if err := os.Rename(staged, live); err != nil {
		if hadLive {
			_ = os.Rename(old, live)
		}
		return err
	}
	return nil
}

func (m *BackupManager) rollback(swapped []domain.ComponentName) {
	for _, comp := range swapped {
		live := m.componentDir(comp)
		old := live + restoreOldSuffix
		if _, err := os.Stat(old); err != nil {
			continue
		}
		_ = os.RemoveAll(live)
		if err := os.Rename(old, live); err != nil {
			logger.Error("backup: rollback of %s failed: %v", comp, err)
		}
	}
}

func (m *BackupManager) reload(ctx context.Context, comp domain.ComponentName) error {
	switch comp {
	case domain.ComponentVectorStore:
		return m.store.Reload(ctx)
	case domain.ComponentChatHistory:
		if m.history != nil {
			return m.history.Reload(ctx)
		}
	}
	return nil
}

// resolve finds a backup by exact name, else by unique prefix.
func (m *BackupManager) resolve(name string) (domain.BackupEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.BackupEntry{}, domain.ValidationErrorf(componentBackup, "backup name is required")
	}
	entries, err := m.list()
	if err != nil {
		return domain.BackupEntry{}, Wrap(componentBackup, "list", err)
	}

	var matches []domain.BackupEntry
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
		if strings.HasPrefix(e.Name, name) {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return domain.BackupEntry{}, domain.NewError(domain.KindValidation, componentBackup, "restore",
			fmt.Errorf("%w: backup %q", domain.ErrNotFound, name))
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, e := range matches {
			names[i] = e.Name
		}
		return domain.BackupEntry{}, domain.NewError(domain.KindValidation, componentBackup, "restore",
			fmt.Errorf("%w: %q matches %s", domain.ErrAmbiguousBackup, name, strings.Join(names, ", ")))
	}
}

// ==================== Helpers ====================

// copyDir copies the tree at src to dst and returns the bytes copied.
// A missing src yields an empty dst.
func copyDir(ctx context.Context, src, dst string) (int64, error) {
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return 0, os.MkdirAll(dst, 0o700)
	}

	var total int64
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o700)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		n, err := copyFile(p, target)
		total += n
		return err
	})
	return total, err
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// aggregateKind picks the kind reported for a set of component failures.
func aggregateKind(errs *multierror.Error) domain.ErrorKind {
	if errs == nil {
		return domain.KindStorage
	}
	for _, e := range errs.Errors {
		if Classify(e) == domain.KindPermission {
			return domain.KindPermission
		}
	}
	return domain.KindStorage
}
