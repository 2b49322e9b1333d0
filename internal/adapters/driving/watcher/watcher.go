// Package watcher ingests files as they appear or change in the documents corpus.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// DefaultDebounce is how long a file must be quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("watcher: closed")

// Ingester is the part of the memory service the watcher drives.
type Ingester interface {
	Ingest(ctx context.Context, req driving.IngestRequest) (*driving.IngestResult, error)
}

// Event reports the outcome of ingesting one changed file.
type Event struct {
	Path   string
	Result *driving.IngestResult
	Err    error
}

// Watcher ingests created and modified files under a root directory.
// Every ingest replaces the chunks previously stored for the file.
type Watcher struct {
	root     string
	ingester Ingester
	debounce time.Duration
	report   func(Event)

	mu     sync.Mutex
	closed bool
}

// New creates a watcher for root.
func New(root string, ingester Ingester) *Watcher {
	return &Watcher{
		root:     root,
		ingester: ingester,
		debounce: DefaultDebounce,
	}
}

// SetDebounce sets the quiet period before a changed file is ingested.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// SetReporter sets a callback invoked after every ingest attempt.
func (w *Watcher) SetReporter(fn func(Event)) {
	w.report = fn
}

// Close stops future runs. A running Run returns when its context ends.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Run watches the root until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}

	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path error: %s is not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root); err != nil {
		return err
	}
	logger.Info("watcher: watching %s", w.root)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(max(w.debounce/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if path := w.handleFsEvent(fsw, event); path != "" {
				pending[path] = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: %v", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(pending, path)
				w.ingest(ctx, path)
			}
		}
	}
}

// handleFsEvent returns the file to ingest for event, or "" to ignore it.
// New directories are added to the watch list.
func (w *Watcher) handleFsEvent(fsw *fsnotify.Watcher, event fsnotify.Event) string {
	if isHidden(relativeTo(w.root, event.Name)) {
		return ""
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return ""
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return ""
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) && fsw != nil {
			if err := w.addTree(fsw, event.Name); err != nil {
				logger.Warn("watcher: %v", err)
			}
		}
		return ""
	}
	if !info.Mode().IsRegular() {
		return ""
	}
	return event.Name
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	result, err := w.ingester.Ingest(ctx, driving.IngestRequest{Path: path, Replace: true})
	if err != nil {
		logger.Warn("watcher: ingest %s: %v", path, err)
	} else {
		logger.Debug("watcher: ingested %s (%d chunks)", path, result.Chunks)
	}
	if w.report != nil {
		w.report(Event{Path: path, Result: result, Err: err})
	}
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && isHidden(relativeTo(w.root, path)) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part != "" && part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
