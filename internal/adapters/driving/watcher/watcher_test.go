package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// mockIngester records ingest requests.
type mockIngester struct {
	mu       sync.Mutex
	requests []driving.IngestRequest
	err      error
}

func (m *mockIngester) Ingest(_ context.Context, req driving.IngestRequest) (*driving.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &driving.IngestResult{Source: filepath.Base(req.Path), Chunks: 1}, nil
}

func (m *mockIngester) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	for i, r := range m.requests {
		out[i] = r.Path
	}
	return out
}

// startWatcher runs w in the background and returns a channel of reported events.
func startWatcher(t *testing.T, w *Watcher) <-chan Event {
	t.Helper()
	events := make(chan Event, 16)
	w.SetReporter(func(e Event) { events <- e })
	w.SetDebounce(30 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)
	return events
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ingest")
		return Event{}
	}
}

// ==================== Run Tests ====================

func TestWatcher_IngestsNewFile(t *testing.T) {
	root := t.TempDir()
	ingester := &mockIngester{}
	events := startWatcher(t, New(root, ingester))

	path := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes"), 0o600))

	e := waitEvent(t, events)
	assert.Equal(t, path, e.Path)
	require.NoError(t, e.Err)
	assert.Equal(t, "notes.md", e.Result.Source)

	ingester.mu.Lock()
	assert.True(t, ingester.requests[0].Replace, "watched files replace their previous chunks")
	ingester.mu.Unlock()
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))

	ingester := &mockIngester{}
	events := startWatcher(t, New(root, ingester))

	for _, content := range []string{"ab", "abc", "abcd"} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	waitEvent(t, events)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{path}, ingester.paths())
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	ingester := &mockIngester{}
	events := startWatcher(t, New(root, ingester))

	sub := filepath.Join(root, "manuals")
	require.NoError(t, os.Mkdir(sub, 0o700))
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "router.txt")
	require.NoError(t, os.WriteFile(path, []byte("reset"), 0o600))

	assert.Equal(t, path, waitEvent(t, events).Path)
}

func TestWatcher_ReportsIngestErrors(t *testing.T) {
	root := t.TempDir()
	ingester := &mockIngester{err: errors.New("not UTF-8")}
	events := startWatcher(t, New(root, ingester))

	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0xff}, 0o600))

	e := waitEvent(t, events)
	assert.EqualError(t, e.Err, "not UTF-8")
	assert.Nil(t, e.Result)
}

func TestWatcher_RunErrors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		w := New("/non/existent/path", &mockIngester{})
		err := w.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "root path error")
	})

	t.Run("root is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file.txt")
		require.NoError(t, os.WriteFile(file, nil, 0o600))

		err := New(file, &mockIngester{}).Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("closed", func(t *testing.T) {
		w := New(t.TempDir(), &mockIngester{})
		require.NoError(t, w.Close())
		assert.ErrorIs(t, w.Run(context.Background()), ErrClosed)
	})
}

// ==================== Event Tests ====================

func TestHandleFsEvent(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		dir       bool
		create    bool
		operation fsnotify.Op
		ingest    bool
	}{
		{name: "create file", file: "a.txt", create: true, operation: fsnotify.Create, ingest: true},
		{name: "write file", file: "a.txt", create: true, operation: fsnotify.Write, ingest: true},
		{name: "write and chmod", file: "a.txt", create: true, operation: fsnotify.Write | fsnotify.Chmod, ingest: true},
		{name: "chmod only", file: "a.txt", create: true, operation: fsnotify.Chmod},
		{name: "remove", file: "gone.txt", operation: fsnotify.Remove},
		{name: "rename", file: "gone.txt", operation: fsnotify.Rename},
		{name: "create vanished file", file: "gone.txt", operation: fsnotify.Create},
		{name: "directory", file: "sub", dir: true, create: true, operation: fsnotify.Create},
		{name: "hidden file", file: ".swp", create: true, operation: fsnotify.Write},
		{name: "file in hidden dir", file: ".git/config", create: true, operation: fsnotify.Write},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			path := filepath.Join(root, tt.file)
			if tt.create {
				require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
				if tt.dir {
					require.NoError(t, os.Mkdir(path, 0o700))
				} else {
					require.NoError(t, os.WriteFile(path, []byte("content"), 0o600))
				}
			}

			w := New(root, &mockIngester{})
			got := w.handleFsEvent(nil, fsnotify.Event{Name: path, Op: tt.operation})

			if tt.ingest {
				assert.Equal(t, path, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{".config/.cache/data", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{"file.hidden", false},
		{"directory.name/file", false},
		{".", false},
		{"..", false},
		{"path/../file", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}
