package logger

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// capture sends log output to a buffer at the given verbosity and restores
// the defaults when the test ends.
func capture(t *testing.T, v bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(v)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	capture(t, false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		log     func()
		want    string
	}{
		{"debug verbose", true, func() { Debug("retrieval: %d queries", 3) }, "[DEBUG] retrieval: 3 queries\n"},
		{"debug quiet", false, func() { Debug("retrieval: %d queries", 3) }, ""},
		{"info verbose", true, func() { Info("memory: ingested %s", "guide.pdf") }, "[INFO] memory: ingested guide.pdf\n"},
		{"info quiet", false, func() { Info("memory: ingested %s", "guide.pdf") }, ""},
		{"warn quiet", false, func() { Warn("optimizer: fell back: %s", "timeout") }, "[WARN] optimizer: fell back: timeout\n"},
		{"warn verbose", true, func() { Warn("optimizer: fell back: %s", "timeout") }, "[WARN] optimizer: fell back: timeout\n"},
		{"error quiet", false, func() { Error("backup: %v", "disk full") }, "[ERROR] backup: disk full\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, tt.verbose)
			tt.log()
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestSection(t *testing.T) {
	buf := capture(t, true)
	Section("Query")
	assert.Equal(t, "\n=== Query ===\n", buf.String())

	buf = capture(t, false)
	Section("Query")
	assert.Empty(t, buf.String())
}

func TestSetOutput_RedirectsExistingLevel(t *testing.T) {
	first := capture(t, true)
	var second bytes.Buffer
	SetOutput(&second)

	Info("scheduler: started")

	assert.Empty(t, first.String())
	assert.Equal(t, "[INFO] scheduler: started\n", second.String())
}

// lockedBuffer serialises writes from loggers rebuilt by concurrent SetVerbose calls.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConcurrentAccess(t *testing.T) {
	capture(t, false)
	buf := &lockedBuffer{}
	SetOutput(buf)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetVerbose(i%2 == 0)
			Debug("concurrent %d", i)
			Warn("concurrent %d", i)
			_ = IsVerbose()
		}()
	}
	wg.Wait()

	assert.Contains(t, buf.String(), "[WARN] concurrent")
}
