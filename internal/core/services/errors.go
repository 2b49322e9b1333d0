package services

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// DefaultErrorHistory is the number of error records kept in memory.
const DefaultErrorHistory = 200

// Classify maps a concrete failure to an error kind.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindUnknown
	}

	var de *domain.Error
	if errors.As(err, &de) && de.Kind != "" {
		return de.Kind
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrAmbiguousBackup),
		errors.Is(err, domain.ErrNoPendingPreview):
		return domain.KindValidation
	case errors.Is(err, fs.ErrPermission):
		return domain.KindPermission
	case errors.Is(err, domain.ErrLLMUnavailable),
		errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrVectorStoreUnavailable),
		errors.Is(err, domain.ErrCapabilityUnsupported),
		errors.Is(err, domain.ErrUnsupportedType),
		errors.Is(err, domain.ErrNotImplemented),
		errors.Is(err, domain.ErrRateLimited):
		return domain.KindDependency
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrStoreBusy),
		errors.Is(err, syscall.ENOSPC):
		return domain.KindStorage
	case isNetworkError(err):
		return domain.KindNetwork
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return domain.KindStorage
	}
	return domain.KindUnknown
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host")
}

// Wrap classifies err and attaches the component and operation.
// An error that is already classified keeps its kind and remedy.
// Returns nil if err is nil.
func Wrap(component, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.NewError(Classify(err), component, op, err)
}

// ErrorTracker keeps a bounded history of classified errors.
// It is safe for concurrent use.
type ErrorTracker struct {
	mu       sync.Mutex
	records  []domain.ErrorRecord
	next     int
	full     bool
	metrics  driven.MetricsRecorder
	now      func() time.Time
	capacity int
}

// NewErrorTracker creates a tracker holding at most capacity records.
func NewErrorTracker(capacity int) *ErrorTracker {
	if capacity <= 0 {
		capacity = DefaultErrorHistory
	}
	return &ErrorTracker{
		records:  make([]domain.ErrorRecord, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// SetMetrics sets the recorder that counts tracked errors.
func (t *ErrorTracker) SetMetrics(m driven.MetricsRecorder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// Record classifies err and appends it to the history.
func (t *ErrorTracker) Record(component string, err error, recoverable bool) domain.ErrorRecord {
	kind := Classify(err)
	action := kind.DefaultSuggestedAction()

	var de *domain.Error
	if errors.As(err, &de) && de.SuggestedAction != "" {
		action = de.SuggestedAction
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}

	rec := domain.ErrorRecord{
		ID:              uuid.NewString(),
		Kind:            kind,
		Component:       component,
		Message:         msg,
		Recoverable:     recoverable,
		SuggestedAction: action,
	}

	t.mu.Lock()
	rec.Timestamp = t.now()
	t.records[t.next] = rec
	t.next = (t.next + 1) % t.capacity
	if t.next == 0 {
		t.full = true
	}
	m := t.metrics
	t.mu.Unlock()

	if m != nil {
		m.IncError(kind, component)
	}
	if recoverable {
		logger.Debug("%s: recovered from %s: %s", component, kind, msg)
	} else {
		logger.Warn("%s: %s: %s", component, kind, msg)
	}
	return rec
}

// Records returns the retained records, oldest first.
func (t *ErrorTracker) Records() []domain.ErrorRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		out := make([]domain.ErrorRecord, t.next)
		copy(out, t.records[:t.next])
		return out
	}
	out := make([]domain.ErrorRecord, 0, t.capacity)
	out = append(out, t.records[t.next:]...)
	out = append(out, t.records[:t.next]...)
	return out
}

// Summary aggregates the retained records.
// Recent holds up to limit records, newest first.
func (t *ErrorTracker) Summary(limit int) domain.ErrorSummary {
	records := t.Records()

	summary := domain.ErrorSummary{
		Total:       len(records),
		ByKind:      make(map[domain.ErrorKind]int),
		ByComponent: make(map[string]int),
		Recent:      []domain.ErrorRecord{},
	}
	for _, r := range records {
		summary.ByKind[r.Kind]++
		summary.ByComponent[r.Component]++
		if r.Recoverable {
			summary.Recoverable++
		}
	}

	for i := len(records) - 1; i >= 0; i-- {
		if limit > 0 && len(summary.Recent) == limit {
			break
		}
		summary.Recent = append(summary.Recent, records[i])
	}
	return summary
}

// WithFallback runs fn and returns fallback if it fails.
// The failure is recorded as recoverable. A nil tracker only logs.
func WithFallback[T any](t *ErrorTracker, component string, fallback T, fn func() (T, error)) T {
	v, err := fn()
	if err == nil {
		return v
	}
	if t != nil {
		t.Record(component, err, true)
	} else {
		logger.Debug("%s: using fallback: %v", component, err)
	}
	return fallback
}
