package services

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// StoreLock coordinates access to the knowledge store.
//
// Queries share the read side. Ingestion takes the write side and waits.
// Exclusive operations (backup, restore, forget, clear) must first win the
// mutation guard, so a second one fails immediately instead of queueing.
type StoreLock struct {
	data     sync.RWMutex
	mutation sync.Mutex
	holder   *atomic.String
}

// NewStoreLock creates an unlocked StoreLock.
func NewStoreLock() *StoreLock {
	return &StoreLock{holder: atomic.NewString("")}
}

// RLock acquires the shared side.
func (l *StoreLock) RLock() { l.data.RLock() }

// RUnlock releases the shared side.
func (l *StoreLock) RUnlock() { l.data.RUnlock() }

// Lock acquires the write side, waiting for readers and writers.
func (l *StoreLock) Lock() { l.data.Lock() }

// Unlock releases the write side.
func (l *StoreLock) Unlock() { l.data.Unlock() }

// Holder returns the exclusive operation in progress, or "".
func (l *StoreLock) Holder() string {
	return l.holder.Load()
}

// AcquireExclusive claims the store for op and takes the write side.
// It fails with ErrStoreBusy if another exclusive operation is running.
// The returned function releases both.
func (l *StoreLock) AcquireExclusive(op string) (func(), error) {
	if !l.mutation.TryLock() {
		holder := l.holder.Load()
		if holder == "" {
			holder = "another operation"
		}
		return nil, domain.NewError(domain.KindStorage, "store", op,
			fmt.Errorf("%w: %s is in progress", domain.ErrStoreBusy, holder))
	}
	l.holder.Store(op)
	l.data.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.data.Unlock()
			l.holder.Store("")
			l.mutation.Unlock()
		})
	}, nil
}
