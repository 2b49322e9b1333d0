package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// ==================== StoreLock Tests ====================

func TestStoreLock_ExclusiveFailsFast(t *testing.T) {
	lock := NewStoreLock()

	release, err := lock.AcquireExclusive("backup")
	require.NoError(t, err)
	assert.Equal(t, "backup", lock.Holder())

	_, err = lock.AcquireExclusive("restore")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreBusy)
	assert.Contains(t, err.Error(), "backup is in progress")

	release()
	release()
	assert.Empty(t, lock.Holder())

	release2, err := lock.AcquireExclusive("restore")
	require.NoError(t, err)
	release2()
}

func TestStoreLock_ExclusiveWaitsForReaders(t *testing.T) {
	lock := NewStoreLock()
	lock.RLock()

	acquired := make(chan struct{})
	go func() {
		release, err := lock.AcquireExclusive("clear")
		if err == nil {
			close(acquired)
			release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("exclusive access granted while a reader holds the lock")
	case <-time.After(30 * time.Millisecond):
	}

	lock.RUnlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("exclusive access never granted")
	}
}

func TestStoreLock_ReadersShare(t *testing.T) {
	lock := NewStoreLock()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock.RLock()
			time.Sleep(5 * time.Millisecond)
			lock.RUnlock()
		}()
	}
	wg.Wait()

	lock.Lock()
	lock.Unlock()
}
