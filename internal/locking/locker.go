// Package locking serializes writers contending on one logical key. The
// relationship graph takes a per-parent lock around reorders so two reorders
// of the same parent's children never interleave.
package locking

import (
	"context"
	"sync"
	"time"
)

// Manager acquires an exclusive lock on a key, blocking until the lock is
// held or ctx is done. The returned release func is safe to call once.
type Manager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

type memoryManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryManager returns an in-process lock manager. Sufficient for a
// single instance; deployments with several replicas configure redis.
func NewMemoryManager() Manager {
	return &memoryManager{locks: make(map[string]*sync.Mutex)}
}

func (m *memoryManager) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return lock.Unlock, nil
	case <-ctx.Done():
		// The goroutine will still take the lock; release it as soon as
		// it does so the next waiter is not stranded.
		go func() {
			<-acquired
			lock.Unlock()
		}()
		return nil, ctx.Err()
	}
}
