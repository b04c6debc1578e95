package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/limiquantix/addrpool/internal/domain"
)

// Locker serializes mutations of a single profile.
type Locker interface {
	// Lock blocks until the lock for key is held or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is an in-process Locker with one lock per profile.
type LocalLocker struct {
	timeout time.Duration

	poolLocks   map[string]chan struct{}
	poolLocksMu sync.Mutex
}

// NewLocalLocker creates a LocalLocker. A zero timeout waits until ctx is done.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{
		timeout:   timeout,
		poolLocks: make(map[string]chan struct{}),
	}
}

// Lock acquires the lock for key.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock := l.getPoolLock(key)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case lock <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-lock }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: failed to acquire lock for %s: %w", domain.ErrUnavailable, key, ctx.Err())
	}
}

// getPoolLock returns the lock channel for key, creating it on first use.
func (l *LocalLocker) getPoolLock(key string) chan struct{} {
	l.poolLocksMu.Lock()
	defer l.poolLocksMu.Unlock()

	lock, ok := l.poolLocks[key]
	if !ok {
		lock = make(chan struct{}, 1)
		l.poolLocks[key] = lock
	}
	return lock
}
