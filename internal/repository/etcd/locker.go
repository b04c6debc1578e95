package etcd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/services/network"
)

var _ network.Locker = (*Locker)(nil)

// Locker is a network.Locker shared by every instance using the same etcd
// cluster. Mutexes created from one session do not exclude each other, so an
// in-process lock is taken first.
type Locker struct {
	client  *Client
	prefix  string
	timeout time.Duration
	local   *network.LocalLocker
}

// NewLocker returns a Locker whose keys live under /locks/<prefix>.
func (c *Client) NewLocker(prefix string, timeout time.Duration) *Locker {
	return &Locker{
		client:  c,
		prefix:  prefix,
		timeout: timeout,
		local:   network.NewLocalLocker(timeout),
	}
}

// Lock acquires the lock for key.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	var lock *Lock
	if l.timeout > 0 {
		lock, err = l.client.TryAcquireLock(ctx, l.prefix+key, l.timeout)
	} else {
		lock, err = l.client.AcquireLock(ctx, l.prefix+key)
	}
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lock.Unlock(ctx); err != nil {
				l.client.logger.Warn("Failed to release lock", zap.String("key", l.prefix+key), zap.Error(err))
			}
			unlockLocal()
		})
	}, nil
}
