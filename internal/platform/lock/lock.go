// Package lock provides a non-blocking, TTL-bounded mutual exclusion lock
// shared by every replica of a job. A lease is released only by the holder
// that acquired it; a holder that crashes loses the lock when the TTL lapses.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Release when the lease expired or was taken over
// by another holder before release.
var ErrNotHeld = errors.New("lock not held")

// Lease is a held lock.
type Lease interface {
	Key() string
	Token() string
	Release(ctx context.Context) error
}

// Locker hands out leases. TryAcquire never waits: acquired is false when
// another holder owns key.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, acquired bool, err error)
}
