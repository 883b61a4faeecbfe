package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryLocker is a single-process Locker for tests and local runs.
type InMemoryLocker struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

func NewInMemory() *InMemoryLocker {
	return &InMemoryLocker{held: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the clock used to evaluate TTLs.
func (l *InMemoryLocker) WithClock(now func() time.Time) *InMemoryLocker {
	l.now = now
	return l
}

func (l *InMemoryLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if ttl <= 0 {
		return nil, false, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expiresAt) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.held[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, token: token}, true, nil
}

func (l *InMemoryLocker) release(key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[key]
	if !ok || e.token != token || !l.now().Before(e.expiresAt) {
		return ErrNotHeld
	}
	delete(l.held, key)
	return nil
}

type memoryLease struct {
	locker *InMemoryLocker
	key    string
	token  string
}

func (l *memoryLease) Key() string   { return l.key }
func (l *memoryLease) Token() string { return l.token }

func (l *memoryLease) Release(context.Context) error {
	return l.locker.release(l.key, l.token)
}
