package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "kyb:lock:test"

func TestInMemoryLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("second acquire fails while held", func(t *testing.T) {
		l := NewInMemory().WithClock(clock)
		first, ok, err := l.TryAcquire(ctx, testKey, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = l.TryAcquire(ctx, testKey, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, first.Release(ctx))
		_, ok, err = l.TryAcquire(ctx, testKey, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expired lease can be taken over and the old holder cannot release", func(t *testing.T) {
		current := now
		l := NewInMemory().WithClock(func() time.Time { return current })
		stale, ok, err := l.TryAcquire(ctx, testKey, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		current = current.Add(2 * time.Minute)
		fresh, ok, err := l.TryAcquire(ctx, testKey, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotEqual(t, stale.Token(), fresh.Token())

		assert.ErrorIs(t, stale.Release(ctx), ErrNotHeld)
		require.NoError(t, fresh.Release(ctx))
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := NewInMemory().WithClock(clock)
		_, ok, err := l.TryAcquire(ctx, "a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		_, ok, err = l.TryAcquire(ctx, "b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		_, _, err := NewInMemory().TryAcquire(ctx, testKey, 0)
		assert.Error(t, err)
	})
}
