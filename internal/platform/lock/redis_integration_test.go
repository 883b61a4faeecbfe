//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kyb/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *RedisLocker
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.locker = NewRedis(s.redis.Client)
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestContention() {
	ctx := context.Background()
	lease, ok, err := s.locker.TryAcquire(ctx, testKey, time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, ok, err = s.locker.TryAcquire(ctx, testKey, time.Minute)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(lease.Release(ctx))
	_, ok, err = s.locker.TryAcquire(ctx, testKey, time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisLockerSuite) TestReleaseOnlyByHolder() {
	ctx := context.Background()
	stale, ok, err := s.locker.TryAcquire(ctx, testKey, 200*time.Millisecond)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Eventually(func() bool {
		_, ok, err := s.locker.TryAcquire(ctx, testKey, time.Minute)
		return err == nil && ok
	}, 3*time.Second, 50*time.Millisecond)

	s.ErrorIs(stale.Release(ctx), ErrNotHeld)
	s.Equal(int64(1), s.redis.Client.Exists(ctx, testKey).Val())
}
