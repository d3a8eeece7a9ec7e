package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/hyperion/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func limiterConfig() config.Config {
	return config.Config{RateLimit: config.RateLimitConfig{LoginPerSecond: 0.001, LoginBurst: 2}}
}

func TestLoginLimiterRedis(t *testing.T) {
	limiter := NewLoginLimiter(limiterConfig(), newRedis(t), zap.NewNop())
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "authorize:10.0.0.1"))
	assert.True(t, limiter.Allow(ctx, "authorize:10.0.0.1"))
	assert.False(t, limiter.Allow(ctx, "authorize:10.0.0.1"))
	assert.True(t, limiter.Allow(ctx, "authorize:10.0.0.2"), "buckets are per key")
}

func TestLoginLimiterLocalFallback(t *testing.T) {
	limiter := NewLoginLimiter(limiterConfig(), nil, zap.NewNop())
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "k"))
	assert.True(t, limiter.Allow(ctx, "k"))
	assert.False(t, limiter.Allow(ctx, "k"))
}

func TestLoginLimiterPrunesIdleKeys(t *testing.T) {
	limiter := NewLoginLimiter(limiterConfig(), nil, zap.NewNop())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	limiter.allowLocal("old", start)
	limiter.pruneLocked(start.Add(localLimiterIdle + time.Second))
	assert.Empty(t, limiter.local)
}

func TestTokenBucketValidation(t *testing.T) {
	bucket := NewTokenBucket(newRedis(t))
	ctx := context.Background()

	_, err := bucket.Allow(ctx, "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(ctx, "k", 0, 1)
	assert.Error(t, err)

	res, err := bucket.Allow(ctx, "k", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Limit)
}

func TestWalletLockerRedis(t *testing.T) {
	locker := NewWalletLocker(newRedis(t))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "w1")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "w1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(ctx, "w2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := locker.Lock(ctx, "w1")
	require.NoError(t, err)
	again()
}

func TestWalletLockerLocal(t *testing.T) {
	locker := NewWalletLocker(nil)
	unlock, err := locker.Lock(context.Background(), "w1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release, _ := locker.Lock(context.Background(), "w1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(30 * time.Millisecond):
	}
	unlock()
	<-acquired
}
