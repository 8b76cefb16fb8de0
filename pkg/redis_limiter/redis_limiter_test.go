package redis_limiter

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, max int, maxWait time.Duration) *RedisLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRedisLimiter(client, max, "teacher_slots:", time.Minute, maxWait, logger)
}

func TestRedisLimiterSlots(t *testing.T) {
	rl := newLimiter(t, 2, 0)
	ctx := context.Background()

	require.NoError(t, rl.TryAcquire(ctx, "m"))
	require.NoError(t, rl.Acquire(ctx, "m"))
	assert.ErrorIs(t, rl.TryAcquire(ctx, "m"), ErrSlotsFull)
	assert.ErrorIs(t, rl.Acquire(ctx, "m"), ErrSlotsFull)

	// 不同 key 各自计数
	require.NoError(t, rl.TryAcquire(ctx, "other"))

	current, err := rl.GetCurrent(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 2, current)

	rl.Release(ctx, "m")
	current, err = rl.GetCurrent(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 1, current)

	rl.Release(ctx, "m")
	current, err = rl.GetCurrent(ctx, "m")
	require.NoError(t, err)
	assert.Zero(t, current)
	assert.Equal(t, 2, rl.GetMaxConcurrent())
}

func TestRedisLimiterAcquireWaitsForRelease(t *testing.T) {
	rl := newLimiter(t, 1, 5*time.Second)
	ctx := context.Background()
	require.NoError(t, rl.TryAcquire(ctx, "m"))

	go func() {
		time.Sleep(100 * time.Millisecond)
		rl.Release(context.Background(), "m")
	}()

	start := time.Now()
	require.NoError(t, rl.Acquire(ctx, "m"))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRedisLimiterAcquireCancelled(t *testing.T) {
	rl := newLimiter(t, 1, time.Minute)
	require.NoError(t, rl.TryAcquire(context.Background(), "m"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := rl.Acquire(ctx, "m")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
