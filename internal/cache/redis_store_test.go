package cache

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRedisStore 设置了 DISTILL_TEST_REDIS=host:port 时连接真实 Redis，否则使用 miniredis
func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("DISTILL_TEST_REDIS")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "test_cache:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRedisStore(client, prefix, logger)
}

func TestRedisStoreFirstWriterWins(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()
	key := Key("原文", []string{"结构清晰"})

	stored, err := s.Put(ctx, &Demonstration{Key: key, Output: "第一版"}, false)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.Put(ctx, &Demonstration{Key: key, Output: "第二版"}, false)
	require.NoError(t, err)
	assert.False(t, stored)

	demo, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "第一版", demo.Output)
	assert.False(t, demo.CreatedAt.IsZero())

	stored, err = s.Put(ctx, &Demonstration{Key: key, Output: "强制版"}, true)
	require.NoError(t, err)
	assert.True(t, stored)

	demo, _, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "强制版", demo.Output)
	assert.True(t, demo.Forced)
	assert.Equal(t, 1, s.Len())
}

func TestRedisStoreMissAndCorrupt(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Put(ctx, &Demonstration{}, false)
	assert.Error(t, err)
}

func TestRedisStoreCorruptEntryIsReplaceable(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()
	key := Key("原文", []string{"结构清晰"})
	require.NoError(t, s.client.Set(ctx, s.prefix+key, "{not json", 0).Err())

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := s.client.Exists(ctx, s.prefix+key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	stored, err := s.Put(ctx, &Demonstration{Key: key, Output: "重新生成"}, false)
	require.NoError(t, err)
	assert.True(t, stored)

	demo, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "重新生成", demo.Output)
}
