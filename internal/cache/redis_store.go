package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// 值未被改写时才删除，避免删掉其他进程刚写入的有效条目
var deleteIfEqualScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0`)

// RedisStore Redis 缓存后端
// 非强制写入使用 SETNX，多个进程同时写同一 key 时只有第一个生效。
type RedisStore struct {
	client *redis.Client
	prefix string
	logger logrus.FieldLogger
}

// NewRedisStore 创建 Redis 缓存
func NewRedisStore(client *redis.Client, prefix string, logger logrus.FieldLogger) *RedisStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger.WithField("component", "redis_cache")}
}

// Get 查询缓存
// 无法解析的条目记录告警后删除并按未命中返回，之后的生成可以重新写入。
func (s *RedisStore) Get(ctx context.Context, key string) (*Demonstration, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取Redis缓存失败: %w", err)
	}

	var demo Demonstration
	if err := json.Unmarshal(data, &demo); err != nil {
		entry := s.logger.WithError(fmt.Errorf("%w: %v", ErrCorruptEntry, err)).WithField("cache_key", key)
		if _, delErr := deleteIfEqualScript.Run(ctx, s.client, []string{s.prefix + key}, data).Result(); delErr != nil {
			entry.WithField("delete_error", delErr.Error()).Warn("缓存条目损坏且删除失败")
		} else {
			entry.Warn("缓存条目损坏，已删除")
		}
		return nil, false, nil
	}
	return &demo, true, nil
}

// Put 写入缓存
func (s *RedisStore) Put(ctx context.Context, demo *Demonstration, force bool) (bool, error) {
	if demo == nil || demo.Key == "" {
		return false, errors.New("缓存条目缺少 key")
	}

	d := *demo
	d.Forced = force
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	data, err := json.Marshal(&d)
	if err != nil {
		return false, fmt.Errorf("序列化缓存条目失败: %w", err)
	}

	if force {
		if err := s.client.Set(ctx, s.prefix+d.Key, data, 0).Err(); err != nil {
			return false, fmt.Errorf("写入Redis缓存失败: %w", err)
		}
		return true, nil
	}

	stored, err := s.client.SetNX(ctx, s.prefix+d.Key, data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("写入Redis缓存失败: %w", err)
	}
	return stored, nil
}

// Len 统计前缀下的条目数
func (s *RedisStore) Len() int {
	ctx := context.Background()
	count := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if iter.Err() != nil {
		return -1
	}
	return count
}

// Close 客户端由调用方管理，这里不关闭
func (s *RedisStore) Close() error {
	return nil
}
