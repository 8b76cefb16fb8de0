package redis_limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ErrSlotsFull 槽位已满
var ErrSlotsFull = errors.New("并发限制已达到上限")

// 槽位占用：小于上限则 INCR 并刷新过期时间，否则返回上限+1 表示失败
var acquireScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then
	current = 0
else
	current = tonumber(current)
end

if current >= tonumber(ARGV[1]) then
	return current + 1
end

local newCount = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return newCount`)

// 槽位释放：计数归零时删除 key
var releaseScript = redis.NewScript(`
local count = redis.call('DECR', KEYS[1])
if tonumber(count) <= 0 then
	redis.call('DEL', KEYS[1])
	return 0
else
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
	return count
end`)

// RedisLimiter 基于Redis的并发限制器
// 同一台机器上的多个生成进程共用教师模型的并发额度。
type RedisLimiter struct {
	client        *redis.Client
	maxConcurrent int
	keyPrefix     string
	ttl           time.Duration
	maxWait       time.Duration
	logger        logrus.FieldLogger
}

// NewRedisLimiter 创建基于Redis的并发限制器
// maxWait 为 0 时 Acquire 只尝试一次。
func NewRedisLimiter(client *redis.Client, maxConcurrent int, keyPrefix string, ttl, maxWait time.Duration, logger logrus.FieldLogger) *RedisLimiter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisLimiter{
		client:        client,
		maxConcurrent: maxConcurrent,
		keyPrefix:     keyPrefix,
		ttl:           ttl,
		maxWait:       maxWait,
		logger:        logger.WithField("component", "redis_limiter"),
	}
}

// TryAcquire 尝试获取一次槽位
func (rl *RedisLimiter) TryAcquire(ctx context.Context, key string) error {
	redisKey := rl.keyPrefix + key

	result, err := acquireScript.Run(ctx, rl.client, []string{redisKey}, rl.maxConcurrent, int(rl.ttl.Seconds())).Int()
	if err != nil {
		return fmt.Errorf("执行Lua脚本失败: %w", err)
	}

	if result > rl.maxConcurrent {
		return fmt.Errorf("%w: %d", ErrSlotsFull, rl.maxConcurrent)
	}

	rl.logger.WithFields(logrus.Fields{"key": key, "slots": result, "max": rl.maxConcurrent}).Debug("获取槽位成功")
	return nil
}

// Acquire 获取并发槽位，槽位已满时指数退避轮询，直到超过最大等待时间
func (rl *RedisLimiter) Acquire(ctx context.Context, key string) error {
	start := time.Now()
	interval := 500 * time.Millisecond
	const maxInterval = 5 * time.Second

	for {
		err := rl.TryAcquire(ctx, key)
		if err == nil || !errors.Is(err, ErrSlotsFull) {
			return err
		}

		elapsed := time.Since(start)
		if elapsed >= rl.maxWait {
			return fmt.Errorf("获取槽位超时: 已等待 %v: %w", elapsed.Round(time.Second), err)
		}

		rl.logger.WithFields(logrus.Fields{"key": key, "waited": elapsed.Round(time.Second)}).Info("教师模型繁忙，等待重试")

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return fmt.Errorf("上下文已取消: %w", ctx.Err())
		}
		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// Release 释放并发槽位
func (rl *RedisLimiter) Release(ctx context.Context, key string) {
	redisKey := rl.keyPrefix + key

	remaining, err := releaseScript.Run(ctx, rl.client, []string{redisKey}, int(rl.ttl.Seconds())).Int()
	if err != nil {
		rl.logger.WithError(err).WithField("key", key).Warn("释放槽位失败")
		return
	}

	rl.logger.WithFields(logrus.Fields{"key": key, "remaining": remaining}).Debug("释放槽位")
}

// GetCurrent 获取当前并发数
func (rl *RedisLimiter) GetCurrent(ctx context.Context, key string) (int, error) {
	current, err := rl.client.Get(ctx, rl.keyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("获取当前并发数失败: %w", err)
	}
	return current, nil
}

// GetMaxConcurrent 获取最大并发数
func (rl *RedisLimiter) GetMaxConcurrent() int {
	return rl.maxConcurrent
}
