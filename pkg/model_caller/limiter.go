package model_caller

import (
	"context"
	"fmt"
)

// Limiter 并发槽位
// ConcurrencyLimiter（进程内）与 redis_limiter.RedisLimiter（跨进程）都满足该接口。
type Limiter interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string)
}

// ConcurrencyLimiter 并发限制器
type ConcurrencyLimiter struct {
	maxConcurrent int
	semaphore     chan struct{}
}

// NewConcurrencyLimiter 创建并发限制器
func NewConcurrencyLimiter(maxConcurrent int) *ConcurrencyLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ConcurrencyLimiter{
		maxConcurrent: maxConcurrent,
		semaphore:     make(chan struct{}, maxConcurrent),
	}
}

// Acquire 获取并发槽位
func (cl *ConcurrencyLimiter) Acquire(ctx context.Context, key string) error {
	select {
	case cl.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 释放并发槽位
func (cl *ConcurrencyLimiter) Release(ctx context.Context, key string) {
	select {
	case <-cl.semaphore:
	default:
	}
}

// LimitedTeacher 带并发限制的教师客户端
type LimitedTeacher struct {
	Teacher Teacher
	Limiter Limiter
	// Key 限流键，一般是模型名
	Key string
}

// Invoke 获取槽位后调用，调用结束立即释放
func (lt *LimitedTeacher) Invoke(ctx context.Context, prompt string) (*Result, error) {
	if err := lt.Limiter.Acquire(ctx, lt.Key); err != nil {
		return nil, fmt.Errorf("获取并发槽位失败: %w", err)
	}
	defer lt.Limiter.Release(context.WithoutCancel(ctx), lt.Key)

	return lt.Teacher.Invoke(ctx, prompt)
}
