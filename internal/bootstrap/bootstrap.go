// Package bootstrap 按配置组装服务端与命令行共用的组件。
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"distill-go/internal/cache"
	"distill-go/internal/config"
	"distill-go/pkg/model_caller"
	"distill-go/pkg/redis_limiter"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// NewLogger 按日志配置创建 logger
func NewLogger(cfg *config.Config, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stdout
	}
	logger := logrus.New()
	logger.SetOutput(out)

	if strings.EqualFold(cfg.Log.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.WithField("level", cfg.Log.Level).Warn("无效的日志级别，使用 info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewRedisClient 创建 Redis 客户端并检查连通性；未启用时返回 nil
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddress(),
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}
	return client, nil
}

// NewStore 按 cache.backend 创建示范缓存
func NewStore(cfg *config.Config, client *redis.Client, logger logrus.FieldLogger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("Redis缓存后端需要启用 redis_service")
		}
		return cache.NewRedisStore(client, cfg.Cache.RedisPrefix, logger), nil
	case "file", "":
		store, err := cache.OpenFileStore(cfg.Cache.Path, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("不支持的缓存后端: %s", cfg.Cache.Backend)
	}
}

// NewTeacher 创建教师客户端，按 teacher.limiter 包一层并发限制
func NewTeacher(cfg *config.Config, client *redis.Client, logger logrus.FieldLogger) (model_caller.Teacher, error) {
	t := cfg.Teacher
	teacher, err := model_caller.NewTeacher(model_caller.Settings{
		Provider:    t.Provider,
		APIBase:     t.APIBase,
		APIKey:      t.APIKey,
		Model:       t.Model,
		Temperature: t.Temperature,
		TopP:        t.TopP,
		MaxTokens:   t.MaxTokens,
		Timeout:     t.GetTimeout(),
		RetryTimes:  t.RetryTimes,
	})
	if err != nil {
		return nil, err
	}

	var limiter model_caller.Limiter
	switch t.Limiter {
	case "local":
		limiter = model_caller.NewConcurrencyLimiter(t.MaxConcurrent)
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("Redis限流需要启用 redis_service")
		}
		limiter = redis_limiter.NewRedisLimiter(
			client,
			t.MaxConcurrent,
			"teacher_slots:",
			cfg.Redis.GetSlotTTL(),
			cfg.Redis.GetMaxWaitDuration(),
			logger,
		)
	default:
		return teacher, nil
	}

	return &model_caller.LimitedTeacher{Teacher: teacher, Limiter: limiter, Key: t.Model}, nil
}
