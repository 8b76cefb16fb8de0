package bootstrap

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"distill-go/internal/cache"
	"distill-go/internal/config"
	"distill-go/pkg/model_caller"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	logger.WithField("run_id", "r1").Info("hello")
	assert.Contains(t, buf.String(), `"run_id":"r1"`)

	cfg.Log.Level = "loud"
	cfg.Log.Format = "text"
	logger = NewLogger(cfg, &buf)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNewStoreAndTeacher(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.Backend = "file"
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.jsonl")
	cfg.Teacher.Provider = "mock"
	cfg.Teacher.Model = "mock-model"
	cfg.Teacher.MaxConcurrent = 2

	store, err := NewStore(cfg, nil, nil)
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &cache.FileStore{}, store)

	cfg.Cache.Backend = "redis"
	_, err = NewStore(cfg, nil, nil)
	assert.Error(t, err)

	cfg.Teacher.Limiter = "none"
	teacher, err := NewTeacher(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &model_caller.MockTeacher{}, teacher)

	cfg.Teacher.Limiter = "local"
	teacher, err = NewTeacher(cfg, nil, nil)
	require.NoError(t, err)
	limited, ok := teacher.(*model_caller.LimitedTeacher)
	require.True(t, ok)
	assert.Equal(t, "mock-model", limited.Key)

	res, err := teacher.Invoke(context.Background(), "原文:\n段落")
	require.NoError(t, err)
	assert.Equal(t, "【润色示范】段落", res.Content)

	cfg.Teacher.Limiter = "redis"
	_, err = NewTeacher(cfg, nil, nil)
	assert.Error(t, err)

	client, err := NewRedisClient(context.Background(), cfg)
	assert.NoError(t, err)
	assert.Nil(t, client)
}
