package model_caller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"distill-go/internal/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, failures int32, content string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req dto.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		if n <= failures {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(dto.ModelCallResponse{
			ID:    "chatcmpl-1",
			Model: "qwen",
			Choices: []dto.Choice{{
				Message:      dto.Message{Role: "assistant", Content: content},
				FinishReason: "stop",
			}},
			Usage: dto.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestModelCaller_InvokeReturnsEnvelope(t *testing.T) {
	srv, calls := chatServer(t, 0, "润色后的段落")
	mc := NewModelCaller(srv.URL+"/v1/", "sk-test", "qwen", false, 5*time.Second)

	res, err := mc.Invoke(context.Background(), "原文: 草稿")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, EnvelopeVersion, res.Version)
	assert.Equal(t, "润色后的段落", res.Content)
	assert.Equal(t, "stop", res.FinishReason)
	assert.Equal(t, 8, res.Usage.TotalTokens)
	assert.Equal(t, "chatcmpl-1", res.Metadata["id"])
}

func TestModelCaller_RetriesConfiguredTimes(t *testing.T) {
	srv, calls := chatServer(t, 1, "ok")
	mc := NewModelCaller(srv.URL+"/v1", "sk-test", "qwen", true, 5*time.Second)
	mc.Options = &CallOptions{MaxTokens: 64, Temperature: 0.2, TopP: 1, RetryTimes: 1}

	res, err := mc.Invoke(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestModelCaller_NoRetryByDefault(t *testing.T) {
	srv, calls := chatServer(t, 1, "ok")
	mc := NewModelCaller(srv.URL+"/v1", "sk-test", "qwen", false, 5*time.Second)

	_, err := mc.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestModelCaller_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	mc := NewModelCaller(srv.URL, "", "qwen", false, time.Second)
	_, err := mc.Invoke(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyChoices)
}

func TestNewTeacher_Providers(t *testing.T) {
	teacher, err := NewTeacher(Settings{Provider: "mock", Model: "m"})
	require.NoError(t, err)
	res, err := teacher.Invoke(context.Background(), "要求...\n原文: 一段草稿")
	require.NoError(t, err)
	assert.Equal(t, "【润色示范】一段草稿", res.Content)

	teacher, err = NewTeacher(Settings{Provider: "vllm", APIBase: "http://localhost:1/v1", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &ModelCaller{}, teacher)

	_, err = NewTeacher(Settings{Provider: "openai", Model: "gpt-4o-mini"})
	assert.Error(t, err)

	_, err = NewTeacher(Settings{Provider: "unknown"})
	assert.Error(t, err)
}

func TestLimitedTeacher_BoundsConcurrency(t *testing.T) {
	limiter := NewConcurrencyLimiter(1)
	lt := &LimitedTeacher{Teacher: &MockTeacher{}, Limiter: limiter, Key: "m"}

	require.NoError(t, limiter.Acquire(context.Background(), "m"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := lt.Invoke(ctx, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	limiter.Release(context.Background(), "m")
	_, err = lt.Invoke(context.Background(), "p")
	assert.NoError(t, err)
}
