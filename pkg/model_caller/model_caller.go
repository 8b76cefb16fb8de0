package model_caller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"distill-go/internal/dto"
)

// ErrEmptyChoices 模型返回空的 choices
var ErrEmptyChoices = errors.New("API返回空响应")

// ModelCaller 模型调用客户端（OpenAI兼容 /chat/completions）
type ModelCaller struct {
	client  *http.Client
	apiBase string
	apiKey  string
	model   string
	timeout time.Duration
	isVLLM  bool

	// Options Invoke 使用的默认调用选项
	Options *CallOptions
}

// CallOptions 调用选项
type CallOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	// RetryTimes 失败后的额外尝试次数
	RetryTimes int
}

// 重试退避
const (
	retryInterval    = 500 * time.Millisecond
	maxRetryInterval = 5 * time.Second
)

// NewModelCaller 创建模型调用客户端
func NewModelCaller(apiBase, apiKey, model string, isVLLM bool, timeout time.Duration) *ModelCaller {
	return &ModelCaller{
		client: &http.Client{
			Timeout: timeout,
		},
		apiBase: strings.TrimRight(apiBase, "/"),
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		isVLLM:  isVLLM,
	}
}

func defaultCallOptions() *CallOptions {
	return &CallOptions{
		MaxTokens:   2048,
		Temperature: 1.0,
		TopP:        1.0,
	}
}

// Invoke 以单条用户消息调用教师模型，返回响应信封
func (mc *ModelCaller) Invoke(ctx context.Context, prompt string) (*Result, error) {
	options := mc.Options
	if options == nil {
		options = defaultCallOptions()
	}

	messages := []dto.Message{{Role: "user", Content: prompt}}

	var lastErr error
	wait := retryInterval
	for attempt := 0; attempt <= options.RetryTimes; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, fmt.Errorf("上下文已取消: %w", ctx.Err())
			}
			wait *= 2
			if wait > maxRetryInterval {
				wait = maxRetryInterval
			}
		}

		resp, err := mc.Call(ctx, messages, options)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = ErrEmptyChoices
			continue
		}

		choice := resp.Choices[0]
		return &Result{
			Version:      EnvelopeVersion,
			Content:      choice.Message.Content,
			Model:        resp.Model,
			FinishReason: choice.FinishReason,
			Usage:        resp.Usage,
			Metadata: map[string]interface{}{
				"id":       resp.ID,
				"attempts": attempt + 1,
			},
		}, nil
	}

	return nil, lastErr
}

// Call 调用模型
func (mc *ModelCaller) Call(ctx context.Context, messages []dto.Message, options *CallOptions) (*dto.ModelCallResponse, error) {
	if options == nil {
		options = defaultCallOptions()
	}

	// vLLM 与 OpenAI 的请求体目前一致
	reqBody := dto.ChatCompletionRequest{
		Model:       mc.model,
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		TopP:        options.TopP,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	// 构建HTTP请求
	url := mc.apiBase + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if mc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+mc.apiKey)
	}

	resp, err := mc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API返回错误: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result dto.ModelCallResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	return &result, nil
}
