package model_caller

import (
	"context"
	"fmt"
	"time"

	"distill-go/internal/dto"
)

// EnvelopeVersion 响应信封版本
const EnvelopeVersion = "v1"

// Teacher 教师模型客户端
// 单次调用，同步返回；重试与退避策略由具体实现负责。
type Teacher interface {
	Invoke(ctx context.Context, prompt string) (*Result, error)
}

// Result 教师模型响应信封
// Content 是正文，其余字段都是元数据，调用方不需要再从文本里剥离。
type Result struct {
	Version      string                 `json:"version"`
	Content      string                 `json:"content"`
	Model        string                 `json:"model,omitempty"`
	FinishReason string                 `json:"finish_reason,omitempty"`
	Usage        dto.Usage              `json:"usage"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Settings 创建教师客户端所需的配置
type Settings struct {
	Provider    string
	APIBase     string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
	RetryTimes  int
}

// NewTeacher 按 Provider 创建教师客户端
func NewTeacher(s Settings) (Teacher, error) {
	switch s.Provider {
	case "openai-compatible", "vllm", "":
		mc := NewModelCaller(s.APIBase, s.APIKey, s.Model, s.Provider == "vllm", s.Timeout)
		mc.Options = &CallOptions{
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
			TopP:        s.TopP,
			RetryTimes:  s.RetryTimes,
		}
		return mc, nil
	case "openai":
		return NewOpenAICaller(s)
	case "mock":
		return &MockTeacher{Model: s.Model}, nil
	default:
		return nil, fmt.Errorf("不支持的教师模型类型: %s", s.Provider)
	}
}
