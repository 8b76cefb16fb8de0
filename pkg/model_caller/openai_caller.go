package model_caller

import (
	"context"
	"errors"

	"distill-go/internal/dto"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICaller 使用官方 openai-go SDK 的教师客户端
type OpenAICaller struct {
	client   openai.Client
	settings Settings
}

// NewOpenAICaller 创建 openai-go 教师客户端
func NewOpenAICaller(s Settings) (*OpenAICaller, error) {
	if s.APIKey == "" {
		return nil, errors.New("openai api key missing; provide teacher.api_key")
	}
	if s.Model == "" {
		return nil, errors.New("teacher model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(s.RetryTimes),
	}
	if s.APIBase != "" {
		opts = append(opts, option.WithBaseURL(s.APIBase))
	}
	if s.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(s.Timeout))
	}

	return &OpenAICaller{client: openai.NewClient(opts...), settings: s}, nil
}

func (o *OpenAICaller) Invoke(ctx context.Context, prompt string) (*Result, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.settings.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(o.settings.Temperature),
		TopP:        openai.Float(o.settings.TopP),
	}
	if o.settings.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.settings.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyChoices
	}

	choice := resp.Choices[0]
	return &Result{
		Version:      EnvelopeVersion,
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: dto.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Metadata: map[string]interface{}{
			"id": resp.ID,
		},
	}, nil
}
