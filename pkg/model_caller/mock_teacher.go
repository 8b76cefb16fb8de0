package model_caller

import (
	"context"
	"strings"
	"unicode/utf8"

	"distill-go/internal/dto"
)

// MockTeacher 本地调试用，不调用外部模型。
// 把提示词中“原文:”之后的内容回显为润色结果。
type MockTeacher struct {
	Model string
}

func (m *MockTeacher) Invoke(_ context.Context, prompt string) (*Result, error) {
	body := prompt
	if idx := strings.LastIndex(prompt, "原文:"); idx >= 0 {
		body = prompt[idx+len("原文:"):]
	}
	output := "【润色示范】" + strings.TrimSpace(body)

	promptChars := utf8.RuneCountInString(prompt)
	outputChars := utf8.RuneCountInString(output)
	return &Result{
		Version: EnvelopeVersion,
		Content: output,
		Model:   m.Model,
		Usage: dto.Usage{
			PromptTokens:     promptChars,
			CompletionTokens: outputChars,
			TotalTokens:      promptChars + outputChars,
		},
	}, nil
}
