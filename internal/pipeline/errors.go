package pipeline

import (
	"errors"

	"distill-go/internal/dataset"
)

var (
	// ErrExternalCall 教师模型调用失败，对应请求跳过
	ErrExternalCall = errors.New("教师模型调用失败")
	// ErrEmptyPayload 教师模型返回的内容清洗后为空
	ErrEmptyPayload = errors.New("教师模型返回内容为空")
	// ErrNoSeeds 没有任何可用种子
	ErrNoSeeds = errors.New("没有可用的种子")
	// ErrWriterClosed 输出已关闭，整次运行中止
	ErrWriterClosed = dataset.ErrClosed
)

// skip 原因
const (
	ReasonTeacherFailed = "teacher_failed"
	ReasonEmptyPayload  = "empty_payload"
	ReasonWriteFailed   = "write_failed"
)
