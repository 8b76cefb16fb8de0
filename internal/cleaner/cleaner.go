// Package cleaner 从教师模型响应中提取正文。
//
// 部分客户端会把整条消息对象序列化成文本（content='...' additional_kwargs={...}
// response_metadata={...}），这里负责把正文剥出来。结构化响应信封优先，文本匹配只是兜底。
package cleaner

import (
	"regexp"
	"strings"

	"distill-go/pkg/model_caller"
)

var (
	singleQuoted = regexp.MustCompile(`(?s)content='([^']*)'`)
	doubleQuoted = regexp.MustCompile(`(?s)content="([^"]*)"`)
)

// MetadataMarkers 正文之后的元数据字段名
var MetadataMarkers = []string{
	"additional_kwargs",
	"response_metadata",
	"usage_metadata",
	"id='run-",
	"tool_calls=",
}

// Clean 提取正文
func Clean(raw string) string {
	if m := singleQuoted.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := doubleQuoted.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}

	cut := -1
	for _, marker := range MetadataMarkers {
		if idx := strings.Index(raw, marker); idx >= 0 && (cut < 0 || idx < cut) {
			cut = idx
		}
	}
	if cut >= 0 {
		text := strings.TrimSpace(raw[:cut])
		text = strings.TrimPrefix(text, "content=")
		text = strings.Trim(strings.TrimSpace(text), `'"`)
		return strings.TrimSpace(text)
	}

	return strings.TrimSpace(raw)
}

// CleanValue 非字符串原样返回
func CleanValue(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return Clean(s)
}

// Payload 从响应信封中取正文
func Payload(res *model_caller.Result) string {
	if res == nil {
		return ""
	}
	return Clean(res.Content)
}

// HasMarkers 文本中是否还残留元数据字段
func HasMarkers(text string) bool {
	for _, marker := range MetadataMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return strings.Contains(text, "content=")
}
