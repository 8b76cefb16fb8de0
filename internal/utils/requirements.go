package utils

import (
	"strings"
)

// listSeparators 要求/领域列表接受的分隔符：中英文逗号、分号、顿号和换行
var listSeparators = map[rune]bool{
	',':  true,
	';':  true,
	'，': true,
	'；': true,
	'、': true,
	'\n': true,
}

// SplitList 按分隔符切分列表，去掉空白项，不去重
func SplitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return listSeparators[r]
	})

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if tag := NormalizeSpace(f); tag != "" {
			parts = append(parts, tag)
		}
	}
	return parts
}

// NormalizeSpace 去掉首尾空白并把内部连续空白压缩为一个空格
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseRequirements 解析要求字符串
// 保留首次出现的顺序，区分大小写去重；解析结果为空时回退到 defaults。
func ParseRequirements(raw string, defaults []string) []string {
	reqs := dedupe(SplitList(raw))
	if len(reqs) > 0 {
		return reqs
	}

	normalized := make([]string, 0, len(defaults))
	for _, d := range defaults {
		if tag := NormalizeSpace(d); tag != "" {
			normalized = append(normalized, tag)
		}
	}
	return dedupe(normalized)
}

func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
