package pipeline

import (
	"fmt"
	"strings"
)

const teacherInstruction = "你是一名严谨的学术写作教师。请按照以下要求润色给定段落，保持原意与事实不变，只输出润色后的段落，不要解释修改过程。"

// BuildPrompt 组装教师示范提示词，要求按顺序编号
func BuildPrompt(text string, requirements []string) string {
	var b strings.Builder
	b.WriteString(teacherInstruction)
	if len(requirements) > 0 {
		b.WriteString("\n要求:")
		for i, r := range requirements {
			fmt.Fprintf(&b, "\n%d. %s", i+1, r)
		}
	}
	b.WriteString("\n原文:\n")
	b.WriteString(text)
	return b.String()
}
