package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRequirements_DedupAcrossDelimiters(t *testing.T) {
	got := ParseRequirements("学术表达提升, 结构清晰;结构清晰", nil)
	assert.Equal(t, []string{"学术表达提升", "结构清晰"}, got)
}

func TestParseRequirements_AllDelimiters(t *testing.T) {
	got := ParseRequirements("a，b；c、d\ne;f,g", nil)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, got)
}

func TestParseRequirements_WhitespaceNormalized(t *testing.T) {
	got := ParseRequirements("  clear   structure ; clear structure;Clear structure ", nil)
	assert.Equal(t, []string{"clear structure", "Clear structure"}, got)
}

func TestParseRequirements_FallbackToDefaults(t *testing.T) {
	defaults := []string{"学术表达提升", " 结构清晰 ", "学术表达提升"}

	assert.Equal(t, []string{"学术表达提升", "结构清晰"}, ParseRequirements("", defaults))
	assert.Equal(t, []string{"学术表达提升", "结构清晰"}, ParseRequirements(" ;, ；\n", defaults))
}

func TestParseRequirements_EmptyWithoutDefaults(t *testing.T) {
	assert.Empty(t, ParseRequirements("", nil))
	assert.NotNil(t, ParseRequirements("", nil))
}

func TestSplitList_KeepsDuplicates(t *testing.T) {
	assert.Equal(t, []string{"智能医疗", "智能医疗", "教育评测"}, SplitList("智能医疗;智能医疗，教育评测"))
}
