package seed

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"distill-go/pkg/model_caller"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleGenerator_ExactCountAndDeterministic(t *testing.T) {
	g1 := NewRuleGenerator(nil, rand.New(rand.NewSource(42)))
	g2 := NewRuleGenerator(nil, rand.New(rand.NewSource(42)))

	a := g1.Generate(12)
	b := g2.Generate(12)
	require.Len(t, a, 12)
	assert.Equal(t, a, b)

	for _, s := range a {
		assert.Equal(t, SourceRule, s.Source)
		assert.Contains(t, DefaultDomains, s.Domain)
		assert.NotContains(t, s.Text, "{")
	}
	assert.Empty(t, g1.Generate(0))
}

func TestRuleGenerator_DomainOverride(t *testing.T) {
	g := NewRuleGenerator(ParseDomains("海洋探测；智慧养老"), rand.New(rand.NewSource(1)))
	for _, s := range g.Generate(20) {
		assert.Contains(t, []string{"海洋探测", "智慧养老"}, s.Domain)
		assert.Contains(t, s.Text, s.Domain)
	}
	assert.Equal(t, DefaultDomains, ParseDomains("  "))
}

type scriptedTeacher struct {
	calls   int
	prompts []string
	fail    map[int]error
	replies map[int]string
}

func (s *scriptedTeacher) Invoke(_ context.Context, prompt string) (*model_caller.Result, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if err, ok := s.fail[i]; ok {
		return nil, err
	}
	text := "生成的种子段落"
	if r, ok := s.replies[i]; ok {
		text = r
	}
	return &model_caller.Result{Version: model_caller.EnvelopeVersion, Content: text}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestModelGenerator_SkipsFailures(t *testing.T) {
	teacher := &scriptedTeacher{
		fail:    map[int]error{1: errors.New("timeout")},
		replies: map[int]string{2: "   "},
	}
	g := NewModelGenerator(teacher, []string{"教育评测"}, rand.New(rand.NewSource(7)), quietLogger())
	var failed []int
	g.OnFailure = func(index int, _ string, _ error) { failed = append(failed, index) }

	seeds := g.Generate(context.Background(), 4, []string{"结构清晰"})

	assert.Equal(t, 4, teacher.calls)
	assert.Len(t, seeds, 2)
	assert.Equal(t, []int{1, 2}, failed)
	for _, s := range seeds {
		assert.Equal(t, SourceModel, s.Source)
		assert.Equal(t, "教育评测", s.Domain)
	}
	assert.True(t, strings.HasPrefix(teacher.prompts[0], "系统指令: "))
	assert.Contains(t, teacher.prompts[0], "\n\n用户指令: 领域: 教育评测\n写作要求: 结构清晰")
}

func TestModelGenerator_CleansEnvelopeText(t *testing.T) {
	teacher := &scriptedTeacher{replies: map[int]string{0: "content='干净的段落' additional_kwargs={}"}}
	g := NewModelGenerator(teacher, nil, rand.New(rand.NewSource(7)), quietLogger())

	seeds := g.Generate(context.Background(), 1, nil)
	require.Len(t, seeds, 1)
	assert.Equal(t, "干净的段落", seeds[0].Text)
	assert.Contains(t, teacher.prompts[0], "写作要求: "+DefaultFocusRequirement)
}

func TestModelGenerator_StopsOnCancel(t *testing.T) {
	teacher := &scriptedTeacher{}
	g := NewModelGenerator(teacher, nil, rand.New(rand.NewSource(7)), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, g.Generate(ctx, 5, nil))
	assert.Equal(t, 0, teacher.calls)
}

func TestLoadSeedsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.txt")
	content := "第一段种子\n\n   \n  第二段种子  \r\n\xff\xfe坏行\n第三段"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	seeds, report, err := LoadSeedsFile(path)
	require.NoError(t, err)
	require.Len(t, seeds, 3)
	assert.Equal(t, "第一段种子", seeds[0].Text)
	assert.Equal(t, "第二段种子", seeds[1].Text)
	assert.Equal(t, "第三段", seeds[2].Text)
	assert.Equal(t, SourceFile, seeds[0].Source)
	assert.Equal(t, 6, report.Lines)
	assert.Equal(t, 2, report.Blank)
	assert.Equal(t, 1, report.Malformed)
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], ErrMalformedLine)

	_, _, err = LoadSeedsFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestFromText(t *testing.T) {
	seeds := FromText(" 一段 \n\n两段 ")
	require.Len(t, seeds, 1)
	assert.Equal(t, Seed{Text: "一段 \n\n两段", Source: SourceText}, seeds[0])

	assert.Empty(t, FromText(" \n "))
}

func TestFillToTarget(t *testing.T) {
	seeds := []Seed{{Text: "a"}, {Text: "b"}, {Text: "c"}}

	filled := FillToTarget(seeds, 8, 1)
	require.Len(t, filled, 8)
	assert.Equal(t, "a", filled[3].Text)
	assert.Equal(t, "b", filled[7].Text)

	// 7 条目标、每个种子 3 个样本 -> 需要 3 个种子，已够
	assert.Len(t, FillToTarget(seeds, 7, 3), 3)
	// 10 条目标、每个种子 2 个样本 -> 需要 5 个种子
	assert.Len(t, FillToTarget(seeds, 10, 2), 5)

	assert.Len(t, FillToTarget(seeds, 0, 1), 3)
	assert.Empty(t, FillToTarget(nil, 5, 1))
}

func TestShuffle_Deterministic(t *testing.T) {
	mk := func() []Seed {
		var s []Seed
		for _, c := range "abcdefghij" {
			s = append(s, Seed{Text: string(c)})
		}
		return s
	}
	a, b := mk(), mk()
	Shuffle(a, rand.New(rand.NewSource(3)))
	Shuffle(b, rand.New(rand.NewSource(3)))
	assert.Equal(t, a, b)
	assert.ElementsMatch(t, mk(), a)
}

func TestExpand_SingleSampleUnchanged(t *testing.T) {
	seeds := []Seed{{Text: "甲"}, {Text: "乙"}}
	reqs := Expand(seeds, 1, []string{"结构清晰"})
	require.Len(t, reqs, 2)
	assert.Equal(t, "甲", reqs[0].Text)
	assert.Equal(t, 1, reqs[0].Variant)
	assert.Equal(t, 1, reqs[1].Index)
	assert.Equal(t, []string{"结构清晰"}, reqs[1].Requirements)
}

func TestExpand_CardinalityAndSeedMajorOrder(t *testing.T) {
	seeds := []Seed{{Text: "甲"}, {Text: "乙"}, {Text: "丙"}}
	reqs := Expand(seeds, 3, nil)
	require.Len(t, reqs, 9)

	for i, r := range reqs {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, seeds[i/3], r.Seed)
		assert.Equal(t, i%3+1, r.Variant)
	}
	assert.Equal(t, "甲\n\n变体提示: 请生成与原意一致的第1个不同版本，突出不同细节。", reqs[0].Text)
	assert.Equal(t, "乙\n\n变体提示: 请生成与原意一致的第3个不同版本，突出不同细节。", reqs[5].Text)
}

func TestTruncate(t *testing.T) {
	reqs := Expand([]Seed{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}, {Text: "e"}}, 2, nil)
	require.Len(t, reqs, 10)

	kept := Truncate(reqs, 7)
	require.Len(t, kept, 7)
	assert.Equal(t, reqs[:7], kept)
	assert.Len(t, Truncate(reqs, 0), 10)
	assert.Len(t, Truncate(reqs, 20), 10)
}
