// Package seed 生成、装载和扩展种子段落。
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"distill-go/internal/cleaner"
	"distill-go/internal/utils"
	"distill-go/pkg/model_caller"

	"github.com/sirupsen/logrus"
)

// Source 种子来源
type Source string

const (
	SourceFile  Source = "file"
	SourceText  Source = "text"
	SourceRule  Source = "rule"
	SourceModel Source = "model"
)

// Seed 待润色的草稿段落
type Seed struct {
	Text   string `json:"text"`
	Domain string `json:"domain,omitempty"`
	Source Source `json:"source"`
}

// ParseDomains 解析领域覆盖列表，为空时使用内置领域
func ParseDomains(raw string) []string {
	if parts := utils.SplitList(raw); len(parts) > 0 {
		return parts
	}
	return DefaultDomains
}

func pick(rng *rand.Rand, items []string) string {
	return items[rng.Intn(len(items))]
}

// RuleGenerator 模板种子生成器
type RuleGenerator struct {
	Domains []string
	Rand    *rand.Rand
}

// NewRuleGenerator 创建模板种子生成器
func NewRuleGenerator(domains []string, rng *rand.Rand) *RuleGenerator {
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	return &RuleGenerator{Domains: domains, Rand: rng}
}

// Generate 生成 count 个模板种子
func (g *RuleGenerator) Generate(count int) []Seed {
	seeds := make([]Seed, 0, max(count, 0))
	for i := 0; i < count; i++ {
		domain := pick(g.Rand, g.Domains)
		r := strings.NewReplacer(
			"{domain}", domain,
			"{pain}", pick(g.Rand, painPoints),
			"{impact}", pick(g.Rand, impacts),
			"{improve}", pick(g.Rand, improvements),
			"{deliver}", pick(g.Rand, deliverables),
			"{case_id}", strconv.Itoa(i+1),
		)
		tpl := pick(g.Rand, templates)
		seeds = append(seeds, Seed{Text: r.Replace(tpl), Domain: domain, Source: SourceRule})
	}
	return seeds
}

// ModelGenerator 由教师模型自由生成种子
type ModelGenerator struct {
	Teacher model_caller.Teacher
	Domains []string
	Rand    *rand.Rand
	Logger  logrus.FieldLogger
	// OnFailure 单次生成失败时回调，可为空
	OnFailure func(index int, domain string, err error)
}

// NewModelGenerator 创建模型种子生成器
func NewModelGenerator(teacher model_caller.Teacher, domains []string, rng *rand.Rand, logger logrus.FieldLogger) *ModelGenerator {
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ModelGenerator{Teacher: teacher, Domains: domains, Rand: rng, Logger: logger}
}

// SeedPrompt 组装生成种子的提示词
func SeedPrompt(domain, focus string, caseID int) string {
	user := fmt.Sprintf("领域: %s\n写作要求: %s\n请写一个独立段落，用于案例%d，不要使用固定模板，不少于80字。", domain, focus, caseID)
	return fmt.Sprintf("系统指令: %s\n\n用户指令: %s", seedSystemPrompt, user)
}

// Generate 逐个调用教师模型生成 count 个种子
// 单次失败只记录并跳过，不重试；上下文取消时返回已生成的部分。
func (g *ModelGenerator) Generate(ctx context.Context, count int, requirements []string) []Seed {
	seeds := make([]Seed, 0, max(count, 0))
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			g.Logger.WithField("generated", len(seeds)).Warn("种子生成被取消")
			break
		}

		domain := pick(g.Rand, g.Domains)
		focus := DefaultFocusRequirement
		if len(requirements) > 0 {
			focus = pick(g.Rand, requirements)
		}

		res, err := g.Teacher.Invoke(ctx, SeedPrompt(domain, focus, i+1))
		text := ""
		if err == nil {
			text = cleaner.Payload(res)
			if text == "" {
				err = fmt.Errorf("教师模型返回空种子")
			}
		}
		if err != nil {
			g.Logger.WithFields(logrus.Fields{
				"event":  "skip",
				"reason": "seed_generation_failed",
				"case":   i + 1,
				"domain": domain,
			}).WithError(err).Warn("模型种子生成失败，跳过")
			if g.OnFailure != nil {
				g.OnFailure(i, domain, err)
			}
			continue
		}

		seeds = append(seeds, Seed{Text: text, Domain: domain, Source: SourceModel})
	}
	return seeds
}
