package seed

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrMalformedLine 种子文件中无法使用的行
var ErrMalformedLine = errors.New("种子行格式错误")

// maxSeedLine 单行种子上限
const maxSeedLine = 4 * 1024 * 1024

// LoadReport 种子文件读取统计
type LoadReport struct {
	Lines     int `json:"lines"`
	Seeds     int `json:"seeds"`
	Blank     int `json:"blank"`
	Malformed int `json:"malformed"`
	// Errors 每个格式错误行一条，均包装 ErrMalformedLine
	Errors []error `json:"-"`
}

// LoadSeedsFile 读取种子文件，每行一个种子，空行忽略
// 非 UTF-8 的行视为格式错误，计数后跳过。
func LoadSeedsFile(path string) ([]Seed, *LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("打开种子文件失败: %w", err)
	}
	defer f.Close()

	report := &LoadReport{}
	var seeds []Seed

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSeedLine)
	for scanner.Scan() {
		report.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			report.Blank++
			continue
		}
		if !utf8.ValidString(line) {
			report.Malformed++
			report.Errors = append(report.Errors, fmt.Errorf("%w: 第%d行不是合法的UTF-8文本", ErrMalformedLine, report.Lines))
			continue
		}
		seeds = append(seeds, Seed{Text: line, Source: SourceFile})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("读取种子文件失败: %w", err)
	}

	report.Seeds = len(seeds)
	return seeds, report, nil
}

// FromText 直接传入的文本整体作为一个种子，空白文本没有种子
func FromText(text string) []Seed {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []Seed{{Text: text, Source: SourceText}}
}

// FillToTarget 种子不足以达到目标条数时循环复用已有种子
// 复用到 ceil(target/samplesPerSeed) 个为止，不会重新生成。
func FillToTarget(seeds []Seed, target, samplesPerSeed int) []Seed {
	if target <= 0 || len(seeds) == 0 {
		return seeds
	}
	if samplesPerSeed < 1 {
		samplesPerSeed = 1
	}

	need := (target + samplesPerSeed - 1) / samplesPerSeed
	if len(seeds) >= need {
		return seeds
	}

	filled := make([]Seed, 0, need)
	for i := 0; i < need; i++ {
		filled = append(filled, seeds[i%len(seeds)])
	}
	return filled
}

// Shuffle 原地打乱种子顺序
func Shuffle(seeds []Seed, rng *rand.Rand) {
	rng.Shuffle(len(seeds), func(i, j int) {
		seeds[i], seeds[j] = seeds[j], seeds[i]
	})
}
