package seed

import "fmt"

// variantHint 多样本时追加在种子后的提示
const variantHint = "\n\n变体提示: 请生成与原意一致的第%d个不同版本，突出不同细节。"

// Request 一次示范请求
type Request struct {
	Index        int      `json:"index"`
	Seed         Seed     `json:"seed"`
	Variant      int      `json:"variant"`
	Text         string   `json:"text"`
	Requirements []string `json:"requirements"`
}

// VariantText 第 n 个变体的请求文本，n 从 1 开始
func VariantText(text string, n int) string {
	return text + fmt.Sprintf(variantHint, n)
}

// Expand 把每个种子扩展成 samplesPerSeed 个请求，同一种子的变体相邻
func Expand(seeds []Seed, samplesPerSeed int, requirements []string) []Request {
	if samplesPerSeed < 1 {
		samplesPerSeed = 1
	}

	reqs := make([]Request, 0, len(seeds)*samplesPerSeed)
	for _, s := range seeds {
		for v := 1; v <= samplesPerSeed; v++ {
			text := s.Text
			if samplesPerSeed > 1 {
				text = VariantText(s.Text, v)
			}
			reqs = append(reqs, Request{
				Index:        len(reqs),
				Seed:         s,
				Variant:      v,
				Text:         text,
				Requirements: requirements,
			})
		}
	}
	return reqs
}

// Truncate 保留前 target 个请求，target<=0 时全部保留
func Truncate(reqs []Request, target int) []Request {
	if target <= 0 || len(reqs) <= target {
		return reqs
	}
	return reqs[:target]
}
