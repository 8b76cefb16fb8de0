// Package cache 教师示范缓存：同一 (种子文本, 要求集合) 只调用一次教师模型。
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"distill-go/internal/utils"
)

// ErrCorruptEntry 缓存行无法解析
var ErrCorruptEntry = errors.New("缓存条目损坏")

// Demonstration 教师示范
type Demonstration struct {
	Key          string    `json:"key"`
	Seed         string    `json:"seed"`
	Requirements []string  `json:"requirements"`
	Output       string    `json:"output"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	// Forced 强制重新生成写入的条目，加载时覆盖同 key 的旧条目
	Forced bool `json:"forced,omitempty"`
}

// Store 示范缓存
type Store interface {
	// Get 命中时返回示范
	Get(ctx context.Context, key string) (*Demonstration, bool, error)
	// Put 写入示范；key 已存在且未强制时不写入，stored 返回 false
	Put(ctx context.Context, demo *Demonstration, force bool) (stored bool, err error)
	Len() int
	Close() error
}

// Key 计算缓存键
// 文本统一换行并去掉首尾空白；要求按集合处理（规范化、去重、排序），与顺序无关。
func Key(text string, requirements []string) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))

	set := utils.ParseRequirements(strings.Join(requirements, "\n"), nil)
	sort.Strings(set)

	payload, _ := json.Marshal(struct {
		Text         string   `json:"text"`
		Requirements []string `json:"requirements"`
	}{normalized, set})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
