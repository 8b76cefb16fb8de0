package models

import "time"

// SkipEvent 被跳过的请求，保留足够的上下文以便手动重放
type SkipEvent struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	RunID        string     `gorm:"size:64;not null;index" json:"run_id"`
	Kind         string     `gorm:"size:20;not null" json:"kind"` // request, seed
	RequestIndex int        `json:"request_index"`
	Step         string     `gorm:"size:20" json:"step"`
	Reason       string     `gorm:"size:50" json:"reason"`
	CacheKey     string     `gorm:"size:64" json:"cache_key"`
	Seed         string     `gorm:"type:text" json:"seed"`
	Requirements StringList `gorm:"type:text" json:"requirements"`
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName 指定表名
func (SkipEvent) TableName() string {
	return "skip_events"
}
