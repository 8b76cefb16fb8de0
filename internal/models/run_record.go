package models

import (
	"time"
)

// RunRecord 运行中写出的数据集记录
type RunRecord struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	RunID        string     `gorm:"size:64;not null;index" json:"run_id"`
	RecordID     int        `gorm:"not null" json:"record_id"`
	Input        string     `gorm:"type:text;not null" json:"input"`
	Output       string     `gorm:"type:text;not null" json:"output"`
	Requirements StringList `gorm:"type:text" json:"requirements"`
	Variant      int        `json:"variant"`
	CacheKey     string     `gorm:"size:64;index" json:"cache_key"`
	CacheHit     bool       `gorm:"default:false" json:"cache_hit"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName 指定表名
func (RunRecord) TableName() string {
	return "run_records"
}
