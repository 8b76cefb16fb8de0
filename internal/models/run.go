package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 运行状态
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusError    = "error"
	RunStatusStopped  = "stopped"
)

// Run 一次数据生成运行
type Run struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	RunID        string     `gorm:"uniqueIndex;size:64;not null" json:"run_id"`
	Status       string     `gorm:"size:20;default:'running';index" json:"status"` // running, finished, error, stopped
	OutputPath   string     `gorm:"size:512;not null" json:"output_path"`
	Params       JSONMap    `gorm:"type:text" json:"params"`
	Result       JSONMap    `gorm:"type:text" json:"result"`
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
	StartID      int        `gorm:"default:0" json:"start_id"`
	Requests     int        `gorm:"default:0" json:"requests"`
	Emitted      int        `gorm:"default:0" json:"emitted"`
	Skipped      int        `gorm:"default:0" json:"skipped"`
	CacheHits    int        `gorm:"default:0" json:"cache_hits"`
	TeacherCalls int        `gorm:"default:0" json:"teacher_calls"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`

	// 关联
	Records []RunRecord `gorm:"foreignKey:RunID;references:RunID" json:"records,omitempty"`
}

// TableName 指定表名
func (Run) TableName() string {
	return "runs"
}

// IsFinal 是否已结束
func (r *Run) IsFinal() bool {
	return r.Status == RunStatusFinished || r.Status == RunStatusError || r.Status == RunStatusStopped
}

// JSONMap 自定义JSON类型
type JSONMap map[string]interface{}

// Scan 实现sql.Scanner接口
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}
	data, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, j)
}

// Value 实现driver.Valuer接口
func (j JSONMap) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList 以JSON数组存储的字符串列表
type StringList []string

// Scan 实现sql.Scanner接口
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	data, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, l)
}

// Value 实现driver.Valuer接口
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// sqlite 文本列可能以 string 或 []byte 返回
func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("不支持的列类型: %T", value)
	}
}
