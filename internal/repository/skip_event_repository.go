package repository

import (
	"distill-go/internal/models"

	"gorm.io/gorm"
)

// SkipEventRepository 跳过事件数据访问层
type SkipEventRepository struct {
	db *gorm.DB
}

// NewSkipEventRepository 创建跳过事件Repository
func NewSkipEventRepository(db *gorm.DB) *SkipEventRepository {
	return &SkipEventRepository{db: db}
}

// Create 记录一次跳过
func (r *SkipEventRepository) Create(ev *models.SkipEvent) error {
	return r.db.Create(ev).Error
}

// ListByRunID 获取某次运行的跳过事件
func (r *SkipEventRepository) ListByRunID(runID string, offset, limit int) ([]models.SkipEvent, int64, error) {
	var events []models.SkipEvent
	var total int64

	query := r.db.Model(&models.SkipEvent{}).Where("run_id = ?", runID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&events).Error
	return events, total, err
}

// CountByReason 按原因统计跳过次数
func (r *SkipEventRepository) CountByReason(runID string) (map[string]int64, error) {
	var rows []struct {
		Reason string
		Count  int64
	}
	err := r.db.Model(&models.SkipEvent{}).
		Select("reason, count(*) as count").
		Where("run_id = ?", runID).
		Group("reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Reason] = row.Count
	}
	return counts, nil
}
