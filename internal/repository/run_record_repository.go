package repository

import (
	"distill-go/internal/models"

	"gorm.io/gorm"
)

// RunRecordRepository 运行记录数据访问层
type RunRecordRepository struct {
	db *gorm.DB
}

// NewRunRecordRepository 创建运行记录Repository
func NewRunRecordRepository(db *gorm.DB) *RunRecordRepository {
	return &RunRecordRepository{db: db}
}

// Create 创建记录
func (r *RunRecordRepository) Create(rec *models.RunRecord) error {
	return r.db.Create(rec).Error
}

// CreateBatch 批量创建记录
func (r *RunRecordRepository) CreateBatch(recs []models.RunRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return r.db.Create(&recs).Error
}

// ListByRunID 分页获取某次运行的记录
func (r *RunRecordRepository) ListByRunID(runID string, offset, limit int) ([]models.RunRecord, int64, error) {
	var recs []models.RunRecord
	var total int64

	query := r.db.Model(&models.RunRecord{}).Where("run_id = ?", runID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("record_id ASC").Offset(offset).Limit(limit).Find(&recs).Error
	return recs, total, err
}

// CountByRunID 某次运行写出的记录数
func (r *RunRecordRepository) CountByRunID(runID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.RunRecord{}).Where("run_id = ?", runID).Count(&count).Error
	return count, err
}
