package repository

import (
	"time"

	"distill-go/internal/models"

	"gorm.io/gorm"
)

// RunRepository 运行数据访问层
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository 创建运行Repository
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create 创建运行
func (r *RunRepository) Create(run *models.Run) error {
	return r.db.Create(run).Error
}

// GetByRunID 根据运行ID获取运行
func (r *RunRepository) GetByRunID(runID string) (*models.Run, error) {
	var run models.Run
	err := r.db.Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Update 更新运行
func (r *RunRepository) Update(run *models.Run) error {
	return r.db.Save(run).Error
}

// UpdateProgress 更新运行计数
func (r *RunRepository) UpdateProgress(runID string, requests, emitted, skipped, cacheHits, teacherCalls int) error {
	return r.db.Model(&models.Run{}).Where("run_id = ?", runID).Updates(map[string]interface{}{
		"requests":      requests,
		"emitted":       emitted,
		"skipped":       skipped,
		"cache_hits":    cacheHits,
		"teacher_calls": teacherCalls,
	}).Error
}

// Finish 更新最终状态、结果和完成时间
func (r *RunRepository) Finish(runID, status string, result models.JSONMap, errMsg string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
		"finished_at":   time.Now(),
	}
	if result != nil {
		updates["result"] = result
	}
	return r.db.Model(&models.Run{}).Where("run_id = ?", runID).Updates(updates).Error
}

// List 获取运行列表
func (r *RunRepository) List(offset, limit int) ([]models.Run, int64, error) {
	var runs []models.Run
	var total int64

	if err := r.db.Model(&models.Run{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Order("started_at DESC").Offset(offset).Limit(limit).Find(&runs).Error
	return runs, total, err
}

// GetActiveRuns 获取运行中的记录
func (r *RunRepository) GetActiveRuns() ([]models.Run, error) {
	var runs []models.Run
	err := r.db.Where("status = ?", models.RunStatusRunning).Find(&runs).Error
	return runs, err
}

// MarkInterrupted 服务重启后把遗留的 running 标记为 stopped
func (r *RunRepository) MarkInterrupted() (int64, error) {
	res := r.db.Model(&models.Run{}).Where("status = ?", models.RunStatusRunning).Updates(map[string]interface{}{
		"status":        models.RunStatusStopped,
		"error_message": "服务重启，运行被中断",
		"finished_at":   time.Now(),
	})
	return res.RowsAffected, res.Error
}
