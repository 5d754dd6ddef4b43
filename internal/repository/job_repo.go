package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/deal_anal_server/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.AnalysisJob) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id int64) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) GetByDealID(dealID int64) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := r.db.Where("deal_id = ?", dealID).Order("created_at DESC").First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) Update(job *model.AnalysisJob) error {
	return r.db.Save(job).Error
}

// UpdateFields 按任务 ID 的幂等部分更新，同键重复执行结果一致，
// 不同字段各自 last-writer-wins，无需进程内加锁
func (r *JobRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.AnalysisJob{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateProgress 推进进度，只允许单调递增（回退写入直接忽略）
func (r *JobRepository) UpdateProgress(id int64, percent int, step string) error {
	return r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND progress_percent <= ?", id, percent).
		Updates(map[string]interface{}{
			"progress_percent": percent,
			"current_step":     step,
		}).Error
}

// ListStuckProcessing 查出滞留在 processing 超过 cutoff 的任务（安全网）
func (r *JobRepository) ListStuckProcessing(cutoff time.Time) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob
	err := r.db.Where("status = ? AND started_at < ?", model.JobStatusProcessing, cutoff).
		Find(&jobs).Error
	return jobs, err
}
