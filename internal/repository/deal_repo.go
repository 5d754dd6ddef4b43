package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/deal_anal_server/internal/model"
)

type DealRepository struct {
	db *gorm.DB
}

func NewDealRepository(db *gorm.DB) *DealRepository {
	return &DealRepository{db: db}
}

func (r *DealRepository) Create(deal *model.Deal) error {
	return r.db.Create(deal).Error
}

func (r *DealRepository) GetByID(id int64) (*model.Deal, error) {
	var deal model.Deal
	err := r.db.Where("id = ?", id).First(&deal).Error
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *DealRepository) ListByUserID(userID int64, page, pageSize int, status string) ([]*model.Deal, int64, error) {
	query := r.db.Model(&model.Deal{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var deals []*model.Deal
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&deals).Error
	return deals, total, err
}

func (r *DealRepository) Update(deal *model.Deal) error {
	return r.db.Save(deal).Error
}

// UpdateFields 按主键的幂等部分更新
func (r *DealRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Deal{}).Where("id = ?", id).Updates(fields).Error
}

func (r *DealRepository) UpdateStatus(id int64, status string) error {
	return r.db.Model(&model.Deal{}).Where("id = ?", id).Update("status", status).Error
}

func (r *DealRepository) Delete(id int64) error {
	return r.db.Delete(&model.Deal{}, id).Error
}

// ListLocalReports 报告仍落在本地磁盘、等待补传 OSS 的交易
func (r *DealRepository) ListLocalReports() ([]*model.Deal, error) {
	var deals []*model.Deal
	err := r.db.Where("report_oss_url LIKE ?", "local://%").Find(&deals).Error
	return deals, err
}
