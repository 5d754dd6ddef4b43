package service

import (
	"errors"
	"time"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/model/dto"
	"github.com/qs3c/deal_anal_server/internal/repository"
)

var ErrQuotaExceeded = errors.New("今日分析配额已用完")

type QuotaService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
}

func NewQuotaService(userRepo *repository.UserRepository, cfg *config.Config) *QuotaService {
	return &QuotaService{
		userRepo: userRepo,
		cfg:      cfg,
	}
}

// CheckQuota 检查配额，过了重置点先懒惰重置再判断
func (s *QuotaService) CheckQuota(userID int64) (bool, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return false, err
	}

	if user.QuotaResetAt != nil && time.Now().After(*user.QuotaResetAt) {
		if err := s.resetUserQuota(userID); err != nil {
			return false, err
		}
		user, err = s.userRepo.GetByID(userID)
		if err != nil {
			return false, err
		}
	}

	return user.QuotaUsedToday < user.DailyQuota, nil
}

// UseQuota 使用配额
func (s *QuotaService) UseQuota(userID int64) error {
	return s.userRepo.IncrementQuotaUsed(userID)
}

// RefundQuota 退还配额（任务入队失败时回滚）
func (s *QuotaService) RefundQuota(userID int64) error {
	return s.userRepo.DecrementQuotaUsed(userID)
}

func (s *QuotaService) resetUserQuota(userID int64) error {
	nextReset := time.Now().Add(24 * time.Hour).Truncate(24 * time.Hour)
	return s.userRepo.ResetQuota(userID, nextReset)
}

// ResetAllQuotas 重置所有用户配额，由定时任务调用
func (s *QuotaService) ResetAllQuotas() error {
	nextReset := time.Now().Add(24 * time.Hour).Truncate(24 * time.Hour)
	return s.userRepo.ResetAllQuotas(nextReset)
}

// GetQuotaInfo 获取用户配额信息
func (s *QuotaService) GetQuotaInfo(userID int64) (*dto.QuotaInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if user.QuotaResetAt != nil && time.Now().After(*user.QuotaResetAt) {
		if err := s.resetUserQuota(userID); err != nil {
			return nil, err
		}
		user, err = s.userRepo.GetByID(userID)
		if err != nil {
			return nil, err
		}
	}

	dailyRemain := user.DailyQuota - user.QuotaUsedToday
	if dailyRemain < 0 {
		dailyRemain = 0
	}

	info := &dto.QuotaInfo{
		DailyLimit:  user.DailyQuota,
		DailyUsed:   user.QuotaUsedToday,
		DailyRemain: dailyRemain,
	}

	if user.QuotaResetAt != nil {
		info.ResetAt = user.QuotaResetAt.Format(time.RFC3339)
	}

	return info, nil
}
