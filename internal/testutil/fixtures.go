package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/deal_anal_server/internal/model"
)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	email := fmt.Sprintf("test_%d@example.com", time.Now().UnixNano())
	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	user := &model.User{
		Username:       fmt.Sprintf("testuser_%d", time.Now().UnixNano()%100000),
		Email:          &email,
		PasswordHash:   &passwordHash,
		DailyQuota:     5,
		QuotaUsedToday: 0,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithQuotaUsed 设置已使用配额
func WithQuotaUsed(used int) func(*model.User) {
	return func(u *model.User) {
		u.QuotaUsedToday = used
	}
}

// WithDailyQuota 设置每日配额
func WithDailyQuota(quota int) func(*model.User) {
	return func(u *model.User) {
		u.DailyQuota = quota
	}
}

// TestDeal 创建测试交易
func TestDeal(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Deal)) *model.Deal {
	t.Helper()

	deal := &model.Deal{
		UserID:       userID,
		Title:        fmt.Sprintf("Test Deal %d", time.Now().UnixNano()%100000),
		DocumentKey:  "documents/1/test.pdf",
		DocumentName: "test.pdf",
		Status:       model.DealStatusPending,
	}

	for _, opt := range opts {
		opt(deal)
	}

	if err := db.Create(deal).Error; err != nil {
		t.Fatalf("Failed to create test deal: %v", err)
	}

	return deal
}

// WithDealStatus 设置交易状态
func WithDealStatus(status string) func(*model.Deal) {
	return func(d *model.Deal) {
		d.Status = status
	}
}

// TestJob 创建测试任务
func TestJob(t *testing.T, db *gorm.DB, userID, dealID int64, status string) *model.AnalysisJob {
	t.Helper()

	job := &model.AnalysisJob{
		DealID: dealID,
		UserID: userID,
		Status: status,
	}

	if status != model.JobStatusQueued {
		now := time.Now()
		job.StartedAt = &now
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}
