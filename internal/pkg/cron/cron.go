package cron

import (
	"log"
	"time"

	"github.com/qs3c/deal_anal_server/internal/model"
	"github.com/qs3c/deal_anal_server/internal/repository"
	"github.com/qs3c/deal_anal_server/internal/service"
)

// 超过该时长仍处于 processing 的任务视为僵死任务
const stuckJobTimeout = 2 * time.Hour

type Service struct {
	quotaService  *service.QuotaService
	uploadService *service.UploadService
	jobRepo       *repository.JobRepository
	dealRepo      *repository.DealRepository
	stopChan      chan struct{}
}

func NewService(
	quotaService *service.QuotaService,
	uploadService *service.UploadService,
	jobRepo *repository.JobRepository,
	dealRepo *repository.DealRepository,
) *Service {
	return &Service{
		quotaService:  quotaService,
		uploadService: uploadService,
		jobRepo:       jobRepo,
		dealRepo:      dealRepo,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runDailyQuotaReset()
	go s.runHourlyMaintenance()
	log.Println("Cron service started (quota reset + stuck job sweep + upload cleanup)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runDailyQuotaReset 每日配额重置任务
func (s *Service) runDailyQuotaReset() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.resetDailyQuotas()
			timer.Reset(24 * time.Hour)
		}
	}
}

// resetDailyQuotas 重置所有用户的每日配额
func (s *Service) resetDailyQuotas() {
	log.Println("Starting daily quota reset...")
	if err := s.quotaService.ResetAllQuotas(); err != nil {
		log.Printf("Failed to reset daily quotas: %v", err)
		return
	}
	log.Println("Daily quota reset completed")
}

// runHourlyMaintenance 每小时执行一次维护任务
func (s *Service) runHourlyMaintenance() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.SweepStuckJobs()
			s.cleanupUploads()
		}
	}
}

// SweepStuckJobs 将长时间停留在 processing 的任务标记为失败。
// worker 崩溃或重启会留下这类任务，否则它们会永远显示"分析中"。
func (s *Service) SweepStuckJobs() int {
	cutoff := time.Now().Add(-stuckJobTimeout)
	jobs, err := s.jobRepo.ListStuckProcessing(cutoff)
	if err != nil {
		log.Printf("Stuck job sweep: failed to query jobs: %v", err)
		return 0
	}

	swept := 0
	for _, job := range jobs {
		now := time.Now()
		fields := map[string]interface{}{
			"status":        model.JobStatusFailed,
			"error_message": "任务处理超时，已被系统终止",
			"completed_at":  &now,
		}
		if err := s.jobRepo.UpdateFields(job.ID, fields); err != nil {
			log.Printf("Stuck job sweep: failed to mark job %d failed: %v", job.ID, err)
			continue
		}
		if err := s.dealRepo.UpdateStatus(job.DealID, model.DealStatusFailed); err != nil {
			log.Printf("Stuck job sweep: failed to update deal %d: %v", job.DealID, err)
		}
		log.Printf("Job %d: marked failed by stuck job sweep (started %v)", job.ID, job.StartedAt)
		swept++
	}

	if swept > 0 {
		log.Printf("Stuck job sweep: marked %d jobs failed", swept)
	}
	return swept
}

// cleanupUploads 清理过期的本地上传文件
func (s *Service) cleanupUploads() {
	if err := s.uploadService.CleanupExpired(); err != nil {
		log.Printf("Upload cleanup failed: %v", err)
	}
}

// RunNow 立即执行配额重置（用于手动触发）
func (s *Service) RunNow() error {
	log.Println("Manual quota reset triggered...")
	return s.quotaService.ResetAllQuotas()
}
