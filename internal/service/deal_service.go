package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/model"
	"github.com/qs3c/deal_anal_server/internal/model/dto"
	"github.com/qs3c/deal_anal_server/internal/pkg/queue"
	"github.com/qs3c/deal_anal_server/internal/repository"
)

var (
	ErrDealNotFound    = errors.New("交易不存在")
	ErrDealPermission  = errors.New("无权操作此交易")
	ErrDealNoDocument  = errors.New("交易尚未上传文档")
	ErrDealInProgress  = errors.New("交易正在分析中，请等待完成")
	ErrJobNotFound     = errors.New("分析任务不存在")
)

type DealService struct {
	dealRepo     *repository.DealRepository
	jobRepo      *repository.JobRepository
	quotaService *QuotaService
	queue        *queue.Queue
	cfg          *config.Config
}

func NewDealService(
	dealRepo *repository.DealRepository,
	jobRepo *repository.JobRepository,
	quotaService *QuotaService,
	q *queue.Queue,
	cfg *config.Config,
) *DealService {
	return &DealService{
		dealRepo:     dealRepo,
		jobRepo:      jobRepo,
		quotaService: quotaService,
		queue:        q,
		cfg:          cfg,
	}
}

// Create 创建交易
func (s *DealService) Create(userID int64, req *dto.CreateDealRequest) (*dto.CreateDealResponse, error) {
	deal := &model.Deal{
		UserID:       userID,
		Title:        req.Title,
		Description:  req.Description,
		DocumentKey:  req.DocumentKey,
		DocumentName: req.DocumentName,
		Status:       model.DealStatusDraft,
	}

	if err := s.dealRepo.Create(deal); err != nil {
		return nil, err
	}

	return &dto.CreateDealResponse{DealID: deal.ID}, nil
}

// Analyze 发起分析：鉴权、配额、建任务、入队，全部通过后任务
// 才对 worker 可见。入队失败回滚配额并把任务标记为 failed
func (s *DealService) Analyze(ctx context.Context, userID, dealID int64) (*dto.AnalyzeDealResponse, error) {
	deal, err := s.getOwnedDeal(userID, dealID)
	if err != nil {
		return nil, err
	}

	if deal.DocumentKey == "" {
		return nil, ErrDealNoDocument
	}
	if deal.Status == model.DealStatusPending || deal.Status == model.DealStatusAnalyzing {
		return nil, ErrDealInProgress
	}

	hasQuota, err := s.quotaService.CheckQuota(userID)
	if err != nil {
		return nil, err
	}
	if !hasQuota {
		return nil, ErrQuotaExceeded
	}

	if err := s.quotaService.UseQuota(userID); err != nil {
		return nil, err
	}

	job := &model.AnalysisJob{
		DealID: deal.ID,
		UserID: userID,
		Status: model.JobStatusQueued,
	}
	if err := s.jobRepo.Create(job); err != nil {
		s.quotaService.RefundQuota(userID)
		return nil, err
	}

	if err := s.dealRepo.UpdateFields(deal.ID, map[string]interface{}{
		"status":        model.DealStatusPending,
		"error_message": "",
		"started_at":    time.Now(),
	}); err != nil {
		s.quotaService.RefundQuota(userID)
		return nil, err
	}

	if err := s.queue.Push(ctx, &queue.JobMessage{
		JobID:       job.ID,
		DealID:      deal.ID,
		UserID:      userID,
		DocumentKey: deal.DocumentKey,
		Title:       deal.Title,
	}); err != nil {
		s.quotaService.RefundQuota(userID)
		now := time.Now()
		s.jobRepo.UpdateFields(job.ID, map[string]interface{}{
			"status":        model.JobStatusFailed,
			"error_message": "任务入队失败：" + err.Error(),
			"completed_at":  now,
		})
		s.dealRepo.UpdateStatus(deal.ID, model.DealStatusFailed)
		return nil, err
	}

	return &dto.AnalyzeDealResponse{DealID: deal.ID, JobID: job.ID}, nil
}

// GetByID 获取交易详情
func (s *DealService) GetByID(userID, dealID int64) (*dto.DealDetail, error) {
	deal, err := s.getOwnedDeal(userID, dealID)
	if err != nil {
		return nil, err
	}

	detail := &dto.DealDetail{
		ID:           deal.ID,
		Title:        deal.Title,
		Description:  deal.Description,
		DocumentName: deal.DocumentName,
		Status:       deal.Status,
		ReportOSSURL: deal.ReportOSSURL,
		ErrorMessage: deal.ErrorMessage,
		CreatedAt:    deal.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    deal.UpdatedAt.Format(time.RFC3339),
	}
	if deal.StartedAt != nil {
		detail.StartedAt = deal.StartedAt.Format(time.RFC3339)
	}
	if deal.CompletedAt != nil {
		detail.CompletedAt = deal.CompletedAt.Format(time.RFC3339)
	}

	// 结果挂在最近一次任务上
	job, err := s.jobRepo.GetByDealID(dealID)
	if err == nil && job.Result != nil {
		result := model.AnalysisResult(*job.Result)
		detail.Result = &result
	}

	return detail, nil
}

// List 分页获取交易列表
func (s *DealService) List(userID int64, page, pageSize int, status string) ([]*dto.DealListItem, int64, error) {
	deals, total, err := s.dealRepo.ListByUserID(userID, page, pageSize, status)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.DealListItem, len(deals))
	for i, d := range deals {
		items[i] = &dto.DealListItem{
			ID:        d.ID,
			Title:     d.Title,
			Status:    d.Status,
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
			UpdatedAt: d.UpdatedAt.Format(time.RFC3339),
		}
	}

	return items, total, nil
}

// Delete 删除交易。进行中的交易不允许删除，避免 worker 写入
// 已删除的记录
func (s *DealService) Delete(userID, dealID int64) error {
	deal, err := s.getOwnedDeal(userID, dealID)
	if err != nil {
		return err
	}

	if deal.Status == model.DealStatusPending || deal.Status == model.DealStatusAnalyzing {
		return ErrDealInProgress
	}

	return s.dealRepo.Delete(dealID)
}

// GetJobStatus 获取最近一次分析任务状态，SSE 断线后前端靠它恢复
func (s *DealService) GetJobStatus(userID, dealID int64) (*dto.JobStatusResponse, error) {
	if _, err := s.getOwnedDeal(userID, dealID); err != nil {
		return nil, err
	}

	job, err := s.jobRepo.GetByDealID(dealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	resp := &dto.JobStatusResponse{
		JobID:           job.ID,
		DealID:          job.DealID,
		Status:          job.Status,
		ProgressPercent: job.ProgressPercent,
		CurrentStep:     job.CurrentStep,
		ErrorMessage:    job.ErrorMessage,
	}

	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
		if job.CompletedAt != nil {
			resp.ElapsedSeconds = job.ElapsedSeconds
		} else {
			resp.ElapsedSeconds = int(time.Since(*job.StartedAt).Seconds())
		}
	}

	return resp, nil
}

func (s *DealService) getOwnedDeal(userID, dealID int64) (*model.Deal, error) {
	deal, err := s.dealRepo.GetByID(dealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, err
	}
	if deal.UserID != userID {
		return nil, ErrDealPermission
	}
	return deal, nil
}
