package pipeline

import (
	"log"
	"time"

	"github.com/qs3c/deal_anal_server/internal/model"
	"github.com/qs3c/deal_anal_server/internal/pkg/alert"
	"github.com/qs3c/deal_anal_server/internal/pkg/stream"
	"github.com/qs3c/deal_anal_server/internal/repository"
)

// FailureHandler 任务失败的统一出口：落库终态、推送脱敏错误事件、
// 发一条告警。任何一步失败都只记日志，不再级联
type FailureHandler struct {
	jobRepo  *repository.JobRepository
	dealRepo *repository.DealRepository
	notifier alert.Notifier
}

// NewFailureHandler notifier 可以为 nil（告警未配置时跳过）
func NewFailureHandler(jobRepo *repository.JobRepository, dealRepo *repository.DealRepository, notifier alert.Notifier) *FailureHandler {
	return &FailureHandler{jobRepo: jobRepo, dealRepo: dealRepo, notifier: notifier}
}

// Handle 把任务置为 failed。数据库先写、事件后发，保证客户端看到
// error 事件时终态已经可查。对已 completed 的任务是空操作：迟到的
// 失败（比如收尾后的清理异常）不允许覆盖成功终态
func (h *FailureHandler) Handle(jobID, dealID int64, step string, cause error, emitter *stream.Emitter) {
	now := time.Now()
	log.Printf("Job %d: failed at step %q: %v", jobID, step, cause)

	job, err := h.jobRepo.GetByID(jobID)
	if err != nil {
		log.Printf("Job %d: failure handler could not load job: %v", jobID, err)
	} else if job.Status == model.JobStatusCompleted {
		log.Printf("Job %d: late failure ignored, job already completed", jobID)
		return
	}

	fields := map[string]interface{}{
		"status":        model.JobStatusFailed,
		"current_step":  step,
		"error_message": cause.Error(),
		"completed_at":  now,
	}
	if job != nil && job.StartedAt != nil {
		fields["elapsed_seconds"] = int(now.Sub(*job.StartedAt).Seconds())
	}
	if err := h.jobRepo.UpdateFields(jobID, fields); err != nil {
		log.Printf("Job %d: failed to persist failure state: %v", jobID, err)
	}

	if err := h.dealRepo.UpdateFields(dealID, map[string]interface{}{
		"status":        model.DealStatusFailed,
		"error_message": cause.Error(),
	}); err != nil {
		log.Printf("Job %d: failed to update deal %d status: %v", jobID, dealID, err)
	}

	emitter.Send(stream.EventError, stream.ErrorPayload{Message: SanitizedMessage(cause)})

	if h.notifier != nil {
		if err := h.notifier.NotifyFailure(dealID, jobID, step, cause.Error(), now); err != nil {
			log.Printf("Job %d: failure alert not sent: %v", jobID, err)
		}
	}
}
