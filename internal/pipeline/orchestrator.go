package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/model"
	"github.com/qs3c/deal_anal_server/internal/pkg/ocr"
	"github.com/qs3c/deal_anal_server/internal/pkg/oss"
	"github.com/qs3c/deal_anal_server/internal/pkg/pubsub"
	"github.com/qs3c/deal_anal_server/internal/pkg/queue"
	"github.com/qs3c/deal_anal_server/internal/pkg/retry"
	"github.com/qs3c/deal_anal_server/internal/pkg/stream"
	"github.com/qs3c/deal_anal_server/internal/repository"
)

const quickContextExcerptChars = 280

// Orchestrator 驱动一个分析任务从 queued 走到终态。每个阶段
// 先落库再发事件，失败统一走 FailureHandler（且只走一次）
type Orchestrator struct {
	jobRepo  *repository.JobRepository
	dealRepo *repository.DealRepository
	ocr      ocr.Client
	engine   *Engine
	oss      *oss.Client
	failure  *FailureHandler
	cfg      *config.Config
}

// NewOrchestrator ossClient 可以为 nil，报告会先落本地磁盘，
// 由后台重传任务补传
func NewOrchestrator(
	jobRepo *repository.JobRepository,
	dealRepo *repository.DealRepository,
	ocrClient ocr.Client,
	engine *Engine,
	ossClient *oss.Client,
	failure *FailureHandler,
	cfg *config.Config,
) *Orchestrator {
	return &Orchestrator{
		jobRepo:  jobRepo,
		dealRepo: dealRepo,
		ocr:      ocrClient,
		engine:   engine,
		oss:      ossClient,
		failure:  failure,
		cfg:      cfg,
	}
}

// Run 执行一个任务。返回 error 仅用于上层记日志，终态处理
// （落库、事件、告警）在内部已经完成
func (o *Orchestrator) Run(ctx context.Context, msg *queue.JobMessage, emitter *stream.Emitter) error {
	job, err := o.jobRepo.GetByID(msg.JobID)
	if err != nil {
		// 连任务记录都读不到就没有可落的终态，只能发事件让客户端解脱
		log.Printf("Job %d: cannot load job record: %v", msg.JobID, err)
		emitter.Send(stream.EventError, stream.ErrorPayload{Message: "任务不存在或已被清理"})
		return &PersistenceError{Op: "load job", Err: err}
	}

	// 队列重复投递保护：终态任务直接跳过
	if job.IsTerminal() {
		log.Printf("Job %d: already %s, skipping duplicate delivery", job.ID, job.Status)
		return nil
	}

	fail := func(step string, cause error) error {
		o.failure.Handle(job.ID, msg.DealID, step, cause, emitter)
		return cause
	}

	startedAt := time.Now()
	if err := o.jobRepo.UpdateFields(job.ID, map[string]interface{}{
		"status":       model.JobStatusProcessing,
		"started_at":   startedAt,
		"current_step": pubsub.StepInitializing,
	}); err != nil {
		return fail(pubsub.StepInitializing, &PersistenceError{Op: "mark processing", Err: err})
	}
	if err := o.dealRepo.UpdateStatus(msg.DealID, model.DealStatusAnalyzing); err != nil {
		return fail(pubsub.StepInitializing, &PersistenceError{Op: "mark deal analyzing", Err: err})
	}
	o.progress(job.ID, pubsub.StepInitializing, emitter)

	// 文本提取阶段，OCR 是外部协作方，可重试错误按策略退避
	o.progress(job.ID, pubsub.StepExtracting, emitter)
	policy := retry.Policy{
		MaxRetries: o.cfg.Pipeline.Retry.MaxRetries,
		BaseDelay:  o.cfg.Pipeline.Retry.BaseDelay(),
		MaxDelay:   o.cfg.Pipeline.Retry.MaxDelay(),
	}
	ocrResult, err := retry.Do(ctx, policy, func() (*ocr.Result, error) {
		return o.ocr.Extract(ctx, msg.DocumentKey)
	})
	if err != nil {
		return fail(pubsub.StepExtracting, &StageError{Step: pubsub.StepExtracting, Err: err})
	}
	if !ocrResult.Success || strings.TrimSpace(ocrResult.Text) == "" {
		reason := ocrResult.Error
		if reason == "" {
			reason = "document produced no text"
		}
		return fail(pubsub.StepExtracting, &StageError{Step: pubsub.StepExtracting, Err: fmt.Errorf("%s", reason)})
	}

	// 提取完成后先给客户端一份速览，让页面在长分析期间有内容可展示
	o.progress(job.ID, pubsub.StepContext, emitter)
	emitter.Send(stream.EventQuickContext, stream.QuickContextPayload{
		Data: map[string]interface{}{
			"title":      msg.Title,
			"excerpt":    excerpt(ocrResult.Text, quickContextExcerptChars),
			"char_count": len([]rune(ocrResult.Text)),
		},
	})

	o.progress(job.ID, pubsub.StepAnalyzing, emitter)
	outcome, err := o.engine.Converse(ctx, job.ID, buildUserPrompt(msg.Title, ocrResult.Text), emitter.Send)
	if err != nil {
		return fail(pubsub.StepAnalyzing, err)
	}

	o.progress(job.ID, pubsub.StepFinalizing, emitter)
	if err := o.finalize(job, msg, outcome, startedAt, emitter); err != nil {
		return fail(pubsub.StepFinalizing, err)
	}
	return nil
}

// finalize 终态落库 + done 事件。部分结果也算完成，IsPartial
// 标记留给前端展示
func (o *Orchestrator) finalize(job *model.AnalysisJob, msg *queue.JobMessage, outcome *Outcome, startedAt time.Time, emitter *stream.Emitter) error {
	result := outcome.Result
	reportURL := o.uploadReport(job.ID, msg.DealID, result)

	now := time.Now()
	stored := model.ResultJSON(*result)
	if err := o.jobRepo.UpdateFields(job.ID, map[string]interface{}{
		"status":           model.JobStatusCompleted,
		"progress_percent": pubsub.StepProgress[pubsub.StepDone],
		"current_step":     pubsub.StepDone,
		"result":           &stored,
		"completed_at":     now,
		"elapsed_seconds":  int(now.Sub(startedAt).Seconds()),
	}); err != nil {
		return &PersistenceError{Op: "persist result", Err: err}
	}

	dealFields := map[string]interface{}{
		"status":       model.DealStatusCompleted,
		"completed_at": now,
	}
	if reportURL != "" {
		dealFields["report_oss_url"] = reportURL
	}
	if err := o.dealRepo.UpdateFields(msg.DealID, dealFields); err != nil {
		return &PersistenceError{Op: "mark deal completed", Err: err}
	}

	o.progress(job.ID, pubsub.StepDone, emitter)
	emitter.Send(stream.EventDone, stream.DonePayload{Success: true, Result: result})
	log.Printf("Job %d: completed in %d iterations, %d tool calls, partial=%v",
		job.ID, outcome.Iterations, len(outcome.ToolCalls), result.IsPartial)
	return nil
}

// uploadReport 把结果 JSON 存成报告文件。报告是结果的副本，
// OSS 不可用时先落本地磁盘（report_oss_url 记 local:// 标记），
// 后台重传任务会补传，这里不阻塞任务完成
func (o *Orchestrator) uploadReport(jobID, dealID int64, result *model.AnalysisResult) string {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Printf("Job %d: report marshal failed: %v", jobID, err)
		return ""
	}

	if o.oss != nil {
		url, err := o.oss.UploadReportWithRetry(dealID, data)
		if err == nil {
			return url
		}
		log.Printf("Job %d: report upload failed, falling back to local storage: %v", jobID, err)
	}

	localDir := filepath.Join(o.cfg.Upload.TempDir, "reports")
	if err := os.MkdirAll(localDir, 0755); err != nil {
		log.Printf("Job %d: failed to create report dir: %v", jobID, err)
		return ""
	}
	localPath := filepath.Join(localDir, fmt.Sprintf("%d.json", dealID))
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		log.Printf("Job %d: failed to save report locally: %v", jobID, err)
		return ""
	}
	log.Printf("Job %d: report saved locally (OSS unavailable)", jobID)
	return fmt.Sprintf("local://%d", dealID)
}

// progress 进度先落库再发事件。落库失败只记日志，进度是
// 可再生信息，不值得为它中断流水线
func (o *Orchestrator) progress(jobID int64, step string, emitter *stream.Emitter) {
	percent := pubsub.StepProgress[step]
	message := pubsub.StepMessages[step]
	if err := o.jobRepo.UpdateProgress(jobID, percent, step); err != nil {
		log.Printf("Job %d: progress update failed (step=%s): %v", jobID, step, err)
	}
	emitter.Send(stream.EventStatus, stream.StatusPayload{Message: message, ProgressPercent: percent})
}

func excerpt(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "…"
}
