package dto

import "github.com/qs3c/deal_anal_server/internal/model"

type CreateDealRequest struct {
	Title        string `json:"title" binding:"required,max=200"`
	Description  string `json:"description"`
	DocumentKey  string `json:"document_key" binding:"required"`
	DocumentName string `json:"document_name"`
}

type CreateDealResponse struct {
	DealID int64 `json:"deal_id"`
}

type AnalyzeDealResponse struct {
	DealID int64 `json:"deal_id"`
	JobID  int64 `json:"job_id"`
}

type DealDetail struct {
	ID           int64                 `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description,omitempty"`
	DocumentName string                `json:"document_name,omitempty"`
	Status       string                `json:"status"`
	ReportOSSURL string                `json:"report_oss_url,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Result       *model.AnalysisResult `json:"result,omitempty"`
	StartedAt    string                `json:"started_at,omitempty"`
	CompletedAt  string                `json:"completed_at,omitempty"`
	CreatedAt    string                `json:"created_at"`
	UpdatedAt    string                `json:"updated_at"`
}

type DealListItem struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobStatusResponse struct {
	JobID           int64  `json:"job_id"`
	DealID          int64  `json:"deal_id"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	CurrentStep     string `json:"current_step,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	StartedAt       string `json:"started_at,omitempty"`
	ElapsedSeconds  int    `json:"elapsed_seconds,omitempty"`
}
