package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// 任务状态常量，queued → processing → completed/failed 单向流转
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

type AnalysisJob struct {
	ID              int64       `gorm:"primaryKey" json:"id"`
	DealID          int64       `gorm:"not null;index" json:"deal_id"`
	UserID          int64       `gorm:"not null;index" json:"user_id"`
	Status          string      `gorm:"size:20;default:queued;index" json:"status"`
	ProgressPercent int         `gorm:"default:0" json:"progress_percent"`
	CurrentStep     string      `gorm:"size:200" json:"current_step,omitempty"`
	ErrorMessage    string      `gorm:"type:text" json:"error_message,omitempty"`
	Result          *ResultJSON `gorm:"type:text" json:"result,omitempty"`
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	ElapsedSeconds  int         `json:"elapsed_seconds,omitempty"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

// IsTerminal 是否已到终态
func (j *AnalysisJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ResultJSON AnalysisResult 的数据库存储形式（TEXT 列存 JSON）
type ResultJSON AnalysisResult

func (r ResultJSON) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *ResultJSON) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("unsupported result column type")
	}
	return json.Unmarshal(bytes, r)
}
