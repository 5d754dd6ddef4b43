package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// StringArray 用于 JSON 数组字段
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, s)
}

// Deal 一笔待分析的交易（被分析主体），文档通过上传进入系统
type Deal struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	UserID       int64      `gorm:"not null;index" json:"user_id"`
	Title        string     `gorm:"size:200;not null" json:"title"`
	Description  string     `gorm:"type:text" json:"description,omitempty"`
	DocumentKey  string     `gorm:"size:500" json:"document_key,omitempty"` // OSS key 或 local:// 路径
	DocumentName string     `gorm:"size:255" json:"document_name,omitempty"`
	Status       string     `gorm:"size:20;default:draft;index" json:"status"` // draft, pending, analyzing, completed, failed
	ReportOSSURL string     `gorm:"size:500" json:"report_oss_url,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// 关联
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Deal) TableName() string {
	return "deals"
}

// 交易状态常量，闭集，不允许自由字符串
const (
	DealStatusDraft     = "draft"
	DealStatusPending   = "pending"
	DealStatusAnalyzing = "analyzing"
	DealStatusCompleted = "completed"
	DealStatusFailed    = "failed"
)
