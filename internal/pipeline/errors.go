package pipeline

import (
	"errors"
	"fmt"
)

// StageError 某个阶段的致命错误，带阶段名
type StageError struct {
	Step string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Step, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ValidationError 结构化结果不合法。不重试：同样的调用大概率
// 还是产出同样的坏结果
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid analysis result: " + e.Reason
}

// ConversationError 推理服务违反工具调用协议
type ConversationError struct {
	Reason string
}

func (e *ConversationError) Error() string {
	return "conversation protocol violation: " + e.Reason
}

// PersistenceError 持久化写入失败
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// SanitizedMessage 推给客户端的脱敏消息。完整原始错误只进数据库
func SanitizedMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "分析结果校验失败，请重新发起分析"
	}
	var ce *ConversationError
	if errors.As(err, &ce) {
		return "分析服务响应异常，请稍后重试"
	}
	var se *StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("分析在「%s」阶段失败，请稍后重试", se.Step)
	}
	return "分析失败，请稍后重试"
}
