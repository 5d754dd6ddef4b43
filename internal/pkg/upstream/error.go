package upstream

import "fmt"

// Error 外部服务的 HTTP 级错误，携带状态码用于重试分类
type Error struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Service, e.StatusCode)
}

// Retryable 限流与服务端错误可重试，其余（4xx 业务错误）不重试
func (e *Error) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
