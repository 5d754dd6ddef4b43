package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

// Policy 指数退避重试策略
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// 测试注入用，nil 时按 context 感知的 time.After 等待
	sleep func(ctx context.Context, d time.Duration) error
}

// RetryableError 上游错误自行声明是否可重试（限流、超时、5xx）
type RetryableError interface {
	Retryable() bool
}

// IsRetryable 错误分类：网络错误、请求超时、上游声明可重试的错误。
// context 取消/超时不重试，直接向上传递
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// Do 执行 fn，可重试错误按 min(base·2^attempt, max) + jitter(0~30%) 退避，
// 重试耗尽后原样返回最后一次错误（保留分类和消息）
func Do[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= p.MaxRetries {
			return zero, lastErr
		}

		if err := p.wait(ctx, p.Backoff(attempt)); err != nil {
			return zero, lastErr
		}
	}
}

// Backoff 第 attempt 次重试前的等待时长
func (p Policy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)*3/10 + 1))
	return delay + jitter
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
