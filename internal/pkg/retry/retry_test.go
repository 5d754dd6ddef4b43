package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreamErr struct {
	code int
}

func (e *upstreamErr) Error() string {
	return fmt.Sprintf("upstream returned %d", e.code)
}

func (e *upstreamErr) Retryable() bool {
	return e.code == 429 || e.code >= 500
}

func testPolicy() (Policy, *[]time.Duration) {
	delays := &[]time.Duration{}
	p := Policy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   400 * time.Millisecond,
		sleep: func(ctx context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
	return p, delays
}

func TestDo_SucceedsAfterRetryableFailures(t *testing.T) {
	p, delays := testPolicy()

	calls := 0
	result, err := Do(context.Background(), p, func() (string, error) {
		calls++
		if calls <= 2 {
			return "", &upstreamErr{code: 429}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)

	// 延迟序列 min(base·2^i, max) + jitter(0~30%)
	require.Len(t, *delays, 2)
	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	for i, d := range *delays {
		assert.GreaterOrEqual(t, d, expected[i], "delay %d below backoff floor", i)
		assert.LessOrEqual(t, d, expected[i]*13/10, "delay %d above jitter ceiling", i)
	}
}

func TestDo_DelayCappedAtMax(t *testing.T) {
	p, delays := testPolicy()

	calls := 0
	_, err := Do(context.Background(), p, func() (int, error) {
		calls++
		return 0, &upstreamErr{code: 503}
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls) // 首次 + 3 次重试
	require.Len(t, *delays, 3)
	// 第三次应被 MaxDelay 截断：min(100ms·2^2, 400ms) = 400ms
	assert.GreaterOrEqual(t, (*delays)[2], 400*time.Millisecond)
	assert.LessOrEqual(t, (*delays)[2], 400*time.Millisecond*13/10)
}

func TestDo_FatalErrorNoRetry(t *testing.T) {
	p, delays := testPolicy()

	fatal := errors.New("invalid request payload")
	calls := 0
	_, err := Do(context.Background(), p, func() (string, error) {
		calls++
		return "", fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestDo_ExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	p, _ := testPolicy()

	last := &upstreamErr{code: 500}
	_, err := Do(context.Background(), p, func() (string, error) {
		return "", last
	})

	require.Error(t, err)
	var ue *upstreamErr
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 500, ue.code)
	assert.Equal(t, "upstream returned 500", err.Error())
}

func TestDo_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Policy{
		MaxRetries: 5,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
	}

	calls := 0
	_, err := Do(ctx, p, func() (string, error) {
		calls++
		cancel()
		return "", &upstreamErr{code: 429}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	t.Run("upstream classified errors", func(t *testing.T) {
		assert.True(t, IsRetryable(&upstreamErr{code: 429}))
		assert.True(t, IsRetryable(&upstreamErr{code: 502}))
		assert.False(t, IsRetryable(&upstreamErr{code: 400}))
		assert.False(t, IsRetryable(&upstreamErr{code: 401}))
	})

	t.Run("wrapped upstream error", func(t *testing.T) {
		wrapped := fmt.Errorf("call reasoning service: %w", &upstreamErr{code: 503})
		assert.True(t, IsRetryable(wrapped))
	})

	t.Run("network errors", func(t *testing.T) {
		var netErr net.Error = &net.DNSError{IsTimeout: true}
		assert.True(t, IsRetryable(netErr))
	})

	t.Run("context errors are not retryable", func(t *testing.T) {
		assert.False(t, IsRetryable(context.Canceled))
		assert.False(t, IsRetryable(context.DeadlineExceeded))
	})

	t.Run("nil", func(t *testing.T) {
		assert.False(t, IsRetryable(nil))
	})
}
