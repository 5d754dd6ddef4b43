package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestStepProgress(t *testing.T) {
	// Verify all steps have progress values
	steps := []string{StepInitializing, StepExtracting, StepContext, StepAnalyzing, StepFinalizing, StepDone}

	for _, step := range steps {
		progress, ok := StepProgress[step]
		assert.True(t, ok, "Step %s should have progress value", step)
		assert.Greater(t, progress, 0, "Progress for %s should be > 0", step)
		assert.LessOrEqual(t, progress, 100, "Progress for %s should be <= 100", step)
	}

	// Verify progress is monotonically increasing
	assert.Less(t, StepProgress[StepInitializing], StepProgress[StepExtracting])
	assert.Less(t, StepProgress[StepExtracting], StepProgress[StepContext])
	assert.Less(t, StepProgress[StepContext], StepProgress[StepAnalyzing])
	assert.Less(t, StepProgress[StepAnalyzing], StepProgress[StepFinalizing])
	assert.Less(t, StepProgress[StepFinalizing], StepProgress[StepDone])
	assert.Equal(t, 100, StepProgress[StepDone])
}

func TestStepMessages(t *testing.T) {
	steps := []string{StepInitializing, StepExtracting, StepContext, StepAnalyzing, StepFinalizing, StepDone}

	for _, step := range steps {
		msg, ok := StepMessages[step]
		assert.True(t, ok, "Step %s should have message", step)
		assert.NotEmpty(t, msg, "Message for %s should not be empty", step)
	}
}

func TestPublishSubscribe(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := NewSubscriber(client)
	received := make(chan *EventMessage, 1)

	go func() {
		_ = sub.Subscribe(ctx, func(msg *EventMessage) {
			received <- msg
		})
	}()

	// 给订阅一点建立时间
	time.Sleep(50 * time.Millisecond)

	payload, err := json.Marshal(map[string]interface{}{
		"message":          "正在提取文档文本",
		"progress_percent": 15,
	})
	require.NoError(t, err)

	pub := NewPublisher(client)
	err = pub.PublishEvent(ctx, &EventMessage{
		UserID:  1,
		DealID:  2,
		JobID:   3,
		Event:   "status",
		Payload: payload,
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, int64(1), msg.UserID)
		assert.Equal(t, int64(3), msg.JobID)
		assert.Equal(t, "status", msg.Event)
		assert.JSONEq(t, string(payload), string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestSubscribe_StopsOnContextCancel(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- NewSubscriber(client).Subscribe(ctx, func(*EventMessage) {})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
