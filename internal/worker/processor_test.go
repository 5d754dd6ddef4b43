package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/deal_anal_server/internal/pkg/pubsub"
	"github.com/qs3c/deal_anal_server/internal/pkg/queue"
	"github.com/qs3c/deal_anal_server/internal/pkg/stream"
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

func TestPublisherSink_PublishesEvent(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	received := make(chan *pubsub.EventMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := pubsub.NewSubscriber(client)
	go sub.Subscribe(ctx, func(msg *pubsub.EventMessage) {
		received <- msg
	})
	time.Sleep(50 * time.Millisecond)

	sink := NewPublisherSink(pubsub.NewPublisher(client), 7, 42, 99)
	err := sink.Write(stream.Event{
		Type:    stream.EventStatus,
		Payload: stream.StatusPayload{Message: "正在提取文档文本", ProgressPercent: 15},
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, int64(7), msg.UserID)
		assert.Equal(t, int64(42), msg.DealID)
		assert.Equal(t, int64(99), msg.JobID)
		assert.Equal(t, stream.EventStatus, msg.Event)

		var payload stream.StatusPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, 15, payload.ProgressPercent)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestPublisherSink_WorksThroughEmitter(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	var got []string
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := pubsub.NewSubscriber(client)
	go sub.Subscribe(ctx, func(msg *pubsub.EventMessage) {
		got = append(got, msg.Event)
		if msg.Event == stream.EventDone {
			close(done)
		}
	})
	time.Sleep(50 * time.Millisecond)

	sink := NewPublisherSink(pubsub.NewPublisher(client), 1, 2, 3)
	emitter := stream.NewEmitter(sink, 16)
	emitter.Send(stream.EventStatus, stream.StatusPayload{Message: "开始", ProgressPercent: 5})
	emitter.Send(stream.EventDone, stream.DonePayload{Success: true})
	emitter.Close()

	select {
	case <-done:
		assert.Equal(t, []string{stream.EventStatus, stream.EventDone}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("terminal event not received")
	}
}

func TestConsumer_StopsOnContextCancel(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := queue.NewQueue(client, "test_queue")
	consumer := NewConsumer(q, NewProcessor(nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not stop after context cancel")
	}
}
