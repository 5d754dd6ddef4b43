package queue

import (
	"context"
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

func TestQueue_PushPop(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_queue")
	ctx := context.Background()

	msg := &JobMessage{
		JobID:       1,
		DealID:      100,
		UserID:      10,
		DocumentKey: "documents/10/deck.pdf",
		Title:       "Acme Series B",
	}

	require.NoError(t, q.Push(ctx, msg))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	popped, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, msg.JobID, popped.JobID)
	assert.Equal(t, msg.DealID, popped.DealID)
	assert.Equal(t, msg.DocumentKey, popped.DocumentKey)
}

func TestQueue_FIFOOrder(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_queue")
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Push(ctx, &JobMessage{JobID: i}))
	}

	for i := int64(1); i <= 3; i++ {
		popped, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, popped)
		assert.Equal(t, i, popped.JobID)
	}
}

func TestQueue_PopEmptyTimesOut(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "empty_queue")

	popped, err := q.Pop(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, popped)
}
