package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/qs3c/deal_anal_server/internal/pipeline"
	"github.com/qs3c/deal_anal_server/internal/pkg/pubsub"
	"github.com/qs3c/deal_anal_server/internal/pkg/queue"
	"github.com/qs3c/deal_anal_server/internal/pkg/stream"
)

// PublisherSink 把流水线事件桥接到 Redis 发布通道，API 侧的
// SSE/WebSocket 订阅后转发给客户端
type PublisherSink struct {
	publisher *pubsub.Publisher
	userID    int64
	dealID    int64
	jobID     int64
}

func NewPublisherSink(publisher *pubsub.Publisher, userID, dealID, jobID int64) *PublisherSink {
	return &PublisherSink{publisher: publisher, userID: userID, dealID: dealID, jobID: jobID}
}

func (s *PublisherSink) Write(ev stream.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	// 发布走独立 context：任务取消后终态事件仍要送达
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.publisher.PublishEvent(ctx, &pubsub.EventMessage{
		UserID:  s.userID,
		DealID:  s.dealID,
		JobID:   s.jobID,
		Event:   ev.Type,
		Payload: payload,
	})
}

// Processor 队列消息到流水线的适配层，每条消息独享一个 Emitter
type Processor struct {
	orchestrator *pipeline.Orchestrator
	publisher    *pubsub.Publisher
}

func NewProcessor(orchestrator *pipeline.Orchestrator, publisher *pubsub.Publisher) *Processor {
	return &Processor{orchestrator: orchestrator, publisher: publisher}
}

// Process 处理一条分析任务消息。错误已在流水线内处理完（落库、
// 事件、告警），这里只返回给消费循环记日志
func (p *Processor) Process(ctx context.Context, msg *queue.JobMessage) error {
	log.Printf("Job %d: picked up (deal=%d, user=%d)", msg.JobID, msg.DealID, msg.UserID)

	sink := NewPublisherSink(p.publisher, msg.UserID, msg.DealID, msg.JobID)
	emitter := stream.NewEmitter(sink, 0)
	defer emitter.Close()

	return p.orchestrator.Run(ctx, msg, emitter)
}

// Consumer 阻塞式队列消费循环
type Consumer struct {
	queue     *queue.Queue
	processor *Processor
}

func NewConsumer(q *queue.Queue, processor *Processor) *Consumer {
	return &Consumer{queue: q, processor: processor}
}

const popTimeout = 5 * time.Second

// Run 持续消费直到 ctx 取消。单条消息的失败不中断循环
func (c *Consumer) Run(ctx context.Context) {
	log.Println("Worker consumer started")
	for {
		select {
		case <-ctx.Done():
			log.Println("Worker consumer stopped")
			return
		default:
		}

		msg, err := c.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("Queue pop failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		if err := c.processor.Process(ctx, msg); err != nil {
			log.Printf("Job %d: processing ended with error: %v", msg.JobID, err)
		}
	}
}
