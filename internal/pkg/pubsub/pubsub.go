package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelAnalysisEvents = "deal_analysis_events"
)

// EventMessage worker → server 的事件消息，Payload 原样转发给客户端
type EventMessage struct {
	UserID  int64           `json:"user_id"`
	DealID  int64           `json:"deal_id"`
	JobID   int64           `json:"job_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// 流水线阶段常量
const (
	StepInitializing = "initializing"
	StepExtracting   = "extracting"
	StepContext      = "context"
	StepAnalyzing    = "analyzing"
	StepFinalizing   = "finalizing"
	StepDone         = "done"
)

// 阶段对应的进度百分比，严格递增
var StepProgress = map[string]int{
	StepInitializing: 5,
	StepExtracting:   15,
	StepContext:      30,
	StepAnalyzing:    45,
	StepFinalizing:   90,
	StepDone:         100,
}

// 阶段对应的消息
var StepMessages = map[string]string{
	StepInitializing: "正在初始化分析任务",
	StepExtracting:   "正在提取文档文本",
	StepContext:      "正在整理关键信息",
	StepAnalyzing:    "正在进行 AI 分析",
	StepFinalizing:   "正在生成分析报告",
	StepDone:         "分析完成",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishEvent 发布分析事件
func (p *Publisher) PublishEvent(ctx context.Context, msg *EventMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event message: %w", err)
	}

	return p.client.Publish(ctx, ChannelAnalysisEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅分析事件，handler 按消息逐条回调
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*EventMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelAnalysisEvents)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var eventMsg EventMessage
			if err := json.Unmarshal([]byte(msg.Payload), &eventMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&eventMsg)
		}
	}
}
