package stream

import (
	"log"
	"sync"
)

// 事件类型闭集
const (
	EventStatus       = "status"
	EventDelta        = "delta"
	EventQuickContext = "quick_context"
	EventDone         = "done"
	EventError        = "error"
)

// Event 推送给客户端的单条事件
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusPayload struct {
	Message         string `json:"message"`
	ProgressPercent int    `json:"progress_percent"`
}

type DeltaPayload struct {
	Text string `json:"text"`
}

type QuickContextPayload struct {
	Data interface{} `json:"data"`
}

type DonePayload struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Sink 事件的实际去向（Redis 发布、内存通道等）
type Sink interface {
	Write(ev Event) error
}

// Emitter 单向事件通道。单写者：事件进入有界缓冲后由唯一的后台
// goroutine 写入 Sink，慢客户端丢事件而不是阻塞流水线。
// Close 之后的 Send 是记一条告警的空操作，绝不 panic。
type Emitter struct {
	sink Sink
	ch   chan Event

	mu           sync.Mutex
	closed       bool
	terminalSent bool
	dropped      int

	wg sync.WaitGroup
}

const defaultBuffer = 256

// NewEmitter 创建 Emitter，buffer <= 0 时使用默认缓冲
func NewEmitter(sink Sink, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	e := &Emitter{
		sink: sink,
		ch:   make(chan Event, buffer),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *Emitter) run() {
	defer e.wg.Done()
	for ev := range e.ch {
		if err := e.sink.Write(ev); err != nil {
			log.Printf("stream: sink write failed (type=%s): %v", ev.Type, err)
		}
	}
}

// Send 入队一条事件。每个任务只允许一条 done 或 error 终结事件，
// 多余的终结事件丢弃
func (e *Emitter) Send(eventType string, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		log.Printf("stream: send after close dropped (type=%s)", eventType)
		return
	}

	if eventType == EventDone || eventType == EventError {
		if e.terminalSent {
			log.Printf("stream: duplicate terminal event dropped (type=%s)", eventType)
			return
		}
		e.terminalSent = true
	}

	select {
	case e.ch <- Event{Type: eventType, Payload: payload}:
	default:
		e.dropped++
		log.Printf("stream: buffer full, event dropped (type=%s, dropped=%d)", eventType, e.dropped)
	}
}

// Close 关闭通道并等待缓冲排空。重复 Close 无副作用
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	e.wg.Wait()
}

// Dropped 被丢弃的事件数
func (e *Emitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}
