package pubsub

import (
	"log"
	"sync"
)

const subscriberBuffer = 64

// Dispatcher 把 Redis 订阅到的事件扇出给进程内的 SSE 连接。
// 按 jobID 订阅，慢连接丢事件而不是阻塞订阅循环
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[int64]map[chan *EventMessage]struct{}
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subs: make(map[int64]map[chan *EventMessage]struct{}),
	}
}

// Subscribe 订阅某个任务的事件，返回的 channel 在 Unsubscribe 时关闭
func (d *Dispatcher) Subscribe(jobID int64) chan *EventMessage {
	ch := make(chan *EventMessage, subscriberBuffer)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs[jobID] == nil {
		d.subs[jobID] = make(map[chan *EventMessage]struct{})
	}
	d.subs[jobID][ch] = struct{}{}
	return ch
}

// Unsubscribe 取消订阅并关闭 channel。重复调用无副作用
func (d *Dispatcher) Unsubscribe(jobID int64, ch chan *EventMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs, ok := d.subs[jobID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(d.subs, jobID)
	}
	close(ch)
}

// Dispatch 投递一条事件给该任务的所有订阅者，作为 Subscriber 的
// handler 使用
func (d *Dispatcher) Dispatch(msg *EventMessage) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for ch := range d.subs[msg.JobID] {
		select {
		case ch <- msg:
		default:
			log.Printf("Dispatcher: slow subscriber for job %d, event %s dropped", msg.JobID, msg.Event)
		}
	}
}

// SubscriberCount 当前订阅连接数
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total := 0
	for _, subs := range d.subs {
		total += len(subs)
	}
	return total
}
