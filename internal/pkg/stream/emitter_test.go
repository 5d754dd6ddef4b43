package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Write(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestEmitter_SendAndClose(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, 16)

	e.Send(EventStatus, StatusPayload{Message: "initializing", ProgressPercent: 5})
	e.Send(EventDelta, DeltaPayload{Text: "partial text"})
	e.Send(EventDone, DonePayload{Success: true})
	e.Close()

	events := sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, EventStatus, events[0].Type)
	assert.Equal(t, EventDelta, events[1].Type)
	assert.Equal(t, EventDone, events[2].Type)
}

func TestEmitter_NoSendAfterClose(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, 16)

	e.Send(EventDone, DonePayload{Success: true})
	e.Close()

	// close 之后的 send 必须是无异常的空操作
	assert.NotPanics(t, func() {
		e.Send(EventStatus, StatusPayload{Message: "late"})
		e.Send(EventError, ErrorPayload{Message: "late error"})
	})

	assert.Len(t, sink.Events(), 1)
}

func TestEmitter_SingleTerminalEvent(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, 16)

	e.Send(EventDone, DonePayload{Success: true})
	e.Send(EventError, ErrorPayload{Message: "should be dropped"})
	e.Send(EventDone, DonePayload{Success: false})
	e.Close()

	events := sink.Events()
	terminal := 0
	for _, ev := range events {
		if ev.Type == EventDone || ev.Type == EventError {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestEmitter_DoubleCloseSafe(t *testing.T) {
	e := NewEmitter(&recordingSink{}, 16)
	e.Close()
	assert.NotPanics(t, func() { e.Close() })
}

func TestEmitter_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	// Sink 卡死也不能阻塞 Send
	blocked := make(chan struct{})
	sink := &blockingSink{release: blocked}
	e := NewEmitter(sink, 1)

	start := time.Now()
	for i := 0; i < 10; i++ {
		e.Send(EventDelta, DeltaPayload{Text: "x"})
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Greater(t, e.Dropped(), 0)

	close(blocked)
	e.Close()
}

func TestEmitter_SinkErrorDoesNotStopDraining(t *testing.T) {
	sink := &recordingSink{err: errors.New("client gone")}
	e := NewEmitter(sink, 16)

	e.Send(EventStatus, StatusPayload{Message: "a"})
	e.Send(EventStatus, StatusPayload{Message: "b"})
	assert.NotPanics(t, e.Close)
}

func TestEmitter_ConcurrentSendAndClose(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.Send(EventDelta, DeltaPayload{Text: "concurrent"})
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	e.Close()
	wg.Wait()
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Write(ev Event) error {
	<-s.release
	return nil
}
