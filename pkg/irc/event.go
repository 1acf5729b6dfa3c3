package irc

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventConnected 连接建立
	EventConnected EventType = "conn.connected"
	// EventDisconnected 连接断开
	EventDisconnected EventType = "conn.disconnected"
	// EventParseError 入站行解析失败
	EventParseError EventType = "line.parse_error"
	// EventWriteFailed 写重试耗尽
	EventWriteFailed EventType = "line.write_failed"
)

// Event 事件
type Event struct {
	Type   EventType
	Server *Server
	Handle Handle
	Err    error
	Time   time.Time
}

// EventHandler 事件处理器
type EventHandler func(Event)

// EventBus 事件总线，处理器在 worker 池中异步执行
type EventBus struct {
	handlers      map[EventType][]EventHandler
	mu            sync.RWMutex
	workerCh      chan func()
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        atomic.Bool
	closeOnce     sync.Once
	droppedEvents atomic.Int64
}

// NewEventBus 创建事件总线
func NewEventBus(workers, queueSize int) *EventBus {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	eb := &EventBus{
		handlers: make(map[EventType][]EventHandler),
		workerCh: make(chan func(), queueSize),
		stopCh:   make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	return eb
}

func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case task := <-eb.workerCh:
			func() {
				defer func() { _ = recover() }()
				task()
			}()
		case <-eb.stopCh:
			return
		}
	}
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish 发布事件（异步），nil 总线上调用无副作用
func (eb *EventBus) Publish(event Event) {
	if eb == nil || eb.closed.Load() {
		return
	}

	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		// 连接生命周期事件允许短暂等待，其余事件队列满时直接丢弃
		if event.Type == EventConnected || event.Type == EventDisconnected {
			select {
			case eb.workerCh <- func() { h(event) }:
			case <-time.After(100 * time.Millisecond):
				eb.droppedEvents.Add(1)
			}
			continue
		}
		select {
		case eb.workerCh <- func() { h(event) }:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close 关闭事件总线，未执行的事件被丢弃
func (eb *EventBus) Close() {
	if eb == nil {
		return
	}
	eb.closeOnce.Do(func() {
		eb.closed.Store(true)
		close(eb.stopCh)
		eb.wg.Wait()
	})
}

// DroppedEvents 丢弃的事件数量
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}
