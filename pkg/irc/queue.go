package irc

import (
	"sync"

	"github.com/eapache/queue"
)

// Queue 线程安全的行队列，多生产者单消费者
type Queue struct {
	mu     sync.Mutex
	buf    *queue.Queue
	notify chan struct{}
}

// NewQueue 创建队列
func NewQueue() *Queue {
	return &Queue{
		buf:    queue.New(),
		notify: make(chan struct{}, 1),
	}
}

// PushBack 追加一行并唤醒消费者
func (q *Queue) PushBack(line string) {
	q.mu.Lock()
	q.buf.Add(line)
	q.mu.Unlock()

	// 信号合并，已有未读信号时不再重复发送
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop 弹出队首
func (q *Queue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.buf.Length() == 0 {
		return "", false
	}
	return q.buf.Remove().(string), true
}

// DrainAll 逐条弹出直到队列为空，fn 在锁外调用
// fn 返回错误时停止，返回已处理条数与该错误
func (q *Queue) DrainAll(fn func(line string) error) (int, error) {
	n := 0
	for {
		line, ok := q.pop()
		if !ok {
			return n, nil
		}
		n++
		if err := fn(line); err != nil {
			return n, err
		}
	}
}

// Len 当前长度
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Length()
}

// Notify 有新数据时可读
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
