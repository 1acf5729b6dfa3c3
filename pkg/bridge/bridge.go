package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/ircium/pkg/errors"
	"github.com/tokmz/ircium/pkg/irc"
	"github.com/tokmz/ircium/pkg/logger"
)

// 错误定义（40xx）
var (
	ErrNoSink  = errors.New(4001, "bridge: no sink configured")
	ErrPublish = errors.New(4003, "bridge: publish failed")
)

// Event 转发到外部系统的消息
type Event struct {
	Server  string            `json:"server"`
	Command string            `json:"command"`
	Source  string            `json:"source,omitempty"`
	Params  []string          `json:"params"`
	Tags    map[string]string `json:"tags,omitempty"`
	Raw     string            `json:"raw"`
	Time    time.Time         `json:"time"`
}

// NewEvent 由入站消息构造 Event
func NewEvent(server *irc.Server, msg *irc.Message) *Event {
	ev := &Event{
		Server:  server.Name,
		Command: msg.Command,
		Source:  msg.Source,
		Params:  append([]string(nil), msg.Params...),
		Tags:    msg.AllTags(),
		Time:    time.Now(),
	}
	if line, err := msg.Line(); err == nil {
		ev.Raw = strings.TrimRight(line, "\r\n")
	}
	if ev.Params == nil {
		ev.Params = []string{}
	}
	return ev
}

// Encode JSON 编码
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Sink 外部发布目标
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev *Event) error
	Close() error
}

// Options 桥接选项
type Options struct {
	// Commands 需要转发的命令，包含 irc.Wildcard 时转发全部消息
	Commands []string
	// Timeout 单次发布超时
	Timeout time.Duration
	// QueueSize 待发布队列长度，满时丢弃
	QueueSize int
	// Dedup 按 msgid 标签去重，DedupCapacity 为过滤器容量
	Dedup         bool
	DedupCapacity uint
	Logger        logger.Logger
}

// Bridge 实现 irc.Dispatcher，将消息异步发布到全部 Sink
// 发布在独立 goroutine 中按顺序执行，不阻塞事件循环
type Bridge struct {
	sinks    []Sink
	all      bool
	commands map[string]struct{}
	timeout  time.Duration
	dedup    *dedup
	log      logger.Logger

	queue     chan *Event
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Int64
	failed    atomic.Int64
	repeated  atomic.Int64
}

// New 创建桥接
func New(opts Options, sinks ...Sink) (*Bridge, error) {
	if len(sinks) == 0 {
		return nil, ErrNoSink
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if len(opts.Commands) == 0 {
		opts.Commands = []string{irc.Wildcard}
	}

	b := &Bridge{
		sinks:    sinks,
		commands: make(map[string]struct{}, len(opts.Commands)),
		timeout:  opts.Timeout,
		log:      opts.Logger.Named("bridge"),
		queue:    make(chan *Event, opts.QueueSize),
	}
	if opts.Dedup {
		b.dedup = newDedup(opts.DedupCapacity)
	}
	for _, c := range opts.Commands {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == irc.Wildcard {
			b.all = true
			continue
		}
		b.commands[c] = struct{}{}
	}

	b.wg.Add(1)
	go b.loop()
	return b, nil
}

// Dispatch 实现 irc.Dispatcher
// 每条消息只在 Wildcard 那一次分发时判断，避免重复转发
func (b *Bridge) Dispatch(server *irc.Server, command string, msg *irc.Message) {
	if command != irc.Wildcard || !b.accept(msg.Command) {
		return
	}
	if b.dedup != nil {
		if ok, id := msg.GetTag("msgid"); ok && b.dedup.seen(server.Name+"|"+id) {
			b.repeated.Add(1)
			return
		}
	}
	b.enqueue(NewEvent(server, msg))
}

func (b *Bridge) accept(command string) bool {
	if b.all {
		return true
	}
	_, ok := b.commands[strings.ToUpper(command)]
	return ok
}

func (b *Bridge) enqueue(ev *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- ev:
	default:
		b.dropped.Add(1)
		b.log.Warn("桥接队列已满，丢弃消息", zap.String("server", ev.Server), zap.String("command", ev.Command))
	}
}

func (b *Bridge) loop() {
	defer b.wg.Done()
	for ev := range b.queue {
		_ = b.Publish(context.Background(), ev)
	}
}

// Publish 同步发布到全部 Sink，返回合并后的错误
func (b *Bridge) Publish(ctx context.Context, ev *Event) error {
	var errs []error
	for _, s := range b.sinks {
		if err := b.publishOne(ctx, s, ev); err != nil {
			b.failed.Add(1)
			b.log.Error("桥接发布失败",
				zap.String("sink", s.Name()),
				zap.String("server", ev.Server),
				zap.String("command", ev.Command),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return ErrPublish.WithError(errors.Join(errs...))
	}
	return nil
}

func (b *Bridge) publishOne(ctx context.Context, s Sink, ev *Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = errors.ErrInternal.WithMessage("sink panic")
		}
	}()
	return s.Publish(ctx, ev)
}

// Dropped 因队列满被丢弃的消息数
func (b *Bridge) Dropped() int64 { return b.dropped.Load() }

// Duplicates 按 msgid 去重丢弃的消息数
func (b *Bridge) Duplicates() int64 { return b.repeated.Load() }

// Failed 发布失败次数
func (b *Bridge) Failed() int64 { return b.failed.Load() }

// Close 等待队列中的消息发布完毕后关闭全部 Sink
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
		b.wg.Wait()

		var errs []error
		for _, s := range b.sinks {
			if cerr := s.Close(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
