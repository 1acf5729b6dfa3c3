package irc

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/ircium/pkg/logger"
)

// Handle 事件循环句柄，每个连接唯一
type Handle string

func newHandle() Handle {
	return Handle(uuid.NewString())
}

// State 事件循环状态
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Conn 单个服务器的连接
type Conn struct {
	server   *Server
	handle   Handle
	opts     *Options
	registry *Registry
	log      logger.Logger

	transport Transport

	inbound  *Queue
	outbound *Queue

	running atomic.Bool // 事件循环是否继续
	closing atomic.Bool // 已请求退出，不再接收出站行
	state   atomic.Int32

	lifeMu  sync.Mutex
	started bool
	closed  bool

	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once

	connectedAt time.Time
	lastRead    atomic.Int64
	linesIn     atomic.Uint64
	linesOut    atomic.Uint64
}

func newConn(s *Server, t Transport, opts *Options, registry *Registry, log logger.Logger) *Conn {
	handle := newHandle()
	c := &Conn{
		server:      s,
		handle:      handle,
		opts:        opts,
		registry:    registry,
		log:         log.With(zap.String("server", s.String()), zap.String("handle", string(handle))),
		transport:   t,
		inbound:     NewQueue(),
		outbound:    NewQueue(),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
	c.running.Store(true)
	c.lastRead.Store(c.connectedAt.UnixNano())
	return c
}

// Server 所属服务器
func (c *Conn) Server() *Server { return c.server }

// Handle 句柄
func (c *Conn) Handle() Handle { return c.handle }

// State 当前状态
func (c *Conn) State() State { return State(c.state.Load()) }

// Secure 是否为 TLS 连接
func (c *Conn) Secure() bool { return c.transport.Secure() }

// Done 连接释放后关闭
func (c *Conn) Done() <-chan struct{} { return c.done }

// ConnInfo 连接快照
type ConnInfo struct {
	Server      string    `json:"server"`
	Addr        string    `json:"addr"`
	Handle      Handle    `json:"handle"`
	Secure      bool      `json:"secure"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
	LinesIn     uint64    `json:"lines_in"`
	LinesOut    uint64    `json:"lines_out"`
	Inbound     int       `json:"inbound_pending"`
	Outbound    int       `json:"outbound_pending"`
}

// Info 返回连接快照
func (c *Conn) Info() ConnInfo {
	return ConnInfo{
		Server:      c.server.String(),
		Addr:        c.server.Addr(),
		Handle:      c.handle,
		Secure:      c.Secure(),
		State:       c.State().String(),
		ConnectedAt: c.connectedAt,
		LinesIn:     c.linesIn.Load(),
		LinesOut:    c.linesOut.Load(),
		Inbound:     c.inbound.Len(),
		Outbound:    c.outbound.Len(),
	}
}

// enqueue 追加一条已带行尾的出站行
func (c *Conn) enqueue(line string) error {
	if c.closing.Load() {
		return ErrConnectionClosed
	}
	c.outbound.PushBack(line)
	return nil
}

// serialize 序列化消息为出站行
func (c *Conn) serialize(msg *Message) (string, error) {
	b, err := c.opts.Serializer.Serialize(msg)
	if err != nil {
		return "", err
	}
	return terminate(string(b))
}

// terminate 补齐 \r\n，行内出现 CR、LF 或 NUL 时拒绝，避免一次入队拼出多条命令
func terminate(line string) (string, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.ContainsAny(line, "\r\n\x00") {
		return "", ErrInvalidLine
	}
	return line + "\r\n", nil
}

// quit 入队 QUIT 并停止事件循环
// 事件循环未运行时在当前协程同步发送并释放连接
func (c *Conn) quit(message string) error {
	line, err := c.serialize(NewMessage("QUIT", message))
	if err != nil {
		return err
	}
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}

	c.outbound.PushBack(line)
	c.running.Store(false)

	c.lifeMu.Lock()
	started := c.started
	if !started {
		c.closed = true
	}
	c.lifeMu.Unlock()

	if started {
		c.stop()
		return nil
	}

	err = c.drainOutbound()
	c.teardown()
	return err
}

// stop 唤醒事件循环
func (c *Conn) stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// forceClose 关闭底层连接，阻塞中的读写随即返回
func (c *Conn) forceClose() {
	c.closing.Store(true)
	c.running.Store(false)
	c.stop()
	_ = c.transport.Close()
}

// teardown 关闭连接并从注册表移除，只执行一次
func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateStopped))
		if err := c.transport.Close(); err != nil {
			c.log.Debug("关闭连接", zap.Error(err))
		}
		if c.registry.Unregister(c) {
			c.opts.Metrics.DecConnections()
		}
		c.log.Info("连接已释放",
			zap.Uint64("lines_in", c.linesIn.Load()),
			zap.Uint64("lines_out", c.linesOut.Load()),
		)
		c.opts.Events.Publish(Event{Type: EventDisconnected, Server: c.server, Handle: c.handle, Time: time.Now()})
		close(c.done)
	})
}
