package irc

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/ircium/pkg/logger"
)

// Wildcard 每条消息都会以该命令额外分发一次
const Wildcard = "*"

// Dispatcher 消息分发接口，每条消息调用两次：一次命令名，一次 Wildcard
type Dispatcher interface {
	Dispatch(server *Server, command string, msg *Message)
}

// DispatcherFunc 函数形式的 Dispatcher
type DispatcherFunc func(server *Server, command string, msg *Message)

// Dispatch 实现 Dispatcher
func (f DispatcherFunc) Dispatch(server *Server, command string, msg *Message) {
	f(server, command, msg)
}

// MultiDispatcher 依次调用多个 Dispatcher，单个 panic 记录日志后不影响其余
type MultiDispatcher struct {
	log         logger.Logger
	dispatchers []Dispatcher
}

// NewMultiDispatcher 创建 MultiDispatcher，nil 元素被忽略
func NewMultiDispatcher(log logger.Logger, dispatchers ...Dispatcher) *MultiDispatcher {
	if log == nil {
		log = logger.Nop()
	}
	m := &MultiDispatcher{log: log}
	m.Add(dispatchers...)
	return m
}

// Add 追加 Dispatcher，需在开始分发前调用
func (m *MultiDispatcher) Add(dispatchers ...Dispatcher) {
	for _, d := range dispatchers {
		if d != nil {
			m.dispatchers = append(m.dispatchers, d)
		}
	}
}

// Len Dispatcher 数量
func (m *MultiDispatcher) Len() int { return len(m.dispatchers) }

// Dispatch 实现 Dispatcher
func (m *MultiDispatcher) Dispatch(server *Server, command string, msg *Message) {
	for _, d := range m.dispatchers {
		m.dispatchOne(d, server, command, msg)
	}
}

func (m *MultiDispatcher) dispatchOne(d Dispatcher, server *Server, command string, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("消息处理 panic",
				zap.String("server", server.String()),
				zap.String("command", command),
				zap.String("dispatcher", fmt.Sprintf("%T", d)),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()
	d.Dispatch(server, command, msg)
}

// handleLine 处理一条入站行：空行丢弃，解析失败记录后丢弃，成功则分发两次
func (c *Conn) handleLine(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}

	msg, err := c.opts.Parser.Parse([]byte(line))
	if err != nil {
		c.opts.Metrics.IncParseErrors(c.server.Name)
		c.log.Warn("丢弃无法解析的行", zap.String("line", line), zap.Error(err))
		c.opts.Events.Publish(Event{Type: EventParseError, Server: c.server, Handle: c.handle, Err: err, Time: time.Now()})
		return
	}

	start := time.Now()
	c.dispatch(msg.Command, msg)
	c.dispatch(Wildcard, msg)
	c.opts.Metrics.ObserveDispatch(msg.Command, time.Since(start))
}

// dispatch 调用 Dispatcher，handler panic 被恢复并记录
func (c *Conn) dispatch(command string, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("消息处理 panic",
				zap.String("command", command),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()
	c.opts.Dispatcher.Dispatch(c.server, command, msg)
}
