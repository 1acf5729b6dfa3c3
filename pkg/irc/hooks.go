package irc

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tokmz/ircium/pkg/logger"
)

// Handler 命令处理器
type Handler func(server *Server, msg *Message) error

// NextFunc 中间件下一步函数
type NextFunc func() error

// MiddlewareFunc 中间件函数
type MiddlewareFunc func(server *Server, msg *Message, next NextFunc) error

// Sender 出站接口，由 Client 实现
type Sender interface {
	EnqueueMessage(server *Server, msg *Message) error
	EnqueueLine(server *Server, line string) error
}

// Hooks 按命令注册处理器的 Dispatcher，同一命令可注册多个处理器
type Hooks struct {
	handlers   map[string][]Handler
	middleware []MiddlewareFunc
	compiled   map[string]Handler // 冻结后预编译的处理器链
	mu         sync.RWMutex
	frozen     bool
	log        logger.Logger
}

// NewHooks 创建 Hooks，log 为空时不记录处理器错误
func NewHooks(log logger.Logger) *Hooks {
	if log == nil {
		log = logger.Nop()
	}
	return &Hooks{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Register 注册处理器，命令名不区分大小写，Wildcard 接收全部消息
func (h *Hooks) Register(command string, handler Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.frozen {
		return ErrHooksFrozen
	}
	command = strings.ToUpper(command)
	h.handlers[command] = append(h.handlers[command], handler)
	return nil
}

// Use 添加中间件
func (h *Hooks) Use(middleware ...MiddlewareFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.middleware = append(h.middleware, middleware...)
}

// Freeze 冻结（启动后不可修改）并预编译处理器链
func (h *Hooks) Freeze() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frozen = true

	h.compiled = make(map[string]Handler, len(h.handlers))
	for command, handlers := range h.handlers {
		h.compiled[command] = buildChain(h.middleware, fanOut(handlers))
	}
}

// fanOut 依次执行同一命令的全部处理器，返回第一个错误
func fanOut(handlers []Handler) Handler {
	return func(s *Server, m *Message) error {
		var first error
		for _, fn := range handlers {
			if err := fn(s, m); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

// buildChain 从后向前构建中间件链
func buildChain(middleware []MiddlewareFunc, handler Handler) Handler {
	final := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := final
		final = func(s *Server, m *Message) error {
			return mw(s, m, func() error {
				return next(s, m)
			})
		}
	}
	return final
}

// Dispatch 实现 Dispatcher，无处理器的命令直接忽略
func (h *Hooks) Dispatch(server *Server, command string, msg *Message) {
	command = strings.ToUpper(command)

	h.mu.RLock()
	var handler Handler
	if h.frozen {
		handler = h.compiled[command]
	} else if handlers, ok := h.handlers[command]; ok {
		handler = buildChain(h.middleware, fanOut(handlers))
	}
	h.mu.RUnlock()

	if handler == nil {
		return
	}
	if err := handler(server, msg); err != nil {
		h.log.Warn("处理器返回错误",
			zap.String("server", server.String()),
			zap.String("command", command),
			zap.Error(err),
		)
	}
}

// RegisterCoreHooks 注册核心处理器：收到 PING 时回复 PONG
func (h *Hooks) RegisterCoreHooks(sender Sender) error {
	return h.Register("PING", func(s *Server, m *Message) error {
		return sender.EnqueueMessage(s, NewMessage("PONG", m.Params...))
	})
}
