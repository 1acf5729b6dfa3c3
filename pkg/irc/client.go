package irc

import (
	"context"
	"crypto/tls"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/ircium/pkg/logger"
	"github.com/tokmz/ircium/pkg/tracing"
)

// Client 管理到多个服务器的连接
type Client struct {
	opts      *Options
	registry  *Registry
	log       logger.Logger
	ownEvents bool
	closed    atomic.Bool
}

// NewClient 创建客户端
// 未设置 Dispatcher 时使用带核心处理器（PING/PONG）的 Hooks
func NewClient(opts ...Option) (*Client, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.normalize()
	if err := o.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		opts:     o,
		registry: NewRegistry(o.MaxConnections),
		log:      o.Logger.Named("irc"),
	}
	if o.Events == nil {
		o.Events = NewEventBus(4, 256)
		c.ownEvents = true
	}
	if o.Dispatcher == nil {
		hooks := NewHooks(c.log)
		if err := hooks.RegisterCoreHooks(c); err != nil {
			return nil, err
		}
		o.Dispatcher = hooks
	}
	return c, nil
}

// Events 事件总线
func (c *Client) Events() *EventBus { return c.opts.Events }

// Registry 连接注册表
func (c *Client) Registry() *Registry { return c.registry }

// Connect 建立连接并登记，不会自动重试
// 顺序：预留槽位、建连、TLS 握手、设置非阻塞、检查就绪、正式登记
func (c *Client) Connect(ctx context.Context, s *Server) (err error) {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := s.Validate(); err != nil {
		return err
	}

	ctx, span := c.opts.Tracer.Start(ctx, "irc.connect",
		trace.WithAttributes(tracing.ServerAttributes(s.String(), s.Addr(), s.Secure)...))
	defer func() { tracing.End(span, err) }()

	log := c.log.With(zap.String("server", s.String()), zap.String("addr", s.Addr()))
	fail := func(reason string, err error) error {
		c.opts.Metrics.IncConnectFailures(s.Name, reason)
		log.Warn("连接失败", zap.String("reason", reason), zap.Error(err))
		return err
	}

	if err := c.registry.Reserve(s); err != nil {
		return fail("registry", err)
	}
	committed := false
	defer func() {
		if !committed {
			c.registry.Release(s)
		}
	}()

	raw, err := dialServer(ctx, s, c.opts)
	if err != nil {
		return fail("dial", err)
	}
	defer func() {
		if !committed {
			_ = raw.Close()
		}
	}()

	var session *tls.Conn
	if s.Secure {
		hctx, hspan := c.opts.Tracer.Start(ctx, "irc.tls_handshake")
		session, err = tlsHandshake(hctx, raw, s, c.opts.HandshakeTimeout)
		tracing.End(hspan, err)
		if err != nil {
			return fail("tls", err)
		}
	}

	if err = setNonblocking(raw); err != nil {
		return fail("socket", err)
	}
	if err = verifyReady(raw, c.opts.ReadyTimeout); err != nil {
		return fail("ready", err)
	}

	conn := newConn(s, newTransport(raw, session), c.opts, c.registry, c.log)
	preamble, err := c.preamble(conn, s.User)
	if err != nil {
		return fail("preamble", err)
	}
	if err = c.registry.Register(conn); err != nil {
		return fail("registry", err)
	}
	committed = true

	for _, line := range preamble {
		conn.outbound.PushBack(line)
	}

	c.opts.Metrics.IncConnections()
	span.SetAttributes(tracing.AttrHandle.String(string(conn.handle)))
	log.Info("连接已建立", zap.String("handle", string(conn.handle)), zap.Bool("secure", conn.Secure()))
	c.opts.Events.Publish(Event{Type: EventConnected, Server: s, Handle: conn.handle, Time: time.Now()})
	return nil
}

// preamble 注册命令：PASS（可选）、NICK、USER
func (c *Client) preamble(conn *Conn, u *User) ([]string, error) {
	if u == nil {
		return nil, nil
	}
	ident := u.Ident
	if ident == "" {
		ident = u.Nick
	}
	realName := u.RealName
	if realName == "" {
		realName = u.Nick
	}

	msgs := make([]*Message, 0, 3)
	if u.Password != "" {
		msgs = append(msgs, NewMessage("PASS", u.Password))
	}
	msgs = append(msgs,
		NewMessage("NICK", u.Nick),
		NewMessage("USER", ident, "0", "*", realName),
	)

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		line, err := conn.serialize(m)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Run 运行服务器连接的事件循环，直到退出、出错或 ctx 结束
// ctx 结束视为正常退出（发送 QUIT），返回 nil
func (c *Client) Run(ctx context.Context, s *Server) error {
	conn := c.registry.FindByServer(s)
	if conn == nil {
		return ErrNotConnected
	}
	return conn.run(ctx)
}

// EnqueueMessage 序列化消息并加入出站队列，可在任意协程调用
func (c *Client) EnqueueMessage(s *Server, msg *Message) error {
	conn := c.registry.FindByServer(s)
	if conn == nil {
		return ErrNotConnected
	}
	line, err := conn.serialize(msg)
	if err != nil {
		return err
	}
	return conn.enqueue(line)
}

// EnqueueLine 原样加入出站队列，缺少行尾时补齐
// 行内含 CR、LF 或 NUL 时返回 ErrInvalidLine
func (c *Client) EnqueueLine(s *Server, text string) error {
	conn := c.registry.FindByServer(s)
	if conn == nil {
		return ErrNotConnected
	}
	line, err := terminate(text)
	if err != nil {
		return err
	}
	return conn.enqueue(line)
}

// Quit 使用默认退出消息断开
func (c *Client) Quit(s *Server) error {
	return c.QuitWithMessage(s, c.opts.QuitMessage)
}

// QuitWithMessage 入队 QUIT 并停止事件循环，事件循环完成最后一次发送后关闭连接
func (c *Client) QuitWithMessage(s *Server, message string) error {
	conn := c.registry.FindByServer(s)
	if conn == nil {
		return ErrNotConnected
	}

	_, span := c.opts.Tracer.Start(context.Background(), "irc.quit", trace.WithAttributes(
		tracing.AttrServer.String(s.String()),
		tracing.AttrHandle.String(string(conn.handle)),
	))
	err := conn.quit(message)
	tracing.End(span, err)
	return err
}

// IsConnected 服务器是否有登记的连接
func (c *Client) IsConnected(s *Server) bool {
	return c.registry.FindByServer(s) != nil
}

// FindServerByName 按名称查找已连接的服务器
func (c *Client) FindServerByName(name string) *Server {
	if conn := c.registry.FindByName(name); conn != nil {
		return conn.server
	}
	return nil
}

// Conn 返回服务器的连接
func (c *Client) Conn(s *Server) *Conn {
	return c.registry.FindByServer(s)
}

// Conns 所有连接的快照，按服务器名称排序
func (c *Client) Conns() []ConnInfo {
	conns := c.registry.Conns()
	infos := make([]ConnInfo, 0, len(conns))
	for _, conn := range conns {
		infos = append(infos, conn.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Server < infos[j].Server })
	return infos
}

// Shutdown 向所有连接发送 QUIT 并等待释放，ctx 结束时强制关闭剩余连接
func (c *Client) Shutdown(ctx context.Context) error {
	c.closed.Store(true)

	conns := c.registry.Conns()
	for _, conn := range conns {
		if err := conn.quit(c.opts.QuitMessage); err != nil {
			c.log.Warn("发送 QUIT 失败", zap.String("server", conn.server.String()), zap.Error(err))
		}
	}

	var err error
	for _, conn := range conns {
		select {
		case <-conn.Done():
		case <-ctx.Done():
			err = ctx.Err()
			conn.forceClose()
			// 事件循环未运行的连接不会自行释放
			conn.lifeMu.Lock()
			started := conn.started
			conn.lifeMu.Unlock()
			if !started {
				conn.teardown()
			}
		}
	}

	if c.ownEvents {
		c.opts.Events.Close()
	}
	return err
}

// Close 关闭客户端
func (c *Client) Close() error {
	return c.Shutdown(context.Background())
}
