package irc

import (
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/ircium/pkg/logger"
	"github.com/tokmz/ircium/pkg/tracing"
)

const (
	// DefaultQuitMessage 默认退出消息
	DefaultQuitMessage = "go i must now"
	// DefaultMaxConnections 默认连接上限
	DefaultMaxConnections = 10

	tracerName = "ircium.irc"
)

// Options 客户端配置
type Options struct {
	// 连接配置
	MaxConnections   int           // 最大连接数
	DialTimeout      time.Duration // 单个地址的建连超时
	HandshakeTimeout time.Duration // TLS 握手超时
	ReadyTimeout     time.Duration // 等待套接字就绪的超时
	QuitMessage      string        // QUIT 附带的消息

	// 事件循环配置
	BootstrapTimeout time.Duration // 启动后一次性定时器
	IdleTimeout      time.Duration // 空闲超时，0 表示一直等待
	WriteTimeout     time.Duration // 单次写超时
	MaxLineSize      int           // 单行最大字节数
	WriteRetry       RetryConfig

	// 协作者
	Parser     Parser
	Serializer Serializer
	Dispatcher Dispatcher
	Resolver   *net.Resolver

	// 可观测性
	Logger  logger.Logger
	Metrics Metrics
	Events  *EventBus
	Tracer  trace.Tracer
}

// DefaultOptions 默认配置
func DefaultOptions() *Options {
	return &Options{
		MaxConnections:   DefaultMaxConnections,
		DialTimeout:      30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadyTimeout:     10500 * time.Millisecond,
		QuitMessage:      DefaultQuitMessage,
		BootstrapTimeout: 6 * time.Second,
		WriteTimeout:     30 * time.Second,
		MaxLineSize:      MaxLineSize,
		WriteRetry:       DefaultRetryConfig(),
		Parser:           Codec{},
		Serializer:       Codec{},
		Logger:           logger.Nop(),
		Metrics:          NoopMetrics{},
		Tracer:           tracing.Tracer(tracerName),
	}
}

// Validate 验证配置
func (o *Options) Validate() error {
	if o.MaxConnections <= 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("irc: MaxConnections must be positive, got %d", o.MaxConnections))
	}
	if o.ReadyTimeout <= 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("irc: ReadyTimeout must be positive, got %v", o.ReadyTimeout))
	}
	if o.BootstrapTimeout <= 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("irc: BootstrapTimeout must be positive, got %v", o.BootstrapTimeout))
	}
	if o.IdleTimeout < 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("irc: IdleTimeout must not be negative, got %v", o.IdleTimeout))
	}
	if o.MaxLineSize < 16 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("irc: MaxLineSize too small: %d", o.MaxLineSize))
	}
	return nil
}

// normalize 补齐空值
func (o *Options) normalize() {
	if o.QuitMessage == "" {
		o.QuitMessage = DefaultQuitMessage
	}
	if o.Parser == nil {
		o.Parser = Codec{}
	}
	if o.Serializer == nil {
		o.Serializer = Codec{}
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Tracer == nil {
		o.Tracer = tracing.Tracer(tracerName)
	}
	o.WriteRetry.normalize()
}

// Option 配置选项
type Option func(*Options)

// WithMaxConnections 设置最大连接数
func WithMaxConnections(n int) Option {
	return func(o *Options) {
		o.MaxConnections = n
	}
}

// WithDialTimeout 设置建连超时
func WithDialTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.DialTimeout = d
	}
}

// WithHandshakeTimeout 设置 TLS 握手超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.HandshakeTimeout = d
	}
}

// WithReadyTimeout 设置就绪检查超时
func WithReadyTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ReadyTimeout = d
	}
}

// WithBootstrapTimeout 设置启动定时器
func WithBootstrapTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.BootstrapTimeout = d
	}
}

// WithIdleTimeout 设置空闲超时，超时后发送 PING，再次超时断开
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.IdleTimeout = d
	}
}

// WithWriteTimeout 设置单次写超时
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.WriteTimeout = d
	}
}

// WithMaxLineSize 设置单行最大字节数
func WithMaxLineSize(n int) Option {
	return func(o *Options) {
		o.MaxLineSize = n
	}
}

// WithQuitMessage 设置退出消息
func WithQuitMessage(msg string) Option {
	return func(o *Options) {
		o.QuitMessage = msg
	}
}

// WithWriteRetry 设置写重试
func WithWriteRetry(rc RetryConfig) Option {
	return func(o *Options) {
		o.WriteRetry = rc
	}
}

// WithParser 设置解析器
func WithParser(p Parser) Option {
	return func(o *Options) {
		o.Parser = p
	}
}

// WithSerializer 设置序列化器
func WithSerializer(s Serializer) Option {
	return func(o *Options) {
		o.Serializer = s
	}
}

// WithDispatcher 设置分发器
func WithDispatcher(d Dispatcher) Option {
	return func(o *Options) {
		o.Dispatcher = d
	}
}

// WithResolver 设置 DNS 解析器
func WithResolver(r *net.Resolver) Option {
	return func(o *Options) {
		o.Resolver = r
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics 设置监控
func WithMetrics(m Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithEvents 设置事件总线，由调用方负责关闭
func WithEvents(eb *EventBus) Option {
	return func(o *Options) {
		o.Events = eb
	}
}

// WithTracer 设置 Tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}
