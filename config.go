package ircium

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokmz/ircium/pkg/bridge"
	"github.com/tokmz/ircium/pkg/config"
	"github.com/tokmz/ircium/pkg/irc"
	"github.com/tokmz/ircium/pkg/logger"
)

// ShutdownConfig 关机配置
type ShutdownConfig struct {
	// Timeout 等待连接退出的超时，为 0 时使用配置文件中的值
	Timeout time.Duration

	// BeforeShutdown 关机前回调
	BeforeShutdown func()

	// AfterShutdown 关机后回调
	AfterShutdown func()
}

// Config 引擎配置
type Config struct {
	// File 配置文件内容，nil 时使用 config.Default()
	File *config.File

	// Logger 日志实例，nil 时按 File.Logger 创建
	Logger logger.Logger

	// Hooks 用户处理器，nil 时自动创建
	Hooks *irc.Hooks

	// Dispatchers 额外的分发器，排在 Hooks、桥接与归档之后
	Dispatchers []irc.Dispatcher

	// Sinks 额外的桥接目标，与配置文件中的 Redis/Kafka/AMQP 一并使用
	Sinks []bridge.Sink

	// Registry Prometheus 注册表，nil 时自动创建
	Registry *prometheus.Registry

	// Banner 启动时是否打印 banner
	Banner bool

	// Shutdown 关机配置
	Shutdown ShutdownConfig
}

// Option 配置选项函数
type Option func(*Config)

// defaultConfig 返回默认配置
func defaultConfig() *Config {
	return &Config{
		Banner: true,
	}
}

// WithFile 使用已加载的配置文件
func WithFile(f *config.File) Option {
	return func(c *Config) {
		c.File = f
	}
}

// WithLogger 设置日志实例
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithHooks 设置处理器集合
func WithHooks(h *irc.Hooks) Option {
	return func(c *Config) {
		c.Hooks = h
	}
}

// WithDispatcher 追加分发器
func WithDispatcher(d ...irc.Dispatcher) Option {
	return func(c *Config) {
		c.Dispatchers = append(c.Dispatchers, d...)
	}
}

// WithSink 追加桥接目标
func WithSink(s ...bridge.Sink) Option {
	return func(c *Config) {
		c.Sinks = append(c.Sinks, s...)
	}
}

// WithRegistry 设置 Prometheus 注册表
func WithRegistry(r *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithBanner 设置是否打印 banner
func WithBanner(enabled bool) Option {
	return func(c *Config) {
		c.Banner = enabled
	}
}

// WithShutdownTimeout 设置关机超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Shutdown.Timeout = timeout
	}
}

// WithBeforeShutdown 设置关机前回调
func WithBeforeShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.BeforeShutdown = fn
	}
}

// WithAfterShutdown 设置关机后回调
func WithAfterShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.AfterShutdown = fn
	}
}
