package ircium

import (
	"context"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/ircium/pkg/archive"
	"github.com/tokmz/ircium/pkg/bridge"
	"github.com/tokmz/ircium/pkg/config"
	"github.com/tokmz/ircium/pkg/errors"
	"github.com/tokmz/ircium/pkg/irc"
	"github.com/tokmz/ircium/pkg/logger"
	"github.com/tokmz/ircium/pkg/tracing"
)

// 错误定义（11xx）
var (
	ErrEngineRunning      = errors.New(1101, "ircium: engine already running")
	ErrReconnectExhausted = errors.New(1102, "ircium: reconnect attempts exhausted")
)

// Engine 组装日志、连接核心、桥接、归档与管理端
type Engine struct {
	config  *Config
	file    *config.File
	log     logger.Logger
	client  *irc.Client
	hooks   *irc.Hooks
	servers []*irc.Server

	bridge   *bridge.Bridge
	archive  *archive.Archive
	registry *prometheus.Registry
	tracer   *tracing.Provider
	admin    *http.Server

	running atomic.Bool
}

// New 创建 Engine，使用 Options 模式配置
func New(opts ...Option) (e *Engine, err error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	file := cfg.File
	if file == nil {
		file = config.Default()
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	if cfg.Shutdown.Timeout <= 0 {
		cfg.Shutdown.Timeout = file.Shutdown.Timeout
	}
	if cfg.Shutdown.Timeout <= 0 {
		cfg.Shutdown.Timeout = 10 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		lc, err := logger.FromSettings(file.Logger)
		if err != nil {
			return nil, config.ErrConfigInvalid.WithError(err)
		}
		if log, err = logger.New(lc); err != nil {
			return nil, err
		}
	}

	e = &Engine{
		config:   cfg,
		file:     file,
		log:      log,
		hooks:    cfg.Hooks,
		registry: cfg.Registry,
	}
	// 构建失败时释放已创建的资源
	defer func() {
		if err != nil {
			e.release(context.Background())
		}
	}()

	if e.hooks == nil {
		e.hooks = irc.NewHooks(log.Named("hooks"))
	}

	if file.Tracing.Enabled {
		tc := file.Tracing
		if e.tracer, err = tracing.NewTracerProvider(context.Background(), &tc); err != nil {
			return nil, err
		}
	}

	var metrics irc.Metrics = irc.NoopMetrics{}
	if file.Metrics.Enabled {
		if e.registry == nil {
			e.registry = prometheus.NewRegistry()
		}
		if metrics, err = irc.NewPrometheusMetrics(e.registry, file.Metrics.Namespace); err != nil {
			return nil, err
		}
	}

	dispatchers := irc.NewMultiDispatcher(log, e.hooks)
	if file.Archive.Enabled {
		driver, err := archive.ParseDriver(file.Archive.Driver)
		if err != nil {
			return nil, err
		}
		ac := archive.DefaultConfig()
		ac.Driver = driver
		ac.DSN = file.Archive.DSN
		ac.Replicas = file.Archive.Replicas
		ac.Trace = file.Tracing.Enabled
		if e.archive, err = archive.Open(ac, log); err != nil {
			return nil, err
		}
		dispatchers.Add(e.archive)
	}

	sinks, err := openSinks(context.Background(), file.Bridge)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, cfg.Sinks...)
	if len(sinks) > 0 {
		e.bridge, err = bridge.New(bridge.Options{
			Commands:      file.Bridge.Commands,
			Timeout:       file.Bridge.Timeout,
			Dedup:         file.Bridge.Dedup,
			DedupCapacity: file.Bridge.DedupCapacity,
			Logger:        log,
		}, sinks...)
		if err != nil {
			return nil, err
		}
		dispatchers.Add(e.bridge)
	}
	dispatchers.Add(cfg.Dispatchers...)

	if e.client, err = irc.NewClient(clientOptions(file.Client, log, metrics, dispatchers)...); err != nil {
		return nil, err
	}
	if err = e.hooks.RegisterCoreHooks(e.client); err != nil {
		return nil, err
	}

	for _, s := range file.Servers {
		e.servers = append(e.servers, serverFromSettings(s))
	}

	if file.Admin.Enabled {
		e.admin = &http.Server{
			Addr:              file.Admin.Addr,
			Handler:           e.adminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return e, nil
}

// FromFile 读取配置文件并创建 Engine
func FromFile(path string, opts ...Option) (*Engine, error) {
	f, c, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	// 运行期间不需要热加载
	c.Close()
	return New(append([]Option{WithFile(f)}, opts...)...)
}

// Client 连接核心
func (e *Engine) Client() *irc.Client { return e.client }

// Hooks 用户处理器，需在 Run 之前注册
func (e *Engine) Hooks() *irc.Hooks { return e.hooks }

// Logger 日志实例
func (e *Engine) Logger() logger.Logger { return e.log }

// Servers 配置的服务器
func (e *Engine) Servers() []*irc.Server { return e.servers }

// Archive 消息归档，未启用时为 nil
func (e *Engine) Archive() *archive.Archive { return e.archive }

// Run 连接全部服务器并运行事件循环，直到 ctx 结束、收到 SIGINT/SIGTERM
// 或某个服务器的重连次数耗尽；退出前在 Shutdown.Timeout 内关闭全部连接
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	e.hooks.Freeze()

	if e.config.Banner {
		e.printBanner()
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adminErr := make(chan error, 1)
	if e.admin != nil {
		go func() {
			if err := e.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				adminErr <- err
			}
		}()
		e.log.Info("管理端已启动", zap.String("addr", e.admin.Addr))
	}

	runCtx, cancelRun := context.WithCancel(sigCtx)
	defer cancelRun()

	g, gctx := errgroup.WithContext(runCtx)
	for _, s := range e.servers {
		g.Go(func() error {
			return e.runServer(gctx, s)
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var runErr error
	select {
	case runErr = <-done:
		done = nil
	case runErr = <-adminErr:
	case <-sigCtx.Done():
		e.log.Info("正在关闭连接...")
		select {
		case runErr = <-done:
			done = nil
		case <-time.After(e.config.Shutdown.Timeout):
			e.log.Warn("等待事件循环退出超时，强制关闭")
		}
	}

	// 处于重连等待中的服务器随之退出
	cancelRun()
	if err := e.gracefulShutdown(done); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// runServer 连接并运行单个服务器，按重连策略处理异常断开
// 返回 nil 表示正常退出（QUIT、ctx 结束或客户端已关闭）
func (e *Engine) runServer(ctx context.Context, s *irc.Server) error {
	policy := e.file.Client.Reconnect
	ctx = logger.WithServer(ctx, s.String())

	attempt := 0
	backoff := policy.Backoff
	for {
		err := e.client.Connect(ctx, s)
		if err == nil {
			attempt, backoff = 0, policy.Backoff
			runCtx := ctx
			if conn := e.client.Conn(s); conn != nil {
				runCtx = logger.WithHandle(ctx, string(conn.Handle()))
			}
			if err = e.client.Run(runCtx, s); err == nil {
				return nil
			}
			e.log.WarnContext(runCtx, "连接中断", zap.Error(err))
		}

		// 对端断开同样按重连策略处理，只有客户端已关闭时直接退出
		if ctx.Err() != nil || errors.Is(err, irc.ErrClientClosed) {
			return nil
		}
		if !policy.Enabled {
			return err
		}
		attempt++
		if policy.MaxAttempts > 0 && attempt > policy.MaxAttempts {
			return ErrReconnectExhausted.WithError(err)
		}

		e.log.InfoContext(ctx, "等待重连", zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, policy.MaxBackoff)
	}
}

// nextBackoff 退避时间翻倍，不超过 max
func nextBackoff(cur, max time.Duration) time.Duration {
	if cur <= 0 {
		cur = time.Second
	}
	next := cur * 2
	if max > 0 && next > max {
		return max
	}
	return next
}

// gracefulShutdown 执行优雅关机流程，done 非空时等待事件循环全部退出
func (e *Engine) gracefulShutdown(done <-chan error) error {
	if e.config.Shutdown.BeforeShutdown != nil {
		e.config.Shutdown.BeforeShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.Shutdown.Timeout)
	defer cancel()

	err := e.client.Shutdown(ctx)
	if err != nil {
		e.log.Warn("连接强制关闭", zap.Error(err))
	}
	if done != nil {
		<-done
	}
	e.release(ctx)

	if e.config.Shutdown.AfterShutdown != nil {
		e.config.Shutdown.AfterShutdown()
	}
	e.log.Info("已退出")
	_ = e.log.Sync()
	return err
}

// release 关闭管理端、桥接、归档与追踪
func (e *Engine) release(ctx context.Context) {
	if e.admin != nil {
		if err := e.admin.Shutdown(ctx); err != nil {
			e.log.Warn("管理端关闭失败", zap.Error(err))
		}
	}
	if e.client != nil && !e.running.Load() {
		_ = e.client.Close()
	}
	if e.bridge != nil {
		if err := e.bridge.Close(); err != nil {
			e.log.Warn("桥接关闭失败", zap.Error(err))
		}
	}
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			e.log.Warn("归档关闭失败", zap.Error(err))
		}
	}
	if e.tracer != nil {
		if err := e.tracer.Shutdown(ctx); err != nil {
			e.log.Warn("追踪关闭失败", zap.Error(err))
		}
	}
}

// clientOptions 将配置文件的 client 段落转换为连接核心选项
func clientOptions(c config.ClientSettings, log logger.Logger, metrics irc.Metrics, d irc.Dispatcher) []irc.Option {
	return []irc.Option{
		irc.WithMaxConnections(c.MaxConnections),
		irc.WithDialTimeout(c.DialTimeout),
		irc.WithHandshakeTimeout(c.HandshakeTimeout),
		irc.WithReadyTimeout(c.ReadyTimeout),
		irc.WithBootstrapTimeout(c.BootstrapTimeout),
		irc.WithIdleTimeout(c.IdleTimeout),
		irc.WithQuitMessage(c.QuitMessage),
		irc.WithWriteRetry(irc.RetryConfig{
			MaxAttempts:  c.WriteRetry.MaxAttempts,
			InitialDelay: c.WriteRetry.InitialBackoff,
			MaxDelay:     c.WriteRetry.MaxBackoff,
			Multiplier:   c.WriteRetry.Multiplier,
		}),
		irc.WithLogger(log),
		irc.WithMetrics(metrics),
		irc.WithDispatcher(d),
	}
}

func serverFromSettings(s config.ServerSettings) *irc.Server {
	srv := &irc.Server{
		Name:   s.Name,
		Host:   s.Host,
		Port:   s.Port,
		Secure: s.Secure,
		TLS: irc.TLSOptions{
			CAFile:             s.TLS.CAFile,
			CertFile:           s.TLS.CertFile,
			KeyFile:            s.TLS.KeyFile,
			InsecureSkipVerify: s.TLS.InsecureSkipVerify,
		},
	}
	if s.Nick != "" {
		srv.User = &irc.User{
			Nick:     s.Nick,
			Ident:    s.Ident,
			RealName: s.RealName,
			Password: s.Password,
		}
	}
	return srv
}

// openSinks 按配置连接 Redis/Kafka/AMQP，任一失败时关闭已打开的目标
func openSinks(ctx context.Context, b config.BridgeSettings) (sinks []bridge.Sink, err error) {
	defer func() {
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			sinks = nil
		}
	}()

	if r := b.Redis; r != nil {
		s, err := bridge.NewRedisSink(ctx, bridge.RedisConfig{
			Addr:          r.Addr,
			Password:      r.Password,
			DB:            r.DB,
			ChannelPrefix: r.ChannelPrefix,
		})
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, s)
	}
	if k := b.Kafka; k != nil {
		s, err := bridge.NewKafkaSink(bridge.KafkaConfig{Brokers: k.Brokers, Topic: k.Topic, ClientID: k.ClientID})
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, s)
	}
	if a := b.AMQP; a != nil {
		s, err := bridge.NewAMQPSink(bridge.AMQPConfig{URL: a.URL, Exchange: a.Exchange, Kind: a.Kind})
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
