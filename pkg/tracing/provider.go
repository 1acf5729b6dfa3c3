package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider 持有进程内唯一的 TracerProvider，由 Engine 创建并在退出时关闭
type Provider struct {
	tp   *sdktrace.TracerProvider
	once sync.Once
	err  error
}

// NewTracerProvider 按配置创建 TracerProvider 并设为全局，连接核心与归档经 otel 全局获取 Tracer
func NewTracerProvider(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		cfg.ExporterType = "noop"
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(newSampler(cfg)),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
		),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp}, nil
}

// newResource 服务信息 + 配置中的自定义属性；OTEL_RESOURCE_ATTRIBUTES 由 WithFromEnv 处理
func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	for k, v := range cfg.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
}

// TracerProvider 底层 sdk Provider
func (p *Provider) TracerProvider() *sdktrace.TracerProvider { return p.tp }

// Shutdown 导出剩余 Span 后关闭，可重复调用
// 若全局 Provider 仍是自身，则恢复为 noop，关闭后的打点不再进入已停止的批处理器
func (p *Provider) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.err = p.tp.Shutdown(ctx)
		if otel.GetTracerProvider() == p.tp {
			otel.SetTracerProvider(noop.NewTracerProvider())
		}
	})
	return p.err
}
