package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
)

// newExporter 根据配置创建导出器
func newExporter(ctx context.Context, cfg *Config) (trace.SpanExporter, error) {
	switch cfg.ExporterType {
	case "otlp":
		return newOTLPExporter(ctx, cfg)
	case "otlp-grpc":
		return newOTLPGRPCExporter(ctx, cfg)
	case "stdout":
		return newStdoutExporter()
	case "noop":
		return newNoopExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// newOTLPExporter 创建 OTLP HTTP 导出器
func newOTLPExporter(ctx context.Context, cfg *Config) (trace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithHeaders(withUserAgent(cfg)),
	}
	// 未配置端点时由导出器读取 OTEL_EXPORTER_OTLP_ENDPOINT
	if cfg.ExporterEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.ExporterEndpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	return otlptracehttp.New(ctx, opts...)
}

// newOTLPGRPCExporter 创建 OTLP gRPC 导出器
func newOTLPGRPCExporter(ctx context.Context, cfg *Config) (trace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(userAgent(cfg))),
	}

	if cfg.ExporterEndpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.ExporterEndpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.ExporterHeaders) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.ExporterHeaders))
	}

	return otlptracegrpc.New(ctx, opts...)
}

// newStdoutExporter 创建标准输出导出器（用于开发调试）
func newStdoutExporter() (trace.SpanExporter, error) {
	return stdouttrace.New(
		stdouttrace.WithPrettyPrint(),
	)
}

// newNoopExporter 创建空导出器（禁用追踪）
func newNoopExporter() trace.SpanExporter {
	return &noopExporter{}
}

// noopExporter 空导出器实现
type noopExporter struct{}

func (e *noopExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (e *noopExporter) Shutdown(ctx context.Context) error {
	return nil
}

// withUserAgent 配置的请求头加上 User-Agent，已显式配置时不覆盖
func withUserAgent(cfg *Config) map[string]string {
	headers := make(map[string]string, len(cfg.ExporterHeaders)+1)
	for k, v := range cfg.ExporterHeaders {
		headers[k] = v
	}
	if _, ok := headers["User-Agent"]; !ok {
		headers["User-Agent"] = userAgent(cfg)
	}
	return headers
}

// userAgent 导出请求的 User-Agent
func userAgent(cfg *Config) string {
	if cfg.ServiceVersion == "" {
		return cfg.ServiceName
	}
	return cfg.ServiceName + "/" + cfg.ServiceVersion
}
