package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"grpc exporter", func(c *Config) { c.ExporterType = "otlp-grpc" }, false},
		{"empty service", func(c *Config) { c.ServiceName = "" }, true},
		{"bad rate", func(c *Config) { c.SamplingRate = 1.5 }, true},
		{"bad exporter", func(c *Config) { c.ExporterType = "zipkin" }, true},
		{"negative batch", func(c *Config) { c.MaxQueueSize = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				var ce *ConfigError
				require.Error(t, err)
				assert.True(t, errors.As(err, &ce))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{ServiceName: "x", ExporterType: "noop"}
	cfg.setDefaults()
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, 512, cfg.MaxExportBatchSize)
	assert.Equal(t, 2048, cfg.MaxQueueSize)
	assert.Equal(t, "parent_based", cfg.SamplingType)
}

func TestNewTracerProviderDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	p, err := NewTracerProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p.TracerProvider())
	assert.Equal(t, "noop", cfg.ExporterType)
	assert.Equal(t, otel.GetTracerProvider(), trace.TracerProvider(p.TracerProvider()))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
	// 关闭后全局 Provider 恢复为 noop
	assert.NotEqual(t, otel.GetTracerProvider(), trace.TracerProvider(p.TracerProvider()))
}

func TestNewTracerProviderInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SamplingType = "sometimes"
	_, err := NewTracerProvider(context.Background(), cfg)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}

func sampled(t *testing.T, s sdktrace.Sampler, name string) bool {
	t.Helper()
	res := s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		Name:          name,
	})
	return res.Decision == sdktrace.RecordAndSample
}

func TestSamplerLifecycleSpansAlwaysSampled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SamplingType = "ratio"
	cfg.SamplingRate = 0
	s := newSampler(cfg)

	for _, name := range LifecycleSpans {
		assert.True(t, sampled(t, s, name), name)
	}
	assert.False(t, sampled(t, s, "archive.insert"))
	assert.Contains(t, s.Description(), "SpanNameSampler")
}

func TestSamplerTypes(t *testing.T) {
	tests := []struct {
		kind string
		rate float64
		want bool
	}{
		{"always", 0, true},
		{"never", 1, false},
		{"ratio", 1, true},
		{"ratio", 0, false},
		{"parent_based", 1, true},
		{"parent_based", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := &Config{SamplingType: tt.kind, SamplingRate: tt.rate}
			assert.Equal(t, tt.want, sampled(t, newSampler(cfg), "archive.query"))
		})
	}

	// never 时生命周期 Span 同样不采集
	never := &Config{SamplingType: "never", AlwaysSample: LifecycleSpans}
	assert.False(t, sampled(t, newSampler(never), "irc.connect"))
}

func TestWithUserAgent(t *testing.T) {
	cfg := &Config{ServiceName: "ircium", ServiceVersion: "0.3.0", ExporterHeaders: map[string]string{"Authorization": "x"}}
	h := withUserAgent(cfg)
	assert.Equal(t, "ircium/0.3.0", h["User-Agent"])
	assert.Equal(t, "x", h["Authorization"])
	assert.NotContains(t, cfg.ExporterHeaders, "User-Agent")

	cfg.ExporterHeaders["User-Agent"] = "custom"
	assert.Equal(t, "custom", withUserAgent(cfg)["User-Agent"])
}

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "irc.connect")
	span.SetAttributes(ServerAttributes("libera", "irc.libera.chat:6697", true)...)
	span.AddEvent("registered")
	RecordError(span, nil)
	End(span, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	got := spans[0]
	assert.Equal(t, "irc.connect", got.Name())
	assert.Len(t, got.Attributes(), 3)
	assert.Equal(t, "Error", got.Status().Code.String())
	// RecordError 会追加一个 exception 事件
	assert.Len(t, got.Events(), 2)
}

func TestServerAttributes(t *testing.T) {
	attrs := ServerAttributes("oftc", "irc.oftc.net:6697", false)
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("irc.server", "oftc"),
		attribute.String("irc.addr", "irc.oftc.net:6697"),
		attribute.Bool("irc.secure", false),
	}, attrs)
	assert.Equal(t, attribute.String("irc.handle", "h1"), AttrHandle.String("h1"))
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "ircium", userAgent(&Config{ServiceName: "ircium"}))
	assert.Equal(t, "ircium/0.3.0", userAgent(&Config{ServiceName: "ircium", ServiceVersion: "0.3.0"}))
}

func TestNewOTLPGRPCExporter(t *testing.T) {
	// gRPC 连接惰性建立，创建导出器不需要可达的 Collector
	exp, err := newOTLPGRPCExporter(context.Background(), &Config{
		ServiceName:      "ircium",
		ExporterEndpoint: "127.0.0.1:4317",
		Insecure:         true,
	})
	require.NoError(t, err)
	require.NoError(t, exp.Shutdown(context.Background()))
}
