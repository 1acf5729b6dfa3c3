package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// LifecycleSpans 连接生命周期 Span，数量少且排障价值高，默认全量采集
var LifecycleSpans = []string{"irc.connect", "irc.tls_handshake", "irc.quit"}

// newSampler 根据 tracing 配置段创建采样器
//
// AlwaysSample 中列出的 Span 始终采集，其余（如归档写入查询）按 SamplingType 与 SamplingRate 采样。
// SamplingType 为 never 时一律不采集。
func newSampler(cfg *Config) sdktrace.Sampler {
	base := ratioSampler(cfg.SamplingType, cfg.SamplingRate)
	if cfg.SamplingType == "never" || len(cfg.AlwaysSample) == 0 {
		return base
	}

	names := make(map[string]struct{}, len(cfg.AlwaysSample))
	for _, name := range cfg.AlwaysSample {
		names[name] = struct{}{}
	}
	return &spanNameSampler{names: names, base: base}
}

func ratioSampler(kind string, rate float64) sdktrace.Sampler {
	switch kind {
	case "always":
		return sdktrace.AlwaysSample()
	case "never":
		return sdktrace.NeverSample()
	case "ratio":
		return sdktrace.TraceIDRatioBased(rate)
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// spanNameSampler 按 Span 名称放行，未命中时交给 base
type spanNameSampler struct {
	names map[string]struct{}
	base  sdktrace.Sampler
}

func (s *spanNameSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if _, ok := s.names[p.Name]; ok {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.RecordAndSample,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	return s.base.ShouldSample(p)
}

func (s *spanNameSampler) Description() string {
	return fmt.Sprintf("SpanNameSampler{%d names,%s}", len(s.names), s.base.Description())
}
