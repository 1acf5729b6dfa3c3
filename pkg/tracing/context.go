package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "ircium"

// IRC 相关 Span 属性键
const (
	AttrServer  = attribute.Key("irc.server")
	AttrAddr    = attribute.Key("irc.addr")
	AttrSecure  = attribute.Key("irc.secure")
	AttrHandle  = attribute.Key("irc.handle")
	AttrCommand = attribute.Key("irc.command")
)

// Tracer 返回指定名称的 Tracer，名称为空时使用默认名称
//
// 每次调用都经由全局 Provider 获取，NewTracerProvider 晚于调用方初始化时同样生效
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = defaultTracerName
	}
	return otel.Tracer(name)
}

// ServerAttributes 描述一个 IRC 服务器端点的属性集合
func ServerAttributes(server, addr string, secure bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrServer.String(server),
		AttrAddr.String(addr),
		AttrSecure.Bool(secure),
	}
}

// RecordError 记录错误到 Span，err 为 nil 时不做任何事
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// End 记录错误（如有）后结束 Span
func End(span trace.Span, err error) {
	RecordError(span, err)
	span.End()
}
