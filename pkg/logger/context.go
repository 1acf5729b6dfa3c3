package logger

import "context"

type contextKey int

const (
	serverKey contextKey = iota
	handleKey
	loggerKey
)

// WithServer 在 Context 中记录服务器名称
func WithServer(ctx context.Context, server string) context.Context {
	return context.WithValue(ctx, serverKey, server)
}

// ServerFromContext 读取服务器名称
func ServerFromContext(ctx context.Context) string {
	s, _ := ctx.Value(serverKey).(string)
	return s
}

// WithHandle 在 Context 中记录连接句柄
func WithHandle(ctx context.Context, handle string) context.Context {
	return context.WithValue(ctx, handleKey, handle)
}

// HandleFromContext 读取连接句柄
func HandleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(handleKey).(string)
	return s
}

// NewContext 将 Logger 存入 Context
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext 取出 Context 中的 Logger，不存在时返回 Nop
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(Logger); ok {
			return l
		}
	}
	return Nop()
}
