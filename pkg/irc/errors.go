package irc

import (
	"fmt"
	"time"

	"github.com/tokmz/ircium/pkg/errors"
)

// 错误定义（2xxx）
var (
	// 连接相关错误
	ErrAlreadyConnected = errors.New(2001, "irc: already connected")
	ErrRegistryFull     = errors.New(2002, "irc: connection registry full")
	ErrNotConnected     = errors.New(2003, "irc: not connected")
	ErrConnectionClosed = errors.New(2004, "irc: connection closed")
	ErrReactorRunning   = errors.New(2005, "irc: event loop already running")
	ErrClientClosed     = errors.New(2006, "irc: client closed")
	ErrNameInUse        = errors.New(2007, "irc: server name in use")

	// 配置相关错误
	ErrInvalidConfig = errors.New(2010, "irc: invalid config")

	// 收发相关错误
	ErrWriteFailed = errors.New(2020, "irc: write failed")
	ErrHooksFrozen = errors.New(2021, "irc: hooks are frozen")
	ErrInvalidLine = errors.New(2022, "irc: line contains CR, LF or NUL")
)

// ConnectError 所有候选地址均连接失败
type ConnectError struct {
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("irc: connect %s: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TLSError TLS 配置或握手失败
type TLSError struct {
	Server string
	Err    error
}

func (e *TLSError) Error() string {
	return fmt.Sprintf("irc: tls %s: %v", e.Server, e.Err)
}

func (e *TLSError) Unwrap() error { return e.Err }

// TimeoutError 等待就绪或空闲超时
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("irc: %s timed out after %v", e.Op, e.After)
}

// Timeout 实现 net.Error 约定
func (e *TimeoutError) Timeout() bool { return true }

// SocketError 套接字层错误（非阻塞设置、SO_ERROR、读失败）
type SocketError struct {
	Op  string
	Err error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("irc: socket %s: %v", e.Op, e.Err)
}

func (e *SocketError) Unwrap() error { return e.Err }

// ParseError 单行解析失败，不影响连接
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("irc: parse %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
