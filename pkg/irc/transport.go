package irc

import (
	"crypto/tls"
	"net"
)

// Transport 字节传输层，建立连接时确定一次
type Transport interface {
	net.Conn
	// Secure 是否经过 TLS
	Secure() bool
}

// plainTransport 明文 TCP
type plainTransport struct {
	net.Conn
}

func (plainTransport) Secure() bool { return false }

// tlsTransport TLS 会话，Close 会先发送 close_notify
type tlsTransport struct {
	*tls.Conn
}

func (tlsTransport) Secure() bool { return true }

// newTransport 根据是否有 TLS 会话选择实现
func newTransport(raw net.Conn, session *tls.Conn) Transport {
	if session != nil {
		return tlsTransport{Conn: session}
	}
	return plainTransport{Conn: raw}
}
