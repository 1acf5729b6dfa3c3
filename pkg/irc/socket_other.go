//go:build !unix

package irc

import (
	"net"
	"time"
)

// 非 unix 平台由运行时负责多路复用，无需额外设置
func setNonblocking(net.Conn) error { return nil }

func verifyReady(net.Conn, time.Duration) error { return nil }
