package irc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// dialServer 解析地址并依次尝试每个候选，全部失败时返回 *ConnectError
func dialServer(ctx context.Context, s *Server, opts *Options) (net.Conn, error) {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupIPAddr(ctx, s.Host)
	if err != nil {
		return nil, &ConnectError{Server: s.ID(), Err: err}
	}
	if len(addrs) == 0 {
		return nil, &ConnectError{Server: s.ID(), Err: fmt.Errorf("no address for %s", s.Host)}
	}

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	port := strconv.Itoa(s.Port)

	errs := make([]error, 0, len(addrs))
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr.String(), port))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ConnectError{Server: s.ID(), Err: errors.Join(errs...)}
}

// buildTLSConfig 构建客户端 TLS 配置，SNI 使用服务器主机名
func buildTLSConfig(s *Server) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.TLS.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if s.TLS.CAFile != "" {
		ca, err := os.ReadFile(s.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(ca); !ok {
			return nil, fmt.Errorf("parse ca file %s", s.TLS.CAFile)
		}
		cfg.RootCAs = pool
	}

	if s.TLS.CertFile != "" && s.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.TLS.CertFile, s.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// tlsHandshake 在已建立的连接上完成 TLS 握手
// 读写的 EAGAIN/EINTR 由运行时网络轮询器处理，握手只会以完成或终止性错误返回
func tlsHandshake(ctx context.Context, conn net.Conn, s *Server, timeout time.Duration) (*tls.Conn, error) {
	cfg, err := buildTLSConfig(s)
	if err != nil {
		return nil, &TLSError{Server: s.ID(), Err: err}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	session := tls.Client(conn, cfg)
	if err := session.HandshakeContext(ctx); err != nil {
		return nil, &TLSError{Server: s.ID(), Err: err}
	}
	return session, nil
}
