package irc

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/stretchr/testify/require"
)

// fakeIRCd 单连接的测试服务端，按行记录客户端发来的数据
type fakeIRCd struct {
	ln    net.Listener
	conns chan net.Conn
	lines chan string
}

func newFakeIRCd(t *testing.T, tlsConfig *tls.Config) *fakeIRCd {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	f := &fakeIRCd{
		ln:    ln,
		conns: make(chan net.Conn, 1),
		lines: make(chan string, 64),
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(f.lines)
			return
		}
		f.conns <- conn
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				f.lines <- strings.TrimRight(line, "\r\n")
			}
			if err != nil {
				close(f.lines)
				return
			}
		}
	}()
	return f
}

func (f *fakeIRCd) server(name string) *Server {
	addr := f.ln.Addr().(*net.TCPAddr)
	return &Server{Name: name, Host: "127.0.0.1", Port: addr.Port}
}

// conn 等待客户端连入
func (f *fakeIRCd) conn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("等待客户端连接超时")
		return nil
	}
}

// send 向客户端写一行
func (f *fakeIRCd) send(t *testing.T, c net.Conn, line string) {
	t.Helper()
	_, err := c.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

// next 读取下一条消息
func (f *fakeIRCd) next(t *testing.T) ircmsg.Message {
	t.Helper()
	select {
	case line, ok := <-f.lines:
		require.True(t, ok, "连接已关闭")
		msg, err := ircmsg.ParseLine(line)
		require.NoError(t, err, line)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("等待客户端消息超时")
		return ircmsg.Message{}
	}
}

// expectClosed 剩余消息读完后连接应关闭，返回剩余消息
func (f *fakeIRCd) expectClosed(t *testing.T) []ircmsg.Message {
	t.Helper()
	var rest []ircmsg.Message
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-f.lines:
			if !ok {
				return rest
			}
			msg, err := ircmsg.ParseLine(line)
			require.NoError(t, err, line)
			rest = append(rest, msg)
		case <-timeout:
			t.Fatal("等待连接关闭超时")
			return rest
		}
	}
}

// recorder 记录分发调用
type recorder struct {
	mu    sync.Mutex
	calls []dispatchCall
	ch    chan dispatchCall
}

type dispatchCall struct {
	command string
	msg     *Message
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan dispatchCall, 64)}
}

func (r *recorder) Dispatch(_ *Server, command string, msg *Message) {
	r.mu.Lock()
	r.calls = append(r.calls, dispatchCall{command, msg})
	r.mu.Unlock()
	select {
	case r.ch <- dispatchCall{command, msg}:
	default:
	}
}

func (r *recorder) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.command)
	}
	return out
}

// selfSigned 生成 127.0.0.1 的自签名证书，返回服务端配置与 CA 文件路径
func selfSigned(t *testing.T) (*tls.Config, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "ircium test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o600))

	return &tls.Config{Certificates: []tls.Certificate{cert}}, caFile
}

// testOptions 测试用配置
func testOptions(opts ...Option) *Options {
	o := DefaultOptions()
	o.WriteRetry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	for _, opt := range opts {
		opt(o)
	}
	o.normalize()
	return o
}
