package ircium

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/ircium/pkg/bridge"
	"github.com/tokmz/ircium/pkg/config"
	"github.com/tokmz/ircium/pkg/irc"
	"github.com/tokmz/ircium/pkg/logger"
)

// session 一个客户端连接
type session struct {
	conn  net.Conn
	lines chan string
}

// next 读取下一行，超时失败
func (s *session) next(t *testing.T) string {
	t.Helper()
	select {
	case line, ok := <-s.lines:
		require.True(t, ok, "连接已关闭")
		return line
	case <-time.After(3 * time.Second):
		t.Fatal("等待客户端消息超时")
		return ""
	}
}

// waitFor 读取直到出现以 prefix 开头的行
func (s *session) waitFor(t *testing.T, prefix string) string {
	t.Helper()
	for {
		if line := s.next(t); strings.HasPrefix(line, prefix) {
			return line
		}
	}
}

func (s *session) send(t *testing.T, line string) {
	t.Helper()
	_, err := s.conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

// testIRCd 接受多个连接的测试服务端
type testIRCd struct {
	ln       net.Listener
	sessions chan *session
}

func newTestIRCd(t *testing.T) *testIRCd {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	d := &testIRCd{ln: ln, sessions: make(chan *session, 8)}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			t.Cleanup(func() { _ = conn.Close() })
			s := &session{conn: conn, lines: make(chan string, 64)}
			d.sessions <- s
			go func() {
				defer close(s.lines)
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if line != "" {
						s.lines <- strings.TrimRight(line, "\r\n")
					}
					if err != nil {
						return
					}
				}
			}()
		}
	}()
	return d
}

func (d *testIRCd) accept(t *testing.T) *session {
	t.Helper()
	select {
	case s := <-d.sessions:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("等待客户端连接超时")
		return nil
	}
}

func (d *testIRCd) port() int {
	return d.ln.Addr().(*net.TCPAddr).Port
}

// testFile 指向测试服务端的配置
func testFile(d *testIRCd) *config.File {
	f := config.Default()
	f.Servers = []config.ServerSettings{
		{Name: "local", Host: "127.0.0.1", Port: d.port(), Nick: "tester", Ident: "bot", RealName: "Test Bot"},
	}
	f.Client.Reconnect = config.ReconnectSettings{Enabled: false}
	f.Shutdown.Timeout = 2 * time.Second
	return f
}

func newTestEngine(t *testing.T, f *config.File, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithFile(f), WithLogger(logger.Nop()), WithBanner(false)}, opts...)
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

// runEngine 后台运行 Engine，返回取消函数与结果
func runEngine(e *Engine) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return cancel, done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("等待 Engine 退出超时")
		return nil
	}
}

type memorySink struct {
	events chan *bridge.Event
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Publish(_ context.Context, ev *bridge.Event) error {
	s.events <- ev
	return nil
}

func (s *memorySink) Close() error { return nil }

func TestNewInvalidFile(t *testing.T) {
	f := config.Default()
	f.Servers = nil
	_, err := New(WithFile(f), WithLogger(logger.Nop()))
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
}

func TestNewDefaults(t *testing.T) {
	e, err := New(WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.Len(t, e.Servers(), 1)
	assert.Equal(t, "libera", e.Servers()[0].Name)
	assert.True(t, e.Servers()[0].Secure)
	assert.Equal(t, 10*time.Second, e.config.Shutdown.Timeout)
	assert.Nil(t, e.Archive())
	assert.NotNil(t, e.Client())
	e.release(context.Background())
}

func TestEngineRegistersAndQuitsOnCancel(t *testing.T) {
	d := newTestIRCd(t)
	e := newTestEngine(t, testFile(d))

	cancel, done := runEngine(e)
	s := d.accept(t)
	assert.Equal(t, "NICK tester", s.next(t))
	assert.Equal(t, "USER bot 0 * :Test Bot", s.next(t))

	cancel()
	assert.Equal(t, "QUIT :go i must now", s.waitFor(t, "QUIT"))
	assert.NoError(t, waitResult(t, done))
	assert.Zero(t, e.Client().Registry().Count())
}

func TestEngineHooksAndPing(t *testing.T) {
	d := newTestIRCd(t)
	e := newTestEngine(t, testFile(d))

	welcomed := make(chan string, 1)
	require.NoError(t, e.Hooks().Register("001", func(s *irc.Server, m *irc.Message) error {
		welcomed <- s.Name
		return nil
	}))

	cancel, done := runEngine(e)
	defer cancel()
	s := d.accept(t)
	s.waitFor(t, "USER")

	s.send(t, ":irc.test 001 tester :Welcome")
	select {
	case name := <-welcomed:
		assert.Equal(t, "local", name)
	case <-time.After(3 * time.Second):
		t.Fatal("001 处理器未被调用")
	}

	s.send(t, "PING :irc.test")
	assert.Equal(t, "PONG irc.test", s.waitFor(t, "PONG"))

	// 运行后不能再注册
	assert.ErrorIs(t, e.Hooks().Register("NOTICE", func(*irc.Server, *irc.Message) error { return nil }), irc.ErrHooksFrozen)

	cancel()
	assert.NoError(t, waitResult(t, done))
}

func TestEngineBridgeSink(t *testing.T) {
	d := newTestIRCd(t)
	f := testFile(d)
	f.Bridge.Commands = []string{"PRIVMSG"}
	sink := &memorySink{events: make(chan *bridge.Event, 8)}
	e := newTestEngine(t, f, WithSink(sink))

	cancel, done := runEngine(e)
	s := d.accept(t)
	s.waitFor(t, "USER")

	s.send(t, "PING :x")
	s.send(t, ":nick!u@h PRIVMSG #go :hello")
	select {
	case ev := <-sink.events:
		assert.Equal(t, "local", ev.Server)
		assert.Equal(t, "PRIVMSG", ev.Command)
		assert.Equal(t, []string{"#go", "hello"}, ev.Params)
	case <-time.After(3 * time.Second):
		t.Fatal("桥接未收到消息")
	}

	cancel()
	assert.NoError(t, waitResult(t, done))
}

func TestEngineReconnect(t *testing.T) {
	d := newTestIRCd(t)
	f := testFile(d)
	f.Client.Reconnect = config.ReconnectSettings{Enabled: true, MaxAttempts: 3, Backoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}
	e := newTestEngine(t, f)

	cancel, done := runEngine(e)
	first := d.accept(t)
	first.waitFor(t, "USER")
	require.NoError(t, first.conn.Close())

	second := d.accept(t)
	assert.Equal(t, "NICK tester", second.next(t))

	cancel()
	assert.NoError(t, waitResult(t, done))
}

func TestEngineNoReconnectReturnsError(t *testing.T) {
	d := newTestIRCd(t)
	e := newTestEngine(t, testFile(d))

	_, done := runEngine(e)
	s := d.accept(t)
	s.waitFor(t, "USER")
	require.NoError(t, s.conn.Close())

	err := waitResult(t, done)
	require.Error(t, err)
	assert.ErrorIs(t, err, irc.ErrConnectionClosed)
}

func TestEngineReconnectExhausted(t *testing.T) {
	// 监听后立即关闭，保证端口无人接受连接
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	f := config.Default()
	f.Servers = []config.ServerSettings{{Name: "dead", Host: "127.0.0.1", Port: port, Nick: "x"}}
	f.Client.Reconnect = config.ReconnectSettings{Enabled: true, MaxAttempts: 2, Backoff: 5 * time.Millisecond}
	e := newTestEngine(t, f)

	_, done := runEngine(e)
	assert.ErrorIs(t, waitResult(t, done), ErrReconnectExhausted)
}

func TestEngineRunTwice(t *testing.T) {
	d := newTestIRCd(t)
	e := newTestEngine(t, testFile(d))

	cancel, done := runEngine(e)
	d.accept(t).waitFor(t, "USER")
	assert.ErrorIs(t, e.Run(context.Background()), ErrEngineRunning)

	cancel()
	assert.NoError(t, waitResult(t, done))
}

func TestShutdownCallbacks(t *testing.T) {
	d := newTestIRCd(t)
	var mu sync.Mutex
	var order []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, s)
		}
	}
	e := newTestEngine(t, testFile(d), WithBeforeShutdown(record("before")), WithAfterShutdown(record("after")))

	cancel, done := runEngine(e)
	d.accept(t).waitFor(t, "USER")
	cancel()
	require.NoError(t, waitResult(t, done))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"before", "after"}, order)
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		cur, max, want time.Duration
	}{
		{time.Second, time.Minute, 2 * time.Second},
		{40 * time.Second, time.Minute, time.Minute},
		{0, 0, 2 * time.Second},
		{time.Second, 0, 2 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextBackoff(tt.cur, tt.max))
	}
}

func TestAdminEndpoints(t *testing.T) {
	d := newTestIRCd(t)
	f := testFile(d)
	f.Metrics.Enabled = true
	f.Metrics.Namespace = "ircium_test"
	e := newTestEngine(t, f, WithRegistry(prometheus.NewRegistry()))
	h := e.adminHandler()

	cancel, done := runEngine(e)
	s := d.accept(t)
	s.waitFor(t, "USER")

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodGet, "/servers", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			List  []irc.ConnInfo `json:"list"`
			Total int            `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "local", resp.Data.List[0].Server)

	w = do(http.MethodPost, "/servers/local/send", `{"command":"PRIVMSG","params":["#go","hi there"]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PRIVMSG #go :hi there", s.waitFor(t, "PRIVMSG"))

	// 行内换行会拼出第二条命令，必须拒绝
	w = do(http.MethodPost, "/servers/local/send", `{"line":"JOIN #evil\r\nQUIT :bye"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "CR, LF or NUL")

	w = do(http.MethodPost, "/servers/local/send", `{"line":"JOIN #irc"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "JOIN #irc", s.waitFor(t, "JOIN"))

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/servers/local/send", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/servers/nope/send", `{"line":"X"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/servers/local/recent", "").Code)

	w = do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ircium_test_")

	w = do(http.MethodPost, "/servers/local/quit", `{"message":"bye now"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "QUIT :bye now", s.waitFor(t, "QUIT"))

	// 主动 QUIT 后不重连，Engine 正常退出
	assert.NoError(t, waitResult(t, done))
	cancel()
}
