package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tokmz/ircium/pkg/logger"
)

func dispatchConn(d Dispatcher) *Conn {
	opts := testOptions(WithDispatcher(d))
	s := &Server{Name: "test", Host: "127.0.0.1", Port: 6667}
	return newConn(s, plainTransport{}, opts, NewRegistry(1), logger.Nop())
}

func TestHandleLineDispatchesTwice(t *testing.T) {
	rec := newRecorder()
	c := dispatchConn(rec)

	c.handleLine(":nick!u@h PRIVMSG #chan :hi there\r\n")

	assert.Equal(t, []string{"PRIVMSG", Wildcard}, rec.commands())
	require.Len(t, rec.calls, 2)
	assert.Same(t, rec.calls[0].msg, rec.calls[1].msg)
	assert.Equal(t, []string{"#chan", "hi there"}, rec.calls[0].msg.Params)
}

func TestHandleLineDropsEmptyAndMalformed(t *testing.T) {
	rec := newRecorder()
	c := dispatchConn(rec)

	for _, line := range []string{"", "\r\n", "\n", ":only.source"} {
		c.handleLine(line)
	}
	assert.Empty(t, rec.commands())

	// 后续的正常行不受影响
	c.handleLine("PING :x")
	assert.Equal(t, []string{"PING", Wildcard}, rec.commands())
}

func TestHandleLinePreservesOrder(t *testing.T) {
	rec := newRecorder()
	c := dispatchConn(rec)

	for _, line := range []string{"NOTICE * :1", "NOTICE * :2", "NOTICE * :3"} {
		c.inbound.PushBack(line)
	}
	c.drainInbound()

	var got []string
	for _, call := range rec.calls {
		if call.command == "NOTICE" {
			got = append(got, call.msg.Params[1])
		}
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestHandleLineRecoversPanic(t *testing.T) {
	rec := newRecorder()
	d := DispatcherFunc(func(s *Server, command string, msg *Message) {
		if command == "PRIVMSG" {
			panic("handler exploded")
		}
		rec.Dispatch(s, command, msg)
	})
	c := dispatchConn(d)

	assert.NotPanics(t, func() { c.handleLine("PRIVMSG #c :x") })
	assert.Equal(t, []string{Wildcard}, rec.commands())
}

func TestMultiDispatcher(t *testing.T) {
	a, b := newRecorder(), newRecorder()
	boom := DispatcherFunc(func(*Server, string, *Message) { panic("boom") })
	core, logs := observer.New(zap.ErrorLevel)
	m := NewMultiDispatcher(logger.FromZap(zap.New(core)), a, boom, nil, b)
	assert.Equal(t, 3, m.Len())

	c := dispatchConn(m)
	c.handleLine("JOIN #c")

	assert.Equal(t, []string{"JOIN", Wildcard}, a.commands())
	assert.Equal(t, []string{"JOIN", Wildcard}, b.commands())

	entries := logs.FilterMessage("消息处理 panic").All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "JOIN", fields["command"])
	assert.Equal(t, "boom", fields["panic"])
	assert.Equal(t, "irc.DispatcherFunc", fields["dispatcher"])
	assert.Equal(t, Wildcard, entries[1].ContextMap()["command"])
}
