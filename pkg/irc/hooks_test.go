package irc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	msgs  []*Message
	lines []string
}

func (s *captureSender) EnqueueMessage(_ *Server, msg *Message) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *captureSender) EnqueueLine(_ *Server, line string) error {
	s.lines = append(s.lines, line)
	return nil
}

var hookServer = &Server{Name: "test", Host: "h", Port: 1}

func TestHooksRegisterAndDispatch(t *testing.T) {
	h := NewHooks(nil)

	var got []string
	require.NoError(t, h.Register("privmsg", func(s *Server, m *Message) error {
		got = append(got, "first:"+m.Command)
		return errors.New("ignored")
	}))
	require.NoError(t, h.Register("PRIVMSG", func(s *Server, m *Message) error {
		got = append(got, "second:"+m.Command)
		return nil
	}))

	msg := NewMessage("PRIVMSG", "#c", "hi")
	h.Dispatch(hookServer, "PRIVMSG", msg)
	h.Dispatch(hookServer, "NOTICE", msg)

	assert.Equal(t, []string{"first:PRIVMSG", "second:PRIVMSG"}, got)
}

func TestHooksMiddlewareOrder(t *testing.T) {
	tests := []struct {
		name   string
		freeze bool
	}{
		{"dynamic", false},
		{"frozen", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHooks(nil)
			var trace []string
			h.Use(
				func(s *Server, m *Message, next NextFunc) error {
					trace = append(trace, "outer")
					return next()
				},
				func(s *Server, m *Message, next NextFunc) error {
					trace = append(trace, "inner")
					return next()
				},
			)
			require.NoError(t, h.Register(Wildcard, func(*Server, *Message) error {
				trace = append(trace, "handler")
				return nil
			}))
			if tt.freeze {
				h.Freeze()
			}

			h.Dispatch(hookServer, Wildcard, NewMessage("PING", "x"))
			assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
		})
	}
}

func TestHooksMiddlewareShortCircuit(t *testing.T) {
	h := NewHooks(nil)
	called := false
	h.Use(func(s *Server, m *Message, next NextFunc) error {
		if m.Command == "NOTICE" {
			return nil
		}
		return next()
	})
	require.NoError(t, h.Register("NOTICE", func(*Server, *Message) error {
		called = true
		return nil
	}))

	h.Dispatch(hookServer, "NOTICE", NewMessage("NOTICE", "*", "x"))
	assert.False(t, called)
}

func TestHooksFrozen(t *testing.T) {
	h := NewHooks(nil)
	h.Freeze()
	err := h.Register("PING", func(*Server, *Message) error { return nil })
	assert.ErrorIs(t, err, ErrHooksFrozen)
}

func TestCoreHooksAnswerPing(t *testing.T) {
	h := NewHooks(nil)
	sender := &captureSender{}
	require.NoError(t, h.RegisterCoreHooks(sender))

	h.Dispatch(hookServer, "PING", NewMessage("PING", "irc.example.net"))

	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "PONG", sender.msgs[0].Command)
	assert.Equal(t, []string{"irc.example.net"}, sender.msgs[0].Params)
}
