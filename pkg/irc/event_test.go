package irc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	eb := NewEventBus(2, 8)
	defer eb.Close()

	got := make(chan Event, 1)
	eb.Subscribe(EventConnected, func(e Event) { got <- e })

	s := &Server{Name: "x", Host: "h", Port: 1}
	eb.Publish(Event{Type: EventConnected, Server: s, Handle: "h1", Time: time.Now()})
	// 无订阅者的事件直接忽略
	eb.Publish(Event{Type: EventParseError})

	select {
	case e := <-got:
		assert.Equal(t, Handle("h1"), e.Handle)
		assert.Same(t, s, e.Server)
	case <-time.After(time.Second):
		t.Fatal("未收到事件")
	}
	assert.Zero(t, eb.DroppedEvents())
}

func TestEventBusHandlerPanicIsolated(t *testing.T) {
	eb := NewEventBus(1, 8)
	defer eb.Close()

	got := make(chan struct{}, 1)
	eb.Subscribe(EventDisconnected, func(Event) { panic("boom") })
	eb.Subscribe(EventDisconnected, func(Event) { got <- struct{}{} })

	eb.Publish(Event{Type: EventDisconnected})
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("panic 影响了后续处理器")
	}
}

func TestEventBusClosed(t *testing.T) {
	eb := NewEventBus(1, 1)
	eb.Subscribe(EventWriteFailed, func(Event) {})
	eb.Close()
	eb.Close()

	require.NotPanics(t, func() { eb.Publish(Event{Type: EventWriteFailed}) })

	var nilBus *EventBus
	require.NotPanics(t, func() { nilBus.Publish(Event{Type: EventWriteFailed}) })
}

func TestClientPublishesLifecycleEvents(t *testing.T) {
	ircd := newFakeIRCd(t, nil)
	eb := NewEventBus(1, 16)
	defer eb.Close()

	events := make(chan EventType, 4)
	for _, typ := range []EventType{EventConnected, EventDisconnected} {
		eb.Subscribe(typ, func(e Event) { events <- e.Type })
	}

	client, _, _ := newTestClient(t, WithEvents(eb))
	s := ircd.server("events")
	require.NoError(t, client.Connect(t.Context(), s))
	ircd.conn(t)
	require.NoError(t, client.Quit(s))

	for _, want := range []EventType{EventConnected, EventDisconnected} {
		select {
		case got := <-events:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("未收到 %s", want)
		}
	}
}
