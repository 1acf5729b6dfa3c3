// Package irc provides the connection core of an IRC client: socket and TLS
// setup, a per-connection event loop, thread-safe line queues and a bounded
// connection registry.
//
// # Features
//
//   - One connection per server, capped by a registry (default 10)
//   - Plain TCP or TLS with SNI, custom CA and client certificates
//   - Line framing on \r\n with an 8192 byte limit
//   - Every parsed line dispatched twice: by command and by "*"
//   - Outbound lines may be queued from any goroutine, handlers included
//   - QUIT is always flushed before the socket is closed
//   - Write retries with jittered exponential backoff
//   - Optional idle timeout that sends a PING before giving up
//   - Pluggable metrics, event bus and OpenTelemetry spans
//
// # Basic Usage
//
//	client, err := irc.NewClient(irc.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	server := &irc.Server{
//	    Name:   "libera",
//	    Host:   "irc.libera.chat",
//	    Port:   6697,
//	    Secure: true,
//	    User:   &irc.User{Nick: "ircium"},
//	}
//	if err := client.Connect(ctx, server); err != nil {
//	    return err
//	}
//	return client.Run(ctx, server)
//
// # Handlers
//
// The default dispatcher is a Hooks registry that already answers PING:
//
//	hooks := irc.NewHooks(log)
//	hooks.Register("PRIVMSG", func(s *irc.Server, m *irc.Message) error {
//	    return client.EnqueueMessage(s, irc.NewMessage("PRIVMSG", m.Params[0], "pong"))
//	})
//	client, _ := irc.NewClient(irc.WithDispatcher(hooks))
//	hooks.RegisterCoreHooks(client)
//	hooks.Freeze()
package irc
