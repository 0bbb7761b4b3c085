// Package natsclient carries the real-time messaging client over NATS core
// pub/sub instead of STOMP.
//
// Dialer implements connection.Dialer, so a connection.Manager can drive a NATS
// server exactly as it drives a STOMP broker. STOMP-style destinations are
// mapped onto subjects by replacing slashes with dots:
//
//	/topic/org/3      → topic.org.3
//	/queue/user/7     → queue.user.7
//
// # Reconnection
//
// The nats.go client normally reconnects on its own. Here that is disabled
// (nats.NoReconnect) and a lost server closes the session, so that the
// connection.Manager's backoff, attempt limit and online/visibility rules
// apply to every transport alike.
//
// # Heartbeats
//
// NATS uses PING/PONG rather than STOMP heart-beats. When the dial options
// carry an incoming heartbeat it is used as the ping interval; after
// MaxPingsOutstanding unanswered pings the session ends with an error.
//
// # Usage
//
//	dialer, err := natsclient.NewDialer(natsclient.WithName("ledpush"))
//	if err != nil {
//	    return err
//	}
//	mgr, err := connection.New("nats://localhost:4222", dialer)
//
// # Testing
//
// NewTestServer starts a NATS container with testcontainers-go. Tests that use
// it are behind the integration build tag:
//
//	go test -tags integration ./natsclient/...
package natsclient
