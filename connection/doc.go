// Package connection maintains one logical broker connection for the real-time
// messaging client.
//
// A Manager drives the connection through its lifecycle:
//
//	disconnected → connecting → connected
//	connected    → failed → reconnecting → connecting → ...
//	any          → disconnected (Disconnect only)
//
// An unexpected loss schedules a reconnect with exponential backoff and jitter
// (see ReconnectPolicy). After MaxAttempts consecutive failures the manager stays
// in StateFailed until Connect is called or the signals.Source reports the client
// is back online or visible. Reconnects are never scheduled while offline or hidden.
//
// The wire protocol is behind the Dialer and Session interfaces. The stompws
// package provides STOMP over WebSocket, natsclient provides NATS, and
// TestDialer is an in-memory implementation for tests.
//
// # Usage
//
//	mgr, err := connection.New("wss://push.example.com/ws", stompws.NewDialer(),
//	    connection.WithHeartbeat(4*time.Second, 4*time.Second),
//	    connection.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	mgr.OnStateChange(func(c connection.StateChange) {
//	    logger.Info("state", "from", c.From, "to", c.To)
//	})
//	if err := mgr.Connect(ctx); err != nil {
//	    return err // a reconnect is already scheduled
//	}
//
//	handle, err := mgr.Subscribe("/topic/system", func(m *message.UnifiedMessage) {
//	    ...
//	}, nil)
//
// Subscription handles do not survive a lost session. Callers that need
// subscriptions restored after a reconnect use the subscription package.
//
// # Concurrency
//
// All Manager methods are safe for concurrent use. State and message listeners
// run without the manager's lock held, so they may call back into the manager.
// Frames of a single subscription are delivered in transport order.
package connection
