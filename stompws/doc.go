// Package stompws carries STOMP 1.1/1.2 frames over a WebSocket and exposes the
// result as a connection.Dialer.
//
// The WebSocket upgrade is done with gorilla/websocket, offering the
// v12.stomp and v11.stomp subprotocols. Framing, heart-beats and the
// CONNECT/SUBSCRIBE/SEND/UNSUBSCRIBE/DISCONNECT exchange are handled by go-stomp
// running over an io.ReadWriteCloser view of the socket. Each frame written by
// the client goes out as one text message; inbound messages are treated as a
// continuous stream, so brokers may split or batch frames freely.
//
//	dialer := stompws.NewDialer(stompws.WithTLSConfig(tlsCfg))
//	mgr, err := connection.New("wss://push.example.com/ws", dialer)
//
// A session ends when the socket fails, the broker stops sending heart-beats,
// or Close is called. Only the last case reports a nil Err.
package stompws
