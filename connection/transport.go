package connection

import (
	"context"
	"time"
)

// Frame is one inbound MESSAGE frame.
type Frame struct {
	Destination string
	Headers     map[string]string
	Body        []byte
}

// DialOptions are the protocol-level connection parameters.
type DialOptions struct {
	Headers           map[string]string
	Login             string
	Passcode          string
	Host              string
	HeartbeatIncoming time.Duration
	HeartbeatOutgoing time.Duration
}

// Dialer establishes a transport session. Dial returns once the protocol
// handshake has completed or failed.
type Dialer interface {
	Dial(ctx context.Context, url string, opts DialOptions) (Session, error)
}

// Session is one established transport connection. A session ends exactly once:
// Done is closed and Err reports the cause, nil for a deliberate Close.
type Session interface {
	Send(ctx context.Context, destination string, body []byte, contentType string, headers map[string]string) error

	// Subscribe starts delivery of frames on destination to deliver. id is the
	// client-chosen subscription id carried in the SUBSCRIBE frame. Frames of one
	// subscription are delivered sequentially in arrival order.
	Subscribe(destination, id string, headers map[string]string, deliver func(Frame)) (SessionSubscription, error)

	Done() <-chan struct{}
	Err() error
	Close() error
}

// SessionSubscription is a live transport subscription.
type SessionSubscription interface {
	Unsubscribe(headers map[string]string) error
}
