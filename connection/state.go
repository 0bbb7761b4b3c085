package connection

import "time"

// State is the connection lifecycle state.
type State int

// Connection states
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChange describes one transition. Err is set when the transition was
// caused by a failure.
type StateChange struct {
	From State
	To   State
	Err  error
}

// Info is a point-in-time snapshot of the manager.
type Info struct {
	URL               string    `json:"url"`
	State             string    `json:"state"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LastError         string    `json:"last_error,omitempty"`
	ConnectedAt       time.Time `json:"connected_at,omitempty"`
	Subscriptions     int       `json:"subscriptions"`
	ReconnectPending  bool      `json:"reconnect_pending"`

	// Inbound frame counters. Dropped frames failed decoding or validation
	// and never reach subscription callbacks or the processor.
	FramesReceived int64 `json:"frames_received"`
	FramesDropped  int64 `json:"frames_dropped"`
}
