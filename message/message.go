package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/c360/ledpush/errors"
)

// UnifiedMessage is the envelope carried in the JSON body of every inbound frame.
type UnifiedMessage struct {
	MessageID  string          `json:"messageId"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       Type            `json:"messageType"`
	Level      Level           `json:"level"`
	Priority   Priority        `json:"priority,omitempty"`
	TTL        *TTL            `json:"ttl,omitempty"`
	RequireAck bool            `json:"requireAck,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	Actions    []Action        `json:"actions,omitempty"`
}

// Action is an operation the UI may offer for a message.
type Action struct {
	Label  string          `json:"label"`
	Type   ActionType      `json:"type"`
	Target string          `json:"target,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ReceivedMessage is a processed message plus client-side bookkeeping.
type ReceivedMessage struct {
	UnifiedMessage
	IsRead         bool      `json:"isRead"`
	IsAcknowledged bool      `json:"isAcknowledged"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// NewReceived wraps m as unread and unacknowledged.
func NewReceived(m *UnifiedMessage, receivedAt time.Time) *ReceivedMessage {
	return &ReceivedMessage{UnifiedMessage: *m, ReceivedAt: receivedAt}
}

// TTL is either a lifetime relative to the message timestamp or an absolute
// deadline. On the wire a number is milliseconds and a string is an RFC 3339 time.
type TTL struct {
	Duration time.Duration
	Deadline time.Time
}

// TTLAfter returns a relative TTL.
func TTLAfter(d time.Duration) *TTL {
	return &TTL{Duration: d}
}

// TTLUntil returns an absolute TTL.
func TTLUntil(deadline time.Time) *TTL {
	return &TTL{Deadline: deadline}
}

// MarshalJSON implements json.Marshaler
func (t TTL) MarshalJSON() ([]byte, error) {
	if !t.Deadline.IsZero() {
		return json.Marshal(t.Deadline.Format(time.RFC3339Nano))
	}
	return []byte(strconv.FormatInt(t.Duration.Milliseconds(), 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (t *TTL) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		deadline, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("ttl deadline: %w", err)
		}
		*t = TTL{Deadline: deadline}
		return nil
	}

	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("ttl: %w", err)
	}
	if ms < 0 {
		return fmt.Errorf("ttl: negative lifetime %v", ms)
	}
	*t = TTL{Duration: millisToDuration(ms)}
	return nil
}

// maxTTLMillis is the largest lifetime time.Duration can hold, in milliseconds.
const maxTTLMillis = float64(math.MaxInt64) / float64(time.Millisecond)

// millisToDuration saturates at the largest Duration, so lifetimes such as
// 9007199254740991 ("never") stay far in the future.
func millisToDuration(ms float64) time.Duration {
	if ms >= maxTTLMillis {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// ExpiresAt returns the effective deadline. ok is false when the message never expires.
func (m *UnifiedMessage) ExpiresAt() (deadline time.Time, ok bool) {
	if m.TTL == nil {
		return time.Time{}, false
	}
	if !m.TTL.Deadline.IsZero() {
		return m.TTL.Deadline, true
	}
	deadline = m.Timestamp.Add(m.TTL.Duration)
	if deadline.Before(m.Timestamp) {
		// Duration wrapped; treat as the far future.
		return m.Timestamp.Add(time.Duration(math.MaxInt64)), true
	}
	return deadline, true
}

// IsExpired reports whether the deadline has passed at now.
func (m *UnifiedMessage) IsExpired(now time.Time) bool {
	deadline, ok := m.ExpiresAt()
	return ok && !now.Before(deadline)
}

// EffectivePriority returns the priority, defaulting to NORMAL when unset.
func (m *UnifiedMessage) EffectivePriority() Priority {
	if m.Priority == "" {
		return PriorityNormal
	}
	return m.Priority
}

// Validate checks the envelope contract for messages built in Go. Frames read
// off the wire are checked by Decode instead.
func (m *UnifiedMessage) Validate() error {
	const op = "message.Validate"
	switch {
	case m == nil:
		return errors.New(errors.KindInvalidMessage, op, errors.ErrInvalidMessage)
	case m.MessageID == "":
		return errors.New(errors.KindInvalidMessage, op, fmt.Errorf("%w: missing messageId", errors.ErrInvalidMessage))
	case m.Timestamp.IsZero():
		return errors.New(errors.KindInvalidMessage, op, fmt.Errorf("%w: missing timestamp", errors.ErrInvalidMessage))
	case !m.Type.Valid():
		return errors.New(errors.KindInvalidMessage, op,
			fmt.Errorf("%w: unknown messageType %q", errors.ErrInvalidMessage, m.Type))
	case !m.Level.Valid():
		return errors.New(errors.KindInvalidMessage, op,
			fmt.Errorf("%w: unknown level %q", errors.ErrInvalidMessage, m.Level))
	case m.Priority != "" && !m.Priority.Valid():
		return errors.New(errors.KindInvalidMessage, op,
			fmt.Errorf("%w: unknown priority %q", errors.ErrInvalidMessage, m.Priority))
	}
	for i, a := range m.Actions {
		if a.Label == "" || !a.Type.Valid() {
			return errors.New(errors.KindInvalidMessage, op,
				fmt.Errorf("%w: action %d has label %q and type %q", errors.ErrInvalidMessage, i, a.Label, a.Type))
		}
	}
	return nil
}

// NewID returns a fresh random message ID.
func NewID() string {
	return uuid.NewString()
}

// New builds a message of the given type with a fresh ID and the current time.
// payload is marshalled to JSON unless it is already json.RawMessage.
func New(typ Type, level Level, payload any) (*UnifiedMessage, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, errors.New(errors.KindParseError, "message.New", err)
	}
	m := &UnifiedMessage{
		MessageID: NewID(),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Level:     level,
		Priority:  PriorityNormal,
		Payload:   raw,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		return json.Marshal(p)
	}
}
