package message

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ledpush/errors"
)

const validFrame = `{
  "messageId": "m1",
  "timestamp": "2024-03-01T10:00:00Z",
  "messageType": "NOTIFICATION",
  "level": "INFO",
  "payload": {"title": "Hello", "content": "World"}
}`

func TestDecode_Valid(t *testing.T) {
	msg, err := Decode([]byte(validFrame))
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.MessageID)
	assert.Equal(t, TypeNotification, msg.Type)
	assert.Equal(t, LevelInfo, msg.Level)
	assert.Equal(t, PriorityNormal, msg.EffectivePriority())
	assert.False(t, msg.RequireAck)
	assert.Nil(t, msg.TTL)
	assert.True(t, msg.Timestamp.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))

	n, err := msg.Notification()
	require.NoError(t, err)
	assert.Equal(t, "Hello", n.Title)
}

func TestDecode_FullEnvelope(t *testing.T) {
	body := `{
	  "messageId": "m2",
	  "timestamp": "2024-03-01T10:00:00Z",
	  "messageType": "TASK_PROGRESS",
	  "level": "SUCCESS",
	  "priority": "HIGH",
	  "ttl": 60000,
	  "requireAck": true,
	  "payload": {"taskId": "t-9", "status": "RUNNING", "progress": 100},
	  "actions": [{"label": "Open", "type": "NAVIGATE", "target": "/tasks/t-9"}],
	  "extra": "ignored"
	}`

	msg, err := Decode([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, PriorityHigh, msg.EffectivePriority())
	assert.True(t, msg.RequireAck)
	require.Len(t, msg.Actions, 1)
	assert.Equal(t, ActionNavigate, msg.Actions[0].Type)

	deadline, ok := msg.ExpiresAt()
	require.True(t, ok)
	assert.True(t, deadline.Equal(msg.Timestamp.Add(time.Minute)))

	p, err := msg.TaskProgress()
	require.NoError(t, err)
	assert.True(t, p.Done())

	_, err = msg.Notification()
	assert.True(t, errors.IsKind(err, errors.KindInvalidMessage))
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind errors.Kind
	}{
		{"not json", `{"messageId": `, errors.KindParseError},
		{"plain text", `hello`, errors.KindParseError},
		{"array", `[]`, errors.KindInvalidMessage},
		{"missing id", `{"timestamp":"2024-03-01T10:00:00Z","messageType":"NOTIFICATION","level":"INFO","payload":{}}`, errors.KindInvalidMessage},
		{"empty id", `{"messageId":"","timestamp":"2024-03-01T10:00:00Z","messageType":"NOTIFICATION","level":"INFO","payload":{}}`, errors.KindInvalidMessage},
		{"unknown type", `{"messageId":"x","timestamp":"2024-03-01T10:00:00Z","messageType":"CHAT","level":"INFO","payload":{}}`, errors.KindInvalidMessage},
		{"unknown level", `{"messageId":"x","timestamp":"2024-03-01T10:00:00Z","messageType":"NOTIFICATION","level":"DEBUG","payload":{}}`, errors.KindInvalidMessage},
		{"bad timestamp", `{"messageId":"x","timestamp":"yesterday","messageType":"NOTIFICATION","level":"INFO","payload":{}}`, errors.KindInvalidMessage},
		{"negative ttl", `{"messageId":"x","timestamp":"2024-03-01T10:00:00Z","messageType":"NOTIFICATION","level":"INFO","ttl":-5,"payload":{}}`, errors.KindInvalidMessage},
		{"bad action", `{"messageId":"x","timestamp":"2024-03-01T10:00:00Z","messageType":"NOTIFICATION","level":"INFO","payload":{},"actions":[{"label":"go","type":"JUMP"}]}`, errors.KindInvalidMessage},
		{"missing payload", `{"messageId":"x","timestamp":"2024-03-01T10:00:00Z","messageType":"NOTIFICATION","level":"INFO"}`, errors.KindInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.Equal(t, tt.kind, errors.KindOf(err))
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestTTL_JSON(t *testing.T) {
	var m UnifiedMessage
	require.NoError(t, json.Unmarshal([]byte(`{"ttl":"2024-03-01T11:00:00Z"}`), &m))
	require.NotNil(t, m.TTL)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), m.TTL.Deadline.UTC())

	data, err := json.Marshal(TTLAfter(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "1500", string(data))

	data, err = json.Marshal(TTLUntil(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01T11:00:00Z"`, string(data))

	var huge UnifiedMessage
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"2026-01-01T00:00:00Z","ttl":9007199254740991}`), &huge))
	assert.Equal(t, time.Duration(math.MaxInt64), huge.TTL.Duration)
	deadline, ok := huge.ExpiresAt()
	require.True(t, ok)
	assert.True(t, deadline.After(huge.Timestamp))
	assert.False(t, huge.IsExpired(huge.Timestamp.Add(time.Second)))
	assert.False(t, huge.IsExpired(huge.Timestamp.Add(100*365*24*time.Hour)))

	var ttl TTL
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &ttl))
	assert.Error(t, json.Unmarshal([]byte(`-1`), &ttl))
}

func TestIsExpired(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	never := &UnifiedMessage{Timestamp: ts}
	assert.False(t, never.IsExpired(ts.Add(100*365*24*time.Hour)))

	relative := &UnifiedMessage{Timestamp: ts, TTL: TTLAfter(time.Minute)}
	assert.False(t, relative.IsExpired(ts.Add(59*time.Second)))
	assert.True(t, relative.IsExpired(ts.Add(time.Minute)))

	absolute := &UnifiedMessage{Timestamp: ts, TTL: TTLUntil(ts.Add(time.Hour))}
	assert.False(t, absolute.IsExpired(ts.Add(30*time.Minute)))
	assert.True(t, absolute.IsExpired(ts.Add(2*time.Hour)))
}

func TestValidate(t *testing.T) {
	good := &UnifiedMessage{
		MessageID: "m",
		Timestamp: time.Now(),
		Type:      TypeCommandFeedback,
		Level:     LevelWarning,
		Payload:   json.RawMessage(`{}`),
	}
	require.NoError(t, good.Validate())

	bad := *good
	bad.Priority = "MEDIUM"
	assert.True(t, errors.IsKind(bad.Validate(), errors.KindInvalidMessage))

	bad = *good
	bad.Type = ""
	assert.True(t, errors.IsKind(bad.Validate(), errors.KindInvalidMessage))

	bad = *good
	bad.Actions = []Action{{Label: "", Type: ActionDismiss}}
	assert.Error(t, bad.Validate())

	var nilMsg *UnifiedMessage
	assert.Error(t, nilMsg.Validate())
}

func TestNew_RoundTrip(t *testing.T) {
	msg, err := New(TypeTerminalStatusChange, LevelError, TerminalStatusPayload{TerminalID: 42, Status: "OFFLINE"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.MessageID)

	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg.MessageID, decoded.MessageID)

	status, err := decoded.TerminalStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(42), status.TerminalID)

	_, err = New("BOGUS", LevelInfo, nil)
	assert.True(t, errors.IsKind(err, errors.KindInvalidMessage))

	_, err = New(TypeNotification, LevelInfo, []byte("{not json"))
	assert.True(t, errors.IsKind(err, errors.KindParseError))
}

func TestNewReceived(t *testing.T) {
	msg, err := New(TypeNotification, LevelInfo, NotificationPayload{Title: "t"})
	require.NoError(t, err)

	now := time.Now()
	rm := NewReceived(msg, now)
	assert.False(t, rm.IsRead)
	assert.False(t, rm.IsAcknowledged)
	assert.Equal(t, now, rm.ReceivedAt)
	assert.Equal(t, msg.MessageID, rm.MessageID)

	data, err := json.Marshal(rm)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"isRead":false`)
	assert.Contains(t, string(data), `"messageId"`)
}

func TestEnums(t *testing.T) {
	for _, typ := range Types() {
		assert.True(t, typ.Valid(), typ)
	}
	for _, l := range Levels() {
		assert.True(t, l.Valid(), l)
	}
	for i, p := range Priorities() {
		assert.Equal(t, i, p.Rank())
	}
	for _, a := range ActionTypes() {
		assert.True(t, a.Valid(), a)
	}
	assert.False(t, Type("notification").Valid())
	assert.Equal(t, -1, Priority("").Rank())
}

func TestSchemaCompiles(t *testing.T) {
	assert.NotNil(t, compiledSchema)
	assert.True(t, json.Valid([]byte(Schema())))
}
