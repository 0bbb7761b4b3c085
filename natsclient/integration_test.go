//go:build integration

package natsclient

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ledpush/connection"
	"github.com/c360/ledpush/message"
)

func TestIntegration_SessionRoundTrip(t *testing.T) {
	server := NewTestServer(t)

	d, err := NewDialer()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := d.Dial(ctx, server.URL, connection.DialOptions{Headers: map[string]string{"x-client": "ledpush"}})
	require.NoError(t, err)
	defer s.Close()

	frames := make(chan connection.Frame, 1)
	sub, err := s.Subscribe("/topic/org/3", "sub-1", nil, func(f connection.Frame) { frames <- f })
	require.NoError(t, err)

	require.NoError(t, s.Send(ctx, "/topic/org/3", []byte(`{"hello":"world"}`), "application/json", nil))

	select {
	case f := <-frames:
		assert.Equal(t, "/topic/org/3", f.Destination)
		assert.Equal(t, "sub-1", f.Headers["subscription"])
		assert.Equal(t, "ledpush", f.Headers["x-client"])
		assert.Equal(t, "application/json", f.Headers["content-type"])
		assert.JSONEq(t, `{"hello":"world"}`, string(f.Body))
	case <-time.After(5 * time.Second):
		t.Fatal("frame not delivered")
	}

	require.NoError(t, sub.Unsubscribe(nil))
	require.NoError(t, s.Close())
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not close")
	}
	assert.NoError(t, s.Err())
}

func TestIntegration_ManagerReconnectsAfterOutage(t *testing.T) {
	server := NewTestServer(t)

	d, err := NewDialer(WithTimeout(time.Second))
	require.NoError(t, err)

	m, err := connection.New(server.URL, d, connection.WithReconnectPolicy(connection.ReconnectPolicy{
		MaxAttempts:  2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}))
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))

	var mu sync.Mutex
	var received []string
	_, err = m.Subscribe("/queue/user/7", func(msg *message.UnifiedMessage) {
		mu.Lock()
		received = append(received, msg.MessageID)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	msg, err := message.New(message.TypeNotification, message.LevelInfo,
		message.NotificationPayload{Title: "t", Content: "c"})
	require.NoError(t, err)
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, m.Send(ctx, "/queue/user/7", json.RawMessage(body), nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && received[0] == msg.MessageID
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Stop(ctx))
	require.Eventually(t, func() bool { return m.State() == connection.StateFailed }, 20*time.Second, 50*time.Millisecond)
	assert.Error(t, m.LastError())
}
