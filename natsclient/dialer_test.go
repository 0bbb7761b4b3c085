package natsclient

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ledpush/connection"
	"github.com/c360/ledpush/errors"
)

func TestSubjectMapping(t *testing.T) {
	tests := []struct {
		destination string
		subject     string
	}{
		{"/topic/org/3", "topic.org.3"},
		{"/queue/user/7", "queue.user.7"},
		{"/topic/system", "topic.system"},
		{"/user/queue/notifications", "user.queue.notifications"},
	}

	for _, tt := range tests {
		t.Run(tt.destination, func(t *testing.T) {
			assert.Equal(t, tt.subject, SubjectFor(tt.destination))
			assert.Equal(t, tt.destination, DestinationFor(tt.subject))
		})
	}
}

func TestNewDialer_Options(t *testing.T) {
	d, err := NewDialer(
		WithPingInterval(10*time.Second),
		WithMaxPingsOutstanding(3),
		WithName("ledpush-test"),
		WithToken("t"),
	)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d.pingInterval)
	assert.Equal(t, 3, d.maxPingsOut)
	assert.Equal(t, "ledpush-test", d.clientName)

	assert.Len(t, d.natsOptions(connection.DialOptions{}, &session{}), 10)

	tlsd, err := NewDialer(WithTLSConfig(&tls.Config{ServerName: "broker", MinVersion: tls.VersionTLS12}))
	require.NoError(t, err)
	assert.Equal(t, "broker", tlsd.tlsConfig.ServerName)
	assert.Len(t, tlsd.natsOptions(connection.DialOptions{}, &session{}), 9)

	_, err = NewDialer(WithPingInterval(0))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewDialer(WithMaxPingsOutstanding(0))
	require.Error(t, err)
}

func TestDial_Unreachable(t *testing.T) {
	d, err := NewDialer(WithTimeout(200 * time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = d.Dial(ctx, "nats://127.0.0.1:1", connection.DialOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestDial_ContextCancelled(t *testing.T) {
	d, err := NewDialer()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Dial(ctx, "nats://10.255.255.1:4222", connection.DialOptions{})
	require.Error(t, err)
}
