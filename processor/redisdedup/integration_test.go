//go:build integration

package redisdedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/ledpush/message"
	"github.com/c360/ledpush/processor"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestIntegration_MarkIfNew(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	s, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer s.Close()

	fresh, err := s.MarkIfNew(ctx, "m1", time.Second)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.MarkIfNew(ctx, "m1", time.Second)
	require.NoError(t, err)
	assert.False(t, fresh)

	seen, err := s.Seen(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, s.Forget(ctx, "m1"))
	fresh, err = s.MarkIfNew(ctx, "m1", 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, fresh)

	require.Eventually(t, func() bool {
		seen, err := s.Seen(ctx, "m1")
		return err == nil && !seen
	}, 5*time.Second, 50*time.Millisecond, "redis expires the record after the window")
}

func TestIntegration_SharedBetweenProcessors(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	newProcessor := func() *processor.Processor {
		s, err := Dial(ctx, addr)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		p, err := processor.New(processor.DefaultConfig(), processor.WithDedupStore(s))
		require.NoError(t, err)
		require.NoError(t, p.Start(ctx))
		t.Cleanup(func() { _ = p.Close(time.Second) })
		return p
	}
	a, b := newProcessor(), newProcessor()

	m, err := message.New(message.TypeNotification, message.LevelInfo,
		message.NotificationPayload{Title: "t", Content: "c"})
	require.NoError(t, err)

	got, err := a.Process(ctx, m)
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = b.Process(ctx, m)
	require.NoError(t, err)
	assert.Nil(t, got, "second replica sees the ID as processed")
	assert.Equal(t, int64(1), b.Stats().Duplicates)
}
