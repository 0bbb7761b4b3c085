package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ledpush/config"
	"github.com/c360/ledpush/connection"
	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/message"
	"github.com/c360/ledpush/metric"
	"github.com/c360/ledpush/signals"
	"github.com/c360/ledpush/subscription"
)

type harness struct {
	client *Client
	dialer *connection.TestDialer
	clock  *clock.Mock
}

func newHarness(t *testing.T, mutate func(*config.Config), opts ...Option) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Reconnect.JitterFraction = 0
	cfg.Reconnect.MaxAttempts = 3
	if mutate != nil {
		mutate(cfg)
	}

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	dialer := connection.NewTestDialer()

	c, err := New(cfg, append([]Option{WithDialer(dialer), WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(time.Second) })
	require.NoError(t, c.Start(context.Background()))
	return &harness{client: c, dialer: dialer, clock: clk}
}

func (h *harness) connect(t *testing.T) *connection.TestSession {
	t.Helper()
	require.NoError(t, h.client.Connect(context.Background()))
	return h.dialer.Session()
}

func body(t *testing.T, requireAck bool) (string, []byte) {
	t.Helper()
	m, err := message.New(message.TypeNotification, message.LevelInfo,
		message.NotificationPayload{Title: "deploy", Content: "finished"})
	require.NoError(t, err)
	m.RequireAck = requireAck
	raw, err := message.Encode(m)
	require.NoError(t, err)
	return m.MessageID, raw
}

func waitIdle(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Processor().WaitIdle(ctx))
}

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) handle(_ context.Context, msg message.ReceivedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, msg.MessageID)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	cfg := config.Default()
	cfg.Broker.URL = "http://broker/ws"
	_, err = New(cfg, WithDialer(connection.NewTestDialer()))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestNew_SelectsTransport(t *testing.T) {
	c, err := New(config.Default())
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", c.Connection().URL())
	require.NoError(t, c.Close(time.Second))

	cfg := config.Default()
	cfg.Broker.Transport = config.TransportNATS
	cfg.Broker.URL = "nats://localhost:4222"
	c, err = New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Close(time.Second))
}

func TestNew_TLSFilesMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.URL = "wss://broker.example.com/ws"
	cfg.Broker.TLS.Enabled = true
	cfg.Broker.TLS.CAFiles = []string{"/nonexistent/ca.pem"}

	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestClient_DeliversOncePerMessage(t *testing.T) {
	h := newHarness(t, nil)
	session := h.connect(t)
	require.NoError(t, h.client.SetUser(&subscription.User{UID: 7, OID: 3}))
	assert.Equal(t, []string{"/queue/user/7", "/topic/org/3", "/topic/system"}, session.Destinations())

	var rec recorder
	h.client.Processor().RegisterMessageHandler(message.TypeNotification, rec.handle)

	id, raw := body(t, false)
	assert.Equal(t, 1, session.Inject("/queue/user/7", raw))
	assert.Equal(t, 1, session.Inject("/queue/user/7", raw))
	waitIdle(t, h.client)

	assert.Equal(t, []string{id}, rec.seen())
	stats := h.client.Processor().Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Duplicates)

	cached := h.client.Processor().GetCachedMessages()
	require.Len(t, cached, 1)
	assert.False(t, cached[0].IsRead)
}

func TestClient_UserSetBeforeConnect(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.client.SetUser(&subscription.User{UID: 7, OID: 3}))
	assert.Zero(t, h.client.Subscriptions().Count())

	session := h.connect(t)
	assert.Equal(t, []string{"/queue/user/7", "/topic/org/3", "/topic/system"}, session.Destinations())
	for _, s := range h.client.Subscriptions().GetSubscriptions() {
		assert.True(t, s.IsAutoSubscription, s.Destination)
	}
}

func TestClient_RestoresAfterDrop(t *testing.T) {
	h := newHarness(t, nil)
	first := h.connect(t)
	require.NoError(t, h.client.SetUser(&subscription.User{UID: 7, OID: 3}))
	pageID, err := h.client.Subscriptions().SubscribeForPage("/tasks", "/topic/task/42", nil)
	require.NoError(t, err)

	first.Drop(errors.ErrConnectionLost)
	require.Eventually(t, func() bool {
		return h.client.Connection().State() == connection.StateReconnecting
	}, time.Second, time.Millisecond)

	h.clock.Add(time.Second)
	want := []string{"/queue/user/7", "/topic/org/3", "/topic/system", "/topic/task/42"}
	require.Eventually(t, func() bool {
		second := h.dialer.Session()
		return second != first && h.client.Connection().IsConnected() && len(second.Destinations()) == len(want)
	}, time.Second, time.Millisecond)

	second := h.dialer.Session()
	assert.ElementsMatch(t, want, second.Destinations())
	info, ok := h.client.Subscriptions().Get(pageID)
	require.True(t, ok)
	assert.False(t, info.IsAutoSubscription)

	var rec recorder
	h.client.Processor().RegisterGlobalHandler(rec.handle)
	id, raw := body(t, false)
	second.Inject("/topic/task/42", raw)
	waitIdle(t, h.client)
	assert.Equal(t, []string{id}, rec.seen())
}

func TestClient_Acknowledge(t *testing.T) {
	h := newHarness(t, nil)
	session := h.connect(t)
	_, err := h.client.Subscriptions().Subscribe("/topic/system", nil)
	require.NoError(t, err)

	ackID, ackRaw := body(t, true)
	plainID, plainRaw := body(t, false)
	session.Inject("/topic/system", ackRaw)
	session.Inject("/topic/system", plainRaw)
	waitIdle(t, h.client)

	ctx := context.Background()
	require.NoError(t, h.client.Acknowledge(ctx, ackID))
	require.NoError(t, h.client.Acknowledge(ctx, plainID))
	require.NoError(t, h.client.Acknowledge(ctx, ackID), "second acknowledgement is a no-op")

	sent := session.Sent()
	require.Len(t, sent, 1, "only requireAck messages reach the broker")
	assert.Equal(t, "/app/message/ack", sent[0].Destination)

	var ack Ack
	require.NoError(t, json.Unmarshal(sent[0].Body, &ack))
	assert.Equal(t, ackID, ack.MessageID)
	assert.True(t, h.clock.Now().Equal(ack.AcknowledgedAt))

	for _, id := range []string{ackID, plainID} {
		m, ok := h.client.Processor().GetMessage(id)
		require.True(t, ok)
		assert.True(t, m.IsAcknowledged, id)
	}

	err = h.client.Acknowledge(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestClient_HealthCountsDroppedFrames(t *testing.T) {
	h := newHarness(t, nil)
	session := h.connect(t)
	_, err := h.client.Subscriptions().Subscribe("/topic/system", nil)
	require.NoError(t, err)

	session.Inject("/topic/system", []byte("not json"))
	_, raw := body(t, false)
	session.Inject("/topic/system", raw)
	waitIdle(t, h.client)

	info := h.client.Connection().Info()
	assert.Equal(t, int64(2), info.FramesReceived)
	assert.Equal(t, int64(1), info.FramesDropped)
	assert.Zero(t, h.client.Processor().Stats().Invalid)

	h.client.Health()
	conn, ok := h.client.monitor.Get("connection")
	require.True(t, ok)
	require.NotNil(t, conn.Metrics)
	assert.Equal(t, 1, conn.Metrics.ErrorCount)
	assert.Equal(t, int64(2), conn.Metrics.MessagesProcessed)
}

func TestClient_AcknowledgeWhileDisconnected(t *testing.T) {
	h := newHarness(t, nil)
	session := h.connect(t)
	_, err := h.client.Subscriptions().Subscribe("/topic/system", nil)
	require.NoError(t, err)

	id, raw := body(t, true)
	session.Inject("/topic/system", raw)
	waitIdle(t, h.client)

	h.client.Disconnect()
	err = h.client.Acknowledge(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConnectionFailed))

	m, ok := h.client.Processor().GetMessage(id)
	require.True(t, ok)
	assert.False(t, m.IsAcknowledged, "not flagged until the broker has it")
}

func TestClient_MarkAsRead(t *testing.T) {
	h := newHarness(t, nil)
	session := h.connect(t)
	_, err := h.client.Subscriptions().Subscribe("/topic/system", nil)
	require.NoError(t, err)

	id, raw := body(t, false)
	session.Inject("/topic/system", raw)

	assert.True(t, h.client.MarkAsRead(id))
	assert.False(t, h.client.MarkAsRead("missing"))
	assert.Zero(t, h.client.Processor().UnreadCount())
}

func TestClient_RouteChangeReleasesPage(t *testing.T) {
	nav := signals.NewManual("/devices")
	h := newHarness(t, nil, WithSignals(nav))
	h.connect(t)

	_, err := h.client.Subscriptions().SubscribeDeviceForPage("/devices", "9", nil)
	require.NoError(t, err)
	require.True(t, h.client.Subscriptions().IsSubscribed("/topic/device/9"))

	nav.Navigate("/tasks")
	assert.False(t, h.client.Subscriptions().IsSubscribed("/topic/device/9"))
	assert.Empty(t, h.dialer.Session().Destinations())
}

func TestClient_Health(t *testing.T) {
	h := newHarness(t, nil)
	assert.True(t, h.client.Health().IsUnhealthy())

	h.connect(t)
	status := h.client.Health()
	assert.True(t, status.IsHealthy(), status.Message)
	assert.Len(t, status.SubStatuses, 3)

	_, err := h.client.Subscriptions().Subscribe("/topic/system", nil)
	require.NoError(t, err)
	h.client.Disconnect()
	sub, ok := h.client.monitor.Get("subscriptions")
	require.True(t, ok)
	assert.True(t, sub.IsDegraded())
}

func TestClient_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newHarness(t, nil, WithMetrics(registry))
	h.connect(t)
	require.NoError(t, h.client.SetUser(&subscription.User{UID: 7, OID: 3}))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ledpush_subscriptions_active"])
}

func TestClient_Close(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)
	require.NoError(t, h.client.SetUser(&subscription.User{UID: 1, OID: 1}))

	require.NoError(t, h.client.Close(time.Second))
	require.NoError(t, h.client.Close(time.Second))

	assert.Equal(t, connection.StateDisconnected, h.client.Connection().State())
	assert.Zero(t, h.client.Subscriptions().Count())
	assert.True(t, h.dialer.Session().Closed())

	err := h.client.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrClosed)
	assert.ErrorIs(t, h.client.Start(context.Background()), errors.ErrClosed)
}
