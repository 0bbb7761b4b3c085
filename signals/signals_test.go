package signals

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Source = Static{}
var _ Source = (*Manual)(nil)
var _ Source = (*Probe)(nil)

func TestStatic(t *testing.T) {
	var s Static
	assert.True(t, s.Online())
	assert.True(t, s.Visible())
	s.OnOnlineChange(func(bool) {})()
	s.OnRouteChange(func(string, string) {})()
}

func TestManual_OnlineChanges(t *testing.T) {
	m := NewManual("/")
	var got []bool
	cancel := m.OnOnlineChange(func(online bool) { got = append(got, online) })

	m.SetOnline(true) // unchanged
	m.SetOnline(false)
	m.SetOnline(true)
	cancel()
	cancel()
	m.SetOnline(false)

	assert.Equal(t, []bool{false, true}, got)
	assert.False(t, m.Online())
}

func TestManual_Visibility(t *testing.T) {
	m := NewManual("/")
	var calls int32
	m.OnVisibilityChange(func(bool) { atomic.AddInt32(&calls, 1) })

	m.SetVisible(false)
	assert.False(t, m.Visible())
	m.SetVisible(false)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestManual_Navigate(t *testing.T) {
	m := NewManual("/devices")
	type hop struct{ from, to string }
	var hops []hop
	m.OnRouteChange(func(from, to string) { hops = append(hops, hop{from, to}) })

	m.Navigate("/devices")
	m.Navigate("/tasks")
	m.Navigate("/devices/7")

	assert.Equal(t, []hop{{"/devices", "/tasks"}, {"/tasks", "/devices/7"}}, hops)
	assert.Equal(t, "/devices/7", m.Route())
}

func TestManual_ListenerOrder(t *testing.T) {
	m := NewManual("/")
	var order []int
	c1 := m.OnOnlineChange(func(bool) { order = append(order, 1) })
	m.OnOnlineChange(func(bool) { order = append(order, 2) })
	m.OnOnlineChange(func(bool) { order = append(order, 3) })
	c1()

	m.SetOnline(false)
	assert.Equal(t, []int{2, 3}, order)
}

func TestProbeAddress(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"ws://broker.local:15674/ws", "broker.local:15674"},
		{"wss://push.example.com/ws", "push.example.com:443"},
		{"ws://broker.local/ws", "broker.local:80"},
		{"nats://127.0.0.1", "127.0.0.1:4222"},
	}
	for _, tt := range tests {
		got, err := ProbeAddress(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got)
	}

	_, err := ProbeAddress("not a url at all")
	assert.Error(t, err)
}

func TestProbe_PollsAndNotifies(t *testing.T) {
	mock := clock.NewMock()
	var reachable atomic.Bool
	reachable.Store(true)

	dial := func(_ context.Context, _, _ string) (net.Conn, error) {
		if reachable.Load() {
			c1, c2 := net.Pipe()
			_ = c2.Close()
			return c1, nil
		}
		return nil, errors.New("connection refused")
	}

	p, err := NewProbe("ws://broker.local:15674/ws", time.Second, WithProbeClock(mock), WithProbeDialer(dial))
	require.NoError(t, err)

	changes := make(chan bool, 4)
	p.OnOnlineChange(func(online bool) { changes <- online })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	reachable.Store(false)
	mock.Add(time.Second)
	select {
	case online := <-changes:
		assert.False(t, online)
	case <-time.After(time.Second):
		t.Fatal("expected offline notification")
	}
	assert.False(t, p.Online())

	reachable.Store(true)
	assert.True(t, p.Check(ctx))
	assert.True(t, <-changes)
	assert.True(t, p.Visible())
}
