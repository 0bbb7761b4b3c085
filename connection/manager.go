package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/health"
	"github.com/c360/ledpush/message"
	"github.com/c360/ledpush/pkg/schedule"
	"github.com/c360/ledpush/signals"
)

const defaultHandshakeTimeout = 30 * time.Second

// MessageListener receives every valid message delivered on any subscription.
type MessageListener func(destination string, msg *message.UnifiedMessage)

// StateListener receives every state transition.
type StateListener func(StateChange)

type transportSub struct {
	handle      string
	destination string
	callback    func(*message.UnifiedMessage)
	sub         SessionSubscription
}

// Manager owns one logical broker connection: its state machine, automatic
// reconnection, and the transport-level subscriptions made on it.
type Manager struct {
	url              string
	dialer           Dialer
	dialOpts         DialOptions
	policy           ReconnectPolicy
	handshakeTimeout time.Duration
	signals          signals.Source
	clock            clock.Clock
	sched            *schedule.Scheduler
	logger           *slog.Logger
	metrics          *managerMetrics
	limiter          *rate.Limiter

	framesReceived atomic.Int64
	framesDropped  atomic.Int64

	mu          sync.Mutex
	state       State
	session     Session
	generation  uint64
	attempts    int
	lastErr     error
	connectedAt time.Time
	reconnect   *schedule.Task
	subs        map[string]*transportSub
	closed      bool

	listenerMu     sync.Mutex
	nextListenerID uint64
	stateListeners map[uint64]StateListener
	msgListeners   map[uint64]MessageListener

	signalCancels []func()
}

// New creates a manager for url. It does not connect.
func New(url string, dialer Dialer, opts ...Option) (*Manager, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "New", "broker url")
	}
	if dialer == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "New", "dialer")
	}

	m := &Manager{
		url:              url,
		dialer:           dialer,
		dialOpts:         DialOptions{HeartbeatIncoming: 4 * time.Second, HeartbeatOutgoing: 4 * time.Second},
		policy:           DefaultReconnectPolicy(),
		handshakeTimeout: defaultHandshakeTimeout,
		signals:          signals.Static{},
		clock:            clock.New(),
		logger:           slog.Default(),
		state:            StateDisconnected,
		subs:             make(map[string]*transportSub),
		stateListeners:   make(map[uint64]StateListener),
		msgListeners:     make(map[uint64]MessageListener),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.WrapInvalid(err, "Manager", "New", "apply option")
		}
	}

	m.logger = m.logger.With("component", "connection")
	m.sched = schedule.New(m.clock)
	m.metrics.recordState(StateDisconnected)

	m.signalCancels = append(m.signalCancels,
		m.signals.OnOnlineChange(func(online bool) { m.handleEnvironment("online", online) }),
		m.signals.OnVisibilityChange(func(visible bool) { m.handleEnvironment("visible", visible) }),
	)

	return m, nil
}

// URL returns the broker URL
func (m *Manager) URL() string {
	return m.url
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the state is connected
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// LastError returns the error that caused the most recent failure, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Info returns a snapshot of the manager.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := Info{
		URL:               m.url,
		State:             m.state.String(),
		ReconnectAttempts: m.attempts,
		ConnectedAt:       m.connectedAt,
		Subscriptions:     len(m.subs),
		ReconnectPending:  m.reconnect.Pending(),
		FramesReceived:    m.framesReceived.Load(),
		FramesDropped:     m.framesDropped.Load(),
	}
	if m.lastErr != nil {
		info.LastError = m.lastErr.Error()
	}
	return info
}

// Health reports connection health. Frames dropped as invalid before reaching
// any listener are reported as the error count.
func (m *Manager) Health() health.Status {
	info := m.Info()
	status := health.FromConnectionState("connection", info.State, info.LastError)
	return status.WithMetrics(&health.Metrics{
		ErrorCount:        int(info.FramesDropped),
		MessagesProcessed: info.FramesReceived,
	})
}

// OnStateChange registers fn for every state transition. Listeners run outside
// the manager's lock, in transition order per triggering goroutine.
func (m *Manager) OnStateChange(fn StateListener) (unregister func()) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.nextListenerID++
	id := m.nextListenerID
	m.stateListeners[id] = fn
	return func() {
		m.listenerMu.Lock()
		delete(m.stateListeners, id)
		m.listenerMu.Unlock()
	}
}

// OnMessage registers fn for every valid message received on any subscription.
func (m *Manager) OnMessage(fn MessageListener) (unregister func()) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.nextListenerID++
	id := m.nextListenerID
	m.msgListeners[id] = fn
	return func() {
		m.listenerMu.Lock()
		delete(m.msgListeners, id)
		m.listenerMu.Unlock()
	}
}

// Connect establishes the connection and blocks until the handshake completes.
// It is a no-op when already connected or connecting. A failed handshake is
// returned as a connection_failed error and also schedules automatic reconnection.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New(errors.KindConnectionFailed, "connection.Connect", errors.ErrClosed)
	}
	if m.state == StateConnected || m.state == StateConnecting {
		state := m.state
		m.mu.Unlock()
		m.logger.Warn("Connect called while already active", "state", state.String())
		return nil
	}
	m.cancelReconnectLocked()
	m.attempts = 0
	gen, changes := m.beginDialLocked()
	m.mu.Unlock()

	m.notify(changes)
	return m.finishDial(ctx, gen)
}

// Disconnect cancels any pending reconnect, tears down every subscription and
// closes the transport. It is the only path that suppresses reconnection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelReconnectLocked()
	m.generation++
	session := m.session
	m.session = nil
	subs := m.subs
	m.subs = make(map[string]*transportSub)
	m.attempts = 0
	m.lastErr = nil
	changes := m.setStateLocked(StateDisconnected, nil)
	m.mu.Unlock()

	if session != nil {
		for _, ts := range subs {
			if ts.sub == nil {
				continue
			}
			if err := ts.sub.Unsubscribe(map[string]string{"destination": ts.destination}); err != nil {
				m.logger.Debug("Unsubscribe during disconnect failed", "destination", ts.destination, "error", err)
			}
		}
		if err := session.Close(); err != nil {
			m.logger.Debug("Transport close returned error", "error", err)
		}
	}

	m.notify(changes)
}

// Close disconnects and detaches from the signal source. The manager cannot be
// reconnected afterwards.
func (m *Manager) Close() {
	m.Disconnect()

	m.mu.Lock()
	m.closed = true
	cancels := m.signalCancels
	m.signalCancels = nil
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Send publishes body to destination. Strings and byte slices are sent as-is;
// anything else is serialized as JSON.
func (m *Manager) Send(ctx context.Context, destination string, body any, headers map[string]string) error {
	const op = "connection.Send"

	m.mu.Lock()
	session := m.session
	connected := m.state == StateConnected && session != nil
	m.mu.Unlock()
	if !connected {
		return errors.New(errors.KindConnectionFailed, op, errors.ErrNotConnected)
	}

	payload, contentType, err := encodeBody(body)
	if err != nil {
		return errors.New(errors.KindParseError, op, err)
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			m.metrics.recordSend("rate_limited")
			return errors.New(errors.KindConnectionFailed, op, fmt.Errorf("%w: %v", errors.ErrRateLimited, err))
		}
	}

	if err := session.Send(ctx, destination, payload, contentType, headers); err != nil {
		m.metrics.recordSend("error")
		return errors.New(errors.KindConnectionFailed, op, err)
	}
	m.metrics.recordSend("ok")
	m.logger.Debug("Sent frame", "destination", destination, "bytes", len(payload))
	return nil
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case string:
		return []byte(b), "text/plain", nil
	case []byte:
		return b, "application/octet-stream", nil
	case json.RawMessage:
		return b, "application/json", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
		return data, "application/json", nil
	}
}

// Subscribe starts a transport subscription to destination. Every valid message
// is passed to callback (which may be nil) and to every OnMessage listener;
// frames that fail validation are logged and dropped. The returned handle is
// unique per call.
func (m *Manager) Subscribe(destination string, callback func(*message.UnifiedMessage), headers map[string]string) (string, error) {
	const op = "connection.Subscribe"

	m.mu.Lock()
	session := m.session
	if m.state != StateConnected || session == nil {
		m.mu.Unlock()
		return "", errors.New(errors.KindSubscriptionFailed, op, errors.ErrNotConnected)
	}
	gen := m.generation
	ts := &transportSub{
		handle:      "sub-" + uuid.NewString(),
		destination: destination,
		callback:    callback,
	}
	// Registered before the transport call so frames arriving immediately are kept.
	m.subs[ts.handle] = ts
	m.mu.Unlock()

	sub, err := session.Subscribe(destination, ts.handle, headers, func(f Frame) {
		m.deliver(gen, ts, f)
	})
	if err != nil {
		m.mu.Lock()
		delete(m.subs, ts.handle)
		m.mu.Unlock()
		return "", errors.New(errors.KindSubscriptionFailed, op, err)
	}

	m.mu.Lock()
	if current, ok := m.subs[ts.handle]; !ok || current != ts || gen != m.generation {
		m.mu.Unlock()
		_ = sub.Unsubscribe(map[string]string{"destination": destination})
		return "", errors.New(errors.KindSubscriptionFailed, op, errors.ErrConnectionLost)
	}
	ts.sub = sub
	m.mu.Unlock()

	m.logger.Debug("Subscribed", "destination", destination, "handle", ts.handle)
	return ts.handle, nil
}

// Unsubscribe ends the transport subscription for handle. Unknown handles are ignored.
func (m *Manager) Unsubscribe(handle string) error {
	m.mu.Lock()
	ts, ok := m.subs[handle]
	if ok {
		delete(m.subs, handle)
	}
	m.mu.Unlock()

	if !ok || ts.sub == nil {
		return nil
	}
	if err := ts.sub.Unsubscribe(map[string]string{"destination": ts.destination}); err != nil {
		return errors.New(errors.KindSubscriptionFailed, "connection.Unsubscribe", err)
	}
	m.logger.Debug("Unsubscribed", "destination", ts.destination, "handle", handle)
	return nil
}

// Subscriptions returns the number of live transport subscriptions.
func (m *Manager) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Manager) deliver(gen uint64, ts *transportSub, f Frame) {
	m.mu.Lock()
	live := gen == m.generation && m.subs[ts.handle] == ts
	m.mu.Unlock()
	if !live {
		return
	}

	m.metrics.recordFrame()
	m.framesReceived.Add(1)
	msg, err := message.Decode(f.Body)
	if err != nil {
		m.framesDropped.Add(1)
		kind := errors.KindOf(err)
		m.metrics.recordDropped(string(kind))
		m.logger.Warn("Dropping invalid frame", "destination", ts.destination, "kind", string(kind), "error", err)
		return
	}

	if ts.callback != nil {
		m.safeCall(ts.destination, func() { ts.callback(msg) })
	}

	m.listenerMu.Lock()
	listeners := make([]MessageListener, 0, len(m.msgListeners))
	for _, l := range m.msgListeners {
		listeners = append(listeners, l)
	}
	m.listenerMu.Unlock()

	for _, l := range listeners {
		m.safeCall(ts.destination, func() { l(ts.destination, msg) })
	}
}

// safeCall contains callback panics so one broken consumer cannot stop delivery.
func (m *Manager) safeCall(destination string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Message callback panicked", "destination", destination, "panic", r)
		}
	}()
	fn()
}

// beginDialLocked moves to connecting and starts a new session generation.
func (m *Manager) beginDialLocked() (uint64, []StateChange) {
	m.generation++
	m.lastErr = nil
	m.metrics.recordAttempt()
	return m.generation, m.setStateLocked(StateConnecting, nil)
}

func (m *Manager) finishDial(ctx context.Context, gen uint64) error {
	const op = "connection.Connect"

	dialCtx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
	defer cancel()

	session, err := m.dialer.Dial(dialCtx, m.url, m.dialOpts)

	m.mu.Lock()
	if gen != m.generation || m.closed {
		m.mu.Unlock()
		if session != nil {
			_ = session.Close()
		}
		return errors.New(errors.KindConnectionFailed, op, fmt.Errorf("connect superseded: %w", context.Canceled))
	}

	if err != nil {
		m.lastErr = err
		m.metrics.recordFailure("dial")
		changes := m.setStateLocked(StateFailed, err)
		changes = append(changes, m.scheduleReconnectLocked()...)
		m.mu.Unlock()

		m.logger.Error("Connection attempt failed", "url", m.url, "error", err)
		m.notify(changes)
		return errors.New(errors.KindConnectionFailed, op, err)
	}

	m.session = session
	m.attempts = 0
	m.connectedAt = m.clock.Now()
	changes := m.setStateLocked(StateConnected, nil)
	m.mu.Unlock()

	go m.watchSession(gen, session)

	m.logger.Info("Connected", "url", m.url)
	m.notify(changes)
	return nil
}

func (m *Manager) watchSession(gen uint64, session Session) {
	<-session.Done()
	m.handleSessionEnd(gen, session.Err())
}

// handleSessionEnd reacts to a session ending without a Disconnect call.
func (m *Manager) handleSessionEnd(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.generation || m.closed {
		m.mu.Unlock()
		return
	}
	m.session = nil
	// Transport handles do not survive the session.
	m.subs = make(map[string]*transportSub)

	var changes []StateChange
	if cause != nil {
		m.lastErr = cause
		m.metrics.recordFailure("transport")
		changes = m.setStateLocked(StateFailed, cause)
	}
	changes = append(changes, m.scheduleReconnectLocked()...)
	state := m.state
	m.mu.Unlock()

	m.logger.Warn("Connection lost", "error", cause, "state", state.String())
	m.notify(changes)
}

// scheduleReconnectLocked arms the reconnect timer or gives up.
func (m *Manager) scheduleReconnectLocked() []StateChange {
	if m.closed {
		return nil
	}
	if m.policy.MaxAttempts == 0 || m.attempts >= m.policy.MaxAttempts {
		m.lastErr = errors.ErrMaxReconnects
		m.logger.Error("Giving up on reconnection", "attempts", m.attempts)
		return m.setStateLocked(StateFailed, errors.ErrMaxReconnects)
	}
	if !m.signals.Online() || !m.signals.Visible() {
		if m.lastErr == nil {
			m.lastErr = errors.ErrConnectionLost
		}
		m.logger.Info("Not scheduling reconnect while offline or hidden")
		return m.setStateLocked(StateFailed, m.lastErr)
	}

	m.attempts++
	delay := m.policy.Delay(m.attempts)
	gen := m.generation
	m.reconnect = m.sched.After(delay, func() { m.attemptReconnect(gen) })
	m.metrics.recordReconnectScheduled()
	m.logger.Info("Reconnect scheduled", "attempt", m.attempts, "max_attempts", m.policy.MaxAttempts, "delay", delay)
	return m.setStateLocked(StateReconnecting, nil)
}

func (m *Manager) attemptReconnect(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.generation || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	newGen, changes := m.beginDialLocked()
	m.mu.Unlock()

	m.notify(changes)
	_ = m.finishDial(context.Background(), newGen)
}

// handleEnvironment re-evaluates reconnection when reachability or visibility changes.
func (m *Manager) handleEnvironment(signal string, up bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	if !up {
		if m.reconnect != nil {
			m.cancelReconnectLocked()
			m.logger.Info("Reconnect paused", "signal", signal, "state", m.state.String())
		}
		m.mu.Unlock()
		return
	}

	if !m.signals.Online() || !m.signals.Visible() {
		m.mu.Unlock()
		return
	}

	retryNow := m.state == StateFailed || (m.state == StateReconnecting && m.reconnect == nil)
	if !retryNow {
		m.mu.Unlock()
		return
	}

	m.attempts = 0
	gen, changes := m.beginDialLocked()
	m.mu.Unlock()

	m.logger.Info("Retrying connection after environment change", "signal", signal)
	m.notify(changes)
	go func() {
		_ = m.finishDial(context.Background(), gen)
	}()
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Cancel()
		m.reconnect = nil
	}
}

// setStateLocked records a transition and returns it for notification, or nil
// if the state did not change.
func (m *Manager) setStateLocked(to State, cause error) []StateChange {
	from := m.state
	if from == to {
		return nil
	}
	m.state = to
	m.metrics.recordState(to)
	if to != StateConnected {
		m.connectedAt = time.Time{}
	}
	return []StateChange{{From: from, To: to, Err: cause}}
}

func (m *Manager) notify(changes []StateChange) {
	if len(changes) == 0 {
		return
	}

	m.listenerMu.Lock()
	ids := make([]uint64, 0, len(m.stateListeners))
	for id := range m.stateListeners {
		ids = append(ids, id)
	}
	listeners := make([]StateListener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, m.stateListeners[id])
	}
	m.listenerMu.Unlock()

	for _, change := range changes {
		m.logger.Debug("State changed", "from", change.From.String(), "to", change.To.String())
		for _, l := range listeners {
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.logger.Error("State listener panicked", "panic", r)
					}
				}()
				l(change)
			}()
		}
	}
}
