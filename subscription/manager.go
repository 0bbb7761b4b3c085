package subscription

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/message"
	"github.com/c360/ledpush/signals"
)

// Connection is the part of connection.Manager the subscription manager uses.
type Connection interface {
	IsConnected() bool
	Subscribe(destination string, callback func(*message.UnifiedMessage), headers map[string]string) (string, error)
	Unsubscribe(handle string) error
}

// Callback receives messages for one logical subscription.
type Callback func(*message.UnifiedMessage)

// User identifies the logged-in user for auto subscriptions.
type User struct {
	UID  int64  `json:"uid"`
	OID  int64  `json:"oid"`
	Name string `json:"name,omitempty"`
}

// Info describes a logical subscription.
type Info struct {
	// ID is stable for the subscription's lifetime, across reconnects.
	ID string `json:"id"`
	// Handle is the current transport handle; it changes on restore and is
	// empty while the transport subscription is being set up.
	Handle             string    `json:"handle"`
	Destination        string    `json:"destination"`
	IsAutoSubscription bool      `json:"isAutoSubscription"`
	Pages              []string  `json:"pages,omitempty"`
	Callbacks          int       `json:"callbacks"`
	CreatedAt          time.Time `json:"createdAt"`
}

type record struct {
	id          string
	destination string
	handle      string
	auto        bool
	headers     map[string]string
	callbacks   map[uint64]Callback
	pages       map[string]struct{}
	createdAt   time.Time
}

func (r *record) kind() string {
	switch {
	case r.auto:
		return "auto"
	case len(r.pages) > 0:
		return "page"
	default:
		return "adhoc"
	}
}

func (r *record) info() Info {
	pages := make([]string, 0, len(r.pages))
	for p := range r.pages {
		pages = append(pages, p)
	}
	slices.Sort(pages)
	return Info{
		ID:                 r.id,
		Handle:             r.handle,
		Destination:        r.destination,
		IsAutoSubscription: r.auto,
		Pages:              pages,
		Callbacks:          len(r.callbacks),
		CreatedAt:          r.createdAt,
	}
}

// Manager keeps the logical subscriptions of one client: auto subscriptions
// derived from the current user and page-scoped ones tied to a view. It
// re-creates transport subscriptions after a reconnect.
type Manager struct {
	topics  Topics
	clock   clock.Clock
	logger  *slog.Logger
	metrics *subscriptionMetrics

	mu             sync.Mutex
	conn           Connection
	user           *User
	records        map[string]*record
	byDestination  map[string]string
	pages          map[string]map[string]struct{}
	nextCallbackID uint64
	routeCancel    func()
}

// New creates a manager. conn may be nil and set later with SetConnection.
func New(conn Connection, opts ...Option) (*Manager, error) {
	m := &Manager{
		topics:        DefaultTopics(),
		clock:         clock.New(),
		logger:        slog.Default(),
		conn:          conn,
		records:       make(map[string]*record),
		byDestination: make(map[string]string),
		pages:         make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.WrapInvalid(err, "SubscriptionManager", "New", "apply option")
		}
	}
	if err := m.topics.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "SubscriptionManager", "New", "validate topics")
	}
	m.logger = m.logger.With("component", "subscription")
	return m, nil
}

// SetConnection replaces the connection used for transport subscriptions.
func (m *Manager) SetConnection(conn Connection) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

// Topics returns the destination templates.
func (m *Manager) Topics() Topics {
	return m.topics
}

func (m *Manager) connection() Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// SubscribeOption configures a single Subscribe call.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	headers map[string]string
	auto    bool
}

// WithHeaders adds headers to the SUBSCRIBE frame. Only the first Subscribe
// to a destination sends headers.
func WithHeaders(headers map[string]string) SubscribeOption {
	return func(c *subscribeConfig) {
		c.headers = headers
	}
}

// Subscribe creates a logical subscription to destination and returns its ID.
// Subscribing again to the same destination returns the existing ID and adds
// callback (if not nil) to its fan-out.
func (m *Manager) Subscribe(destination string, callback Callback, opts ...SubscribeOption) (string, error) {
	cfg := subscribeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return m.subscribe(destination, callback, cfg)
}

func (m *Manager) subscribe(destination string, callback Callback, cfg subscribeConfig) (string, error) {
	const op = "subscription.Subscribe"

	if err := ValidateDestination(destination); err != nil {
		return "", err
	}

	conn := m.connection()
	if conn == nil || !conn.IsConnected() {
		m.metrics.recordFailure()
		return "", errors.New(errors.KindSubscriptionFailed, op, errors.ErrNotConnected)
	}

	m.mu.Lock()
	if id, ok := m.byDestination[destination]; ok {
		rec := m.records[id]
		m.addCallbackLocked(rec, callback)
		if cfg.auto && !rec.auto {
			rec.auto = true
			m.updateGaugesLocked()
		}
		m.mu.Unlock()
		return id, nil
	}

	// The record is visible before the transport call so a concurrent
	// Subscribe to the same destination reuses it.
	rec := &record{
		id:          uuid.NewString(),
		destination: destination,
		auto:        cfg.auto,
		headers:     cfg.headers,
		callbacks:   make(map[uint64]Callback),
		pages:       make(map[string]struct{}),
		createdAt:   m.clock.Now(),
	}
	m.addCallbackLocked(rec, callback)
	m.records[rec.id] = rec
	m.byDestination[destination] = rec.id
	m.mu.Unlock()

	handle, err := conn.Subscribe(destination, m.fanout(rec.id), cfg.headers)
	if err != nil {
		m.mu.Lock()
		m.forgetLocked(rec)
		m.mu.Unlock()
		m.metrics.recordFailure()
		if errors.KindOf(err) == "" {
			err = errors.New(errors.KindSubscriptionFailed, op, err)
		}
		return "", err
	}

	m.mu.Lock()
	if m.records[rec.id] != rec {
		// Unsubscribed while the transport call was in flight.
		m.mu.Unlock()
		_ = conn.Unsubscribe(handle)
		return "", errors.New(errors.KindSubscriptionFailed, op, fmt.Errorf("%w: unsubscribed during setup", errors.ErrSubscriptionFailed))
	}
	var superseded string
	if rec.handle == "" {
		rec.handle = handle
	} else {
		// Restored while this call was in flight; the restored handle wins.
		superseded = handle
	}
	m.updateGaugesLocked()
	m.mu.Unlock()

	if superseded != "" {
		_ = conn.Unsubscribe(superseded)
	}
	m.logger.Debug("Subscribed", "id", rec.id, "destination", destination, "auto", cfg.auto)
	return rec.id, nil
}

func (m *Manager) addCallbackLocked(rec *record, callback Callback) {
	if callback == nil {
		return
	}
	m.nextCallbackID++
	rec.callbacks[m.nextCallbackID] = callback
}

// fanout delivers to every callback of the subscription in registration order.
func (m *Manager) fanout(id string) func(*message.UnifiedMessage) {
	return func(msg *message.UnifiedMessage) {
		m.mu.Lock()
		rec, ok := m.records[id]
		if !ok {
			m.mu.Unlock()
			return
		}
		keys := make([]uint64, 0, len(rec.callbacks))
		for k := range rec.callbacks {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		callbacks := make([]Callback, len(keys))
		for i, k := range keys {
			callbacks[i] = rec.callbacks[k]
		}
		m.mu.Unlock()

		for _, cb := range callbacks {
			m.safeCall(id, cb, msg)
		}
	}
}

func (m *Manager) safeCall(id string, cb Callback, msg *message.UnifiedMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Subscription callback panicked", "id", id, "message_id", msg.MessageID, "panic", r)
		}
	}()
	cb(msg)
}

// forgetLocked removes rec from every index. Must be called with mu held.
func (m *Manager) forgetLocked(rec *record) {
	if m.records[rec.id] != rec {
		return
	}
	delete(m.records, rec.id)
	delete(m.byDestination, rec.destination)
	for page := range rec.pages {
		if ids := m.pages[page]; ids != nil {
			delete(ids, rec.id)
			if len(ids) == 0 {
				delete(m.pages, page)
			}
		}
	}
	m.updateGaugesLocked()
}

// Unsubscribe removes the logical subscription and its transport
// subscription. Unknown IDs are ignored.
func (m *Manager) Unsubscribe(id string) error {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	m.forgetLocked(rec)
	conn, handle := m.conn, rec.handle
	m.mu.Unlock()

	m.logger.Debug("Unsubscribed", "id", id, "destination", rec.destination)
	if conn == nil || handle == "" {
		return nil
	}
	return conn.Unsubscribe(handle)
}

// UnsubscribeByDestination is Unsubscribe by destination.
func (m *Manager) UnsubscribeByDestination(destination string) error {
	m.mu.Lock()
	id, ok := m.byDestination[destination]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.Unsubscribe(id)
}

// SubscribeForPage subscribes to destination and ties the subscription to page.
func (m *Manager) SubscribeForPage(page, destination string, callback Callback, opts ...SubscribeOption) (string, error) {
	id, err := m.Subscribe(destination, callback, opts...)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return "", errors.New(errors.KindSubscriptionFailed, "subscription.SubscribeForPage",
			fmt.Errorf("%w: subscription removed", errors.ErrSubscriptionFailed))
	}
	rec.pages[page] = struct{}{}
	if m.pages[page] == nil {
		m.pages[page] = make(map[string]struct{})
	}
	m.pages[page][id] = struct{}{}
	m.updateGaugesLocked()
	return id, nil
}

// UnsubscribeForPage releases every subscription tied to page. A subscription
// still used by another page, or an auto subscription, only loses the
// association. It returns the number of subscriptions removed.
func (m *Manager) UnsubscribeForPage(page string) int {
	m.mu.Lock()
	ids := m.pages[page]
	delete(m.pages, page)
	var remove []string
	for id := range ids {
		rec, ok := m.records[id]
		if !ok {
			continue
		}
		delete(rec.pages, page)
		if len(rec.pages) == 0 && !rec.auto {
			remove = append(remove, id)
		}
	}
	m.updateGaugesLocked()
	m.mu.Unlock()

	for _, id := range remove {
		if err := m.Unsubscribe(id); err != nil {
			m.logger.Warn("Page unsubscribe failed", "page", page, "id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		m.logger.Debug("Page subscriptions released", "page", page, "removed", len(remove))
	}
	return len(remove)
}

// PageSubscriptions returns the IDs tied to page.
func (m *Manager) PageSubscriptions(page string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pages[page]))
	for id := range m.pages[page] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// WatchRoutes releases a page's subscriptions whenever src reports that the
// page was left. It replaces any previous watch.
func (m *Manager) WatchRoutes(src signals.Source) {
	cancel := src.OnRouteChange(func(from, to string) {
		if from != "" && from != to {
			m.UnsubscribeForPage(from)
		}
	})

	m.mu.Lock()
	prev := m.routeCancel
	m.routeCancel = cancel
	m.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// SetUser sets the current user. A new user gets the personal queue, org
// topic and system topic as auto subscriptions if the connection is up;
// otherwise they are created by the next HandleConnected. A nil user clears
// every subscription.
func (m *Manager) SetUser(u *User) error {
	m.mu.Lock()
	prev := m.user
	if u == nil {
		m.user = nil
		m.mu.Unlock()
		m.logger.Info("User cleared, removing all subscriptions")
		m.ClearAll()
		return nil
	}
	next := *u
	m.user = &next
	m.mu.Unlock()

	if prev != nil && prev.UID == next.UID && prev.OID == next.OID {
		return nil
	}
	if prev != nil {
		m.dropAuto()
	}

	m.logger.Info("User set", "uid", next.UID, "oid", next.OID)
	if conn := m.connection(); conn == nil || !conn.IsConnected() {
		m.logger.Debug("Not connected, auto subscriptions deferred", "uid", next.UID)
		return nil
	}
	return m.ensureAuto()
}

// CurrentUser returns a copy of the current user, or nil.
func (m *Manager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// ensureAuto subscribes to the current user's auto destinations. Existing
// subscriptions are reused.
func (m *Manager) ensureAuto() error {
	u := m.CurrentUser()
	if u == nil {
		return nil
	}
	dests, err := m.topics.AutoDestinations(*u)
	if err != nil {
		return err
	}
	var errs []error
	for _, dest := range dests {
		if _, err := m.subscribe(dest, nil, subscribeConfig{auto: true}); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// dropAuto removes auto subscriptions, keeping any that a page still uses.
func (m *Manager) dropAuto() {
	m.mu.Lock()
	var remove []string
	for id, rec := range m.records {
		if !rec.auto {
			continue
		}
		if len(rec.pages) > 0 {
			rec.auto = false
			continue
		}
		remove = append(remove, id)
	}
	m.updateGaugesLocked()
	m.mu.Unlock()

	for _, id := range remove {
		if err := m.Unsubscribe(id); err != nil {
			m.logger.Warn("Auto unsubscribe failed", "id", id, "error", err)
		}
	}
}

// HandleConnected restores every known subscription and then creates any
// missing auto subscriptions. Call it on every transition into connected.
func (m *Manager) HandleConnected() error {
	_, restoreErr := m.RestoreSubscriptions()
	return stderrors.Join(restoreErr, m.ensureAuto())
}

// RestoreSubscriptions re-creates the transport subscription of every logical
// subscription, keeping IDs, callbacks and flags. It returns how many were restored.
func (m *Manager) RestoreSubscriptions() (int, error) {
	const op = "subscription.RestoreSubscriptions"

	type target struct {
		id, destination, oldHandle string
		headers                    map[string]string
	}

	m.mu.Lock()
	conn := m.conn
	targets := make([]target, 0, len(m.records))
	for _, rec := range m.records {
		targets = append(targets, target{rec.id, rec.destination, rec.handle, rec.headers})
	}
	m.mu.Unlock()

	if len(targets) == 0 {
		return 0, nil
	}
	if conn == nil || !conn.IsConnected() {
		return 0, errors.New(errors.KindSubscriptionFailed, op, errors.ErrNotConnected)
	}
	slices.SortFunc(targets, func(a, b target) int {
		return strings.Compare(a.destination, b.destination)
	})

	restored := 0
	var errs []error
	for _, t := range targets {
		if t.oldHandle != "" {
			// Handles from a lost session are already unknown to the connection.
			_ = conn.Unsubscribe(t.oldHandle)
		}
		handle, err := conn.Subscribe(t.destination, m.fanout(t.id), t.headers)
		if err != nil {
			m.logger.Warn("Restore failed", "id", t.id, "destination", t.destination, "error", err)
			errs = append(errs, err)
			continue
		}

		m.mu.Lock()
		rec, ok := m.records[t.id]
		var superseded string
		if ok {
			if rec.handle != t.oldHandle {
				// A first Subscribe completed meanwhile.
				superseded = rec.handle
			}
			rec.handle = handle
		}
		m.mu.Unlock()
		if !ok {
			_ = conn.Unsubscribe(handle)
			continue
		}
		if superseded != "" {
			_ = conn.Unsubscribe(superseded)
		}
		restored++
	}

	m.metrics.recordRestored(restored)
	m.logger.Info("Subscriptions restored", "restored", restored, "failed", len(errs))
	return restored, stderrors.Join(errs...)
}

// ClearAll removes every subscription, auto and page-scoped alike.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	conn := m.conn
	handles := make([]string, 0, len(m.records))
	for _, rec := range m.records {
		if rec.handle != "" {
			handles = append(handles, rec.handle)
		}
	}
	m.records = make(map[string]*record)
	m.byDestination = make(map[string]string)
	m.pages = make(map[string]map[string]struct{})
	m.updateGaugesLocked()
	m.mu.Unlock()

	if conn == nil {
		return
	}
	for _, h := range handles {
		if err := conn.Unsubscribe(h); err != nil {
			m.logger.Warn("Unsubscribe failed during clear", "handle", h, "error", err)
		}
	}
}

// Destroy stops route watching, forgets the user and removes every subscription.
func (m *Manager) Destroy() {
	m.mu.Lock()
	cancel := m.routeCancel
	m.routeCancel = nil
	m.user = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.ClearAll()
}

// IsSubscribed reports whether a logical subscription to destination exists.
func (m *Manager) IsSubscribed(destination string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byDestination[destination]
	return ok
}

// Get returns the subscription with the given ID.
func (m *Manager) Get(id string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Info{}, false
	}
	return rec.info(), true
}

// GetSubscriptions returns every logical subscription ordered by destination.
func (m *Manager) GetSubscriptions() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.info())
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b Info) int {
		return strings.Compare(a.Destination, b.Destination)
	})
	return out
}

// Count returns the number of logical subscriptions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Manager) updateGaugesLocked() {
	if m.metrics == nil {
		return
	}
	counts := map[string]int{"auto": 0, "page": 0, "adhoc": 0}
	for _, rec := range m.records {
		counts[rec.kind()]++
	}
	m.metrics.recordActive(counts)
}
