// Package signals abstracts the environment events the messaging client reacts
// to: network reachability, visibility of the embedding view, and navigation
// between views. The connection and subscription managers depend only on Source.
package signals

import "sync"

// Source reports the current environment and notifies on changes. Each On*
// method returns a function that removes the registration.
type Source interface {
	Online() bool
	Visible() bool
	OnOnlineChange(fn func(online bool)) (cancel func())
	OnVisibilityChange(fn func(visible bool)) (cancel func())
	OnRouteChange(fn func(from, to string)) (cancel func())
}

// Static is always online and visible and never emits.
type Static struct{}

// Online implements Source
func (Static) Online() bool { return true }

// Visible implements Source
func (Static) Visible() bool { return true }

// OnOnlineChange implements Source
func (Static) OnOnlineChange(func(bool)) func() { return func() {} }

// OnVisibilityChange implements Source
func (Static) OnVisibilityChange(func(bool)) func() { return func() {} }

// OnRouteChange implements Source
func (Static) OnRouteChange(func(string, string)) func() { return func() {} }

// listeners is a registration list keyed by a monotonically increasing id so that
// cancel functions stay valid after other registrations are removed.
type listeners[F any] struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]F
}

func (l *listeners[F]) add(fn F) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[uint64]F)
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// snapshot returns the registered functions in registration order.
func (l *listeners[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]F, 0, len(l.fns))
	for id := uint64(1); id <= l.nextID; id++ {
		if fn, ok := l.fns[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// Manual is a Source driven programmatically. Embedding applications that own
// the UI loop call SetOnline, SetVisible and Navigate; tests use it to simulate
// network and navigation events. Listeners run on the caller's goroutine.
type Manual struct {
	mu      sync.Mutex
	online  bool
	visible bool
	route   string

	onlineListeners     listeners[func(bool)]
	visibilityListeners listeners[func(bool)]
	routeListeners      listeners[func(string, string)]
}

// NewManual starts online and visible at the given route.
func NewManual(route string) *Manual {
	return &Manual{online: true, visible: true, route: route}
}

// Online implements Source
func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Visible implements Source
func (m *Manual) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// Route returns the current route.
func (m *Manual) Route() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.route
}

// OnOnlineChange implements Source
func (m *Manual) OnOnlineChange(fn func(bool)) func() {
	return m.onlineListeners.add(fn)
}

// OnVisibilityChange implements Source
func (m *Manual) OnVisibilityChange(fn func(bool)) func() {
	return m.visibilityListeners.add(fn)
}

// OnRouteChange implements Source
func (m *Manual) OnRouteChange(fn func(string, string)) func() {
	return m.routeListeners.add(fn)
}

// SetOnline updates reachability and notifies listeners if it changed.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		for _, fn := range m.onlineListeners.snapshot() {
			fn(online)
		}
	}
}

// SetVisible updates visibility and notifies listeners if it changed.
func (m *Manual) SetVisible(visible bool) {
	m.mu.Lock()
	changed := m.visible != visible
	m.visible = visible
	m.mu.Unlock()

	if changed {
		for _, fn := range m.visibilityListeners.snapshot() {
			fn(visible)
		}
	}
}

// Navigate moves to route and notifies listeners with the route being left.
// Navigating to the current route is a no-op.
func (m *Manual) Navigate(route string) {
	m.mu.Lock()
	from := m.route
	if from == route {
		m.mu.Unlock()
		return
	}
	m.route = route
	m.mu.Unlock()

	for _, fn := range m.routeListeners.snapshot() {
		fn(from, route)
	}
}
