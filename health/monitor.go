package health

import (
	"slices"
	"sync"
)

// CheckFunc reports the current health of one component.
type CheckFunc func() Status

// Monitor polls registered checks on demand and aggregates the result.
// It holds no state of its own beyond the registrations.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		checks: make(map[string]CheckFunc),
	}
}

// Register adds or replaces the check for a named component.
func (m *Monitor) Register(name string, check CheckFunc) {
	if check == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checks, name)
}

// Get runs the check for a single component.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	check, ok := m.checks[name]
	m.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	return m.run(name, check), true
}

// Check runs every registered check, sorted by component name, and aggregates them.
func (m *Monitor) Check(systemName string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(m.checks))
	for k, v := range m.checks {
		checks[k] = v
	}
	m.mu.RUnlock()

	slices.Sort(names)
	subStatuses := make([]Status, 0, len(names))
	for _, name := range names {
		subStatuses = append(subStatuses, m.run(name, checks[name]))
	}
	return Aggregate(systemName, subStatuses)
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checks)
}

// run executes a check outside the lock; checks call back into components.
func (m *Monitor) run(name string, check CheckFunc) Status {
	status := check()
	status.Component = name
	return status
}
