package subscription

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/c360/ledpush/metric"
)

// Option is a functional option for configuring the Manager
type Option func(*Manager) error

// WithTopics replaces the default destination templates.
func WithTopics(t Topics) Option {
	return func(m *Manager) error {
		m.topics = t
		return nil
	}
}

// WithClock sets the clock used for creation times.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) error {
		if c != nil {
			m.clock = c
		}
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	}
}

// WithMetrics registers subscription metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) error {
		if registry == nil {
			return nil
		}
		metrics, err := newMetrics(registry)
		if err != nil {
			return err
		}
		m.metrics = metrics
		return nil
	}
}
