package processor

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/c360/ledpush/metric"
)

// Option is a functional option for configuring the Processor
type Option func(*Processor) error

// WithDedupStore replaces the in-memory dedup store.
func WithDedupStore(store DedupStore) Option {
	return func(p *Processor) error {
		if store != nil {
			p.dedup = store
		}
		return nil
	}
}

// WithClock sets the clock used for expiry, timestamps and the sweep.
func WithClock(c clock.Clock) Option {
	return func(p *Processor) error {
		if c != nil {
			p.clock = c
		}
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// WithMetrics registers processor, dedup and dispatch-pool metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Processor) error {
		p.registry = registry
		return nil
	}
}
