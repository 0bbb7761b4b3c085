package realtime

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/c360/ledpush/connection"
	"github.com/c360/ledpush/metric"
	"github.com/c360/ledpush/processor"
	"github.com/c360/ledpush/signals"
)

// Option is a functional option for configuring the Client
type Option func(*Client) error

// WithDialer replaces the transport selected by broker.transport.
func WithDialer(d connection.Dialer) Option {
	return func(c *Client) error {
		c.dialer = d
		return nil
	}
}

// WithDedupStore replaces the dedup backend selected by dedup.backend.
func WithDedupStore(store processor.DedupStore) Option {
	return func(c *Client) error {
		c.dedup = store
		return nil
	}
}

// WithSignals sets the environment signal source. Route changes from it
// release page subscriptions.
func WithSignals(src signals.Source) Option {
	return func(c *Client) error {
		c.signals = src
		return nil
	}
}

// WithClock sets the clock shared by every component.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) error {
		if clk != nil {
			c.clock = clk
		}
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics registers every component's metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Client) error {
		c.registry = registry
		return nil
	}
}
