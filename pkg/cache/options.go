package cache

import (
	"github.com/benbjohnson/clock"

	"github.com/c360/ledpush/metric"
)

// Option configures a cache.
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	clock         clock.Clock
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	evictCallback EvictCallback[V]
}

// WithClock sets the clock used for expiry. Defaults to the wall clock.
func WithClock[V any](c clock.Clock) Option[V] {
	return func(o *cacheOptions[V]) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetrics exposes the cache statistics as Prometheus metrics labelled with prefix.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(o *cacheOptions[V]) {
		o.metricsReg = registry
		o.metricsPrefix = prefix
	}
}

// WithEvictionCallback is invoked outside the cache lock for each evicted entry.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(o *cacheOptions[V]) {
		o.evictCallback = callback
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{clock: clock.New()}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}
