// Package cache provides a generic, thread-safe cache that bounds both the
// number of entries and their lifetime.
//
// NewExpiring returns a Cache that evicts the least recently used entry once
// it holds more than maxSize entries, and treats entries older than the TTL as
// absent. The cache starts no goroutine: expired entries are dropped when they
// are touched, and owners sweep the rest by calling RemoveExpired on their own
// schedule.
//
//	ids, err := cache.NewExpiring[struct{}](10000, time.Hour,
//		cache.WithClock[struct{}](clk),
//		cache.WithMetrics[struct{}](registry, "dedup"),
//	)
//	if err != nil {
//		return err
//	}
//	added, _ := ids.Add(messageID, struct{}{}) // false when already seen
//
// Add is an atomic insert-if-absent, which makes the cache usable as a
// "seen before" set shared by concurrent goroutines.
//
// # Observability
//
// Statistics are always collected and available through Stats. WithMetrics
// additionally exports them as Prometheus collectors registered with a
// metric.MetricsRegistry.
//
// # Time
//
// Expiry reads a github.com/benbjohnson/clock Clock. Tests pass a mock clock
// with WithClock and move time forward explicitly.
package cache
