package processor

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/c360/ledpush/metric"
	"github.com/c360/ledpush/pkg/cache"
)

// DedupStore remembers processed message IDs.
type DedupStore interface {
	// MarkIfNew records id and reports true if it was not already recorded
	// within window. Check and record must be atomic.
	MarkIfNew(ctx context.Context, id string, window time.Duration) (bool, error)
	// Forget removes id so the next delivery is processed again.
	Forget(ctx context.Context, id string) error
	// Prune drops expired records and returns how many it dropped.
	Prune(ctx context.Context) (int, error)
}

// MemoryDedup is a process-local DedupStore. It keeps at most maxIDs IDs, each
// for the window given at construction; the window passed to MarkIfNew is ignored.
type MemoryDedup struct {
	ids cache.Cache[struct{}]
}

// NewMemoryDedup creates an in-memory store. registry may be nil.
func NewMemoryDedup(maxIDs int, window time.Duration, clk clock.Clock, registry *metric.MetricsRegistry) (*MemoryDedup, error) {
	opts := []cache.Option[struct{}]{cache.WithClock[struct{}](clk)}
	if registry != nil {
		opts = append(opts, cache.WithMetrics[struct{}](registry, "processor_dedup"))
	}
	ids, err := cache.NewExpiring[struct{}](maxIDs, window, opts...)
	if err != nil {
		return nil, err
	}
	return &MemoryDedup{ids: ids}, nil
}

// MarkIfNew implements DedupStore.
func (d *MemoryDedup) MarkIfNew(_ context.Context, id string, _ time.Duration) (bool, error) {
	return d.ids.Add(id, struct{}{})
}

// Forget implements DedupStore.
func (d *MemoryDedup) Forget(_ context.Context, id string) error {
	_, err := d.ids.Delete(id)
	return err
}

// Prune implements DedupStore.
func (d *MemoryDedup) Prune(context.Context) (int, error) {
	return d.ids.RemoveExpired(), nil
}

// Len returns the number of tracked IDs.
func (d *MemoryDedup) Len() int {
	return d.ids.Size()
}
