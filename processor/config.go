package processor

import (
	"fmt"
	"time"

	"github.com/c360/ledpush/errors"
)

// Config holds the processor limits.
type Config struct {
	// MaxCacheSize bounds the message cache; the oldest messages by timestamp go first.
	MaxCacheSize int `json:"max_cache_size"`
	// CleanupInterval is the period of the background sweep.
	CleanupInterval time.Duration `json:"cleanup_interval"`
	// DedupWindow is how long a processed message ID blocks redelivery.
	DedupWindow time.Duration `json:"dedup_window"`
	// MaxTrackedIDs caps the in-memory dedup set.
	MaxTrackedIDs int `json:"max_tracked_ids"`
	// BatchSize is the chunk size of ProcessBatchMessages.
	BatchSize int `json:"batch_size"`
	// QueueSize is the capacity of the dispatch queue.
	QueueSize int `json:"queue_size"`
	// HandlerConcurrency bounds the handlers run at once for a single message.
	HandlerConcurrency int `json:"handler_concurrency"`
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MaxCacheSize:       1000,
		CleanupInterval:    5 * time.Minute,
		DedupWindow:        time.Hour,
		MaxTrackedIDs:      10000,
		BatchSize:          10,
		QueueSize:          1024,
		HandlerConcurrency: 8,
	}
}

// Validate checks that every limit is positive.
func (c Config) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"max_cache_size", c.MaxCacheSize > 0},
		{"cleanup_interval", c.CleanupInterval > 0},
		{"dedup_window", c.DedupWindow > 0},
		{"max_tracked_ids", c.MaxTrackedIDs > 0},
		{"batch_size", c.BatchSize > 0},
		{"queue_size", c.QueueSize > 0},
		{"handler_concurrency", c.HandlerConcurrency > 0},
	}
	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("%w: processor.%s must be positive", errors.ErrInvalidConfig, check.name)
		}
	}
	return nil
}
