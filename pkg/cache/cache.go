package cache

import (
	"fmt"

	"github.com/c360/ledpush/errors"
)

// Cache is a bounded, expiring key/value store.
type Cache[V any] interface {
	// Get returns the live value for key and marks it recently used.
	Get(key string) (V, bool)

	// Set stores value under key with the cache's TTL. It returns true when a
	// new entry was created and false when an existing one was replaced.
	Set(key string, value V) (bool, error)

	// Add stores value only when key is absent or expired. It reports whether
	// the value was stored. Check and insert happen under one lock.
	Add(key string, value V) (bool, error)

	// Delete removes key and reports whether it was present.
	Delete(key string) (bool, error)

	// Clear removes every entry without invoking the eviction callback.
	Clear()

	// Size counts stored entries, including expired ones not yet removed.
	Size() int

	// Keys returns live keys, most recently used first.
	Keys() []string

	// RemoveExpired drops every expired entry and returns how many it dropped.
	RemoveExpired() int

	// Stats returns the cache's statistics.
	Stats() *Statistics
}

// EvictCallback is called with each entry removed by capacity or expiry.
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(fmt.Errorf("empty key"), "cache", "validateKey", "key validation")
	}
	return nil
}
