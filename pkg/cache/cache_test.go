package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/metric"
)

func newTestCache(t *testing.T, maxSize int, ttl time.Duration, opts ...Option[string]) (Cache[string], *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	c, err := NewExpiring[string](maxSize, ttl, append([]Option[string]{WithClock[string](clk)}, opts...)...)
	require.NoError(t, err)
	return c, clk
}

func TestNewExpiring_Validation(t *testing.T) {
	_, err := NewExpiring[string](0, time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewExpiring[string](10, 0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestBasicOperations(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)

	_, ok := c.Get("key1")
	assert.False(t, ok)

	created, err := c.Set("key1", "value1")
	require.NoError(t, err)
	assert.True(t, created)

	v, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", v)

	created, err = c.Set("key1", "value1_updated")
	require.NoError(t, err)
	assert.False(t, created)
	v, _ = c.Get("key1")
	assert.Equal(t, "value1_updated", v)

	deleted, err := c.Delete("key1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = c.Delete("key1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = c.Set("", "x")
	assert.True(t, errors.IsInvalid(err))
}

func TestAdd_OnlyWhenAbsent(t *testing.T) {
	c, clk := newTestCache(t, 10, time.Minute)

	added, err := c.Add("m1", "first")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = c.Add("m1", "second")
	require.NoError(t, err)
	assert.False(t, added)
	v, _ := c.Get("m1")
	assert.Equal(t, "first", v)

	clk.Add(time.Minute)
	added, err = c.Add("m1", "third")
	require.NoError(t, err)
	assert.True(t, added, "expired entries count as absent")
	v, _ = c.Get("m1")
	assert.Equal(t, "third", v)
}

func TestAdd_ConcurrentSingleWinner(t *testing.T) {
	c, _ := newTestCache(t, 100, time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if added, _ := c.Add("same", "v"); added {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, _ := newTestCache(t, 3, time.Hour, WithEvictionCallback[string](func(key string, _ string) {
		evicted = append(evicted, key)
	}))

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Set(k, k)
		require.NoError(t, err)
	}
	_, _ = c.Get("a")
	_, err := c.Set("d", "d")
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"d", "a", "c"}, c.Keys())
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestExpiry(t *testing.T) {
	c, clk := newTestCache(t, 10, 10*time.Second)

	_, _ = c.Set("old", "1")
	clk.Add(6 * time.Second)
	_, _ = c.Set("new", "2")

	clk.Add(5 * time.Second)
	_, ok := c.Get("old")
	assert.False(t, ok)
	assert.Equal(t, []string{"new"}, c.Keys())

	clk.Add(5 * time.Second)
	assert.Equal(t, 1, c.Size(), "expired entries stay until swept")
	assert.Equal(t, 1, c.RemoveExpired())
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.RemoveExpired())
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)
	_, _ = c.Set("a", "1")
	_, _ = c.Set("b", "2")
	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Keys())
}

func TestStatistics(t *testing.T) {
	c, clk := newTestCache(t, 10, time.Minute)

	_, _ = c.Set("a", "1")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")
	clk.Add(30 * time.Second)

	summary := c.Stats().Summary()
	assert.Equal(t, int64(1), summary.Hits)
	assert.Equal(t, int64(1), summary.Misses)
	assert.Equal(t, int64(1), summary.Sets)
	assert.Equal(t, int64(1), summary.CurrentSize)
	assert.InDelta(t, 0.5, summary.HitRatio, 0.001)
	assert.Equal(t, 30*time.Second, summary.Uptime)

	c.Stats().Reset()
	assert.Equal(t, int64(0), c.Stats().Hits())
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, _ := newTestCache(t, 1, time.Minute, WithMetrics[string](registry, "dedup"))

	_, _ = c.Set("a", "1")
	_, _ = c.Set("b", "2")
	_, _ = c.Get("b")

	m := c.(*expiringCache[string]).metrics
	require.NotNil(t, m)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sets))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.size))

	_, err := NewExpiring[string](1, time.Minute, WithMetrics[string](registry, "dedup"))
	assert.Error(t, err, "duplicate registration")
}
