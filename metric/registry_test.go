package metric

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/health"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("test-service", "test_counter", counter))
	counter.Add(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(counter))
	count, err := testutil.GatherAndCount(registry.PrometheusRegistry(), "test_counter")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	g1 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "first"})
	g2 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "first"})

	require.NoError(t, registry.RegisterGauge("svc", "dup_gauge", g1))

	err := registry.RegisterGauge("svc", "dup_gauge", g2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same collector name under another service collides inside prometheus
	err = registry.RegisterGauge("other", "dup_gauge", g2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Vectors(t *testing.T) {
	registry := NewMetricsRegistry()

	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cv_total", Help: "cv"}, []string{"kind"})
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "gv", Help: "gv"}, []string{"state"})
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "hv_seconds", Help: "hv"}, []string{"status"})
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "h_seconds", Help: "h"})

	require.NoError(t, registry.RegisterCounterVec("svc", "cv", cv))
	require.NoError(t, registry.RegisterGaugeVec("svc", "gv", gv))
	require.NoError(t, registry.RegisterHistogramVec("svc", "hv", hv))
	require.NoError(t, registry.RegisterHistogram("svc", "h", h))

	cv.WithLabelValues("invalid").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(cv.WithLabelValues("invalid")))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gone_total", Help: "x"})
	require.NoError(t, registry.RegisterCounter("svc", "gone", counter))

	assert.True(t, registry.Unregister("svc", "gone"))
	assert.False(t, registry.Unregister("svc", "gone"))

	// Can register again once removed
	require.NoError(t, registry.RegisterCounter("svc", "gone", counter))
}

func TestMetricsRegistry_UnregisterService(t *testing.T) {
	registry := NewMetricsRegistry()

	for i := 0; i < 3; i++ {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: fmt.Sprintf("svc_c%d", i), Help: "x"})
		require.NoError(t, registry.RegisterCounter("svc", fmt.Sprintf("c%d", i), c))
	}
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "svc2_c", Help: "x"})
	require.NoError(t, registry.RegisterCounter("svc2", "c", other))

	assert.Equal(t, 3, registry.UnregisterService("svc"))
	assert.True(t, registry.Unregister("svc2", "c"))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: fmt.Sprintf("concurrent_%d", i), Help: "x"})
			errs <- registry.RegisterCounter("svc", fmt.Sprintf("c%d", i), c)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	registry := NewMetricsRegistry()
	status := health.NewUnhealthy("ledpush", "down")
	server := NewServer(0, "", registry, func() health.Status { return status })

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var got health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "down", got.Message)

	status = health.NewHealthy("ledpush", "up")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	registry := NewMetricsRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "served_total", Help: "x"})
	require.NoError(t, registry.RegisterCounter("svc", "served", counter))
	counter.Inc()

	server := NewServer(0, "/metrics", registry, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "served_total 1")
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer(0, "", nil, nil)
	err := server.Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	assert.NoError(t, server.Stop(0))
}
