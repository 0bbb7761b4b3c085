package subscription

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ledpush/metric"
)

const metricsService = "subscription"

type subscriptionMetrics struct {
	active   *prometheus.GaugeVec
	restored prometheus.Counter
	failures prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry) (*subscriptionMetrics, error) {
	m := &subscriptionMetrics{
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledpush_subscriptions_active",
			Help: "Logical subscriptions by kind (auto, page, adhoc)",
		}, []string{"kind"}),
		restored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledpush_subscriptions_restored_total",
			Help: "Subscriptions re-created after a reconnect",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledpush_subscriptions_failures_total",
			Help: "Subscribe calls that failed",
		}),
	}

	if err := registry.RegisterGaugeVec(metricsService, "active", m.active); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "restored", m.restored); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "failures", m.failures); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *subscriptionMetrics) recordActive(counts map[string]int) {
	if m != nil {
		for kind, n := range counts {
			m.active.WithLabelValues(kind).Set(float64(n))
		}
	}
}

func (m *subscriptionMetrics) recordRestored(n int) {
	if m != nil && n > 0 {
		m.restored.Add(float64(n))
	}
}

func (m *subscriptionMetrics) recordFailure() {
	if m != nil {
		m.failures.Inc()
	}
}
