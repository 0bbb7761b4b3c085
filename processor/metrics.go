package processor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ledpush/metric"
)

const metricsService = "processor"

type processorMetrics struct {
	messages      *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	evictions     prometheus.Counter
	cacheSize     prometheus.Gauge
	dedupErrors   prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry) (*processorMetrics, error) {
	m := &processorMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledpush_processor_messages_total",
			Help: "Messages seen by the processor, by outcome (processed, duplicate, expired, invalid)",
		}, []string{"outcome"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledpush_processor_handler_errors_total",
			Help: "Handler errors and panics, by message type",
		}, []string{"message_type"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledpush_processor_cache_evictions_total",
			Help: "Cached messages evicted by the size bound",
		}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledpush_processor_cache_size",
			Help: "Messages currently cached",
		}),
		dedupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledpush_processor_dedup_errors_total",
			Help: "Dedup store failures; the message was processed anyway",
		}),
	}

	if err := registry.RegisterCounterVec(metricsService, "messages", m.messages); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricsService, "handler_errors", m.handlerErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "cache_evictions", m.evictions); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(metricsService, "cache_size", m.cacheSize); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "dedup_errors", m.dedupErrors); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *processorMetrics) recordOutcome(outcome string) {
	if m != nil {
		m.messages.WithLabelValues(outcome).Inc()
	}
}

func (m *processorMetrics) recordHandlerError(messageType string) {
	if m != nil {
		m.handlerErrors.WithLabelValues(messageType).Inc()
	}
}

func (m *processorMetrics) recordEvictions(n int) {
	if m != nil && n > 0 {
		m.evictions.Add(float64(n))
	}
}

func (m *processorMetrics) recordCacheSize(n int) {
	if m != nil {
		m.cacheSize.Set(float64(n))
	}
}

func (m *processorMetrics) recordDedupError() {
	if m != nil {
		m.dedupErrors.Inc()
	}
}
