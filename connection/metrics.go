package connection

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ledpush/metric"
)

const metricsService = "connection"

type managerMetrics struct {
	state               prometheus.Gauge
	connectAttempts     prometheus.Counter
	reconnectsScheduled prometheus.Counter
	failures            *prometheus.CounterVec
	framesReceived      prometheus.Counter
	framesDropped       *prometheus.CounterVec
	sends               *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) (*managerMetrics, error) {
	m := &managerMetrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledpush_connection_state",
			Help: "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=failed)",
		}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledpush_connection_connect_attempts_total",
			Help: "Dial attempts, explicit and automatic",
		}),
		reconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledpush_connection_reconnects_scheduled_total",
			Help: "Reconnect timers scheduled after an unexpected loss",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledpush_connection_failures_total",
			Help: "Connection failures by cause",
		}, []string{"cause"}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledpush_connection_frames_received_total",
			Help: "Inbound frames on live subscriptions",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledpush_connection_frames_dropped_total",
			Help: "Inbound frames dropped before dispatch, by error kind",
		}, []string{"kind"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledpush_connection_sends_total",
			Help: "Outbound sends by result",
		}, []string{"result"}),
	}

	if err := registry.RegisterGauge(metricsService, "state", m.state); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "connect_attempts", m.connectAttempts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "reconnects_scheduled", m.reconnectsScheduled); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricsService, "failures", m.failures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "frames_received", m.framesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricsService, "frames_dropped", m.framesDropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricsService, "sends", m.sends); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *managerMetrics) recordState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}

func (m *managerMetrics) recordAttempt() {
	if m != nil {
		m.connectAttempts.Inc()
	}
}

func (m *managerMetrics) recordReconnectScheduled() {
	if m != nil {
		m.reconnectsScheduled.Inc()
	}
}

func (m *managerMetrics) recordFailure(cause string) {
	if m != nil {
		m.failures.WithLabelValues(cause).Inc()
	}
}

func (m *managerMetrics) recordFrame() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *managerMetrics) recordDropped(kind string) {
	if m != nil {
		m.framesDropped.WithLabelValues(kind).Inc()
	}
}

func (m *managerMetrics) recordSend(result string) {
	if m != nil {
		m.sends.WithLabelValues(result).Inc()
	}
}
