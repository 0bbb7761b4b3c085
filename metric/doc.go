// Package metric provides the Prometheus registry shared by ledpush components and
// the HTTP server that exposes it.
//
// Components never register with the global Prometheus registry. Each one receives
// a *MetricsRegistry, builds its collectors and registers them under its own
// service name so duplicate registrations surface as errors instead of panics:
//
//	registry := metric.NewMetricsRegistry()
//	received := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "ledpush_processor_messages_received_total",
//	    Help: "Messages handed to the processor",
//	})
//	if err := registry.RegisterCounter("processor", "messages_received", received); err != nil {
//	    return err
//	}
//
// The Server serves the registry at a configurable path (default /metrics) and a
// JSON /health endpoint backed by a health.Status function. It answers 503 when
// the reported status is unhealthy.
package metric
