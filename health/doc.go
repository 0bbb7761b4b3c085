// Package health reports component health for the messaging client.
//
// A Status is healthy, degraded or unhealthy. Components expose a CheckFunc and
// the Monitor aggregates them on demand: any unhealthy sub-status makes the whole
// client unhealthy, otherwise any degraded one makes it degraded.
//
//	monitor := health.NewMonitor()
//	monitor.Register("connection", conn.Health)
//	monitor.Register("processor", proc.Health)
//	status := monitor.Check("ledpush")
//
// FromConnectionState maps connection states: connected is healthy, connecting and
// reconnecting are degraded, anything else is unhealthy. Error text attached to a
// status always goes through SanitizeErrorMessage, which strips URLs, paths,
// addresses, ports and credentials such as STOMP passcodes.
package health
