// Package ledpush is a real-time push client for broker-delivered user
// notifications, alerts and device, task and batch updates.
//
// # Architecture
//
// Three cooperating parts sit behind one composition root:
//
//	┌──────────────────────────────────────────────┐
//	│               realtime.Client                │  config, wiring, ack
//	├───────────────┬───────────────┬──────────────┤
//	│  connection   │   processor   │ subscription │
//	│  Manager      │   Processor   │ Manager      │
//	│  state,       │   validate,   │ user autos,  │
//	│  reconnect,   │   dedup, ttl, │ page scopes, │
//	│  send         │   cache,      │ restore      │
//	│               │   dispatch    │              │
//	├───────────────┴───────────────┴──────────────┤
//	│   stompws (STOMP over WebSocket) │ natsclient │  transports
//	└──────────────────────────────────────────────┘
//
// The connection Manager owns the single broker session and its state machine
// (disconnected, connecting, connected, reconnecting, failed). Dropped sessions
// are retried with exponential backoff; online and visibility signals from a
// signals.Source trigger an immediate attempt.
//
// The processor validates each inbound UnifiedMessage, drops duplicates and
// expired messages, caches the rest in a bounded cache, and dispatches them to
// type handlers and global handlers on a worker pool.
//
// The subscription Manager records every logical subscription so that it can
// be restored after a reconnect, creates the auto subscriptions of the
// current user, and releases page-scoped subscriptions on route changes.
//
// # Packages
//
//   - config: layered JSON, HuJSON and YAML configuration with LEDPUSH_ overrides
//   - connection: connection lifecycle, reconnection, Dialer and Session interfaces
//   - stompws, natsclient: Dialer implementations
//   - message: the wire envelope, payloads and decoding
//   - processor, processor/redisdedup: processing pipeline and dedup stores
//   - subscription: subscription bookkeeping and topic templates
//   - signals: online, visibility and route signals
//   - realtime: composition root
//   - errors, health, metric: error classification, health and Prometheus metrics
//   - pkg/retry, pkg/schedule, pkg/worker, pkg/cache, pkg/tlsutil: shared utilities
//
// # Running
//
//	ledpush --config ledpush.yaml --uid 7 --oid 3 --subscribe /topic/device/9
//	ledpush --config ledpush.yaml --validate
package ledpush
