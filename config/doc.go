// Package config loads and validates ledpush client configuration.
//
// A Config has six sections: broker, reconnect, processor, dedup, topics and
// metrics. Default returns a configuration that connects to a local STOMP
// broker with in-memory deduplication.
//
// # Loading
//
// Loader merges, in order: the defaults, each file layer, then environment
// overrides. Layers are deep-merged as maps, so a layer only needs the keys
// it changes:
//
//	loader := config.NewLoader()
//	loader.AddLayer("ledpush.yaml")
//	loader.AddLayer("ledpush.local.hujson") // overrides the yaml
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// The format comes from the extension: .json, .hujson or .jsonc (JSON with
// comments and trailing commas), and .yaml or .yml. Unknown keys are
// rejected.
//
// Durations accept Go duration strings ("4s", "1h30m"), a day suffix ("7d")
// or integer nanoseconds.
//
// # Environment
//
// Every scalar, duration and header setting can be overridden by
// LEDPUSH_<SECTION>_<KEY>, for example
// LEDPUSH_BROKER_URL, LEDPUSH_RECONNECT_MAX_ATTEMPTS or
// LEDPUSH_PROCESSOR_DEDUP_WINDOW. Connect headers use
// LEDPUSH_BROKER_CONNECT_HEADERS="Authorization=Bearer x,tenant=acme".
// The nested broker.tls block is set from files only.
//
// # Validation
//
// Validate checks the broker URL scheme against the transport (ws or wss for
// stomp, nats or tls for nats), the numeric ranges of every section, and that
// every topic template renders to a valid destination.
package config
