package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/ledpush/connection"
	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/pkg/security"
	"github.com/c360/ledpush/processor"
	"github.com/c360/ledpush/subscription"
)

// Transport names accepted in broker.transport
const (
	TransportSTOMP = "stomp"
	TransportNATS  = "nats"
)

// Dedup backends accepted in dedup.backend
const (
	DedupMemory = "memory"
	DedupRedis  = "redis"
)

// Config is the complete client configuration.
type Config struct {
	Broker    BrokerConfig        `json:"broker"`
	Reconnect ReconnectConfig     `json:"reconnect"`
	Processor processor.Config    `json:"processor"`
	Dedup     DedupConfig         `json:"dedup"`
	Topics    subscription.Topics `json:"topics"`
	Metrics   MetricsConfig       `json:"metrics"`
}

// BrokerConfig describes how to reach the message broker.
type BrokerConfig struct {
	URL       string `json:"url"`
	Transport string `json:"transport"` // stomp or nats

	ConnectHeaders map[string]string `json:"connect_headers,omitempty"`
	Login          string            `json:"login,omitempty"`
	Passcode       string            `json:"passcode,omitempty"`
	Host           string            `json:"host,omitempty"` // STOMP virtual host

	TLS security.ClientTLSConfig `json:"tls"`

	HeartbeatIncoming time.Duration `json:"heartbeat_incoming"`
	HeartbeatOutgoing time.Duration `json:"heartbeat_outgoing"`
	HandshakeTimeout  time.Duration `json:"handshake_timeout"`

	// SendRate limits outbound frames per second; 0 disables the limiter.
	SendRate  float64 `json:"send_rate,omitempty"`
	SendBurst int     `json:"send_burst,omitempty"`
}

// ReconnectConfig mirrors connection.ReconnectPolicy.
type ReconnectConfig struct {
	MaxAttempts    int           `json:"max_attempts"`
	InitialDelay   time.Duration `json:"initial_delay"`
	MaxDelay       time.Duration `json:"max_delay"`
	Multiplier     float64       `json:"multiplier"`
	JitterFraction float64       `json:"jitter_fraction"`
}

// Policy converts the section into a connection.ReconnectPolicy.
func (r ReconnectConfig) Policy() connection.ReconnectPolicy {
	return connection.ReconnectPolicy{
		MaxAttempts:    r.MaxAttempts,
		InitialDelay:   r.InitialDelay,
		MaxDelay:       r.MaxDelay,
		Multiplier:     r.Multiplier,
		JitterFraction: r.JitterFraction,
	}
}

// DedupConfig selects where processed message IDs are remembered.
type DedupConfig struct {
	Backend   string `json:"backend"` // memory or redis
	RedisAddr string `json:"redis_addr,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// MetricsConfig controls the Prometheus and health endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// Default returns the built-in configuration every layer is merged onto.
func Default() *Config {
	policy := connection.DefaultReconnectPolicy()
	return &Config{
		Broker: BrokerConfig{
			URL:               "ws://localhost:8080/ws",
			Transport:         TransportSTOMP,
			HeartbeatIncoming: 4 * time.Second,
			HeartbeatOutgoing: 4 * time.Second,
			HandshakeTimeout:  10 * time.Second,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:    policy.MaxAttempts,
			InitialDelay:   policy.InitialDelay,
			MaxDelay:       policy.MaxDelay,
			Multiplier:     policy.Multiplier,
			JitterFraction: policy.JitterFraction,
		},
		Processor: processor.DefaultConfig(),
		Dedup:     DedupConfig{Backend: DedupMemory},
		Topics:    subscription.DefaultTopics(),
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nil config")
	}
	if err := c.Broker.validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "broker")
	}
	if err := c.Reconnect.Policy().Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "reconnect")
	}
	if err := c.Processor.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "processor")
	}
	if err := c.Dedup.validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "dedup")
	}
	if err := c.Topics.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "topics")
	}
	if err := c.Metrics.validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "metrics")
	}
	return nil
}

func (b BrokerConfig) validate() error {
	if b.URL == "" {
		return fmt.Errorf("%w: broker url is required", errors.ErrMissingConfig)
	}
	u, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("%w: broker url: %v", errors.ErrInvalidConfig, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: broker url %q has no host", errors.ErrInvalidConfig, b.URL)
	}

	var schemes []string
	switch b.Transport {
	case TransportSTOMP:
		schemes = []string{"ws", "wss"}
	case TransportNATS:
		schemes = []string{"nats", "tls"}
	default:
		return fmt.Errorf("%w: unknown transport %q", errors.ErrInvalidConfig, b.Transport)
	}
	if !contains(schemes, u.Scheme) {
		return fmt.Errorf("%w: %s transport needs a %s url, got %q",
			errors.ErrInvalidConfig, b.Transport, strings.Join(schemes, " or "), u.Scheme)
	}

	if err := b.TLS.Validate(); err != nil {
		return fmt.Errorf("%w: tls: %v", errors.ErrInvalidConfig, err)
	}

	switch {
	case b.HeartbeatIncoming < 0 || b.HeartbeatOutgoing < 0:
		return fmt.Errorf("%w: heartbeats cannot be negative", errors.ErrInvalidConfig)
	case b.HandshakeTimeout < 0:
		return fmt.Errorf("%w: handshake timeout cannot be negative", errors.ErrInvalidConfig)
	case b.SendRate < 0:
		return fmt.Errorf("%w: send rate cannot be negative", errors.ErrInvalidConfig)
	case b.SendRate > 0 && b.SendBurst < 1:
		return fmt.Errorf("%w: send burst must be at least 1 when send rate is set", errors.ErrInvalidConfig)
	}
	return nil
}

func (d DedupConfig) validate() error {
	switch d.Backend {
	case DedupMemory:
		return nil
	case DedupRedis:
		if d.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis backend", errors.ErrMissingConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown dedup backend %q", errors.ErrInvalidConfig, d.Backend)
	}
}

func (m MetricsConfig) validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("%w: metrics port %d out of range", errors.ErrInvalidConfig, m.Port)
	}
	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("%w: metrics path %q must start with /", errors.ErrInvalidConfig, m.Path)
	}
	return nil
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// String returns a JSON representation with credentials masked.
func (c *Config) String() string {
	redacted := *c
	if redacted.Broker.Passcode != "" {
		redacted.Broker.Passcode = "***"
	}
	if len(c.Broker.ConnectHeaders) > 0 {
		redacted.Broker.ConnectHeaders = make(map[string]string, len(c.Broker.ConnectHeaders))
		for k, v := range c.Broker.ConnectHeaders {
			if isSecretHeader(k) {
				v = "***"
			}
			redacted.Broker.ConnectHeaders[k] = v
		}
	}
	data, _ := json.MarshalIndent(&redacted, "", "  ")
	return string(data)
}

func isSecretHeader(name string) bool {
	name = strings.ToLower(name)
	return name == "authorization" || name == "passcode" || strings.Contains(name, "token")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
