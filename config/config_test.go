package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/pkg/security"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, TransportSTOMP, cfg.Broker.Transport)
	assert.Equal(t, 4*time.Second, cfg.Broker.HeartbeatIncoming)
	assert.Equal(t, 4*time.Second, cfg.Broker.HeartbeatOutgoing)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 2.0, cfg.Reconnect.Multiplier)
	assert.Equal(t, 0.25, cfg.Reconnect.JitterFraction)
	assert.Equal(t, 1000, cfg.Processor.MaxCacheSize)
	assert.Equal(t, 5*time.Minute, cfg.Processor.CleanupInterval)
	assert.Equal(t, DedupMemory, cfg.Dedup.Backend)
	assert.Equal(t, "/app/message/ack", cfg.Topics.AckDestination)
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeFile(t, "ledpush.json", `{
		"broker": {"url": "wss://push.example.com/ws", "login": "svc"},
		"reconnect": {"initial_delay": "2s", "max_attempts": 3},
		"processor": {"max_cache_size": 50, "dedup_window": "7d"}
	}`)

	loader := NewLoader()
	loader.SetEnvPrefix("")
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://push.example.com/ws", cfg.Broker.URL)
	assert.Equal(t, "svc", cfg.Broker.Login)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 50, cfg.Processor.MaxCacheSize)
	assert.Equal(t, 7*24*time.Hour, cfg.Processor.DedupWindow)

	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 4*time.Second, cfg.Broker.HeartbeatIncoming)
	assert.Equal(t, 10000, cfg.Processor.MaxTrackedIDs)
	assert.Equal(t, "/topic/system", cfg.Topics.SystemTopic)
}

func TestLoader_HuJSON(t *testing.T) {
	path := writeFile(t, "ledpush.hujson", `{
		// local broker
		"broker": {
			"url": "ws://127.0.0.1:61614/stomp",
			"heartbeat_incoming": 10000000000, /* nanoseconds */
		},
	}`)

	loader := NewLoader()
	loader.SetEnvPrefix("")
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:61614/stomp", cfg.Broker.URL)
	assert.Equal(t, 10*time.Second, cfg.Broker.HeartbeatIncoming)
}

func TestLoader_LayersMerge(t *testing.T) {
	base := writeFile(t, "base.json", `{
		"broker": {"url": "ws://base:8080/ws", "connect_headers": {"tenant": "acme"}},
		"metrics": {"enabled": true, "port": 9100}
	}`)
	override := writeFile(t, "override.yaml", `
broker:
  url: nats://nats:4222
  transport: nats
topics:
  system_topic: /topic/broadcast
dedup:
  backend: redis
  redis_addr: redis:6379
`)

	loader := NewLoader()
	loader.SetEnvPrefix("")
	loader.AddLayer(base)
	loader.AddLayer(override)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://nats:4222", cfg.Broker.URL)
	assert.Equal(t, TransportNATS, cfg.Broker.Transport)
	assert.Equal(t, map[string]string{"tenant": "acme"}, cfg.Broker.ConnectHeaders, "nested keys from the base survive")
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.Equal(t, "/topic/broadcast", cfg.Topics.SystemTopic)
	assert.Equal(t, "/topic/org/{orgId}", cfg.Topics.OrgTopic)
	assert.Equal(t, DedupRedis, cfg.Dedup.Backend)
}

func TestLoader_EnvOverrides(t *testing.T) {
	path := writeFile(t, "ledpush.yml", "broker:\n  url: ws://file:8080/ws\n")

	t.Setenv("LEDPUSH_BROKER_URL", "wss://env.example.com/ws")
	t.Setenv("LEDPUSH_BROKER_PASSCODE", "secret")
	t.Setenv("LEDPUSH_BROKER_CONNECT_HEADERS", "Authorization=Bearer abc, tenant=acme")
	t.Setenv("LEDPUSH_RECONNECT_MAX_DELAY", "1m")
	t.Setenv("LEDPUSH_RECONNECT_MULTIPLIER", "1.5")
	t.Setenv("LEDPUSH_PROCESSOR_MAX_CACHE_SIZE", "25")
	t.Setenv("LEDPUSH_METRICS_ENABLED", "true")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://env.example.com/ws", cfg.Broker.URL)
	assert.Equal(t, "secret", cfg.Broker.Passcode)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc", "tenant": "acme"}, cfg.Broker.ConnectHeaders)
	assert.Equal(t, time.Minute, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 1.5, cfg.Reconnect.Multiplier)
	assert.Equal(t, 25, cfg.Processor.MaxCacheSize)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoader_Errors(t *testing.T) {
	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("LEDPUSH_PROCESSOR_BATCH_SIZE", "ten")
		_, err := NewLoader().Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LEDPUSH_PROCESSOR_BATCH_SIZE")
	})

	t.Run("unknown key", func(t *testing.T) {
		path := writeFile(t, "typo.json", `{"broker": {"ulr": "ws://x/ws"}}`)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeFile(t, "dur.json", `{"reconnect": {"max_delay": "soon"}}`)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reconnect.max_delay")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, "ledpush.toml", `url = "x"`)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
	})

	t.Run("validation", func(t *testing.T) {
		path := writeFile(t, "bad.json", `{"broker": {"url": "http://x/ws"}}`)
		loader := NewLoader()
		loader.EnableValidation(true)
		_, err := loader.LoadFile(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Broker.URL = "" }},
		{"stomp with nats url", func(c *Config) { c.Broker.URL = "nats://localhost:4222" }},
		{"nats with ws url", func(c *Config) { c.Broker.Transport = TransportNATS }},
		{"unknown transport", func(c *Config) { c.Broker.Transport = "mqtt" }},
		{"url without host", func(c *Config) { c.Broker.URL = "ws:///ws" }},
		{"negative heartbeat", func(c *Config) { c.Broker.HeartbeatOutgoing = -time.Second }},
		{"rate without burst", func(c *Config) { c.Broker.SendRate = 10 }},
		{"tls min version", func(c *Config) {
			c.Broker.TLS.Enabled = true
			c.Broker.TLS.MinVersion = "1.1"
		}},
		{"mtls without key", func(c *Config) {
			c.Broker.TLS.Enabled = true
			c.Broker.TLS.MTLS = security.ClientMTLSConfig{Enabled: true, CertFile: "client.pem"}
		}},
		{"max delay below initial", func(c *Config) { c.Reconnect.MaxDelay = time.Millisecond }},
		{"jitter above one", func(c *Config) { c.Reconnect.JitterFraction = 1.5 }},
		{"zero cache", func(c *Config) { c.Processor.MaxCacheSize = 0 }},
		{"redis without addr", func(c *Config) { c.Dedup.Backend = DedupRedis }},
		{"unknown dedup", func(c *Config) { c.Dedup.Backend = "sqlite" }},
		{"bad topic template", func(c *Config) { c.Topics.DeviceTopic = "/device/{deviceId}" }},
		{"metrics port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 70000
		}},
		{"metrics path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	cfg := Default()
	cfg.Broker.Transport = TransportNATS
	cfg.Broker.URL = "tls://nats.example.com:4222"
	assert.NoError(t, cfg.Validate())

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), errors.ErrMissingConfig)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("reconnect:\n  max_attempts: 0\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Reconnect.InitialDelay)

	_, err = Parse([]byte("{"), FormatJSON)
	assert.Error(t, err)

	_, err = Parse([]byte("{}"), "ini")
	assert.Error(t, err)
}

func TestConfig_StringRedacts(t *testing.T) {
	cfg := Default()
	cfg.Broker.Passcode = "hunter2"
	cfg.Broker.ConnectHeaders = map[string]string{"Authorization": "Bearer abc", "tenant": "acme"}

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "Bearer abc")
	assert.Contains(t, out, "acme")
	assert.Equal(t, "hunter2", cfg.Broker.Passcode, "original is not modified")
	assert.Equal(t, "Bearer abc", cfg.Broker.ConnectHeaders["Authorization"])
}

func TestConfig_SaveAndLoad(t *testing.T) {
	cfg := Default()
	cfg.Broker.URL = "wss://saved.example.com/ws"
	cfg.Processor.CleanupInterval = time.Minute

	path := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, cfg.SaveToFile(path))

	loader := NewLoader()
	loader.SetEnvPrefix("")
	loaded, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": "[[[{{{", "b": [1, 2]}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": [1}`+"}}")))
	assert.Error(t, validateJSONDepth([]byte(`{"a": {`)))

	deep := strings.Repeat("[", maxJSONDepth+1) + strings.Repeat("]", maxJSONDepth+1)
	assert.Error(t, validateJSONDepth([]byte(deep)))
}

func TestLoader_EnvName(t *testing.T) {
	l := NewLoader()
	assert.Equal(t, "LEDPUSH_PROCESSOR_MAX_CACHE_SIZE", l.EnvName("processor", "max_cache_size"))
	l.SetEnvPrefix("app")
	assert.Equal(t, "APP_BROKER_URL", l.EnvName("broker", "url"))
}
