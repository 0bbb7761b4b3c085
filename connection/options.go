package connection

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/metric"
	"github.com/c360/ledpush/pkg/retry"
	"github.com/c360/ledpush/signals"
)

// ReconnectPolicy controls automatic reconnection after an unexpected loss.
type ReconnectPolicy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

// DefaultReconnectPolicy returns 5 attempts from 1s to 30s, doubling, with 25% jitter.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:    5,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: retry.DefaultJitterFraction,
	}
}

// Delay returns the jittered delay before attempt n (starting at 1).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	return retry.Jitter(retry.Backoff(attempt, p.InitialDelay, p.MaxDelay, p.Multiplier), p.JitterFraction)
}

// Validate checks the policy ranges.
func (p ReconnectPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 0:
		return fmt.Errorf("%w: max attempts %d is negative", errors.ErrInvalidConfig, p.MaxAttempts)
	case p.InitialDelay <= 0:
		return fmt.Errorf("%w: initial delay must be positive", errors.ErrInvalidConfig)
	case p.MaxDelay < p.InitialDelay:
		return fmt.Errorf("%w: max delay %s below initial delay %s", errors.ErrInvalidConfig, p.MaxDelay, p.InitialDelay)
	case p.Multiplier < 1:
		return fmt.Errorf("%w: multiplier %v below 1", errors.ErrInvalidConfig, p.Multiplier)
	case p.JitterFraction < 0 || p.JitterFraction > 1:
		return fmt.Errorf("%w: jitter fraction %v outside [0,1]", errors.ErrInvalidConfig, p.JitterFraction)
	}
	return nil
}

// Option is a functional option for configuring the Manager
type Option func(*Manager) error

// WithHeartbeat sets the incoming and outgoing heartbeat intervals.
func WithHeartbeat(incoming, outgoing time.Duration) Option {
	return func(m *Manager) error {
		if incoming < 0 || outgoing < 0 {
			return fmt.Errorf("%w: negative heartbeat", errors.ErrInvalidConfig)
		}
		m.dialOpts.HeartbeatIncoming = incoming
		m.dialOpts.HeartbeatOutgoing = outgoing
		return nil
	}
}

// WithConnectHeaders adds headers sent with the CONNECT frame.
func WithConnectHeaders(headers map[string]string) Option {
	return func(m *Manager) error {
		if m.dialOpts.Headers == nil {
			m.dialOpts.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			m.dialOpts.Headers[k] = v
		}
		return nil
	}
}

// WithCredentials sets the STOMP login, passcode and virtual host.
func WithCredentials(login, passcode, host string) Option {
	return func(m *Manager) error {
		m.dialOpts.Login = login
		m.dialOpts.Passcode = passcode
		m.dialOpts.Host = host
		return nil
	}
}

// WithReconnectPolicy replaces the default reconnect policy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(m *Manager) error {
		if err := p.Validate(); err != nil {
			return err
		}
		m.policy = p
		return nil
	}
}

// WithHandshakeTimeout bounds each dial, including automatic reconnects.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(m *Manager) error {
		if d <= 0 {
			return fmt.Errorf("%w: handshake timeout must be positive", errors.ErrInvalidConfig)
		}
		m.handshakeTimeout = d
		return nil
	}
}

// WithSignals sets the environment signal source. Defaults to signals.Static.
func WithSignals(src signals.Source) Option {
	return func(m *Manager) error {
		if src != nil {
			m.signals = src
		}
		return nil
	}
}

// WithClock sets the clock used for reconnect timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) error {
		if c != nil {
			m.clock = c
		}
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	}
}

// WithMetrics registers connection metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) error {
		if registry == nil {
			return nil
		}
		metrics, err := newMetrics(registry)
		if err != nil {
			return err
		}
		m.metrics = metrics
		return nil
	}
}

// WithSendRateLimit limits outbound sends to perSecond with the given burst. Send
// waits for a token, honouring its context.
func WithSendRateLimit(perSecond float64, burst int) Option {
	return func(m *Manager) error {
		if perSecond <= 0 {
			m.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}
