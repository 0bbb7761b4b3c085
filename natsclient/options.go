package natsclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/ledpush/errors"
)

// Option is a functional option for configuring the Dialer
type Option func(*Dialer) error

// WithPingInterval sets the ping interval used when the dial options carry no
// incoming heartbeat.
func WithPingInterval(d time.Duration) Option {
	return func(dl *Dialer) error {
		if d <= 0 {
			return fmt.Errorf("%w: ping interval must be positive", errors.ErrInvalidConfig)
		}
		dl.pingInterval = d
		return nil
	}
}

// WithMaxPingsOutstanding sets how many unanswered pings end the session.
func WithMaxPingsOutstanding(n int) Option {
	return func(dl *Dialer) error {
		if n < 1 {
			return fmt.Errorf("%w: max pings outstanding must be at least 1", errors.ErrInvalidConfig)
		}
		dl.maxPingsOut = n
		return nil
	}
}

// WithTimeout sets the TCP connect timeout
func WithTimeout(d time.Duration) Option {
	return func(dl *Dialer) error {
		dl.timeout = d
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining on Close
func WithDrainTimeout(d time.Duration) Option {
	return func(dl *Dialer) error {
		dl.drainTimeout = d
		return nil
	}
}

// WithToken sets a token for authentication
func WithToken(token string) Option {
	return func(dl *Dialer) error {
		dl.token = token
		return nil
	}
}

// WithTLSConfig enables TLS using cfg; see tlsutil.LoadClientTLSConfig.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(dl *Dialer) error {
		dl.tlsConfig = cfg
		return nil
	}
}

// WithName sets the client name reported to the server
func WithName(name string) Option {
	return func(dl *Dialer) error {
		dl.clientName = name
		return nil
	}
}

// WithCompression enables message compression
func WithCompression(enabled bool) Option {
	return func(dl *Dialer) error {
		dl.compression = enabled
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(dl *Dialer) error {
		if logger != nil {
			dl.logger = logger
		}
		return nil
	}
}
