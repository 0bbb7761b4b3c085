package signals

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DialFunc opens a connection; it is net.Dialer.DialContext by default.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Probe derives reachability from periodic TCP dials to the broker host. It is
// the non-browser stand-in for online/offline events. Visibility is always true
// and routes never change.
type Probe struct {
	address  string
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	dial     DialFunc
	logger   *slog.Logger

	mu      sync.Mutex
	online  bool
	ticker  *clock.Ticker
	stop    chan struct{}
	running bool

	onlineListeners listeners[func(bool)]
}

// ProbeOption configures a Probe
type ProbeOption func(*Probe)

// WithProbeClock sets the clock driving the poll ticker.
func WithProbeClock(c clock.Clock) ProbeOption {
	return func(p *Probe) { p.clock = c }
}

// WithProbeDialer replaces the TCP dialer.
func WithProbeDialer(dial DialFunc) ProbeOption {
	return func(p *Probe) { p.dial = dial }
}

// WithProbeLogger sets the logger.
func WithProbeLogger(logger *slog.Logger) ProbeOption {
	return func(p *Probe) { p.logger = logger }
}

// WithProbeTimeout bounds each dial.
func WithProbeTimeout(d time.Duration) ProbeOption {
	return func(p *Probe) { p.timeout = d }
}

// NewProbe creates a probe for the host of brokerURL (ws, wss, nats, tcp schemes).
// It assumes online until the first failed dial.
func NewProbe(brokerURL string, interval time.Duration, opts ...ProbeOption) (*Probe, error) {
	address, err := ProbeAddress(brokerURL)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	var d net.Dialer
	p := &Probe{
		address:  address,
		interval: interval,
		timeout:  3 * time.Second,
		clock:    clock.New(),
		dial:     d.DialContext,
		logger:   slog.Default(),
		online:   true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ProbeAddress returns host:port for a broker URL, filling in the scheme's default port.
func ProbeAddress(brokerURL string) (string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", &url.Error{Op: "parse", URL: brokerURL, Err: net.InvalidAddrError("missing host")}
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "wss", "https":
			port = "443"
		case "nats":
			port = "4222"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(host, port), nil
}

// Start begins polling. Calling Start on a running probe is a no-op.
func (p *Probe) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ticker = p.clock.Ticker(p.interval)
	p.stop = make(chan struct{})
	ticker, stop := p.ticker, p.stop
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				p.Check(ctx)
			}
		}
	}()
}

// Stop ends polling.
func (p *Probe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.ticker.Stop()
	close(p.stop)
}

// Check dials once and updates the online state.
func (p *Probe) Check(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", p.address)
	reachable := err == nil
	if conn != nil {
		_ = conn.Close()
	}

	p.mu.Lock()
	changed := p.online != reachable
	p.online = reachable
	p.mu.Unlock()

	if changed {
		if reachable {
			p.logger.Info("Broker reachable again", "component", "signals", "address", p.address)
		} else {
			p.logger.Warn("Broker unreachable", "component", "signals", "address", p.address, "error", err)
		}
		for _, fn := range p.onlineListeners.snapshot() {
			fn(reachable)
		}
	}
	return reachable
}

// Online implements Source
func (p *Probe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Visible implements Source
func (p *Probe) Visible() bool { return true }

// OnOnlineChange implements Source
func (p *Probe) OnOnlineChange(fn func(bool)) func() {
	return p.onlineListeners.add(fn)
}

// OnVisibilityChange implements Source
func (p *Probe) OnVisibilityChange(func(bool)) func() { return func() {} }

// OnRouteChange implements Source
func (p *Probe) OnRouteChange(func(string, string)) func() { return func() {} }
