package natsclient

import (
	"context"
	"crypto/tls"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/ledpush/connection"
	"github.com/c360/ledpush/errors"
)

// Dialer opens NATS sessions. It implements connection.Dialer. The NATS
// client's own reconnection is disabled; connection.Manager owns that policy.
type Dialer struct {
	pingInterval time.Duration
	maxPingsOut  int
	timeout      time.Duration
	drainTimeout time.Duration

	token string

	tlsConfig *tls.Config

	clientName  string
	compression bool

	logger *slog.Logger
}

// NewDialer creates a NATS dialer with optional configuration
func NewDialer(opts ...Option) (*Dialer, error) {
	d := &Dialer{
		pingInterval: 30 * time.Second,
		maxPingsOut:  2,
		timeout:      5 * time.Second,
		drainTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, errors.WrapInvalid(err, "Dialer", "NewDialer", "apply option")
		}
	}
	d.logger = d.logger.With("component", "natsclient")
	return d, nil
}

// SubjectFor maps a slash-separated destination onto a NATS subject:
// "/topic/org/3" becomes "topic.org.3".
func SubjectFor(destination string) string {
	return strings.ReplaceAll(strings.Trim(destination, "/"), "/", ".")
}

// DestinationFor is the inverse of SubjectFor.
func DestinationFor(subject string) string {
	return "/" + strings.ReplaceAll(subject, ".", "/")
}

func (d *Dialer) natsOptions(opts connection.DialOptions, s *session) []nats.Option {
	ping := d.pingInterval
	if opts.HeartbeatIncoming > 0 {
		ping = opts.HeartbeatIncoming
	}

	out := []nats.Option{
		nats.NoReconnect(),
		nats.PingInterval(ping),
		nats.MaxPingsOutstanding(d.maxPingsOut),
		nats.Timeout(d.timeout),
		nats.DrainTimeout(d.drainTimeout),
		nats.DisconnectErrHandler(s.handleDisconnect),
		nats.ClosedHandler(s.handleClosed),
		nats.ErrorHandler(s.handleAsyncError),
	}

	if opts.Login != "" && opts.Passcode != "" {
		out = append(out, nats.UserInfo(opts.Login, opts.Passcode))
	}
	if d.token != "" {
		out = append(out, nats.Token(d.token))
	}
	if d.tlsConfig != nil {
		out = append(out, nats.Secure(d.tlsConfig))
	}
	if d.clientName != "" {
		out = append(out, nats.Name(d.clientName))
	}
	if d.compression {
		out = append(out, nats.Compression(true))
	}
	return out
}

// Dial connects to the NATS server at url. Connect headers from opts are
// attached to every published message since NATS has no CONNECT headers.
func (d *Dialer) Dial(ctx context.Context, url string, opts connection.DialOptions) (connection.Session, error) {
	s := &session{
		headers: opts.Headers,
		done:    make(chan struct{}),
		logger:  d.logger,
	}
	natsOpts := d.natsOptions(opts, s)

	type result struct {
		conn *nats.Conn
		err  error
	}
	connectDone := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(url, natsOpts...)
		connectDone <- result{conn, err}
	}()

	select {
	case r := <-connectDone:
		if r.err != nil {
			return nil, errors.WrapTransient(r.err, "Dialer", "Dial", "establish connection")
		}
		s.conn = r.conn
	case <-ctx.Done():
		go func() {
			if r := <-connectDone; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, errors.WrapTransient(ctx.Err(), "Dialer", "Dial", "connection cancelled")
	}

	d.logger.Debug("Connected to NATS", "server", s.conn.ConnectedUrlRedacted())
	return s, nil
}

type session struct {
	conn    *nats.Conn
	headers map[string]string
	logger  *slog.Logger

	closing atomic.Bool

	mu   sync.Mutex
	err  error
	once sync.Once
	done chan struct{}
}

func (s *session) handleDisconnect(_ *nats.Conn, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *session) handleClosed(_ *nats.Conn) {
	s.once.Do(func() { close(s.done) })
}

func (s *session) handleAsyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	s.logger.Warn("NATS async error", "subject", subject, "error", err)
}

func (s *session) Send(ctx context.Context, destination string, body []byte, contentType string, headers map[string]string) error {
	msg := nats.NewMsg(SubjectFor(destination))
	msg.Data = body
	for k, v := range s.headers {
		msg.Header.Set(k, v)
	}
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	if contentType != "" {
		msg.Header.Set("content-type", contentType)
	}

	if err := s.conn.PublishMsg(msg); err != nil {
		return errors.WrapTransient(err, "natsclient.session", "Send", "publish")
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return errors.WrapTransient(err, "natsclient.session", "Send", "flush")
	}
	return nil
}

func (s *session) Subscribe(destination, id string, _ map[string]string, deliver func(connection.Frame)) (connection.SessionSubscription, error) {
	sub, err := s.conn.Subscribe(SubjectFor(destination), func(msg *nats.Msg) {
		headers := map[string]string{
			"destination":  destination,
			"subscription": id,
		}
		for k := range msg.Header {
			headers[strings.ToLower(k)] = msg.Header.Get(k)
		}
		deliver(connection.Frame{Destination: destination, Headers: headers, Body: msg.Data})
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient.session", "Subscribe", "subscribe")
	}
	return subscription{sub}, nil
}

func (s *session) Done() <-chan struct{} {
	return s.done
}

func (s *session) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	if s.closing.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if err := s.conn.LastError(); err != nil {
		return err
	}
	return errors.ErrConnectionLost
}

// Close drains subscriptions and pending publishes, falling back to a hard
// close if the drain cannot start.
func (s *session) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.logger.Debug("Drain failed, closing", "error", err)
		s.conn.Close()
	}
	return nil
}

type subscription struct {
	sub *nats.Subscription
}

// Unsubscribe ignores headers; NATS identifies the subscription itself.
func (s subscription) Unsubscribe(map[string]string) error {
	if err := s.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
		return errors.WrapTransient(err, "natsclient.subscription", "Unsubscribe", "unsubscribe")
	}
	return nil
}
