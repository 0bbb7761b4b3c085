package stompws

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"github.com/c360/ledpush/connection"
	"github.com/c360/ledpush/errors"
)

// DefaultSubprotocols are offered during the WebSocket handshake.
var DefaultSubprotocols = []string{"v12.stomp", "v11.stomp"}

const (
	defaultHandshakeTimeout = 45 * time.Second
	disconnectTimeout       = 2 * time.Second
)

// Dialer opens STOMP sessions over WebSocket. It implements connection.Dialer.
type Dialer struct {
	ws     *websocket.Dialer
	header http.Header
	logger *slog.Logger
}

// Option configures a Dialer
type Option func(*Dialer)

// WithTLSConfig sets the TLS configuration for wss:// URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(d *Dialer) {
		d.ws.TLSClientConfig = cfg
	}
}

// WithSubprotocols replaces the offered WebSocket subprotocols.
func WithSubprotocols(protocols ...string) Option {
	return func(d *Dialer) {
		d.ws.Subprotocols = protocols
	}
}

// WithHTTPHeader adds a header to the WebSocket upgrade request.
func WithHTTPHeader(key, value string) Option {
	return func(d *Dialer) {
		d.header.Add(key, value)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDialer creates a STOMP-over-WebSocket dialer.
func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
			Subprotocols:     DefaultSubprotocols,
		},
		header: make(http.Header),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "stompws")
	return d
}

// Dial performs the WebSocket upgrade and the STOMP CONNECT handshake. The
// context deadline bounds both.
func (d *Dialer) Dial(ctx context.Context, rawURL string, opts connection.DialOptions) (connection.Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.WrapInvalid(err, "stompws.Dialer", "Dial", "parse url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: scheme %q is not ws or wss", errors.ErrInvalidConfig, u.Scheme),
			"stompws.Dialer", "Dial", "parse url")
	}

	ws, resp, err := d.ws.DialContext(ctx, rawURL, d.header.Clone())
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, errors.WrapTransient(err, "stompws.Dialer", "Dial", "websocket handshake")
	}
	d.logger.Debug("WebSocket established", "subprotocol", ws.Subprotocol())

	conn := newWSConn(ws)
	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}

	stompConn, err := stomp.Connect(conn, connectOptions(u, opts)...)
	if err != nil {
		_ = conn.Close()
		return nil, errors.WrapTransient(err, "stompws.Dialer", "Dial", "stomp connect")
	}
	_ = ws.SetReadDeadline(time.Time{})

	d.logger.Debug("STOMP session established", "version", string(stompConn.Version()), "session", stompConn.Session())

	return &session{conn: stompConn, ws: conn, logger: d.logger}, nil
}

func connectOptions(u *url.URL, opts connection.DialOptions) []func(*stomp.Conn) error {
	host := opts.Host
	if host == "" {
		host = u.Hostname()
	}

	out := []func(*stomp.Conn) error{
		stomp.ConnOpt.AcceptVersion(stomp.V11, stomp.V12),
		stomp.ConnOpt.Host(host),
		stomp.ConnOpt.HeartBeat(opts.HeartbeatOutgoing, opts.HeartbeatIncoming),
	}
	if opts.Login != "" || opts.Passcode != "" {
		out = append(out, stomp.ConnOpt.Login(opts.Login, opts.Passcode))
	}
	for k, v := range opts.Headers {
		out = append(out, stomp.ConnOpt.Header(k, v))
	}
	return out
}

// session adapts a go-stomp connection to connection.Session.
type session struct {
	conn    *stomp.Conn
	ws      *wsConn
	logger  *slog.Logger
	closing atomic.Bool
}

func (s *session) Send(ctx context.Context, destination string, body []byte, contentType string, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := make([]func(*frame.Frame) error, 0, len(headers))
	for k, v := range headers {
		opts = append(opts, stomp.SendOpt.Header(k, v))
	}
	if err := s.conn.Send(destination, contentType, body, opts...); err != nil {
		return errors.WrapTransient(err, "stompws.session", "Send", "send frame")
	}
	return nil
}

func (s *session) Subscribe(destination, id string, headers map[string]string, deliver func(connection.Frame)) (connection.SessionSubscription, error) {
	opts := []func(*frame.Frame) error{stomp.SubscribeOpt.Id(id)}
	for k, v := range headers {
		opts = append(opts, stomp.SubscribeOpt.Header(k, v))
	}

	sub, err := s.conn.Subscribe(destination, stomp.AckAuto, opts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "stompws.session", "Subscribe", "subscribe")
	}

	go s.pump(sub, deliver)
	return &subscription{sub: sub}, nil
}

// pump delivers one subscription's messages in order until it closes.
func (s *session) pump(sub *stomp.Subscription, deliver func(connection.Frame)) {
	for msg := range sub.C {
		if msg.Err != nil {
			s.logger.Debug("Subscription ended", "destination", sub.Destination(), "error", msg.Err)
			continue
		}
		deliver(connection.Frame{
			Destination: msg.Destination,
			Headers:     headerMap(msg.Header),
			Body:        msg.Body,
		})
	}
}

func headerMap(h *frame.Header) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, h.Len())
	for i := 0; i < h.Len(); i++ {
		k, v := h.GetAt(i)
		if _, seen := out[k]; !seen {
			out[k] = v
		}
	}
	return out
}

func (s *session) Done() <-chan struct{} {
	return s.ws.done
}

// Err is nil after Close; otherwise it reports why the socket ended.
func (s *session) Err() error {
	select {
	case <-s.ws.done:
	default:
		return nil
	}
	if s.closing.Load() {
		return nil
	}
	if err := s.ws.err(); err != nil {
		return err
	}
	return errors.ErrConnectionLost
}

// Close sends DISCONNECT and waits briefly for the receipt before dropping the socket.
func (s *session) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}

	result := make(chan error, 1)
	go func() { result <- s.conn.Disconnect() }()

	var err error
	select {
	case err = <-result:
	case <-time.After(disconnectTimeout):
		err = errors.ErrConnectionTimeout
	}
	_ = s.ws.Close()

	if err != nil && err != stomp.ErrAlreadyClosed {
		s.logger.Debug("DISCONNECT did not complete cleanly", "error", err)
	}
	return nil
}

type subscription struct {
	sub *stomp.Subscription
}

// Unsubscribe sends UNSUBSCRIBE with the extra headers.
func (s *subscription) Unsubscribe(headers map[string]string) error {
	opts := make([]func(*frame.Frame) error, 0, len(headers))
	for k, v := range headers {
		k, v := k, v
		opts = append(opts, func(f *frame.Frame) error {
			f.Header.Set(k, v)
			return nil
		})
	}
	if err := s.sub.Unsubscribe(opts...); err != nil && err != stomp.ErrCompletedSubscription {
		return errors.WrapTransient(err, "stompws.subscription", "Unsubscribe", "unsubscribe")
	}
	return nil
}
