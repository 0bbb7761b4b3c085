package realtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/c360/ledpush/config"
	"github.com/c360/ledpush/connection"
	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/health"
	"github.com/c360/ledpush/message"
	"github.com/c360/ledpush/metric"
	"github.com/c360/ledpush/natsclient"
	"github.com/c360/ledpush/pkg/retry"
	"github.com/c360/ledpush/pkg/tlsutil"
	"github.com/c360/ledpush/processor"
	"github.com/c360/ledpush/processor/redisdedup"
	"github.com/c360/ledpush/signals"
	"github.com/c360/ledpush/stompws"
	"github.com/c360/ledpush/subscription"
)

const redisDialTimeout = 5 * time.Second

// ErrUnknownMessage is returned when an operation names a message that is not
// in the processor cache.
var ErrUnknownMessage = stderrors.New("message not in cache")

// Ack is the body sent to the acknowledgement destination.
type Ack struct {
	MessageID      string    `json:"messageId"`
	AcknowledgedAt time.Time `json:"acknowledgedAt"`
}

// Client owns one connection, its message processor and its subscription
// manager, and wires them together.
type Client struct {
	cfg      config.Config
	dialer   connection.Dialer
	dedup    processor.DedupStore
	signals  signals.Source
	clock    clock.Clock
	logger   *slog.Logger
	registry *metric.MetricsRegistry

	conn      *connection.Manager
	processor *processor.Processor
	subs      *subscription.Manager
	monitor   *health.Monitor

	ctx     context.Context
	cancel  context.CancelFunc
	closers []io.Closer
	unwire  []func()

	mu     sync.Mutex
	closed bool
}

// New builds a client from cfg. Nothing connects until Connect.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New", "config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    *cfg,
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "New", "apply option")
		}
	}
	c.logger = c.logger.With("component", "realtime")
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.build(); err != nil {
		c.cancel()
		for _, cl := range c.closers {
			_ = cl.Close()
		}
		return nil, err
	}
	c.wire()
	return c, nil
}

func (c *Client) build() error {
	if c.dialer == nil {
		d, err := c.newDialer()
		if err != nil {
			return err
		}
		c.dialer = d
	}

	connOpts := []connection.Option{
		connection.WithHeartbeat(c.cfg.Broker.HeartbeatIncoming, c.cfg.Broker.HeartbeatOutgoing),
		connection.WithConnectHeaders(c.cfg.Broker.ConnectHeaders),
		connection.WithCredentials(c.cfg.Broker.Login, c.cfg.Broker.Passcode, c.cfg.Broker.Host),
		connection.WithReconnectPolicy(c.cfg.Reconnect.Policy()),
		connection.WithClock(c.clock),
		connection.WithLogger(c.logger),
		connection.WithMetrics(c.registry),
	}
	if c.cfg.Broker.HandshakeTimeout > 0 {
		connOpts = append(connOpts, connection.WithHandshakeTimeout(c.cfg.Broker.HandshakeTimeout))
	}
	if c.cfg.Broker.SendRate > 0 {
		connOpts = append(connOpts, connection.WithSendRateLimit(c.cfg.Broker.SendRate, c.cfg.Broker.SendBurst))
	}
	if c.signals != nil {
		connOpts = append(connOpts, connection.WithSignals(c.signals))
	}
	conn, err := connection.New(c.cfg.Broker.URL, c.dialer, connOpts...)
	if err != nil {
		return err
	}
	c.conn = conn

	if c.dedup == nil && c.cfg.Dedup.Backend == config.DedupRedis {
		store, err := c.dialRedis()
		if err != nil {
			return err
		}
		c.dedup = store
		c.closers = append(c.closers, store)
	}

	procOpts := []processor.Option{
		processor.WithClock(c.clock),
		processor.WithLogger(c.logger),
		processor.WithMetrics(c.registry),
	}
	if c.dedup != nil {
		procOpts = append(procOpts, processor.WithDedupStore(c.dedup))
	}
	proc, err := processor.New(c.cfg.Processor, procOpts...)
	if err != nil {
		return err
	}
	c.processor = proc

	subs, err := subscription.New(conn,
		subscription.WithTopics(c.cfg.Topics),
		subscription.WithClock(c.clock),
		subscription.WithLogger(c.logger),
		subscription.WithMetrics(c.registry))
	if err != nil {
		return err
	}
	c.subs = subs

	c.monitor = health.NewMonitor()
	c.monitor.Register("connection", conn.Health)
	c.monitor.Register("processor", c.processorHealth)
	c.monitor.Register("subscriptions", c.subscriptionHealth)
	return nil
}

func (c *Client) newDialer() (connection.Dialer, error) {
	tlsCfg, err := tlsutil.LoadClientTLSConfig(c.cfg.Broker.TLS)
	if err != nil {
		return nil, err
	}

	switch c.cfg.Broker.Transport {
	case config.TransportNATS:
		opts := []natsclient.Option{
			natsclient.WithName("ledpush"),
			natsclient.WithLogger(c.logger),
		}
		if tlsCfg != nil {
			opts = append(opts, natsclient.WithTLSConfig(tlsCfg))
		}
		d, err := natsclient.NewDialer(opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		opts := []stompws.Option{stompws.WithLogger(c.logger)}
		if tlsCfg != nil {
			opts = append(opts, stompws.WithTLSConfig(tlsCfg))
		}
		return stompws.NewDialer(opts...), nil
	}
}

func (c *Client) dialRedis() (*redisdedup.Store, error) {
	var opts []redisdedup.Option
	if c.cfg.Dedup.KeyPrefix != "" {
		opts = append(opts, redisdedup.WithKeyPrefix(c.cfg.Dedup.KeyPrefix))
	}
	ctx, cancel := context.WithTimeout(c.ctx, redisDialTimeout)
	defer cancel()
	return redisdedup.Dial(ctx, c.cfg.Dedup.RedisAddr, opts...)
}

// wire connects inbound messages to the processor and connection state to
// the subscription manager.
func (c *Client) wire() {
	c.unwire = append(c.unwire,
		c.conn.OnMessage(c.handleMessage),
		c.conn.OnStateChange(c.handleStateChange),
	)
	if c.signals != nil {
		c.subs.WatchRoutes(c.signals)
	}
}

func (c *Client) handleMessage(destination string, msg *message.UnifiedMessage) {
	if _, err := c.processor.Process(c.ctx, msg); err != nil {
		c.logger.Warn("Message not processed",
			"destination", destination, "message_id", msg.MessageID, "error", err)
	}
}

func (c *Client) handleStateChange(change connection.StateChange) {
	if change.To != connection.StateConnected {
		return
	}
	if err := c.subs.HandleConnected(); err != nil {
		c.logger.Error("Restoring subscriptions failed", "error", err)
	}
}

// Start starts message dispatch. Call it before Connect so that messages
// arriving on restored subscriptions are processed.
func (c *Client) Start(ctx context.Context) error {
	if c.isClosed() {
		return errors.WrapFatal(errors.ErrClosed, "Client", "Start", "check state")
	}
	return c.processor.Start(ctx)
}

// Connect opens the broker connection and blocks until the handshake ends.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return errors.WrapFatal(errors.ErrClosed, "Client", "Connect", "check state")
	}
	return c.conn.Connect(ctx)
}

// Disconnect closes the connection without scheduling a reconnect. Logical
// subscriptions are kept and restored by the next Connect.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// SetUser changes the identity that owns the auto subscriptions. nil logs out
// and clears every subscription.
func (c *Client) SetUser(u *subscription.User) error {
	return c.subs.SetUser(u)
}

// Acknowledge acknowledges a cached message. Messages that require it are
// acknowledged to the broker first; transient send failures are retried.
func (c *Client) Acknowledge(ctx context.Context, id string) error {
	msg, ok := c.processor.GetMessage(id)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", ErrUnknownMessage, id), "Client", "Acknowledge", "lookup message")
	}
	if msg.IsAcknowledged {
		return nil
	}

	if msg.RequireAck {
		ack := Ack{MessageID: id, AcknowledgedAt: c.clock.Now().UTC()}
		dest := c.cfg.Topics.AckDestination
		err := retry.Do(ctx, retry.Quick(), func() error {
			err := c.conn.Send(ctx, dest, ack, nil)
			if err != nil && !errors.IsTransient(err) {
				return retry.NonRetryable(err)
			}
			return err
		})
		if err != nil {
			c.logger.Warn("Acknowledgement not sent", "message_id", id, "error", err)
			return err
		}
		c.logger.Debug("Acknowledgement sent", "message_id", id, "destination", dest)
	}

	c.processor.Acknowledge(id)
	return nil
}

// MarkAsRead flags a cached message as read. It reports false if the message
// is not cached.
func (c *Client) MarkAsRead(id string) bool {
	return c.processor.MarkAsRead(id)
}

// Connection returns the connection manager.
func (c *Client) Connection() *connection.Manager { return c.conn }

// Processor returns the message processor.
func (c *Client) Processor() *processor.Processor { return c.processor }

// Subscriptions returns the subscription manager.
func (c *Client) Subscriptions() *subscription.Manager { return c.subs }

// Health aggregates connection, processor and subscription health.
func (c *Client) Health() health.Status {
	return c.monitor.Check("ledpush")
}

func (c *Client) processorHealth() health.Status {
	st := c.processor.Stats()
	status := health.NewHealthy("processor",
		fmt.Sprintf("%d cached, %d queued", st.CacheSize, st.Dispatch.QueueDepth))
	return status.WithMetrics(&health.Metrics{
		ErrorCount:        int(st.HandlerErrors),
		MessagesProcessed: st.Processed,
	})
}

func (c *Client) subscriptionHealth() health.Status {
	n := c.subs.Count()
	if n > 0 && !c.conn.IsConnected() {
		return health.NewDegraded("subscriptions", fmt.Sprintf("%d subscriptions waiting for the connection", n))
	}
	return health.NewHealthy("subscriptions", fmt.Sprintf("%d subscriptions", n))
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears down subscriptions, the connection and the processor, waiting
// up to timeout for queued dispatches. It is safe to call more than once.
func (c *Client) Close(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unwire := c.unwire
	c.unwire = nil
	c.mu.Unlock()

	for _, fn := range unwire {
		fn()
	}
	c.subs.Destroy()
	c.conn.Close()

	var errs []error
	if err := c.processor.Close(timeout); err != nil {
		errs = append(errs, err)
	}
	c.cancel()
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
