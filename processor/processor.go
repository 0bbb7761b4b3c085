package processor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/c360/ledpush/errors"
	"github.com/c360/ledpush/message"
	"github.com/c360/ledpush/metric"
	"github.com/c360/ledpush/pkg/schedule"
	"github.com/c360/ledpush/pkg/worker"
)

// Handler receives a dispatched message. The message is a copy; changes to it
// do not reach the cache. Returned errors and panics are logged and counted.
type Handler func(ctx context.Context, msg message.ReceivedMessage) error

// Stats is a snapshot of processor counters. Invalid counts messages rejected
// by ProcessMessage and Process; live frames that fail decoding are dropped by
// the connection and counted in connection.Info.FramesDropped.
type Stats struct {
	Processed     int64            `json:"processed"`
	Duplicates    int64            `json:"duplicates"`
	Expired       int64            `json:"expired"`
	Invalid       int64            `json:"invalid"`
	HandlerErrors int64            `json:"handler_errors"`
	Evicted       int64            `json:"evicted"`
	CacheSize     int              `json:"cache_size"`
	Dispatch      worker.PoolStats `json:"dispatch"`
}

// Processor validates, deduplicates and caches inbound messages and dispatches
// them to registered handlers in arrival order.
type Processor struct {
	cfg      Config
	clock    clock.Clock
	sched    *schedule.Scheduler
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *processorMetrics
	dedup    DedupStore
	pool     *worker.Pool[message.ReceivedMessage]

	mu    sync.RWMutex
	cache map[string]*message.ReceivedMessage

	handlersMu     sync.RWMutex
	nextHandlerID  uint64
	typeHandlers   map[message.Type]map[uint64]Handler
	globalHandlers map[uint64]Handler

	processed     atomic.Int64
	duplicates    atomic.Int64
	expired       atomic.Int64
	invalid       atomic.Int64
	handlerErrors atomic.Int64
	evicted       atomic.Int64

	lifecycleMu sync.Mutex
	started     bool
	closed      bool
	cancel      context.CancelFunc
	sweep       *schedule.Task
}

// New creates a processor. It does nothing until Start.
func New(cfg Config, opts ...Option) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Processor", "New", "validate config")
	}

	p := &Processor{
		cfg:            cfg,
		clock:          clock.New(),
		logger:         slog.Default(),
		cache:          make(map[string]*message.ReceivedMessage),
		typeHandlers:   make(map[message.Type]map[uint64]Handler),
		globalHandlers: make(map[uint64]Handler),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.WrapInvalid(err, "Processor", "New", "apply option")
		}
	}
	p.logger = p.logger.With("component", "processor")
	p.sched = schedule.New(p.clock)

	if p.registry != nil {
		m, err := newMetrics(p.registry)
		if err != nil {
			return nil, errors.WrapTransient(err, "Processor", "New", "metrics registration")
		}
		p.metrics = m
	}

	if p.dedup == nil {
		d, err := NewMemoryDedup(cfg.MaxTrackedIDs, cfg.DedupWindow, p.clock, p.registry)
		if err != nil {
			return nil, errors.WrapTransient(err, "Processor", "New", "create dedup store")
		}
		p.dedup = d
	}

	poolOpts := []worker.Option[message.ReceivedMessage]{
		worker.WithErrorHandler(func(msg message.ReceivedMessage, err error) {
			p.logger.Error("Dispatch failed", "message_id", msg.MessageID, "error", err)
		}),
	}
	if p.registry != nil {
		poolOpts = append(poolOpts,
			worker.WithMetricsRegistry[message.ReceivedMessage](p.registry, "ledpush_processor_dispatch"))
	}
	// One worker keeps dispatch in processing order.
	p.pool = worker.NewPool(1, cfg.QueueSize, p.dispatch, poolOpts...)
	return p, nil
}

// Start begins dispatching and schedules the periodic sweep.
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	switch {
	case p.closed:
		return errors.WrapFatal(errors.ErrClosed, "Processor", "Start", "lifecycle check")
	case p.started:
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Processor", "Start", "lifecycle check")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := p.pool.Start(runCtx); err != nil {
		cancel()
		return errors.WrapFatal(err, "Processor", "Start", "start dispatch pool")
	}
	p.cancel = cancel
	p.sweep = p.sched.Every(p.cfg.CleanupInterval, func() { p.Sweep(runCtx) })
	p.started = true

	p.logger.Debug("Processor started",
		"max_cache_size", p.cfg.MaxCacheSize,
		"cleanup_interval", p.cfg.CleanupInterval,
		"dedup_window", p.cfg.DedupWindow)
	return nil
}

// Close stops the sweep and waits up to timeout for queued dispatches.
// The cache stays readable.
func (p *Processor) Close(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if p.closed {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	p.lifecycleMu.Unlock()

	p.sweep.Cancel()
	if !started {
		return nil
	}
	// Handlers may still call back into the processor while the queue drains.
	err := p.pool.Stop(timeout)
	p.cancel()
	return err
}

func (p *Processor) checkRunning(op string) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	switch {
	case p.closed:
		return errors.WrapFatal(errors.ErrClosed, "Processor", op, "lifecycle check")
	case !p.started:
		return errors.WrapFatal(errors.ErrNotStarted, "Processor", op, "lifecycle check")
	}
	return nil
}

// ProcessMessage decodes a raw frame body and processes it. A body that is
// not a valid message is counted and returned as an error. Duplicates and
// expired messages return (nil, nil).
func (p *Processor) ProcessMessage(ctx context.Context, raw []byte) (*message.ReceivedMessage, error) {
	msg, err := message.Decode(raw)
	if err != nil {
		p.recordInvalid(err)
		return nil, err
	}
	return p.Process(ctx, msg)
}

// Process runs an already decoded message through validation, dedup, expiry,
// caching and dispatch. It returns once the message is queued for dispatch;
// handlers run later on the dispatch worker.
func (p *Processor) Process(ctx context.Context, msg *message.UnifiedMessage) (*message.ReceivedMessage, error) {
	if err := p.checkRunning("Process"); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		p.recordInvalid(err)
		return nil, err
	}

	fresh, err := p.dedup.MarkIfNew(ctx, msg.MessageID, p.cfg.DedupWindow)
	if err != nil {
		p.metrics.recordDedupError()
		p.logger.Warn("Dedup store failed, processing anyway", "message_id", msg.MessageID, "error", err)
		fresh = true
	}
	if !fresh {
		p.duplicates.Add(1)
		p.metrics.recordOutcome("duplicate")
		p.logger.Debug("Duplicate message dropped", "message_id", msg.MessageID)
		return nil, nil
	}

	now := p.clock.Now()
	if msg.IsExpired(now) {
		p.expired.Add(1)
		p.metrics.recordOutcome("expired")
		p.logger.Debug("Expired message dropped", "message_id", msg.MessageID, "type", msg.Type)
		return nil, nil
	}

	received := message.NewReceived(msg, now)
	snapshot := *received
	p.insert(received)

	if err := p.pool.SubmitWait(ctx, snapshot); err != nil {
		p.remove(msg.MessageID)
		if ferr := p.dedup.Forget(context.WithoutCancel(ctx), msg.MessageID); ferr != nil {
			p.logger.Warn("Failed to forget undispatched message", "message_id", msg.MessageID, "error", ferr)
		}
		return nil, errors.WrapTransient(err, "Processor", "Process", "queue dispatch")
	}

	p.processed.Add(1)
	p.metrics.recordOutcome("processed")
	p.logger.Debug("Message processed", "message_id", msg.MessageID, "type", msg.Type, "level", msg.Level)
	return &snapshot, nil
}

func (p *Processor) recordInvalid(err error) {
	p.invalid.Add(1)
	p.metrics.recordOutcome("invalid")
	p.logger.Warn("Invalid message dropped", "kind", errors.KindOf(err), "error", err)
}

// ProcessBatchMessages processes raws in chunks of BatchSize, yielding between
// chunks. Bad messages are skipped. Results keep input order. It stops early
// only when ctx is done.
func (p *Processor) ProcessBatchMessages(ctx context.Context, raws [][]byte) ([]message.ReceivedMessage, error) {
	results := make([]message.ReceivedMessage, 0, len(raws))
	for start := 0; start < len(raws); start += p.cfg.BatchSize {
		if start > 0 {
			runtime.Gosched()
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := min(start+p.cfg.BatchSize, len(raws))
		for _, raw := range raws[start:end] {
			received, err := p.ProcessMessage(ctx, raw)
			if err != nil {
				if errors.IsFatal(err) {
					return results, err
				}
				continue
			}
			if received != nil {
				results = append(results, *received)
			}
		}
	}
	return results, nil
}

// RegisterMessageHandler adds a handler for one message type and returns a
// function that removes it.
func (p *Processor) RegisterMessageHandler(t message.Type, h Handler) func() {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	p.nextHandlerID++
	id := p.nextHandlerID
	if p.typeHandlers[t] == nil {
		p.typeHandlers[t] = make(map[uint64]Handler)
	}
	p.typeHandlers[t][id] = h

	return func() {
		p.handlersMu.Lock()
		defer p.handlersMu.Unlock()
		delete(p.typeHandlers[t], id)
		if len(p.typeHandlers[t]) == 0 {
			delete(p.typeHandlers, t)
		}
	}
}

// RegisterGlobalHandler adds a handler for every message type.
func (p *Processor) RegisterGlobalHandler(h Handler) func() {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	p.nextHandlerID++
	id := p.nextHandlerID
	p.globalHandlers[id] = h

	return func() {
		p.handlersMu.Lock()
		defer p.handlersMu.Unlock()
		delete(p.globalHandlers, id)
	}
}

func (p *Processor) handlersFor(t message.Type) []Handler {
	p.handlersMu.RLock()
	defer p.handlersMu.RUnlock()

	out := make([]Handler, 0, len(p.typeHandlers[t])+len(p.globalHandlers))
	for _, h := range p.typeHandlers[t] {
		out = append(out, h)
	}
	for _, h := range p.globalHandlers {
		out = append(out, h)
	}
	return out
}

// dispatch runs every matching handler concurrently and waits for all of them.
func (p *Processor) dispatch(ctx context.Context, msg message.ReceivedMessage) error {
	handlers := p.handlersFor(msg.Type)
	if len(handlers) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.HandlerConcurrency)
	for _, h := range handlers {
		g.Go(func() error {
			if err := runHandler(ctx, h, msg); err != nil {
				p.handlerErrors.Add(1)
				p.metrics.recordHandlerError(string(msg.Type))
				p.logger.Error("Message handler failed",
					"message_id", msg.MessageID, "type", msg.Type, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func runHandler(ctx context.Context, h Handler, msg message.ReceivedMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, msg)
}

// insert caches m and evicts the oldest messages by timestamp beyond MaxCacheSize.
func (p *Processor) insert(m *message.ReceivedMessage) {
	p.mu.Lock()
	p.cache[m.MessageID] = m
	evicted := 0
	for len(p.cache) > p.cfg.MaxCacheSize {
		delete(p.cache, p.oldestLocked())
		evicted++
	}
	size := len(p.cache)
	p.mu.Unlock()

	if evicted > 0 {
		p.evicted.Add(int64(evicted))
		p.metrics.recordEvictions(evicted)
		p.logger.Debug("Cache bound reached", "evicted", evicted)
	}
	p.metrics.recordCacheSize(size)
}

func (p *Processor) oldestLocked() string {
	var oldest *message.ReceivedMessage
	for _, m := range p.cache {
		if oldest == nil || olderThan(m, oldest) {
			oldest = m
		}
	}
	return oldest.MessageID
}

func olderThan(a, b *message.ReceivedMessage) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ReceivedAt.Before(b.ReceivedAt)
}

func (p *Processor) remove(id string) bool {
	p.mu.Lock()
	_, ok := p.cache[id]
	delete(p.cache, id)
	size := len(p.cache)
	p.mu.Unlock()
	p.metrics.recordCacheSize(size)
	return ok
}

// Sweep removes expired cached messages and prunes the dedup store. It runs
// every CleanupInterval once started.
func (p *Processor) Sweep(ctx context.Context) int {
	now := p.clock.Now()

	p.mu.Lock()
	removed := 0
	for id, m := range p.cache {
		if m.IsExpired(now) {
			delete(p.cache, id)
			removed++
		}
	}
	size := len(p.cache)
	p.mu.Unlock()
	p.metrics.recordCacheSize(size)

	pruned, err := p.dedup.Prune(ctx)
	if err != nil {
		p.logger.Warn("Dedup prune failed", "error", err)
	}
	if removed > 0 || pruned > 0 {
		p.logger.Debug("Sweep complete", "expired_messages", removed, "pruned_ids", pruned)
	}
	return removed
}

// GetMessage returns a copy of a live cached message.
func (p *Processor) GetMessage(id string) (message.ReceivedMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.cache[id]
	if !ok || m.IsExpired(p.clock.Now()) {
		return message.ReceivedMessage{}, false
	}
	return *m, true
}

// GetCachedMessages returns copies of every live cached message, newest first.
func (p *Processor) GetCachedMessages() []message.ReceivedMessage {
	return p.collect(func(*message.ReceivedMessage) bool { return true })
}

// GetCachedMessagesByType is GetCachedMessages filtered to one type.
func (p *Processor) GetCachedMessagesByType(t message.Type) []message.ReceivedMessage {
	return p.collect(func(m *message.ReceivedMessage) bool { return m.Type == t })
}

func (p *Processor) collect(keep func(*message.ReceivedMessage) bool) []message.ReceivedMessage {
	now := p.clock.Now()

	p.mu.RLock()
	out := make([]message.ReceivedMessage, 0, len(p.cache))
	for _, m := range p.cache {
		if !m.IsExpired(now) && keep(m) {
			out = append(out, *m)
		}
	}
	p.mu.RUnlock()

	// Newest first.
	slices.SortFunc(out, func(a, b message.ReceivedMessage) int {
		switch {
		case olderThan(&b, &a):
			return -1
		case olderThan(&a, &b):
			return 1
		}
		return 0
	})
	return out
}

// MarkAsRead flags a cached message as read. It reports false when the
// message is not cached or has expired.
func (p *Processor) MarkAsRead(id string) bool {
	return p.update(id, func(m *message.ReceivedMessage) { m.IsRead = true })
}

// Acknowledge flags a cached message as acknowledged.
func (p *Processor) Acknowledge(id string) bool {
	return p.update(id, func(m *message.ReceivedMessage) { m.IsAcknowledged = true })
}

func (p *Processor) update(id string, fn func(*message.ReceivedMessage)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.cache[id]
	if !ok || m.IsExpired(p.clock.Now()) {
		return false
	}
	fn(m)
	return true
}

// MarkAllAsRead flags every live cached message as read and returns how many changed.
func (p *Processor) MarkAllAsRead() int {
	now := p.clock.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.cache {
		if !m.IsRead && !m.IsExpired(now) {
			m.IsRead = true
			n++
		}
	}
	return n
}

// UnreadCount counts live unread cached messages.
func (p *Processor) UnreadCount() int {
	now := p.clock.Now()
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, m := range p.cache {
		if !m.IsRead && !m.IsExpired(now) {
			n++
		}
	}
	return n
}

// DeleteMessage removes a message from the cache. Its ID stays in the dedup
// store, so a redelivery is still dropped.
func (p *Processor) DeleteMessage(id string) bool {
	return p.remove(id)
}

// ClearCache empties the message cache. Dedup records are kept.
func (p *Processor) ClearCache() {
	p.mu.Lock()
	p.cache = make(map[string]*message.ReceivedMessage)
	p.mu.Unlock()
	p.metrics.recordCacheSize(0)
}

// WaitIdle blocks until every queued dispatch has finished or ctx is done.
func (p *Processor) WaitIdle(ctx context.Context) error {
	return p.pool.WaitIdle(ctx)
}

// Stats returns a snapshot of the processor counters.
func (p *Processor) Stats() Stats {
	p.mu.RLock()
	size := len(p.cache)
	p.mu.RUnlock()

	return Stats{
		Processed:     p.processed.Load(),
		Duplicates:    p.duplicates.Load(),
		Expired:       p.expired.Load(),
		Invalid:       p.invalid.Load(),
		HandlerErrors: p.handlerErrors.Load(),
		Evicted:       p.evicted.Load(),
		CacheSize:     size,
		Dispatch:      p.pool.Stats(),
	}
}
