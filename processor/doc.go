// Package processor turns inbound messages into deduplicated, cached
// ReceivedMessage records and dispatches them to registered handlers.
//
// Each message passes through these stages:
//
//  1. Validation against the envelope contract. Failures are counted as
//     invalid and returned to the caller; they never reach handlers.
//  2. Dedup: the message ID is checked and recorded atomically in a
//     DedupStore. A repeat within the dedup window is dropped.
//  3. Expiry: a message whose TTL deadline has passed is dropped.
//  4. Caching, bounded by MaxCacheSize. When the bound is exceeded the
//     messages with the oldest timestamps are evicted.
//  5. Dispatch: the message is queued on a single-worker pool, so handlers
//     see messages in processing order. For each message, every handler for
//     its type and every global handler run concurrently (bounded by
//     HandlerConcurrency). Handler errors and panics are logged and counted.
//
// Process returns as soon as the message is queued; WaitIdle waits for the
// queue to drain.
//
// # Dedup stores
//
// MemoryDedup is the default and is local to the process. The redisdedup
// subpackage shares processed IDs between processes that serve the same
// identity. If a store fails, the message is processed anyway.
//
// # Expiry and sweeping
//
// Expiry is checked again whenever the cache is read, so an expired message
// never shows up in GetCachedMessages. A background sweep every
// CleanupInterval also removes expired messages and prunes the dedup store.
//
// # Usage
//
//	p, err := processor.New(processor.DefaultConfig(), processor.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := p.Start(ctx); err != nil {
//	    return err
//	}
//	defer p.Close(5 * time.Second)
//
//	p.RegisterMessageHandler(message.TypeNotification, func(ctx context.Context, m message.ReceivedMessage) error {
//	    n, err := m.Notification()
//	    if err != nil {
//	        return err
//	    }
//	    logger.Info("notification", "title", n.Title)
//	    return nil
//	})
package processor
