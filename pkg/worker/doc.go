// Package worker provides a generic bounded worker pool.
//
// A Pool runs a fixed number of goroutines that drain a buffered channel of work
// items. Submit never blocks and reports ErrQueueFull when the queue is at
// capacity; SubmitWait applies backpressure instead and blocks until there is room
// or the context ends. With one worker, items are processed strictly in
// submission order, which the message processor relies on for ordered dispatch.
//
//	pool := worker.NewPool(1, 1024, dispatch,
//	    worker.WithMetricsRegistry[*message.ReceivedMessage](registry, "ledpush_dispatch"))
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
//	if err := pool.SubmitWait(ctx, msg); err != nil {
//	    return err
//	}
//	_ = pool.WaitIdle(ctx) // every submitted item has been handled
//
// A processor that panics is recovered and counted as a failure. Statistics are
// always tracked; Prometheus metrics are registered only when a registry is given.
package worker
