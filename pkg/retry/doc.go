// Package retry provides exponential backoff with jitter for transient failures.
//
// # Overview
//
// Two layers are offered. The pure functions compute delays and are used by
// components that own their own timers (the connection manager schedules reconnects
// on a cancellable task rather than sleeping):
//
//   - Backoff: min(maxDelay, initial * multiplier^(attempt-1)), never decreasing
//   - Jitter: adds a random amount in [0, fraction*delay)
//
// The retry loop runs a function until it succeeds, returns a NonRetryable error,
// the context is cancelled, or attempts run out:
//
//   - Do: execute fn with retry and exponential backoff
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 4 attempts, 50ms-1s delay (small control frames such as acknowledgements)
//
// # Usage
//
//	delay := retry.Jitter(retry.Backoff(attempt, time.Second, 30*time.Second, 2), 0.25)
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    if !conn.IsConnected() {
//	        return retry.NonRetryable(errors.ErrNotConnected)
//	    }
//	    return conn.Send(ctx, dest, body, nil)
//	})
package retry
