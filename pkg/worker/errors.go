package worker

import "errors"

// Returned by Pool lifecycle and submission calls. The processor wraps a
// failed SubmitWait as transient and forgets the undispatched message.
var (
	// ErrPoolNotStarted is returned by Submit before Start.
	ErrPoolNotStarted = errors.New("dispatch pool not started")
	// ErrPoolStopped is returned once Stop has begun; late deliveries after a
	// client shutdown land here.
	ErrPoolStopped = errors.New("dispatch pool stopped")
	// ErrPoolAlreadyStarted is returned by a second Start.
	ErrPoolAlreadyStarted = errors.New("dispatch pool already started")
	// ErrQueueFull means every queue slot holds an undispatched message.
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrNilProcessor is the panic value of NewPool without a handler func.
	ErrNilProcessor = errors.New("dispatch func cannot be nil")
	// ErrStopTimeout means a handler was still running when Stop gave up.
	ErrStopTimeout = errors.New("timeout waiting for dispatch handlers to return")
)
