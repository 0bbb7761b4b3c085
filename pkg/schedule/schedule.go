// Package schedule runs cancellable one-shot and periodic tasks against a
// clock.Clock so that timer-driven behaviour can be tested with a mock clock.
package schedule

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler creates tasks bound to one clock.
type Scheduler struct {
	clock clock.Clock
}

// New returns a scheduler on c, or on the wall clock when c is nil.
func New(c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.New()
	}
	return &Scheduler{clock: c}
}

// Clock returns the clock tasks are scheduled on.
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// Task is a handle to a scheduled function. Cancel is safe to call more than once
// and from any goroutine.
type Task struct {
	mu        sync.Mutex
	timer     *clock.Timer
	ticker    *clock.Ticker
	stop      chan struct{}
	cancelled bool
	fired     bool
}

// After runs fn once, d from now, on its own goroutine.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	t := &Task{}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = s.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if t.cancelled {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()
		fn()
	})
	return t
}

// Every runs fn every d until the task is cancelled. Runs never overlap; a tick
// that arrives while fn is still running is dropped.
func (s *Scheduler) Every(d time.Duration, fn func()) *Task {
	t := &Task{
		ticker: s.clock.Ticker(d),
		stop:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.stop:
				return
			case <-t.ticker.C:
				select {
				case <-t.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

// Cancel stops the task. For a one-shot task it reports whether the call
// prevented the function from running.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		return false
	}
	t.cancelled = true

	if t.ticker != nil {
		t.ticker.Stop()
		close(t.stop)
		return true
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	return !t.fired
}

// Pending reports whether a one-shot task is still waiting to run.
func (t *Task) Pending() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled && !t.fired
}
