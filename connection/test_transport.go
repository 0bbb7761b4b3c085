package connection

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/c360/ledpush/errors"
)

// SentFrame is a frame recorded by a TestSession.
type SentFrame struct {
	Destination string
	Body        []byte
	ContentType string
	Headers     map[string]string
}

// TestDialer is an in-memory Dialer for tests. Sessions it returns can be
// dropped, fed inbound frames, and inspected for what the manager sent.
type TestDialer struct {
	mu       sync.Mutex
	failures []error
	sessions []*TestSession
	dials    int
}

// NewTestDialer returns a dialer whose dials succeed until FailNext is used.
func NewTestDialer() *TestDialer {
	return &TestDialer{}
}

// FailNext makes the next n dials fail with err.
func (d *TestDialer) FailNext(n int, err error) {
	if err == nil {
		err = fmt.Errorf("dial refused")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.failures = append(d.failures, err)
	}
}

// Dial implements Dialer
func (d *TestDialer) Dial(ctx context.Context, url string, opts DialOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}

	s := &TestSession{
		URL:     url,
		Options: opts,
		subs:    make(map[string]*testSubscription),
		done:    make(chan struct{}),
	}
	d.sessions = append(d.sessions, s)
	return s, nil
}

// Dials returns the number of Dial calls so far.
func (d *TestDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Session returns the most recent successful session, or nil.
func (d *TestDialer) Session() *TestSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// Sessions returns every successful session in dial order.
func (d *TestDialer) Sessions() []*TestSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*TestSession(nil), d.sessions...)
}

type testSubscription struct {
	session     *TestSession
	id          string
	destination string
	deliver     func(Frame)
}

func (s *testSubscription) Unsubscribe(headers map[string]string) error {
	return s.session.unsubscribe(s.id, headers)
}

// TestSession is a Session created by TestDialer.
type TestSession struct {
	URL     string
	Options DialOptions

	mu           sync.Mutex
	subs         map[string]*testSubscription
	sent         []SentFrame
	unsubscribed []map[string]string
	subscribeErr error
	done         chan struct{}
	err          error
	ended        bool
}

// Send implements Session
func (s *TestSession) Send(_ context.Context, destination string, body []byte, contentType string, headers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return errors.ErrConnectionLost
	}
	s.sent = append(s.sent, SentFrame{
		Destination: destination,
		Body:        append([]byte(nil), body...),
		ContentType: contentType,
		Headers:     headers,
	})
	return nil
}

// Subscribe implements Session
func (s *TestSession) Subscribe(destination, id string, _ map[string]string, deliver func(Frame)) (SessionSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, errors.ErrConnectionLost
	}
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	sub := &testSubscription{session: s, id: id, destination: destination, deliver: deliver}
	s.subs[id] = sub
	return sub, nil
}

func (s *TestSession) unsubscribe(id string, headers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return errors.ErrConnectionLost
	}
	delete(s.subs, id)
	s.unsubscribed = append(s.unsubscribed, headers)
	return nil
}

// Done implements Session
func (s *TestSession) Done() <-chan struct{} {
	return s.done
}

// Err implements Session
func (s *TestSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements Session
func (s *TestSession) Close() error {
	s.end(nil)
	return nil
}

// Drop ends the session as if the broker went away. A nil err simulates a
// silent close.
func (s *TestSession) Drop(err error) {
	s.end(err)
}

func (s *TestSession) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	s.subs = make(map[string]*testSubscription)
	close(s.done)
}

// Closed reports whether the session has ended.
func (s *TestSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// FailSubscribe makes later Subscribe calls fail with err; nil restores them.
func (s *TestSession) FailSubscribe(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribeErr = err
}

// Inject delivers body to every subscription on destination and returns how
// many received it. Delivery is synchronous.
func (s *TestSession) Inject(destination string, body []byte) int {
	s.mu.Lock()
	targets := make([]*testSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.destination == destination {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(targets, func(a, b *testSubscription) int {
		return strings.Compare(a.id, b.id)
	})
	for _, sub := range targets {
		sub.deliver(Frame{
			Destination: destination,
			Headers:     map[string]string{"destination": destination, "subscription": sub.id},
			Body:        body,
		})
	}
	return len(targets)
}

// Sent returns every frame sent on the session.
func (s *TestSession) Sent() []SentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentFrame(nil), s.sent...)
}

// Destinations returns the destination of every live subscription, sorted.
// A destination subscribed twice appears twice.
func (s *TestSession) Destinations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub.destination)
	}
	slices.Sort(out)
	return out
}

// Unsubscribes returns the headers of every UNSUBSCRIBE sent.
func (s *TestSession) Unsubscribes() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.unsubscribed...)
}
