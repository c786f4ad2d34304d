// Package correlate implements the initiator-side correlator: it matches
// inbound venue messages to outstanding requests by correlation key, with
// timeouts and at-most-once delivery per slot.
package correlate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fixharness/engine/internal/errs"
	"github.com/fixharness/engine/internal/message"
	"github.com/fixharness/engine/internal/transport"
)

// DefaultTimeout is used when SendAndAwait is called without an explicit
// timeout.
const DefaultTimeout = 30 * time.Second

// KeyExtractor pulls the correlation key out of an inbound message, and
// reports whether one was present.
type KeyExtractor func(msg *message.Message) (string, bool)

// DefaultKeyExtractor reads message.TagClientOrderID.
func DefaultKeyExtractor(msg *message.Message) (string, bool) {
	return msg.ClientOrderID()
}

// slot is a one-shot completion handle: exactly one of deliver or timeout
// resolves it, whichever happens first; removal from the correlator's map
// happens atomically with that resolution.
type slot struct {
	done chan struct{}
	once sync.Once
	msg  *message.Message
	err  error
}

func newSlot() *slot {
	return &slot{done: make(chan struct{})}
}

func (s *slot) resolve(msg *message.Message, err error) (won bool) {
	s.once.Do(func() {
		s.msg, s.err = msg, err
		close(s.done)
		won = true
	})
	return won
}

// Correlator maps outstanding request keys to one-shot completion slots.
type Correlator struct {
	sink    transport.Sink
	extract KeyExtractor

	mu      sync.Mutex
	slots   map[string]*slot
	session *transport.Session
}

// Option configures a Correlator at construction time.
type Option func(*Correlator)

// WithKeyExtractor overrides DefaultKeyExtractor.
func WithKeyExtractor(fn KeyExtractor) Option {
	return func(c *Correlator) { c.extract = fn }
}

// New returns a Correlator that forwards outbound messages through sink.
func New(sink transport.Sink, opts ...Option) *Correlator {
	c := &Correlator{
		sink:    sink,
		extract: DefaultKeyExtractor,
		slots:   make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BindSession marks a transport session as active, required before Send or
// SendAndAwait will accept a request.
func (c *Correlator) BindSession(s transport.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &s
}

// UnbindSession clears the active session, causing subsequent sends to
// fail with errs.ErrNoSession.
func (c *Correlator) UnbindSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

func (c *Correlator) activeSession() (transport.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return transport.Session{}, false
	}
	return *c.session, true
}

// SendAndAwait pre-registers a slot for key, forwards msg to transport, and
// waits for a response whose extracted correlation key equals key, up to
// timeout (DefaultTimeout if timeout <= 0). On timeout the slot is removed
// atomically and any later-arriving matching message is silently
// discarded. Fails with errs.ErrNoSession if no session is bound, and with
// errs.ErrDuplicateKey if another SendAndAwait for key is already
// outstanding.
func (c *Correlator) SendAndAwait(ctx context.Context, msg *message.Message, key string, timeout time.Duration) (*message.Message, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	session, ok := c.activeSession()
	if !ok {
		return nil, fmt.Errorf("%w: cannot send request %q", errs.ErrNoSession, key)
	}

	s := newSlot()
	c.mu.Lock()
	if _, exists := c.slots[key]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q already has an outstanding request", errs.ErrDuplicateKey, key)
	}
	c.slots[key] = s
	c.mu.Unlock()

	if err := c.sink.Send(msg, session); err != nil {
		c.removeSlot(key, s)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return s.msg, s.err
	case <-timer.C:
		// Remove atomically so any message delivered after this point
		// finds no slot. If a delivery already resolved the slot in the
		// window between the timer firing and this removal, that response
		// wins the one-shot resolve below and is returned instead of the
		// timeout.
		c.removeSlot(key, s)
		s.resolve(nil, fmt.Errorf("%w: no response for %q within %s", errs.ErrTimeout, key, timeout))
		return s.msg, s.err
	case <-ctx.Done():
		c.removeSlot(key, s)
		return nil, ctx.Err()
	}
}

func (c *Correlator) removeSlot(key string, expect *slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots[key] == expect {
		delete(c.slots, key)
	}
}

// Send forwards msg to transport with no slot registered (fire-and-forget).
func (c *Correlator) Send(msg *message.Message) error {
	session, ok := c.activeSession()
	if !ok {
		return fmt.Errorf("%w: cannot send", errs.ErrNoSession)
	}
	return c.sink.Send(msg, session)
}

// Deliver is called by the transport for each inbound application message.
// If msg carries a correlation key with an outstanding slot, it completes
// that slot (removing it) and claims the message; otherwise the message is
// dropped here (another observer may still handle it). At most one of two
// concurrent Deliver calls for the same key wins; the other is a no-op.
func (c *Correlator) Deliver(msg *message.Message) {
	key, ok := c.extract(msg)
	if !ok {
		return
	}
	c.mu.Lock()
	s, exists := c.slots[key]
	if exists {
		delete(c.slots, key)
	}
	c.mu.Unlock()
	if !exists {
		return
	}
	s.resolve(msg, nil)
}
