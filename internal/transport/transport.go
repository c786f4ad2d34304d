// Package transport declares the abstract collaborators the interceptor
// and correlator hand messages to and receive them from, plus one
// concrete in-memory adapter for demos and tests: Loopback, wrapped in a
// circuit breaker the way a resilient downstream client would be.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/fixharness/engine/internal/errs"
	"github.com/fixharness/engine/internal/message"
	"github.com/sony/gobreaker"
)

// Session identifies the local/remote endpoint pair a message travels on.
type Session struct {
	LocalID  string
	RemoteID string
}

// Sink is the interceptor-side transport collaborator: it delivers a
// synthesized venue response to the wire.
type Sink interface {
	Send(msg *message.Message, session Session) error
}

// Inbound is the correlator-side transport collaborator: whatever drives
// inbound application messages calls Deliver on it. Defined as a narrow
// interface (rather than depending on the correlator package directly) so
// a transport implementation doesn't need to import correlate.
type Inbound interface {
	Deliver(msg *message.Message)
}

// Loopback is an in-memory Sink that fans delivered messages out to every
// registered Inbound observer, simulating a venue<->initiator wire without
// a real network. It is wrapped in a gobreaker.CircuitBreaker so repeated
// TransportFailures (simulated via FailNext) trip the breaker the same way
// a real downstream outage would.
type Loopback struct {
	mu        sync.Mutex
	observers []Inbound
	breaker   *gobreaker.CircuitBreaker[any]
	failNext  int
}

// NewLoopback returns a Loopback with a circuit breaker tuned to trip
// after 5 consecutive failures, a conservative default for a downstream
// dependency that fails silently rather than loudly.
func NewLoopback() *Loopback {
	l := &Loopback{}
	l.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: "loopback-transport",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 10 * time.Second,
	})
	return l
}

// Subscribe registers an Inbound observer to receive every message sent
// through this loopback.
func (l *Loopback) Subscribe(in Inbound) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, in)
}

// FailNext arranges for the next n Send calls to fail with
// errs.ErrTransportFailure, for exercising TransportFailure handling in
// tests.
func (l *Loopback) FailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = n
}

// Send delivers msg to every subscribed observer, through the circuit
// breaker. Returns errs.ErrTransportFailure (wrapped) if the breaker is
// open or the call is artificially failed via FailNext.
func (l *Loopback) Send(msg *message.Message, _ Session) error {
	_, err := l.breaker.Execute(func() (any, error) {
		l.mu.Lock()
		shouldFail := l.failNext > 0
		if shouldFail {
			l.failNext--
		}
		observers := append([]Inbound(nil), l.observers...)
		l.mu.Unlock()

		if shouldFail {
			return nil, fmt.Errorf("%w: simulated downstream failure", errs.ErrTransportFailure)
		}
		for _, obs := range observers {
			obs.Deliver(msg)
		}
		return nil, nil
	})
	if err != nil {
		if breakerErr := asBreakerOpenError(err); breakerErr != nil {
			return fmt.Errorf("%w: %v", errs.ErrTransportFailure, breakerErr)
		}
		return err
	}
	return nil
}

func asBreakerOpenError(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return err
	}
	return nil
}
