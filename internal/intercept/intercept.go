// Package intercept implements the venue-side interceptor: it consumes
// inbound messages, matches them against the stub registry, applies the
// matched rule's delay, synthesizes a response, normalizes its headers,
// propagates correlation fields, and hands it to a transport sink.
package intercept

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fixharness/engine/internal/message"
	"github.com/fixharness/engine/internal/stub"
	"github.com/fixharness/engine/internal/transport"
)

// Interceptor drives the venue side of the stub registry.
type Interceptor struct {
	registry        *stub.Registry
	sink            transport.Sink
	logger          *log.Logger
	correlationTags []int
}

// Option configures an Interceptor at construction time.
type Option func(*Interceptor)

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(i *Interceptor) { i.logger = logger }
}

// WithCorrelationTags sets the full list of body tags copied from request
// to response. message.TagClientOrderID is always included even if
// omitted here, per spec ("minimally the client-assigned order-id tag").
func WithCorrelationTags(tags ...int) Option {
	return func(i *Interceptor) { i.correlationTags = tags }
}

// New returns an Interceptor that matches against registry and hands
// synthesized responses to sink.
func New(registry *stub.Registry, sink transport.Sink, opts ...Option) *Interceptor {
	i := &Interceptor{
		registry: registry,
		sink:     sink,
		logger:   log.New(os.Stderr, "intercept: ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(i)
	}
	hasClientOrderID := false
	for _, t := range i.correlationTags {
		if t == message.TagClientOrderID {
			hasClientOrderID = true
			break
		}
	}
	if !hasClientOrderID {
		i.correlationTags = append(i.correlationTags, message.TagClientOrderID)
	}
	return i
}

// Handle processes one inbound message on session. It returns true if a
// rule matched and a response was (attempted to be) sent, false if no
// rule matched. Transport errors are logged and returned, not panicked;
// they never abort processing of the next message.
func (i *Interceptor) Handle(ctx context.Context, msg *message.Message, session transport.Session) (bool, error) {
	rule := i.registry.FindMatch(msg)
	if rule == nil {
		return false, nil
	}

	if rule.Delay > 0 {
		timer := time.NewTimer(rule.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			i.logger.Printf("delay for rule %q aborted: %v", rule.Label, ctx.Err())
			return false, nil
		}
	}

	resp := stub.GenerateResponse(rule, msg)
	if resp == nil {
		i.logger.Printf("rule %q produced no response for inbound message", rule.Label)
		return false, nil
	}

	// Header normalization: the response routes back to the original
	// sender, so sender/target are the request's target/sender, swapped.
	resp.SetSender(session.LocalID)
	resp.SetTarget(session.RemoteID)

	for _, tag := range i.correlationTags {
		message.CopyTag(resp, msg, tag)
	}

	if err := i.sink.Send(resp, session); err != nil {
		i.logger.Printf("transport failure delivering response for rule %q: %v", rule.Label, err)
		return true, err
	}
	return true, nil
}
