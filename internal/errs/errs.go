// Package errs defines the engine's error taxonomy: a closed set of
// error kinds shared across components so a caller can errors.Is/
// errors.As against a single vocabulary regardless of which component
// raised it.
package errs

import "errors"

// Sentinel error kinds. Components wrap these with fmt.Errorf("...: %w", ...)
// to attach context; callers match with errors.Is.
var (
	// ErrInvalidParameter signals a domain validation failure (negative
	// sigma, non-positive lambda, rho outside [-1,1], n <= 0, an
	// Order Request built with an invalid field combination).
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidRange signals a date range with end before start.
	ErrInvalidRange = errors.New("invalid range")

	// ErrEmptyResponseSequence signals a stub rule registered with no
	// response generator.
	ErrEmptyResponseSequence = errors.New("empty response sequence")

	// ErrMissingCorrelationKey signals a ledger record with neither a
	// request key nor a venue order id.
	ErrMissingCorrelationKey = errors.New("missing correlation key")

	// ErrDuplicateKey signals two concurrent SendAndAwait calls racing on
	// the same correlation key.
	ErrDuplicateKey = errors.New("duplicate correlation key")

	// ErrNoSession signals a send attempted with no transport session bound.
	ErrNoSession = errors.New("no session")

	// ErrTimeout signals a response never arrived within the deadline.
	ErrTimeout = errors.New("timeout")

	// ErrTransportFailure signals the downstream transport could not
	// deliver a message.
	ErrTransportFailure = errors.New("transport failure")
)

// AssertionFailure carries enough context to reproduce a failed ledger
// assertion locally from the error alone: the correlation key, the field
// name, and the three source values as formatted strings.
type AssertionFailure struct {
	Key       string
	Field     string
	FIXValue  string
	MQValue   string
	APIValue  string
}

// Error implements the error interface with a deterministic message.
func (e *AssertionFailure) Error() string {
	return "assertion failed: key=" + e.Key + " field=" + e.Field +
		" fix=" + e.FIXValue + " mq=" + e.MQValue + " api=" + e.APIValue
}
