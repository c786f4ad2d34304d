// Package external declares the abstract collaborator interfaces the core
// expects its embedding test harness to supply: a publish/listen message
// bus, a path-based HTTP/REST client with pluggable bearer-token
// authentication, and an optional natural-language provider. The core
// only declares these interfaces and consumes them where a component
// needs one; concrete implementations (a real JMS/Kafka client, a
// net/http-backed REST client, an OAuth2 token cache, a hosted LLM API
// client) live outside this module, the same way a broker package might
// declare a Broker interface that only one concrete client implements.
package external

import (
	"context"
	"time"
)

// MessageBus is the publish/listen collaborator tests use to populate the
// reconciliation ledger's MQ source.
type MessageBus interface {
	// Publish sends payload to destination.
	Publish(destination string, payload []byte) error

	// Listen blocks for the next payload delivered to destination, up to
	// timeout, honoring ctx cancellation.
	Listen(ctx context.Context, destination string, timeout time.Duration) ([]byte, error)

	// ListenWithFilter is Listen restricted to payloads predicate accepts;
	// non-matching payloads are discarded without returning.
	ListenWithFilter(ctx context.Context, destination string, predicate func(payload []byte) bool, timeout time.Duration) ([]byte, error)
}

// HTTPClient is the path-based REST collaborator tests use to populate the
// reconciliation ledger's API source.
type HTTPClient interface {
	Get(ctx context.Context, path string) (statusCode int, body []byte, err error)
	Post(ctx context.Context, path string, body []byte) (statusCode int, respBody []byte, err error)
	Put(ctx context.Context, path string, body []byte) (statusCode int, respBody []byte, err error)
	Delete(ctx context.Context, path string) (statusCode int, respBody []byte, err error)
}

// Authenticator supplies the bearer token an HTTPClient implementation
// attaches to outbound requests, and the token's expiry so the caller
// knows when to refresh. An HTTPClient adapter is expected to hold its
// own Authenticator; the core never calls one directly.
type Authenticator interface {
	Token(ctx context.Context) (token string, expiry time.Time, err error)
}

// LLMProvider is the optional natural-language collaborator the scenario
// translator defers to before falling back to its own deterministic
// keyword rules. A nil provider, or one whose IsAvailable returns false,
// is the normal case.
type LLMProvider interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
	IsAvailable() bool
}
