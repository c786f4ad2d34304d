package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/fixharness/engine/internal/errs"
	"github.com/fixharness/engine/internal/external"
)

// Decoder parses a raw payload (a message-bus frame or an HTTP response
// body) into a TradeRecord. Source is overwritten by the caller after
// decode returns, so a Decoder never needs to set it itself.
type Decoder func(payload []byte) (TradeRecord, error)

// IngestFromBus listens on destination for one MQ payload, decodes it with
// decode, and records it as the MQ source. Used by tests that drive the
// ledger's MQ side off a real or fake message bus rather than inserting
// TradeRecords directly.
func (l *Ledger) IngestFromBus(ctx context.Context, bus external.MessageBus, destination string, timeout time.Duration, decode Decoder) error {
	payload, err := bus.Listen(ctx, destination, timeout)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", destination, err)
	}
	rec, err := decode(payload)
	if err != nil {
		return fmt.Errorf("decoding MQ payload from %q: %w", destination, err)
	}
	rec.Source = MQ
	return l.AddRecord(rec)
}

// IngestFromAPI issues an authenticated GET against path through client,
// decodes the response body with decode, and records it as the API
// source. Fails with errs.ErrTransportFailure if the response status is
// outside 2xx.
func (l *Ledger) IngestFromAPI(ctx context.Context, client external.HTTPClient, path string, decode Decoder) error {
	status, body, err := client.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("querying %q: %w", path, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: unexpected status %d from %q", errs.ErrTransportFailure, status, path)
	}
	rec, err := decode(body)
	if err != nil {
		return fmt.Errorf("decoding API response from %q: %w", path, err)
	}
	rec.Source = API
	return l.AddRecord(rec)
}
