package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus is a minimal external.MessageBus satisfied by one queued payload
// per destination, enough to exercise IngestFromBus without a real broker.
type fakeBus struct {
	queued map[string][]byte
	err    error
}

func (b *fakeBus) Publish(destination string, payload []byte) error {
	if b.queued == nil {
		b.queued = make(map[string][]byte)
	}
	b.queued[destination] = payload
	return nil
}

func (b *fakeBus) Listen(_ context.Context, destination string, _ time.Duration) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.queued[destination], nil
}

func (b *fakeBus) ListenWithFilter(ctx context.Context, destination string, predicate func([]byte) bool, timeout time.Duration) ([]byte, error) {
	payload, err := b.Listen(ctx, destination, timeout)
	if err != nil {
		return nil, err
	}
	if !predicate(payload) {
		return nil, errors.New("no payload matched predicate")
	}
	return payload, nil
}

// fakeHTTPClient is a minimal external.HTTPClient returning a fixed status
// and body for Get, enough to exercise IngestFromAPI.
type fakeHTTPClient struct {
	status int
	body   []byte
	err    error
}

func (c *fakeHTTPClient) Get(context.Context, string) (int, []byte, error) {
	return c.status, c.body, c.err
}
func (c *fakeHTTPClient) Post(context.Context, string, []byte) (int, []byte, error) {
	return c.status, c.body, c.err
}
func (c *fakeHTTPClient) Put(context.Context, string, []byte) (int, []byte, error) {
	return c.status, c.body, c.err
}
func (c *fakeHTTPClient) Delete(context.Context, string) (int, []byte, error) {
	return c.status, c.body, c.err
}

func decodeSymbolPrice(payload []byte) (TradeRecord, error) {
	return TradeRecord{RequestKey: "REQ-BUS", Symbol: string(payload), Price: 100}, nil
}

func TestIngestFromBus_PopulatesMQSource(t *testing.T) {
	bus := &fakeBus{}
	require.NoError(t, bus.Publish("trades.mq", []byte("MSFT")))

	l := New(DefaultConfig)
	err := l.IngestFromBus(context.Background(), bus, "trades.mq", time.Second, decodeSymbolPrice)
	require.NoError(t, err)

	result := l.Reconcile("REQ-BUS")
	found := false
	for _, v := range result.Verdicts {
		if v.FieldName == "symbol" {
			found = true
			assert.Equal(t, "MSFT", v.MQValue)
		}
	}
	assert.True(t, found, "expected a symbol verdict after MQ ingest")
}

func TestIngestFromBus_ListenErrorPropagates(t *testing.T) {
	bus := &fakeBus{err: errors.New("broker unreachable")}
	l := New(DefaultConfig)
	err := l.IngestFromBus(context.Background(), bus, "trades.mq", time.Second, decodeSymbolPrice)
	require.Error(t, err)
}

func decodeAPIBody(payload []byte) (TradeRecord, error) {
	return TradeRecord{RequestKey: "REQ-API", Symbol: string(payload), Price: 100}, nil
}

func TestIngestFromAPI_PopulatesAPISource(t *testing.T) {
	client := &fakeHTTPClient{status: 200, body: []byte("AAPL")}
	l := New(DefaultConfig)
	err := l.IngestFromAPI(context.Background(), client, "/trades/REQ-API", decodeAPIBody)
	require.NoError(t, err)

	result := l.Reconcile("REQ-API")
	for _, v := range result.Verdicts {
		if v.FieldName == "symbol" {
			assert.Equal(t, "AAPL", v.APIValue)
		}
	}
}

func TestIngestFromAPI_NonSuccessStatusFails(t *testing.T) {
	client := &fakeHTTPClient{status: 503, body: []byte("unavailable")}
	l := New(DefaultConfig)
	err := l.IngestFromAPI(context.Background(), client, "/trades/REQ-API", decodeAPIBody)
	require.Error(t, err)
}
