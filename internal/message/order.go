package message

import (
	"fmt"

	"github.com/fixharness/engine/internal/errs"
)

// Side is the buy/sell/short-sell direction of an order.
type Side string

// The closed set of sides an Order Request may carry.
const (
	SideBuy       Side = "BUY"
	SideSell      Side = "SELL"
	SideShortSell Side = "SHORT_SELL"
)

// OrderType is the order's execution type.
type OrderType string

// The closed set of order types an Order Request may carry.
const (
	TypeMarket    OrderType = "MARKET"
	TypeLimit     OrderType = "LIMIT"
	TypeStop      OrderType = "STOP"
	TypeStopLimit OrderType = "STOP_LIMIT"
)

// TimeInForce is the order's time-in-force instruction.
type TimeInForce string

// The closed set of time-in-force values an Order Request may carry.
const (
	TIFDay      TimeInForce = "DAY"
	TIFGTC      TimeInForce = "GTC"
	TIFIOC      TimeInForce = "IOC"
	TIFFOK      TimeInForce = "FOK"
	TIFGTD      TimeInForce = "GTD"
	TIFAtClose  TimeInForce = "AT_CLOSE"
)

// Outcome is the expected result of an order, used by scenario authors to
// declare what a test should observe.
type Outcome string

// The closed set of expected outcomes an Order Request may carry.
const (
	OutcomeNew           Outcome = "NEW"
	OutcomePartialFill   Outcome = "PARTIAL_FILL"
	OutcomeFill          Outcome = "FILL"
	OutcomeCanceled      Outcome = "CANCELED"
	OutcomeReplaced      Outcome = "REPLACED"
	OutcomePendingCancel Outcome = "PENDING_CANCEL"
	OutcomeRejected      Outcome = "REJECTED"
)

// OrderRequest is an immutable, built value describing a client order.
// Construct it with NewOrderBuilder.
type OrderRequest struct {
	symbol          string
	side            Side
	orderType       OrderType
	price           float64
	hasPrice        bool
	quantity        int
	tif             TimeInForce
	account         string
	requestKey      string
	currency        string
	expectedOutcome Outcome
	hasOutcome      bool
}

// Symbol returns the order's symbol.
func (o OrderRequest) Symbol() string { return o.symbol }

// Side returns the order's side.
func (o OrderRequest) Side() Side { return o.side }

// Type returns the order's type.
func (o OrderRequest) Type() OrderType { return o.orderType }

// Price returns the order's limit/stop price and whether one was set.
func (o OrderRequest) Price() (float64, bool) { return o.price, o.hasPrice }

// Quantity returns the order's quantity.
func (o OrderRequest) Quantity() int { return o.quantity }

// TimeInForce returns the order's time-in-force.
func (o OrderRequest) TimeInForce() TimeInForce { return o.tif }

// Account returns the order's account, if set.
func (o OrderRequest) Account() string { return o.account }

// RequestKey returns the order's client-assigned request key, if set.
func (o OrderRequest) RequestKey() string { return o.requestKey }

// Currency returns the order's currency.
func (o OrderRequest) Currency() string { return o.currency }

// ExpectedOutcome returns the order's expected outcome and whether one was set.
func (o OrderRequest) ExpectedOutcome() (Outcome, bool) { return o.expectedOutcome, o.hasOutcome }

// OrderBuilder is a fluent, mutable builder for OrderRequest. The zero
// value is not usable; construct with NewOrderBuilder.
type OrderBuilder struct {
	req      OrderRequest
	hasType  bool
	hasSide  bool
	hasTIF   bool
}

// NewOrderBuilder starts a builder for symbol with the required quantity.
func NewOrderBuilder(symbol string, quantity int) *OrderBuilder {
	b := &OrderBuilder{}
	b.req.symbol = symbol
	b.req.quantity = quantity
	b.req.currency = "USD"
	return b
}

// Side sets the order side.
func (b *OrderBuilder) Side(s Side) *OrderBuilder {
	b.req.side = s
	b.hasSide = true
	return b
}

// Type sets the order type.
func (b *OrderBuilder) Type(t OrderType) *OrderBuilder {
	b.req.orderType = t
	b.hasType = true
	return b
}

// Price sets the limit/stop price.
func (b *OrderBuilder) Price(p float64) *OrderBuilder {
	b.req.price = p
	b.req.hasPrice = true
	return b
}

// TimeInForce sets the time-in-force.
func (b *OrderBuilder) TimeInForce(tif TimeInForce) *OrderBuilder {
	b.req.tif = tif
	b.hasTIF = true
	return b
}

// Account sets the account identifier.
func (b *OrderBuilder) Account(a string) *OrderBuilder {
	b.req.account = a
	return b
}

// RequestKey sets the client-assigned request key.
func (b *OrderBuilder) RequestKey(k string) *OrderBuilder {
	b.req.requestKey = k
	return b
}

// Currency overrides the default "USD" currency.
func (b *OrderBuilder) Currency(c string) *OrderBuilder {
	b.req.currency = c
	return b
}

// ExpectedOutcome sets the expected outcome a test should observe.
func (b *OrderBuilder) ExpectedOutcome(o Outcome) *OrderBuilder {
	b.req.expectedOutcome = o
	b.req.hasOutcome = true
	return b
}

// Build validates and returns the immutable OrderRequest, or an
// InvalidParameter-class error.
func (b *OrderBuilder) Build() (OrderRequest, error) {
	if b.req.symbol == "" {
		return OrderRequest{}, fmt.Errorf("%w: symbol is required", errs.ErrInvalidParameter)
	}
	if b.req.quantity <= 0 {
		return OrderRequest{}, fmt.Errorf("%w: quantity must be positive, got %d", errs.ErrInvalidParameter, b.req.quantity)
	}
	if !b.hasSide {
		b.req.side = SideBuy
	}
	if !b.hasType {
		b.req.orderType = TypeMarket
	}
	if !b.hasTIF {
		b.req.tif = TIFDay
	}
	switch b.req.orderType {
	case TypeLimit, TypeStop, TypeStopLimit:
		if !b.req.hasPrice {
			return OrderRequest{}, fmt.Errorf("%w: price is required for order type %s", errs.ErrInvalidParameter, b.req.orderType)
		}
	}
	if b.req.currency == "" {
		b.req.currency = "USD"
	}
	return b.req, nil
}
