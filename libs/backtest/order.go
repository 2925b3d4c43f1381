package backtest

import (
	"time"

	"github.com/google/uuid"
)

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the sum-type tag for Order.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
)

// OrderStatus is a node in the order lifecycle state machine.
type OrderStatus string

const (
	StatusInitialized    OrderStatus = "INITIALIZED"
	StatusSubmitted      OrderStatus = "SUBMITTED"
	StatusAccepted       OrderStatus = "ACCEPTED"
	StatusRejected       OrderStatus = "REJECTED"
	StatusPendingUpdate  OrderStatus = "PENDING_UPDATE"
	StatusPendingCancel  OrderStatus = "PENDING_CANCEL"
	StatusTriggered      OrderStatus = "TRIGGERED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled         OrderStatus = "FILLED"
	StatusCanceled       OrderStatus = "CANCELED"
	StatusExpired        OrderStatus = "EXPIRED"
)

// IsTerminal reports whether status is one of the terminal states.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// IsWorking reports whether an order in this status still rests in the
// venue's working-order set and can be matched/triggered/expired.
func (s OrderStatus) IsWorking() bool {
	switch s {
	case StatusAccepted, StatusTriggered, StatusPartiallyFilled:
		return true
	}
	return false
}

// orderTransitions encodes the allowed-transition table for order status.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusInitialized: {StatusSubmitted: true},
	StatusSubmitted:    {StatusAccepted: true, StatusRejected: true},
	StatusAccepted: {
		StatusPendingUpdate: true, StatusPendingCancel: true, StatusTriggered: true,
		StatusPartiallyFilled: true, StatusFilled: true, StatusCanceled: true, StatusExpired: true,
	},
	StatusPendingUpdate: {StatusAccepted: true, StatusRejected: true},
	StatusPendingCancel: {StatusCanceled: true, StatusRejected: true},
	StatusTriggered: {
		StatusPendingCancel: true, StatusRejected: true,
		StatusPartiallyFilled: true, StatusFilled: true, StatusCanceled: true, StatusExpired: true,
	},
	StatusPartiallyFilled: {
		StatusPendingCancel: true,
		StatusPartiallyFilled: true, StatusFilled: true, StatusCanceled: true, StatusExpired: true,
	},
}

// canTransition reports whether the from→to edge is legal.
func canTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// Order is a tagged union over {Market, Limit, StopMarket, StopLimit}; the
// Type field is the tag and the matching engine dispatches on it via an
// exhaustive switch.
type Order struct {
	ClientOrderID string // strategy-assigned, unique
	VenueOrderID  string // assigned on accept

	InstrumentID InstrumentID
	Type         OrderType
	Side         Side

	Quantity       Quantity
	FilledQuantity Quantity
	AvgPrice       Price

	Status OrderStatus

	// Price is the limit price (Limit) or the stop's limit leg (StopLimit).
	Price Price
	// TriggerPrice is the stop price (StopMarket, StopLimit).
	TriggerPrice Price

	IsPostOnly  bool
	IsTriggered bool // StopLimit only: true once the trigger has fired

	StrategyID string
	PositionID string // set once a fill opens/joins a position

	SubmittedAt time.Time
	AcceptedAt  time.Time
	ExpireAt    *time.Time // optional GTD expiry, simulation time

	RejectReason string

	// ocoPartner is the client order id of this order's OCO counterpart, if any.
	ocoPartner string
	// bracketParent is set on bracket exit legs, naming the entry's client order id.
	bracketParent string
}

// NewMarketOrder constructs an INITIALIZED market order.
func NewMarketOrder(instrument InstrumentID, side Side, qty Quantity, strategyID string) *Order {
	return &Order{
		ClientOrderID: uuid.NewString(),
		InstrumentID:  instrument,
		Type:          OrderTypeMarket,
		Side:          side,
		Quantity:      qty,
		Status:        StatusInitialized,
		StrategyID:    strategyID,
	}
}

// NewLimitOrder constructs an INITIALIZED limit order.
func NewLimitOrder(instrument InstrumentID, side Side, qty Quantity, price Price, postOnly bool, strategyID string) *Order {
	return &Order{
		ClientOrderID: uuid.NewString(),
		InstrumentID:  instrument,
		Type:          OrderTypeLimit,
		Side:          side,
		Quantity:      qty,
		Price:         price,
		IsPostOnly:    postOnly,
		Status:        StatusInitialized,
		StrategyID:    strategyID,
	}
}

// NewStopMarketOrder constructs an INITIALIZED stop-market order.
func NewStopMarketOrder(instrument InstrumentID, side Side, qty Quantity, stopPrice Price, strategyID string) *Order {
	return &Order{
		ClientOrderID: uuid.NewString(),
		InstrumentID:  instrument,
		Type:          OrderTypeStopMarket,
		Side:          side,
		Quantity:      qty,
		TriggerPrice:  stopPrice,
		Status:        StatusInitialized,
		StrategyID:    strategyID,
	}
}

// NewStopLimitOrder constructs an INITIALIZED stop-limit order.
func NewStopLimitOrder(instrument InstrumentID, side Side, qty Quantity, stopPrice, limitPrice Price, strategyID string) *Order {
	return &Order{
		ClientOrderID: uuid.NewString(),
		InstrumentID:  instrument,
		Type:          OrderTypeStopLimit,
		Side:          side,
		Quantity:      qty,
		TriggerPrice:  stopPrice,
		Price:         limitPrice,
		Status:        StatusInitialized,
		StrategyID:    strategyID,
	}
}

// LeavesQuantity returns Quantity − FilledQuantity.
func (o *Order) LeavesQuantity() Quantity {
	return o.Quantity.Sub(o.FilledQuantity)
}

// transition moves the order to `to`, panicking via panicState if the edge
// is not in orderTransitions — a state-machine violation is a programmer
// error, never a strategy-facing rejection.
func (o *Order) transition(to OrderStatus) {
	if !canTransition(o.Status, to) {
		panicState(o.ClientOrderID, o.Status, "transition to "+string(to))
	}
	o.Status = to
}

// applyFill records a fill of qty at price against the order, transitioning
// to PARTIALLY_FILLED or FILLED and maintaining the size-weighted average
// open price.
func (o *Order) applyFill(qty Quantity, price Price) {
	// The weighted-average computation runs in float64 space deliberately:
	// chaining Money.Add/Round across fills would round the running notional
	// to whatever precision the *previous* AvgPrice happened to carry (zero,
	// before the first fill), truncating real fractional notional. AvgPrice
	// itself is still re-quantized to price.Precision() below.
	prevNotional := o.FilledQuantity.Float64() * o.AvgPrice.Float64()
	newNotional := prevNotional + qty.Float64()*price.Float64()

	o.FilledQuantity = o.FilledQuantity.Add(qty)
	if !o.FilledQuantity.IsZero() {
		avg := newNotional / o.FilledQuantity.Float64()
		o.AvgPrice = NewPrice(avg, price.Precision())
	}

	if o.FilledQuantity.GreaterThanOrEqual(o.Quantity) {
		o.transition(StatusFilled)
	} else {
		o.transition(StatusPartiallyFilled)
	}
}
