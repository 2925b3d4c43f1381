package backtest

import "time"

// EventType enumerates the event taxonomy emitted to strategies.
type EventType string

const (
	EventOrderSubmitted      EventType = "ORDER_SUBMITTED"
	EventOrderAccepted       EventType = "ORDER_ACCEPTED"
	EventOrderRejected       EventType = "ORDER_REJECTED"
	EventOrderPendingReplace EventType = "ORDER_PENDING_REPLACE"
	EventOrderUpdated        EventType = "ORDER_UPDATED"
	EventOrderUpdateRejected EventType = "ORDER_UPDATE_REJECTED"
	EventOrderPendingCancel  EventType = "ORDER_PENDING_CANCEL"
	EventOrderCanceled       EventType = "ORDER_CANCELED"
	EventOrderCancelRejected EventType = "ORDER_CANCEL_REJECTED"
	EventOrderTriggered      EventType = "ORDER_TRIGGERED"
	EventOrderExpired        EventType = "ORDER_EXPIRED"
	EventOrderFilled         EventType = "ORDER_FILLED"
	EventPositionOpened      EventType = "POSITION_OPENED"
	EventPositionChanged     EventType = "POSITION_CHANGED"
	EventPositionClosed      EventType = "POSITION_CLOSED"
	EventAccountState        EventType = "ACCOUNT_STATE"
)

// OrderEvent is the envelope for every order-lifecycle event. Not
// every field is populated for every Type — e.g. Reason only on rejections,
// FillPrice/FillQty/Liquidity only on EventOrderFilled.
type OrderEvent struct {
	Type          EventType
	ClientOrderID string
	VenueOrderID  string
	InstrumentID  InstrumentID
	StrategyID    string
	Status        OrderStatus
	Reason        string

	FillPrice    Price
	FillQuantity Quantity
	Liquidity    LiquiditySide
	Commission   Money

	PositionID string

	TsEvent int64
	TsInit  int64
}

// PositionEvent reports a position lifecycle transition.
type PositionEvent struct {
	Type         EventType
	PositionID   string
	InstrumentID InstrumentID
	StrategyID   string
	Side         PositionSide
	Quantity     Quantity
	AvgOpenPrice Price
	RealizedPnL  Money
	TsEvent      int64
	TsInit       int64
}

// AccountStateEvent reports every balance after an adjustment.
type AccountStateEvent struct {
	VenueName string
	Balances  []AccountBalance
	TsEvent   int64
	TsInit    int64
}

// sinceEpoch converts a time.Time to nanoseconds, the fingerprint-timestamp
// unit every event is ordered by.
func sinceEpoch(t time.Time) int64 { return t.UnixNano() }
