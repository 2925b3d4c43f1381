package backtest

import (
	"time"

	"github.com/google/uuid"
)

// OmsType selects how fills are grouped into positions.
type OmsType string

const (
	// OmsNetting reuses a single open position per (strategy, instrument).
	OmsNetting OmsType = "NETTING"
	// OmsHedging opens a new position per fill/bracket, even for the same instrument.
	OmsHedging OmsType = "HEDGING"
)

// PositionSide is the directional state of a Position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionFlat  PositionSide = "FLAT"
)

// Position tracks the net holding opened by the first fill for a given
// (strategy, instrument) under the venue's OmsType.
type Position struct {
	ID           string
	InstrumentID InstrumentID
	StrategyID   string

	Side     PositionSide
	Quantity Quantity // always non-negative; Side carries direction

	AvgOpenPrice  Price
	AvgClosePrice Price
	EntrySide     Side

	RealizedPnL Money
	Commission  Money

	OpenedAt time.Time
	ClosedAt *time.Time
}

// NewPosition opens a position from the first fill.
func NewPosition(instrument InstrumentID, strategyID string, entrySide Side, qty Quantity, price Price, openedAt time.Time, settlement Currency) *Position {
	side := PositionLong
	if entrySide == SideSell {
		side = PositionShort
	}
	return &Position{
		ID:            uuid.NewString(),
		InstrumentID:  instrument,
		StrategyID:    strategyID,
		Side:          side,
		Quantity:      qty,
		AvgOpenPrice:  price,
		EntrySide:     entrySide,
		RealizedPnL:   NewMoney(0, settlement),
		Commission:    NewMoney(0, settlement),
		OpenedAt:      openedAt,
	}
}

// IsOpen reports whether the position still carries non-zero quantity.
func (p *Position) IsOpen() bool { return !p.Quantity.IsZero() }

// isClosing reports whether a fill on `side` reduces this position (i.e. is
// opposite to the position's entry side).
func (p *Position) isClosing(side Side) bool {
	return (p.Side == PositionLong && side == SideSell) || (p.Side == PositionShort && side == SideBuy)
}

// applyFill updates quantity/avg prices/realized PnL for a fill on `side`.
// It returns the PnL realized by this specific fill (zero if the fill
// increases rather than reduces the position).
func (p *Position) applyFill(side Side, qty Quantity, price Price, filledAt time.Time) Money {
	settlement := p.RealizedPnL.Currency()

	if !p.isClosing(side) {
		// Adding to the position: roll the average open price forward.
		prevNotional := p.Quantity.Mul(p.AvgOpenPrice)
		newNotional := prevNotional.Add(qty.Mul(price))
		p.Quantity = p.Quantity.Add(qty)
		if !p.Quantity.IsZero() {
			p.AvgOpenPrice = NewPrice(newNotional.Float64()/p.Quantity.Float64(), price.Precision())
		}
		return NewMoney(0, settlement)
	}

	// Closing (fully or partially): realize PnL on the closed quantity. A
	// fill larger than the open quantity is a reversal: it closes the
	// existing side entirely and reopens the position on the opposite side
	// with the excess, at this same fill's price.
	closingQty := qty
	reversalQty := NewQuantity(0, qty.Precision())
	if qty.GreaterThan(p.Quantity) {
		reversalQty = qty.Sub(p.Quantity)
		closingQty = p.Quantity
	}
	pnl := p.calculatePnL(p.AvgOpenPrice, price, closingQty)

	p.Quantity = p.Quantity.Sub(closingQty)
	p.AvgClosePrice = price
	p.RealizedPnL = p.RealizedPnL.Add(pnl)

	if p.Quantity.IsZero() {
		if !reversalQty.IsZero() {
			newSide := PositionLong
			if side == SideSell {
				newSide = PositionShort
			}
			p.Side = newSide
			p.EntrySide = side
			p.Quantity = reversalQty
			p.AvgOpenPrice = price
			p.OpenedAt = filledAt
			p.ClosedAt = nil
		} else {
			now := filledAt
			p.ClosedAt = &now
			p.Side = PositionFlat
		}
	}
	return pnl
}

// calculatePnL computes realized PnL for closing qty of this position at
// closePrice, given it was opened at openPrice. Long positions profit when
// price rises; short positions profit when price falls.
func (p *Position) calculatePnL(openPrice, closePrice Price, qty Quantity) Money {
	settlement := p.RealizedPnL.Currency()
	diff := closePrice.Sub(openPrice)
	if p.Side == PositionShort {
		diff = openPrice.Sub(closePrice)
	}
	return NewMoney(diff.Float64()*qty.Float64(), settlement)
}

// ─── Bracket ─────────────────────────────────────────────────────────────────

// Bracket is a composite command: one entry order plus up to two exit
// orders (stop-loss, optional take-profit). The exits are mutually OCO and
// are not submitted to the venue until the entry fills.
type Bracket struct {
	Entry      *Order
	StopLoss   *Order
	TakeProfit *Order // nil if not provided

	// PositionID is pre-generated at submission time so both exits can
	// reference the position they will protect before it exists.
	PositionID string
}

// Children returns the non-nil exit legs.
func (b *Bracket) Children() []*Order {
	var out []*Order
	if b.StopLoss != nil {
		out = append(out, b.StopLoss)
	}
	if b.TakeProfit != nil {
		out = append(out, b.TakeProfit)
	}
	return out
}
