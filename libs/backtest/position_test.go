package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionOpensLongOnBuyFill(t *testing.T) {
	p := NewPosition(InstrumentID{Symbol: "AAPL", Venue: "SIM"}, "strat-1", SideBuy, NewQuantity(100, 0), NewPrice(10, 2), time.Unix(0, 0), USD)

	assert.Equal(t, PositionLong, p.Side)
	assert.True(t, p.IsOpen())
}

func TestPositionAddingToSideRollsAveragePrice(t *testing.T) {
	p := NewPosition(InstrumentID{Symbol: "AAPL", Venue: "SIM"}, "strat-1", SideBuy, NewQuantity(100, 0), NewPrice(10, 2), time.Unix(0, 0), USD)

	pnl := p.applyFill(SideBuy, NewQuantity(100, 0), NewPrice(12, 2), time.Unix(0, 0))

	assert.True(t, pnl.IsZero())
	assert.True(t, p.Quantity.Equal(NewQuantity(200, 0)))
	assert.Equal(t, "11.00", p.AvgOpenPrice.String())
}

func TestPositionClosingFillRealizesPnLLong(t *testing.T) {
	p := NewPosition(InstrumentID{Symbol: "AAPL", Venue: "SIM"}, "strat-1", SideBuy, NewQuantity(100, 0), NewPrice(10, 2), time.Unix(0, 0), USD)

	pnl := p.applyFill(SideSell, NewQuantity(100, 0), NewPrice(12, 2), time.Unix(0, 0))

	assert.Equal(t, "200.00 USD", pnl.String())
	assert.False(t, p.IsOpen())
	assert.Equal(t, PositionFlat, p.Side)
	require.NotNil(t, p.ClosedAt)
}

func TestPositionClosingFillRealizesPnLShort(t *testing.T) {
	p := NewPosition(InstrumentID{Symbol: "AAPL", Venue: "SIM"}, "strat-1", SideSell, NewQuantity(100, 0), NewPrice(10, 2), time.Unix(0, 0), USD)

	pnl := p.applyFill(SideBuy, NewQuantity(100, 0), NewPrice(8, 2), time.Unix(0, 0))

	assert.Equal(t, "200.00 USD", pnl.String())
	assert.False(t, p.IsOpen())
}

func TestPositionPartialCloseLeavesRemainder(t *testing.T) {
	p := NewPosition(InstrumentID{Symbol: "AAPL", Venue: "SIM"}, "strat-1", SideBuy, NewQuantity(100, 0), NewPrice(10, 2), time.Unix(0, 0), USD)

	pnl := p.applyFill(SideSell, NewQuantity(40, 0), NewPrice(12, 2), time.Unix(0, 0))

	assert.Equal(t, "80.00 USD", pnl.String())
	assert.True(t, p.IsOpen())
	assert.True(t, p.Quantity.Equal(NewQuantity(60, 0)))
	assert.Nil(t, p.ClosedAt)
}

func TestPositionOverfillReversesSideWithExcessQuantity(t *testing.T) {
	p := NewPosition(InstrumentID{Symbol: "AAPL", Venue: "SIM"}, "strat-1", SideBuy, NewQuantity(10, 0), NewPrice(10, 2), time.Unix(0, 0), USD)

	pnl := p.applyFill(SideSell, NewQuantity(15, 0), NewPrice(12, 2), time.Unix(0, 1))

	// PnL realizes only on the 10 units that actually closed the long.
	assert.Equal(t, "20.00 USD", pnl.String())
	assert.True(t, p.IsOpen())
	assert.Equal(t, PositionShort, p.Side)
	assert.True(t, p.Quantity.Equal(NewQuantity(5, 0)))
	assert.Equal(t, "12.00", p.AvgOpenPrice.String())
	assert.Nil(t, p.ClosedAt)
}

func TestBracketChildrenReturnsOnlyNonNilLegs(t *testing.T) {
	entry := NewMarketOrder(InstrumentID{Symbol: "AAPL", Venue: "SIM"}, SideBuy, NewQuantity(1, 0), "strat-1")
	stop := NewStopMarketOrder(InstrumentID{Symbol: "AAPL", Venue: "SIM"}, SideSell, NewQuantity(1, 0), NewPrice(9, 2), "strat-1")
	b := &Bracket{Entry: entry, StopLoss: stop}

	children := b.Children()
	require.Len(t, children, 1)
	assert.Same(t, stop, children[0])
}
