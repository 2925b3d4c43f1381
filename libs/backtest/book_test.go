package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL1BookApplyTradeSellHitsBid(t *testing.T) {
	b := NewL1Book(InstrumentID{Symbol: "AAPL", Venue: "SIM"})
	b.ApplyQuote(NewPrice(100, 2), NewPrice(100.05, 2), NewQuantity(10, 0), NewQuantity(10, 0))

	b.ApplyTrade(NewPrice(99.98, 2), SideSell)

	bid, ok := b.BestBidPrice()
	require.True(t, ok)
	assert.Equal(t, "99.98", bid.String())
	ask, _ := b.BestAskPrice()
	assert.Equal(t, "100.05", ask.String())
}

func TestL1BookApplyTradeBuyLiftsOffer(t *testing.T) {
	b := NewL1Book(InstrumentID{Symbol: "AAPL", Venue: "SIM"})
	b.ApplyQuote(NewPrice(100, 2), NewPrice(100.05, 2), NewQuantity(10, 0), NewQuantity(10, 0))

	b.ApplyTrade(NewPrice(100.10, 2), SideBuy)

	ask, ok := b.BestAskPrice()
	require.True(t, ok)
	assert.Equal(t, "100.10", ask.String())
}

func TestL2BookApplyDeltaKeepsSortOrder(t *testing.T) {
	id := InstrumentID{Symbol: "AAPL", Venue: "SIM"}
	b := NewL2Book(id)

	b.Apply(BookDelta{InstrumentID: id, Side: SideBuy, Price: NewPrice(100, 2), Size: NewQuantity(5, 0), Op: DeltaAdd})
	b.Apply(BookDelta{InstrumentID: id, Side: SideBuy, Price: NewPrice(100.05, 2), Size: NewQuantity(3, 0), Op: DeltaAdd})
	b.Apply(BookDelta{InstrumentID: id, Side: SideBuy, Price: NewPrice(99.95, 2), Size: NewQuantity(7, 0), Op: DeltaAdd})

	best, ok := b.BestBidPrice()
	require.True(t, ok)
	assert.Equal(t, "100.05", best.String())
}

func TestL2BookSimulateOrderFillsWalksDepth(t *testing.T) {
	id := InstrumentID{Symbol: "AAPL", Venue: "SIM"}
	b := NewL2Book(id)
	b.Apply(BookDelta{InstrumentID: id, Side: SideSell, Price: NewPrice(100.00, 2), Size: NewQuantity(5, 0), Op: DeltaAdd})
	b.Apply(BookDelta{InstrumentID: id, Side: SideSell, Price: NewPrice(100.05, 2), Size: NewQuantity(5, 0), Op: DeltaAdd})

	fills := b.SimulateOrderFills(SideBuy, NewQuantity(8, 0))

	require.Len(t, fills, 2)
	assert.Equal(t, "100.00", fills[0].Price.String())
	assert.True(t, fills[0].Quantity.Equal(NewQuantity(5, 0)))
	assert.Equal(t, "100.05", fills[1].Price.String())
	assert.True(t, fills[1].Quantity.Equal(NewQuantity(3, 0)))
}

func TestL2BookSimulateOrderFillsStopsWhenDepthExhausted(t *testing.T) {
	id := InstrumentID{Symbol: "AAPL", Venue: "SIM"}
	b := NewL2Book(id)
	b.Apply(BookDelta{InstrumentID: id, Side: SideSell, Price: NewPrice(100, 2), Size: NewQuantity(2, 0), Op: DeltaAdd})

	fills := b.SimulateOrderFills(SideBuy, NewQuantity(10, 0))

	require.Len(t, fills, 1)
	assert.True(t, fills[0].Quantity.Equal(NewQuantity(2, 0)))
}
