package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSink records every event a SimulatedVenue emits, in emission order, for
// assertion without needing a full Engine/MessageBus wiring.
type testSink struct {
	orders    []OrderEvent
	positions []PositionEvent
	accounts  []AccountStateEvent
}

func (s *testSink) OnOrderEvent(e OrderEvent)       { s.orders = append(s.orders, e) }
func (s *testSink) OnPositionEvent(e PositionEvent) { s.positions = append(s.positions, e) }
func (s *testSink) OnAccountState(e AccountStateEvent) { s.accounts = append(s.accounts, e) }

func (s *testSink) lastOrderEvent(clientOrderID string) (OrderEvent, bool) {
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].ClientOrderID == clientOrderID {
			return s.orders[i], true
		}
	}
	return OrderEvent{}, false
}

func (s *testSink) ordersOfType(t EventType) []OrderEvent {
	var out []OrderEvent
	for _, e := range s.orders {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testAAPL() InstrumentID { return InstrumentID{Symbol: "AAPL", Venue: "SIM"} }

func newTestVenue(t *testing.T, fm FillModelConfig) (*SimulatedVenue, *testSink) {
	t.Helper()
	id := testAAPL()
	inst := NewInstrument(id, 2, 0, NewPrice(0.01, 2), USD, USD)
	inst.MaxQuantity = NewQuantity(100000, 0)

	cache := NewInstrumentCache()
	cache.Add(inst)

	sink := &testSink{}
	clock := NewTestClock(0)
	cfg := VenueConfig{
		OmsType:          OmsNetting,
		AccountType:      AccountCash,
		BaseCurrency:     USD,
		StartingBalances: []AccountBalance{{Currency: USD, Total: NewMoney(1_000_000, USD)}},
		FillModel:        fm,
	}
	v := NewSimulatedVenue("SIM", cfg, cache, clock, sink)
	v.AddInstrument(id)
	return v, sink
}

// A fill on an instrument built via the bare NewInstrument constructor
// (no explicit CommissionSchedule) settles a zero commission. Settle must
// not try to rate-convert that zero amount out of an unset currency.
func TestSubmitOrderFillDoesNotPanicOnDefaultCommissionSchedule(t *testing.T) {
	v, _ := newTestVenue(t, DefaultFillModelConfig())
	id := testAAPL()
	v.ProcessQuoteTick(id, NewPrice(99.95, 2), NewPrice(100.00, 2), NewQuantity(1000, 0), NewQuantity(1000, 0), 1, 1)

	order := NewLimitOrder(id, SideBuy, NewQuantity(10, 0), NewPrice(100.00, 2), false, "strat-1")
	assert.NotPanics(t, func() { v.SubmitOrder(order, 2, 2) })
	assert.Equal(t, StatusFilled, order.Status)
}

func TestBaseCurrencyOfParsesSlashSeparatedSymbol(t *testing.T) {
	inst := NewInstrument(InstrumentID{Symbol: "EUR/USD", Venue: "SIM"}, 4, 0, NewPrice(0.0001, 4), USD, USD)

	base := baseCurrencyOf(inst)

	assert.Equal(t, EUR, base)
}

func TestBaseCurrencyOfFallsBackToSettlementForPlainSymbol(t *testing.T) {
	inst := NewInstrument(testAAPL(), 2, 0, NewPrice(0.01, 2), USD, USD)

	base := baseCurrencyOf(inst)

	assert.Equal(t, USD, base)
}

func TestSubmitOrderLimitMarketableFillsImmediatelyAsTaker(t *testing.T) {
	v, sink := newTestVenue(t, DefaultFillModelConfig())
	id := testAAPL()
	v.ProcessQuoteTick(id, NewPrice(99.95, 2), NewPrice(100.00, 2), NewQuantity(1000, 0), NewQuantity(1000, 0), 1, 1)

	order := NewLimitOrder(id, SideBuy, NewQuantity(10, 0), NewPrice(100.00, 2), false, "strat-1")
	v.SubmitOrder(order, 2, 2)

	assert.Equal(t, StatusFilled, order.Status)
	filled := sink.ordersOfType(EventOrderFilled)
	require.Len(t, filled, 1)
	assert.Equal(t, "100.00", filled[0].FillPrice.String())
	assert.Equal(t, LiquidityTaker, filled[0].Liquidity)
}

func TestSubmitOrderPostOnlyMarketableIsRejected(t *testing.T) {
	v, sink := newTestVenue(t, DefaultFillModelConfig())
	id := testAAPL()
	v.ProcessQuoteTick(id, NewPrice(99.95, 2), NewPrice(100.00, 2), NewQuantity(1000, 0), NewQuantity(1000, 0), 1, 1)

	order := NewLimitOrder(id, SideBuy, NewQuantity(10, 0), NewPrice(100.00, 2), true, "strat-1")
	v.SubmitOrder(order, 2, 2)

	assert.Equal(t, StatusRejected, order.Status)
	ev, ok := sink.lastOrderEvent(order.ClientOrderID)
	require.True(t, ok)
	assert.Equal(t, EventOrderRejected, ev.Type)
	assert.Contains(t, ev.Reason, string(RejectPostOnlyWouldTake))
}

func TestStopMarketTriggersWithOneTickSlippage(t *testing.T) {
	fm := FillModelConfig{ProbLimitFilled: 1, ProbStopFilled: 1, ProbSlipped: 1, Seed: 1}
	v, sink := newTestVenue(t, fm)
	id := testAAPL()
	v.ProcessQuoteTick(id, NewPrice(99.95, 2), NewPrice(100.00, 2), NewQuantity(1000, 0), NewQuantity(1000, 0), 1, 1)

	order := NewStopMarketOrder(id, SideBuy, NewQuantity(10, 0), NewPrice(100.05, 2), "strat-1")
	v.SubmitOrder(order, 2, 2)
	assert.Equal(t, StatusAccepted, order.Status, "stop not yet marketable at submission")

	// Ask rises to exactly the trigger price: stopTriggered's equal-touch
	// branch fires since ProbStopFilled is 1.
	v.ProcessQuoteTick(id, NewPrice(100.00, 2), NewPrice(100.05, 2), NewQuantity(1000, 0), NewQuantity(1000, 0), 3, 3)

	assert.Equal(t, StatusFilled, order.Status)
	filled := sink.ordersOfType(EventOrderFilled)
	require.Len(t, filled, 1)
	// One tick (0.01) of adverse slippage above the triggering ask of 100.05.
	assert.Equal(t, "100.06", filled[0].FillPrice.String())
}

func TestBracketEntryFillArmsChildrenAndOCOCancelsOnTakeProfitFill(t *testing.T) {
	v, sink := newTestVenue(t, DefaultFillModelConfig())
	id := testAAPL()
	v.ProcessQuoteTick(id, NewPrice(99.90, 2), NewPrice(100.10, 2), NewQuantity(1000, 0), NewQuantity(1000, 0), 1, 1)

	entry := NewMarketOrder(id, SideBuy, NewQuantity(10, 0), "strat-1")
	stopLoss := NewStopMarketOrder(id, SideSell, NewQuantity(10, 0), NewPrice(99.00, 2), "strat-1")
	takeProfit := NewLimitOrder(id, SideSell, NewQuantity(10, 0), NewPrice(101.00, 2), false, "strat-1")
	bracket := &Bracket{Entry: entry, StopLoss: stopLoss, TakeProfit: takeProfit}

	v.SubmitBracketOrder(bracket, 2, 2)

	require.Equal(t, StatusFilled, entry.Status, "market entry fills immediately")
	require.Equal(t, StatusAccepted, stopLoss.Status, "stop-loss armed once entry fills")
	require.Equal(t, StatusAccepted, takeProfit.Status, "take-profit armed once entry fills")

	var opened []PositionEvent
	for _, ev := range sink.positions {
		if ev.Type == EventPositionOpened {
			opened = append(opened, ev)
		}
	}
	require.Len(t, opened, 1)

	// Rally through the take-profit price; the resting take-profit limit matches.
	v.ProcessQuoteTick(id, NewPrice(101.50, 2), NewPrice(101.60, 2), NewQuantity(1000, 0), NewQuantity(1000, 0), 3, 3)

	assert.Equal(t, StatusFilled, takeProfit.Status)
	assert.Equal(t, StatusCanceled, stopLoss.Status, "OCO partner is canceled once take-profit fills")

	closed := sink.ordersOfType(EventOrderCanceled)
	require.Len(t, closed, 1)
	assert.Equal(t, stopLoss.ClientOrderID, closed[0].ClientOrderID)
}

func TestCancelOrderRemovesWorkingOrder(t *testing.T) {
	v, sink := newTestVenue(t, DefaultFillModelConfig())
	id := testAAPL()
	v.ProcessQuoteTick(id, NewPrice(99.90, 2), NewPrice(100.10, 2), NewQuantity(1000, 0), NewQuantity(1000, 0), 1, 1)

	order := NewLimitOrder(id, SideBuy, NewQuantity(10, 0), NewPrice(99.00, 2), false, "strat-1")
	v.SubmitOrder(order, 2, 2)
	require.Equal(t, StatusAccepted, order.Status)

	v.CancelOrder(order.ClientOrderID, 3, 3)

	assert.Equal(t, StatusCanceled, order.Status)
	_, stillWorking := v.working[order.ClientOrderID]
	assert.False(t, stillWorking)

	canceled := sink.ordersOfType(EventOrderCanceled)
	require.Len(t, canceled, 1)
}

func TestCancelOrderUnknownIDIsRejectedNotPanicking(t *testing.T) {
	v, sink := newTestVenue(t, DefaultFillModelConfig())

	v.CancelOrder("does-not-exist", 1, 1)

	rejected := sink.ordersOfType(EventOrderCancelRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "does-not-exist", rejected[0].ClientOrderID)
}

func TestSubmitOrderRejectsQuantityOutOfRange(t *testing.T) {
	v, sink := newTestVenue(t, DefaultFillModelConfig())
	id := testAAPL()

	order := NewLimitOrder(id, SideBuy, NewQuantity(999999, 0), NewPrice(100, 2), false, "strat-1")
	v.SubmitOrder(order, 1, 1)

	assert.Equal(t, StatusRejected, order.Status)
	ev, ok := sink.lastOrderEvent(order.ClientOrderID)
	require.True(t, ok)
	assert.Contains(t, ev.Reason, string(RejectQuantityOutOfRange))
}

func TestSubmitOrderRejectsUnknownInstrument(t *testing.T) {
	v, sink := newTestVenue(t, DefaultFillModelConfig())
	other := InstrumentID{Symbol: "MSFT", Venue: "SIM"}

	order := NewLimitOrder(other, SideBuy, NewQuantity(1, 0), NewPrice(100, 2), false, "strat-1")
	v.SubmitOrder(order, 1, 1)

	assert.Equal(t, StatusRejected, order.Status)
	ev, ok := sink.lastOrderEvent(order.ClientOrderID)
	require.True(t, ok)
	assert.Contains(t, ev.Reason, string(RejectUnknownOrder))
}
