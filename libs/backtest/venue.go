package backtest

import (
	"sort"
	"strings"
	"time"
)

// VenueConfig carries the per-venue configuration.
type VenueConfig struct {
	OmsType     OmsType
	AccountType AccountType
	BookLevel   BookLevel // defaults to BookL1 if empty
	Frozen      bool
	// RejectStopOrdersInMarket: reject STOP_MARKET/STOP_LIMIT submissions
	// whose trigger is already marketable. Defaults true.
	RejectStopOrdersInMarket *bool
	// SupportGtdOrders: honor Order.ExpireAt. Defaults true.
	SupportGtdOrders *bool
	BaseCurrency     Currency
	StartingBalances []AccountBalance
	FillModel        FillModelConfig
}

func (c VenueConfig) bookLevel() BookLevel {
	if c.BookLevel == "" {
		return BookL1
	}
	return c.BookLevel
}
func (c VenueConfig) rejectStopInMarket() bool {
	if c.RejectStopOrdersInMarket == nil {
		return true
	}
	return *c.RejectStopOrdersInMarket
}
func (c VenueConfig) supportGtd() bool {
	if c.SupportGtdOrders == nil {
		return true
	}
	return *c.SupportGtdOrders
}

// EventSink receives every event a SimulatedVenue emits, in emission order.
// Engine implements this to fan events out to the message bus and to
// strategy handlers.
type EventSink interface {
	OnOrderEvent(OrderEvent)
	OnPositionEvent(PositionEvent)
	OnAccountState(AccountStateEvent)
}

// SimulatedVenue is the per-venue matching engine: it owns a
// working-order set, per-instrument order books, OCO links, bracket
// linkage, and drives account bookkeeping on every fill.
type SimulatedVenue struct {
	Name string
	cfg  VenueConfig

	instruments *InstrumentCache
	books       map[InstrumentID]OrderBook

	// working is the arena of all non-terminal orders, keyed by client order id.
	working map[string]*Order
	// byInstrument buckets client order ids per instrument for fast matching iteration.
	byInstrument map[InstrumentID]map[string]bool

	ocoLinks map[string]string // symmetric: clientID -> partner clientID

	bracketChildren map[string][]*Order // entry clientID -> exit legs

	positions    map[string]*Position // position id -> position
	nettingIndex map[string]string    // strategyID|instrumentID -> position id (NETTING only)

	account    *Account
	bookkeeper *Bookkeeper
	rateGraph  *RateGraph
	fillModel  *FillModel
	clock      *TestClock

	sink EventSink

	riskGate         RiskGate
	slippageRecorder SlippageRecorder
}

// NewSimulatedVenue constructs a venue backed by instruments, emitting
// events to sink and driven by clock (shared with the owning Engine).
func NewSimulatedVenue(name string, cfg VenueConfig, instruments *InstrumentCache, clock *TestClock, sink EventSink) *SimulatedVenue {
	return &SimulatedVenue{
		Name:            name,
		cfg:             cfg,
		instruments:     instruments,
		books:           make(map[InstrumentID]OrderBook),
		working:         make(map[string]*Order),
		byInstrument:    make(map[InstrumentID]map[string]bool),
		ocoLinks:        make(map[string]string),
		bracketChildren: make(map[string][]*Order),
		positions:       make(map[string]*Position),
		nettingIndex:    make(map[string]string),
		account:         NewAccount(cfg.AccountType, cfg.Frozen, cfg.StartingBalances),
		bookkeeper:      NewBookkeeper(cfg.BaseCurrency),
		rateGraph:       NewRateGraph(),
		fillModel:       NewFillModel(cfg.FillModel),
		clock:           clock,
		sink:            sink,
	}
}

// AddInstrument registers book tracking for an instrument on this venue.
func (v *SimulatedVenue) AddInstrument(id InstrumentID) {
	if _, ok := v.books[id]; ok {
		return
	}
	switch v.cfg.bookLevel() {
	case BookL2, BookL3:
		v.books[id] = NewL2Book(id)
	default:
		v.books[id] = NewL1Book(id)
	}
	v.byInstrument[id] = make(map[string]bool)
}

// Account returns the venue's account itself, not a copy: it is the same
// *Account the venue settles fills into, so changes made through it affect
// the venue's bookkeeping.
func (v *SimulatedVenue) Account() *Account { return v.account }

// Positions returns every position ever opened on this venue.
func (v *SimulatedVenue) Positions() []*Position {
	out := make([]*Position, 0, len(v.positions))
	for _, p := range v.positions {
		out = append(out, p)
	}
	return out
}

// ─── market data ingestion ──────────────────────────────────────────────────

// ProcessQuoteTick updates the book and runs the matching loop.
func (v *SimulatedVenue) ProcessQuoteTick(id InstrumentID, bid, ask Price, bidSize, askSize Quantity, tsEvent, tsInit int64) {
	book, ok := v.books[id]
	if !ok {
		return
	}
	book.ApplyQuote(bid, ask, bidSize, askSize)
	v.updateRateGraph(id, bid, ask)
	v.matchInstrument(id, tsEvent, tsInit)
}

// ProcessTradeTick updates the book by inferring the touched side and runs
// the matching loop.
func (v *SimulatedVenue) ProcessTradeTick(id InstrumentID, price Price, aggressor Side, tsEvent, tsInit int64) {
	book, ok := v.books[id]
	if !ok {
		return
	}
	book.ApplyTrade(price, aggressor)
	v.matchInstrument(id, tsEvent, tsInit)
}

// ProcessOrderBookDelta applies a delta to an L2/L3 book and runs the matching loop.
func (v *SimulatedVenue) ProcessOrderBookDelta(d BookDelta) {
	book, ok := v.books[d.InstrumentID]
	if !ok {
		return
	}
	if l2, isL2 := book.(*L2Book); isL2 {
		l2.Apply(d)
	}
	v.matchInstrument(d.InstrumentID, d.TsEvent, d.TsInit)
}

// ProcessOrderBookSnapshot replaces an L2/L3 book and runs the matching loop.
func (v *SimulatedVenue) ProcessOrderBookSnapshot(s BookSnapshot) {
	book, ok := v.books[s.InstrumentID]
	if !ok {
		return
	}
	if l2, isL2 := book.(*L2Book); isL2 {
		l2.ApplySnapshot(s)
	}
	v.matchInstrument(s.InstrumentID, s.TsEvent, s.TsInit)
}

func (v *SimulatedVenue) updateRateGraph(id InstrumentID, bid, ask Price) {
	inst, ok := v.instruments.Get(id)
	if !ok {
		return
	}
	v.rateGraph.SetQuote(baseCurrencyOf(inst), inst.QuoteCurrency, bid, ask)
}

// baseCurrencyOf derives the base leg of the instrument's quoted pair from
// its symbol when it looks like "BASE/QUOTE" (FX/crypto convention), resolving
// the parsed code against the package's known currencies; otherwise the
// settlement currency stands in as the base so equities-style instruments
// (quote currency == settlement currency) still resolve direct rates against
// themselves.
func baseCurrencyOf(inst Instrument) Currency {
	symbol := inst.ID.Symbol
	if i := strings.IndexByte(symbol, '/'); i > 0 {
		return currencyByCode(symbol[:i])
	}
	return inst.SettlementCurrency
}

// ─── commands ─────────────────────────────────────────────

// SubmitOrder processes a SubmitOrder command. Rejections are emitted as events, never returned as a
// Go error.
func (v *SimulatedVenue) SubmitOrder(order *Order, tsEvent, tsInit int64) {
	v.emitSubmitted(order, tsEvent, tsInit)

	inst, ok := v.instruments.Get(order.InstrumentID)
	if !ok {
		v.rejectOrder(order, reject(RejectUnknownOrder, "instrument %s not registered", order.InstrumentID), tsEvent, tsInit)
		return
	}
	if err := inst.ValidateQuantity(order.Quantity); err != nil {
		v.rejectOrder(order, reject(RejectQuantityOutOfRange, "%s", err), tsEvent, tsInit)
		return
	}
	if order.ExpireAt != nil && !v.cfg.supportGtd() {
		v.rejectOrder(order, reject(RejectGtdUnsupported, "venue %s does not support GTD orders", v.Name), tsEvent, tsInit)
		return
	}
	if v.riskGate != nil {
		if reason, blocked := v.riskGate.Evaluate(order); blocked {
			v.rejectOrder(order, reject(RejectRiskPolicy, "%s", reason), tsEvent, tsInit)
			return
		}
	}

	book, hasBook := v.books[order.InstrumentID]

	switch order.Type {
	case OrderTypeMarket:
		if !hasBook {
			v.rejectOrder(order, reject(RejectNoMarket, "no book for %s", order.InstrumentID), tsEvent, tsInit)
			return
		}
		if _, ok := bookSideFor(book, order.Side); !ok {
			v.rejectOrder(order, reject(RejectNoMarket, "no opposite-side market for %s", order.InstrumentID), tsEvent, tsInit)
			return
		}
		v.acceptOrder(order, tsEvent, tsInit)
		v.fillTaker(order, book, tsEvent, tsInit)

	case OrderTypeLimit:
		marketable := hasBook && limitMarketable(book, order.Side, order.Price)
		if order.IsPostOnly && marketable {
			v.rejectOrder(order, reject(RejectPostOnlyWouldTake, "post-only %s limit @ %s would take liquidity", order.Side, order.Price), tsEvent, tsInit)
			return
		}
		v.acceptOrder(order, tsEvent, tsInit)
		v.addWorking(order)
		if marketable && !order.IsPostOnly {
			v.fillTaker(order, book, tsEvent, tsInit)
		}

	case OrderTypeStopMarket:
		if hasBook && stopMarketable(book, order.Side, order.TriggerPrice) && v.cfg.rejectStopInMarket() {
			v.rejectOrder(order, reject(RejectStopInMarket, "stop %s @ %s already marketable", order.Side, order.TriggerPrice), tsEvent, tsInit)
			return
		}
		v.acceptOrder(order, tsEvent, tsInit)
		v.addWorking(order)

	case OrderTypeStopLimit:
		if hasBook && stopMarketable(book, order.Side, order.TriggerPrice) && v.cfg.rejectStopInMarket() {
			v.rejectOrder(order, reject(RejectStopInMarket, "stop %s @ %s already marketable", order.Side, order.TriggerPrice), tsEvent, tsInit)
			return
		}
		v.acceptOrder(order, tsEvent, tsInit)
		v.addWorking(order)
	}
}

// SubmitBracketOrder handles a bracket submission: only the
// entry is submitted to the matching engine; exits are OCO-linked and held
// until the entry fills.
func (v *SimulatedVenue) SubmitBracketOrder(b *Bracket, tsEvent, tsInit int64) {
	b.PositionID = generatePositionID()
	b.Entry.PositionID = b.PositionID

	if b.StopLoss != nil {
		b.StopLoss.PositionID = b.PositionID
		b.StopLoss.bracketParent = b.Entry.ClientOrderID
	}
	if b.TakeProfit != nil {
		b.TakeProfit.PositionID = b.PositionID
		b.TakeProfit.bracketParent = b.Entry.ClientOrderID
	}
	if b.StopLoss != nil && b.TakeProfit != nil {
		v.linkOCO(b.StopLoss.ClientOrderID, b.TakeProfit.ClientOrderID)
	}

	v.bracketChildren[b.Entry.ClientOrderID] = b.Children()

	// Only the entry reaches the matching engine now; exits are submitted
	// (their own SUBMITTED → ACCEPTED cycle) once the entry fills, by
	// cascadeBracket.
	v.SubmitOrder(b.Entry, tsEvent, tsInit)
}

// UpdateOrder applies an in-place quantity/price replace to a working order.
func (v *SimulatedVenue) UpdateOrder(clientOrderID string, newQty Quantity, newPrice Price, tsEvent, tsInit int64) {
	order, ok := v.working[clientOrderID]
	if !ok || order.Status != StatusAccepted {
		// Triggered and partially-filled orders cannot be amended; only a
		// plain resting order can.
		v.emitCancelOrUpdateReject(clientOrderID, RejectUnknownOrder, "unknown or non-amendable order", true, tsEvent, tsInit)
		return
	}

	order.transition(StatusPendingUpdate)
	v.publishOrder(order, EventOrderPendingReplace, "", tsEvent, tsInit)

	book, hasBook := v.books[order.InstrumentID]
	marketable := hasBook && order.Type == OrderTypeLimit && limitMarketable(book, order.Side, newPrice)

	if order.IsPostOnly && marketable {
		order.transition(StatusRejected)
		v.removeWorking(order)
		v.publishOrder(order, EventOrderUpdateRejected, string(RejectPostOnlyWouldTake), tsEvent, tsInit)
		return
	}

	order.Quantity = newQty
	order.Price = newPrice
	order.transition(StatusAccepted)
	v.publishOrder(order, EventOrderUpdated, "", tsEvent, tsInit)

	if marketable && !order.IsPostOnly {
		v.fillTaker(order, book, tsEvent, tsInit)
	}
}

// CancelOrder removes a working order and emits ORDER_CANCELED.
func (v *SimulatedVenue) CancelOrder(clientOrderID string, tsEvent, tsInit int64) {
	order, ok := v.working[clientOrderID]
	if !ok || !order.Status.IsWorking() {
		v.emitCancelOrUpdateReject(clientOrderID, RejectUnknownOrder, "unknown or non-working order", false, tsEvent, tsInit)
		return
	}
	v.cancelWorkingOrder(order, "", tsEvent, tsInit)
}

func (v *SimulatedVenue) emitCancelOrUpdateReject(clientOrderID string, code RejectCode, msg string, isUpdate bool, tsEvent, tsInit int64) {
	evType := EventOrderCancelRejected
	if isUpdate {
		evType = EventOrderUpdateRejected
	}
	v.sink.OnOrderEvent(OrderEvent{
		Type:          evType,
		ClientOrderID: clientOrderID,
		Reason:        string(code) + ": " + msg,
		TsEvent:       tsEvent,
		TsInit:        tsInit,
	})
}

// cancelWorkingOrder transitions order through PENDING_CANCEL → CANCELED,
// removes it from the working set, cancels its OCO partner if any, and
// cleans up bracket bookkeeping.
func (v *SimulatedVenue) cancelWorkingOrder(order *Order, reason string, tsEvent, tsInit int64) {
	order.transition(StatusPendingCancel)
	v.publishOrder(order, EventOrderPendingCancel, "", tsEvent, tsInit)

	order.transition(StatusCanceled)
	v.removeWorking(order)
	v.publishOrder(order, EventOrderCanceled, reason, tsEvent, tsInit)

	v.terminateOCO(order, tsEvent, tsInit)
}

// ─── matching loop ───────────────────────────────────────────────

// matchInstrument iterates a snapshot of working client order ids for id,
// skipping any that are no longer working because an earlier match in the
// same pass already terminated them.
func (v *SimulatedVenue) matchInstrument(id InstrumentID, tsEvent, tsInit int64) {
	bucket, ok := v.byInstrument[id]
	if !ok {
		return
	}
	ids := make([]string, 0, len(bucket))
	for cid := range bucket {
		ids = append(ids, cid)
	}
	sort.Strings(ids) // deterministic iteration order

	book := v.books[id]

	for _, cid := range ids {
		order, ok := v.working[cid]
		if !ok || !order.Status.IsWorking() {
			continue
		}
		v.checkExpiry(order, tsInit, tsEvent)
		if !order.Status.IsWorking() {
			continue
		}
		v.matchOrder(order, book, tsEvent, tsInit)
	}
}

func (v *SimulatedVenue) checkExpiry(order *Order, currentTs, tsEvent int64) {
	if order.ExpireAt == nil {
		return
	}
	if currentTs >= order.ExpireAt.UnixNano() {
		order.transition(StatusExpired)
		v.removeWorking(order)
		v.publishOrder(order, EventOrderExpired, "", tsEvent, currentTs)
		v.terminateOCO(order, tsEvent, currentTs)
	}
}

func (v *SimulatedVenue) matchOrder(order *Order, book OrderBook, tsEvent, tsInit int64) {
	switch order.Type {
	case OrderTypeLimit:
		if limitMatched(book, order.Side, order.Price, v.fillModel) {
			v.fillMaker(order, order.Price, book, tsEvent, tsInit)
		}

	case OrderTypeStopMarket:
		if stopTriggered(book, order.Side, order.TriggerPrice, v.fillModel) {
			v.fillTaker(order, book, tsEvent, tsInit)
		}

	case OrderTypeStopLimit:
		if !order.IsTriggered {
			if stopTriggered(book, order.Side, order.TriggerPrice, v.fillModel) {
				order.IsTriggered = true
				order.transition(StatusTriggered)
				v.publishOrder(order, EventOrderTriggered, "", tsEvent, tsInit)

				marketable := limitMarketable(book, order.Side, order.Price)
				if marketable && order.IsPostOnly {
					order.transition(StatusRejected)
					v.removeWorking(order)
					v.publishOrder(order, EventOrderRejected, string(RejectPostOnlyWouldTake), tsEvent, tsInit)
					v.terminateOCO(order, tsEvent, tsInit)
					return
				}
				if marketable {
					v.fillTaker(order, book, tsEvent, tsInit)
				}
			}
			return
		}
		if limitMatched(book, order.Side, order.Price, v.fillModel) {
			v.fillMaker(order, order.Price, book, tsEvent, tsInit)
		}
	}
}

// ─── predicates ──────────────────────────────────────────────────

func bookSideFor(book OrderBook, side Side) (Price, bool) {
	if side == SideBuy {
		return book.BestAskPrice()
	}
	return book.BestBidPrice()
}

func limitMarketable(book OrderBook, side Side, price Price) bool {
	if side == SideBuy {
		ask, ok := book.BestAskPrice()
		return ok && price.GreaterThanOrEqual(ask)
	}
	bid, ok := book.BestBidPrice()
	return ok && price.LessThanOrEqual(bid)
}

func limitMatched(book OrderBook, side Side, price Price, fm *FillModel) bool {
	if side == SideBuy {
		bid, ok := book.BestBidPrice()
		if !ok {
			return false
		}
		return bid.LessThan(price) || (bid.Equal(price) && fm.IsLimitFilled())
	}
	ask, ok := book.BestAskPrice()
	if !ok {
		return false
	}
	return ask.GreaterThan(price) || (ask.Equal(price) && fm.IsLimitFilled())
}

func stopMarketable(book OrderBook, side Side, price Price) bool {
	if side == SideBuy {
		ask, ok := book.BestAskPrice()
		return ok && ask.GreaterThanOrEqual(price)
	}
	bid, ok := book.BestBidPrice()
	return ok && bid.LessThanOrEqual(price)
}

func stopTriggered(book OrderBook, side Side, price Price, fm *FillModel) bool {
	if side == SideBuy {
		ask, ok := book.BestAskPrice()
		if !ok {
			return false
		}
		return ask.GreaterThan(price) || (ask.Equal(price) && fm.IsStopFilled())
	}
	bid, ok := book.BestBidPrice()
	if !ok {
		return false
	}
	return bid.LessThan(price) || (bid.Equal(price) && fm.IsStopFilled())
}

// ─── fill execution ──────────────────────────────

// fillMaker fills a resting LIMIT/triggered-STOP_LIMIT order at its own
// price as MAKER. At L2+ the per-level quantities from SimulateOrderFills
// are used to split the fill (price-time priority on the consuming side);
// every level still prints at the resting order's own price, since a MAKER
// provides liquidity at the price it posted regardless of how the opposite
// depth is shaped — only the *quantity* split differs by depth model.
func (v *SimulatedVenue) fillMaker(order *Order, price Price, book OrderBook, tsEvent, tsInit int64) {
	leaves := order.LeavesQuantity()
	if book.Level() == BookL1 {
		v.applyFill(order, leaves, price, LiquidityMaker, tsEvent, tsInit)
		return
	}
	for _, lvl := range book.SimulateOrderFills(order.Side, leaves) {
		if order.LeavesQuantity().IsZero() {
			break
		}
		v.applyFill(order, lvl.Quantity, price, LiquidityMaker, tsEvent, tsInit)
	}
}

// fillTaker fills a MARKET/marketable-LIMIT/triggered-STOP order
// aggressively. At L1 it takes the opposite top-of-book price (plus one
// tick of adverse slippage iff the fill model says so); because an L1 book
// carries no real depth, any quantity beyond BestBidSize/BestAskSize is
// filled a second time at the next adjacent tick — the "temporary
// single-level model" approximation for an L1 book. At L2+,
// SimulateOrderFills walks real depth and one ORDER_FILLED is emitted per
// price level, with the slip tick applied only to the first level (the
// level the order's marketable price crossed into).
func (v *SimulatedVenue) fillTaker(order *Order, book OrderBook, tsEvent, tsInit int64) {
	leaves := order.LeavesQuantity()
	basePrice, ok := bookSideFor(book, order.Side)
	if !ok {
		return
	}

	slipTick := inst(v, order.InstrumentID).TickSize
	slipped := v.fillModel.IsSlipped()

	if book.Level() == BookL1 {
		topSize, hasSize := topSizeFor(book, order.Side)
		fillQty := leaves
		if hasSize && topSize.LessThan(leaves) && !topSize.IsZero() {
			fillQty = topSize
		}
		price := adversePrice(basePrice, order.Side, slipTick, slipped)
		if slipped && v.slippageRecorder != nil {
			v.slippageRecorder.RecordSlip(order.InstrumentID, basePrice, price)
		}
		v.applyFill(order, fillQty, price, LiquidityTaker, tsEvent, tsInit)

		residual := order.LeavesQuantity()
		if !residual.IsZero() {
			nextPrice := adversePrice(adversePrice(basePrice, order.Side, slipTick, true), order.Side, slipTick, slipped)
			v.applyFill(order, residual, nextPrice, LiquidityTaker, tsEvent, tsInit)
		}
		return
	}

	first := true
	for _, lvl := range book.SimulateOrderFills(order.Side, leaves) {
		if order.LeavesQuantity().IsZero() {
			break
		}
		price := lvl.Price
		if first {
			price = adversePrice(lvl.Price, order.Side, slipTick, slipped)
			if slipped && v.slippageRecorder != nil {
				v.slippageRecorder.RecordSlip(order.InstrumentID, lvl.Price, price)
			}
			first = false
		}
		v.applyFill(order, lvl.Quantity, price, LiquidityTaker, tsEvent, tsInit)
	}
}

func inst(v *SimulatedVenue, id InstrumentID) Instrument {
	i, _ := v.instruments.Get(id)
	return i
}

func topSizeFor(book OrderBook, side Side) (Quantity, bool) {
	if side == SideBuy {
		return book.BestAskSize()
	}
	return book.BestBidSize()
}

// adversePrice shifts price one tick against the order's side when slipped is true.
func adversePrice(price Price, side Side, tick Price, slipped bool) Price {
	if !slipped {
		return price
	}
	if side == SideBuy {
		return price.AddTicks(1, tick)
	}
	return price.AddTicks(-1, tick)
}

// ─── fill application, position & OCO/bracket lifecycle ─────────────────────

// applyFill records a fill on order, updates/opens the position, settles
// account bookkeeping, and cascades OCO/bracket effects.
func (v *SimulatedVenue) applyFill(order *Order, qty Quantity, price Price, liquidity LiquiditySide, tsEvent, tsInit int64) {
	if qty.IsZero() {
		return
	}
	instrument := inst(v, order.InstrumentID)
	order.applyFill(qty, price)
	v.removeIfTerminal(order)

	commission := instrument.Commission.Calculate(qty, price, liquidity)

	position, opened := v.resolvePosition(order, qty, price, tsInit)
	pnl := NewMoney(0, instrument.SettlementCurrency)
	if !opened {
		pnl = position.applyFill(order.Side, qty, price, time.Unix(0, tsInit))
	}
	position.Commission = position.Commission.Add(commission)
	order.PositionID = position.ID

	v.sink.OnOrderEvent(OrderEvent{
		Type:          EventOrderFilled,
		ClientOrderID: order.ClientOrderID,
		VenueOrderID:  order.VenueOrderID,
		InstrumentID:  order.InstrumentID,
		StrategyID:    order.StrategyID,
		Status:        order.Status,
		FillPrice:     price,
		FillQuantity:  qty,
		Liquidity:     liquidity,
		Commission:    commission,
		PositionID:    position.ID,
		TsEvent:       tsEvent,
		TsInit:        tsInit,
	})

	if opened {
		v.sink.OnPositionEvent(PositionEvent{
			Type: EventPositionOpened, PositionID: position.ID, InstrumentID: position.InstrumentID,
			StrategyID: position.StrategyID, Side: position.Side, Quantity: position.Quantity,
			AvgOpenPrice: position.AvgOpenPrice, RealizedPnL: position.RealizedPnL, TsEvent: tsEvent, TsInit: tsInit,
		})
	} else if position.IsOpen() {
		v.sink.OnPositionEvent(PositionEvent{
			Type: EventPositionChanged, PositionID: position.ID, InstrumentID: position.InstrumentID,
			StrategyID: position.StrategyID, Side: position.Side, Quantity: position.Quantity,
			AvgOpenPrice: position.AvgOpenPrice, RealizedPnL: position.RealizedPnL, TsEvent: tsEvent, TsInit: tsInit,
		})
	} else {
		v.sink.OnPositionEvent(PositionEvent{
			Type: EventPositionClosed, PositionID: position.ID, InstrumentID: position.InstrumentID,
			StrategyID: position.StrategyID, Side: position.Side, Quantity: position.Quantity,
			AvgOpenPrice: position.AvgOpenPrice, RealizedPnL: position.RealizedPnL, TsEvent: tsEvent, TsInit: tsInit,
		})
	}

	acctEvent, err := v.bookkeeper.Settle(v.account, commission, pnl, order.Side, v.rateGraph, v.Name, tsEvent, tsInit)
	if err != nil {
		// Fatal: a fill that cannot be
		// converted aborts the run to preserve bookkeeping invariants.
		panic(err)
	}
	v.sink.OnAccountState(acctEvent)

	v.terminateOCO(order, tsEvent, tsInit)
	v.cascadeBracket(order, position, tsEvent, tsInit)
}

// resolvePosition finds or creates the position this fill belongs to under
// the venue's OmsType.
func (v *SimulatedVenue) resolvePosition(order *Order, qty Quantity, price Price, tsInit int64) (*Position, bool) {
	instrument := inst(v, order.InstrumentID)

	// Bracket legs (entry and both exits) carry a pre-generated PositionID
	// set at SubmitBracketOrder time, so the first fill among them creates
	// the position and every subsequent one reuses it.
	if order.PositionID != "" {
		if p, ok := v.positions[order.PositionID]; ok {
			return p, false
		}
	}

	if v.cfg.OmsType == OmsNetting {
		key := order.StrategyID + "|" + order.InstrumentID.String()
		if posID, ok := v.nettingIndex[key]; ok {
			if p, exists := v.positions[posID]; exists && p.IsOpen() {
				return p, false
			}
		}
		p := NewPosition(order.InstrumentID, order.StrategyID, order.Side, qty, price, time.Unix(0, tsInit), instrument.SettlementCurrency)
		if order.PositionID != "" {
			p.ID = order.PositionID
		}
		v.positions[p.ID] = p
		v.nettingIndex[key] = p.ID
		return p, true
	}

	posID := order.PositionID
	if posID == "" {
		posID = generatePositionID()
	}
	p := NewPosition(order.InstrumentID, order.StrategyID, order.Side, qty, price, time.Unix(0, tsInit), instrument.SettlementCurrency)
	p.ID = posID
	v.positions[p.ID] = p
	return p, true
}

// terminateOCO cancels order's OCO partner, if any, once order reaches a
// terminal state.
func (v *SimulatedVenue) terminateOCO(order *Order, tsEvent, tsInit int64) {
	partnerID, ok := v.ocoLinks[order.ClientOrderID]
	if !ok {
		return
	}
	delete(v.ocoLinks, order.ClientOrderID)
	delete(v.ocoLinks, partnerID)

	partner, ok := v.working[partnerID]
	if !ok || partner.Status.IsTerminal() {
		return
	}
	reason := "OCO partner " + order.ClientOrderID + " reached a terminal state"
	if partner.Status.IsWorking() {
		v.cancelWorkingOrder(partner, reason, tsEvent, tsInit)
	} else {
		// In the working set but not in a working status: reject instead.
		// A partner outside the working set (e.g. a bracket exit not yet
		// submitted) was skipped by the early return above and is left as is.
		partner.transition(StatusRejected)
		v.publishOrder(partner, EventOrderRejected, reason, tsEvent, tsInit)
	}
}

// cascadeBracket arms or tears down bracket children: when the
// entry fills, submit its children; when any fill closes the position,
// cancel every still-working OCO order linked to it.
func (v *SimulatedVenue) cascadeBracket(order *Order, position *Position, tsEvent, tsInit int64) {
	if children, ok := v.bracketChildren[order.ClientOrderID]; ok && order.Status == StatusFilled {
		delete(v.bracketChildren, order.ClientOrderID)
		for _, child := range children {
			if child.Status.IsTerminal() {
				continue
			}
			v.SubmitOrder(child, tsEvent, tsInit)
		}
	}

	if !position.IsOpen() {
		for _, working := range v.working {
			if working.PositionID == position.ID && working.Status.IsWorking() {
				v.cancelWorkingOrder(working, "position "+position.ID+" closed", tsEvent, tsInit)
			}
		}
	}
}

// ─── working-set bookkeeping ────────────────────────────────────────────────

func (v *SimulatedVenue) addWorking(order *Order) {
	v.working[order.ClientOrderID] = order
	if bucket, ok := v.byInstrument[order.InstrumentID]; ok {
		bucket[order.ClientOrderID] = true
	}
}

func (v *SimulatedVenue) removeWorking(order *Order) {
	delete(v.working, order.ClientOrderID)
	if bucket, ok := v.byInstrument[order.InstrumentID]; ok {
		delete(bucket, order.ClientOrderID)
	}
}

func (v *SimulatedVenue) removeIfTerminal(order *Order) {
	if order.Status.IsTerminal() {
		v.removeWorking(order)
	}
}

func (v *SimulatedVenue) linkOCO(a, b string) {
	v.ocoLinks[a] = b
	v.ocoLinks[b] = a
}

// ─── event emission helpers ──────────────────────────────────────────────────

func (v *SimulatedVenue) emitSubmitted(order *Order, tsEvent, tsInit int64) {
	order.transition(StatusSubmitted)
	order.SubmittedAt = time.Unix(0, tsInit)
	v.publishOrder(order, EventOrderSubmitted, "", tsEvent, tsInit)
}

func (v *SimulatedVenue) acceptOrder(order *Order, tsEvent, tsInit int64) {
	order.VenueOrderID = generateVenueOrderID()
	order.transition(StatusAccepted)
	order.AcceptedAt = time.Unix(0, tsInit)
	v.publishOrder(order, EventOrderAccepted, "", tsEvent, tsInit)
}

func (v *SimulatedVenue) rejectOrder(order *Order, reason RejectReason, tsEvent, tsInit int64) {
	order.RejectReason = reason.String()
	order.transition(StatusRejected)
	v.publishOrder(order, EventOrderRejected, reason.String(), tsEvent, tsInit)
}

func (v *SimulatedVenue) publishOrder(order *Order, evType EventType, reason string, tsEvent, tsInit int64) {
	v.sink.OnOrderEvent(OrderEvent{
		Type:          evType,
		ClientOrderID: order.ClientOrderID,
		VenueOrderID:  order.VenueOrderID,
		InstrumentID:  order.InstrumentID,
		StrategyID:    order.StrategyID,
		Status:        order.Status,
		Reason:        reason,
		PositionID:    order.PositionID,
		TsEvent:       tsEvent,
		TsInit:        tsInit,
	})
}
