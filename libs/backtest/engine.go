package backtest

import (
	"context"

	"jax-trading-assistant/libs/observability"
)

// StrategyHandler receives every event the engine's venues emit, in the
// exact order they were generated. bridge.go adapts the
// older indicator-driven strategies.Strategy interface onto this one.
type StrategyHandler interface {
	OnOrderEvent(OrderEvent)
	OnPositionEvent(PositionEvent)
	OnAccountState(AccountStateEvent)
}

// EngineConfig carries engine-wide defaults applied at construction.
type EngineConfig struct {
	FillModel FillModelConfig
}

// DefaultEngineConfig returns a permissive, deterministic default.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{FillModel: DefaultFillModelConfig()}
}

// Engine is the façade that owns venues, the shared instrument cache, the
// accumulated data set, the simulation clock and message bus, and drives
// the main replay loop.
type Engine struct {
	cfg           EngineConfig
	initialTsInit int64
	venues        map[string]*SimulatedVenue
	instruments   *InstrumentCache
	data          *DataContainer
	clock         *TestClock
	bus           *MessageBus
	handlers      []StrategyHandler
	disposed      bool
	logCtx        context.Context
}

// NewEngine constructs an Engine starting its clock at tsInit nanoseconds.
func NewEngine(cfg EngineConfig, tsInit int64) *Engine {
	return &Engine{
		cfg:           cfg,
		initialTsInit: tsInit,
		venues:        make(map[string]*SimulatedVenue),
		instruments:   NewInstrumentCache(),
		data:          NewDataContainer(),
		clock:         NewTestClock(tsInit),
		bus:           NewMessageBus(),
		logCtx:        context.Background(),
	}
}

// SetLogContext attaches a context (typically carrying an
// observability.RunInfo) used for every structured log line this engine
// emits from here on. Optional — defaults to context.Background().
func (e *Engine) SetLogContext(ctx context.Context) { e.logCtx = ctx }

// Bus exposes the engine's message bus for topic-based subscriptions
//, e.g. for auxiliary simulation modules that only need
// position events.
func (e *Engine) Bus() *MessageBus { return e.bus }

// Clock exposes the engine's simulation clock for scheduling alerts/timers.
func (e *Engine) Clock() *TestClock { return e.clock }

// AddHandler registers a strategy handler to receive every emitted event.
func (e *Engine) AddHandler(h StrategyHandler) { e.handlers = append(e.handlers, h) }

// AddVenue registers a new simulated venue under name.
func (e *Engine) AddVenue(name string, cfg VenueConfig) error {
	if _, ok := e.venues[name]; ok {
		observability.LogEvent(e.logCtx, "error", "backtest_add_venue_failed", map[string]any{
			"venue": name, "error": ErrDuplicateVenue.Error(),
		})
		return ErrDuplicateVenue
	}
	if cfg.FillModel == (FillModelConfig{}) {
		cfg.FillModel = e.cfg.FillModel
	}
	e.venues[name] = NewSimulatedVenue(name, cfg, e.instruments, e.clock, e)
	observability.LogEvent(e.logCtx, "info", "backtest_venue_added", map[string]any{
		"venue": name, "oms_type": string(cfg.OmsType), "account_type": string(cfg.AccountType),
	})
	return nil
}

// Venue returns the named venue.
func (e *Engine) Venue(name string) (*SimulatedVenue, error) {
	v, ok := e.venues[name]
	if !ok {
		return nil, ErrUnknownVenue
	}
	return v, nil
}

// AddInstrument registers inst in the shared cache and on venueName's book.
func (e *Engine) AddInstrument(venueName string, inst Instrument) error {
	v, err := e.Venue(venueName)
	if err != nil {
		return err
	}
	e.instruments.Add(inst)
	v.AddInstrument(inst.ID)
	return nil
}

// Data exposes the engine's accumulated data container so callers can add
// ticks/bars/deltas/generic data directly.
func (e *Engine) Data() *DataContainer { return e.data }

// SubmitOrder routes a SubmitOrder command to venueName.
func (e *Engine) SubmitOrder(venueName string, order *Order) error {
	v, err := e.Venue(venueName)
	if err != nil {
		return err
	}
	v.SubmitOrder(order, e.clock.Now(), e.clock.Now())
	return nil
}

// SubmitBracketOrder routes a SubmitBracketOrder command to venueName.
func (e *Engine) SubmitBracketOrder(venueName string, b *Bracket) error {
	v, err := e.Venue(venueName)
	if err != nil {
		return err
	}
	v.SubmitBracketOrder(b, e.clock.Now(), e.clock.Now())
	return nil
}

// CancelOrder routes a CancelOrder command to venueName.
func (e *Engine) CancelOrder(venueName, clientOrderID string) error {
	v, err := e.Venue(venueName)
	if err != nil {
		return err
	}
	v.CancelOrder(clientOrderID, e.clock.Now(), e.clock.Now())
	return nil
}

// UpdateOrder routes an UpdateOrder command to venueName.
func (e *Engine) UpdateOrder(venueName, clientOrderID string, qty Quantity, price Price) error {
	v, err := e.Venue(venueName)
	if err != nil {
		return err
	}
	v.UpdateOrder(clientOrderID, qty, price, e.clock.Now(), e.clock.Now())
	return nil
}

// ─── EventSink (fan-out to bus + handlers) ──────────────────────────────────

func (e *Engine) OnOrderEvent(ev OrderEvent) {
	level := "info"
	if ev.Type == EventOrderRejected || ev.Type == EventOrderCancelRejected || ev.Type == EventOrderUpdateRejected {
		level = "warn"
	}
	observability.LogEvent(e.logCtx, level, "backtest_order_event", map[string]any{
		"type": string(ev.Type), "client_order_id": ev.ClientOrderID, "reason": ev.Reason,
	})
	e.bus.Publish("events.order."+string(ev.Type), ev)
	for _, h := range e.handlers {
		h.OnOrderEvent(ev)
	}
}

func (e *Engine) OnPositionEvent(ev PositionEvent) {
	observability.LogEvent(e.logCtx, "info", "backtest_position_event", map[string]any{
		"type": string(ev.Type), "position_id": ev.PositionID, "instrument": ev.InstrumentID.String(),
	})
	e.bus.Publish("events.position."+string(ev.Type), ev)
	for _, h := range e.handlers {
		h.OnPositionEvent(ev)
	}
}

func (e *Engine) OnAccountState(ev AccountStateEvent) {
	observability.LogEvent(e.logCtx, "info", "backtest_account_state", map[string]any{
		"venue": ev.VenueName,
	})
	e.bus.Publish("events.account."+ev.VenueName, ev)
	for _, h := range e.handlers {
		h.OnAccountState(ev)
	}
}

// ─── main loop ───────────────────────────────────────────────────

// Run replays every data item with ts_init in the half-open range
// [start, end) — or the container's full span if either bound is nil —
// driving venues and firing due timers in between, then returns. An empty
// data set or start >= end is an error.
func (e *Engine) Run(start, end *int64) error {
	if e.data.IsEmpty() {
		observability.LogEvent(e.logCtx, "error", "backtest_run_failed", map[string]any{"error": ErrEmptyData.Error()})
		return ErrEmptyData
	}
	if err := e.data.Validate(e.instruments); err != nil {
		observability.LogEvent(e.logCtx, "error", "backtest_run_failed", map[string]any{"error": err.Error()})
		return err
	}

	rangeStart, rangeEnd, err := e.resolveRange(start, end)
	if err != nil {
		observability.LogEvent(e.logCtx, "error", "backtest_run_failed", map[string]any{"error": err.Error()})
		return err
	}

	observability.LogEvent(e.logCtx, "info", "backtest_run_started", map[string]any{
		"range_start": rangeStart, "range_end": rangeEnd,
	})
	items := e.data.Range(rangeStart, rangeEnd)
	e.runItems(items)
	e.flushTimersUntil(rangeEnd - 1)
	observability.LogEvent(e.logCtx, "info", "backtest_run_completed", nil)
	return nil
}

// RunStreaming processes data (a caller-supplied batch, typically more
// recent than anything already run) without resetting engine state — the
// multi-call variant for feeding the engine incrementally.
func (e *Engine) RunStreaming(data *DataContainer) error {
	if err := data.Validate(e.instruments); err != nil {
		return err
	}
	last, ok := data.LastTs()
	if !ok {
		return nil
	}
	e.runItems(data.Range(e.clock.Now(), last+1))
	return nil
}

// EndStreaming finalizes a RunStreaming sequence, firing any timers still
// due at the engine's current clock time.
func (e *Engine) EndStreaming() {
	e.flushTimersUntil(e.clock.Now())
}

func (e *Engine) resolveRange(start, end *int64) (int64, int64, error) {
	first, _ := e.data.FirstTs()
	last, _ := e.data.LastTs()
	rangeStart, rangeEnd := first, last+1
	if start != nil {
		rangeStart = *start
	}
	if end != nil {
		rangeEnd = *end
	}
	if rangeStart >= rangeEnd {
		return 0, 0, ErrInvalidRange
	}
	return rangeStart, rangeEnd, nil
}

// runItems drives the main loop over a run of items already restricted to
// the desired range, grouping by ts_init so time events sequence correctly
// around each group: anything due strictly before the group's ts fires
// first, the group's market data dispatches next, then anything due at
// exactly the group's ts fires last.
func (e *Engine) runItems(items []dataItem) {
	i := 0
	for i < len(items) {
		ts := items[i].tsInit
		j := i
		for j < len(items) && items[j].tsInit == ts {
			j++
		}

		e.flushTimersUntil(ts - 1)
		for _, item := range items[i:j] {
			e.dispatch(item)
		}
		e.flushTimersUntil(ts)

		i = j
	}
}

func (e *Engine) flushTimersUntil(ts int64) {
	for _, ev := range e.clock.AdvanceTime(ts) {
		ev.Fire()
	}
}

func (e *Engine) dispatch(item dataItem) {
	switch item.kind {
	case kindQuote:
		q := item.quote
		if v := e.venueFor(q.InstrumentID); v != nil {
			v.ProcessQuoteTick(q.InstrumentID, q.BidPrice, q.AskPrice, q.BidSize, q.AskSize, q.TsEvent, q.TsInit)
		}
	case kindTrade:
		t := item.trade
		if v := e.venueFor(t.InstrumentID); v != nil {
			v.ProcessTradeTick(t.InstrumentID, t.Price, t.Aggressor, t.TsEvent, t.TsInit)
		}
	case kindBookDelta:
		if v := e.venueFor(item.delta.InstrumentID); v != nil {
			v.ProcessOrderBookDelta(item.delta)
		}
	case kindBookSnapshot:
		if v := e.venueFor(item.snapshot.InstrumentID); v != nil {
			v.ProcessOrderBookSnapshot(item.snapshot)
		}
	case kindBar, kindGeneric:
		// Bars and generic data carry no matching-engine effect in this
		// engine. dispatch does not publish them on the bus or pass them to
		// strategy handlers either: they are replayed and dropped.
	}
}

// venueFor returns the first venue tracking id's book, or nil. Instruments
// are registered on exactly one venue in this implementation.
func (e *Engine) venueFor(id InstrumentID) *SimulatedVenue {
	for _, v := range e.venues {
		if _, ok := v.books[id]; ok {
			return v
		}
	}
	return nil
}

// Reset returns the engine to its post-construction state: venues, data,
// clock and bus are all rebuilt; registered handlers are preserved.
func (e *Engine) Reset() {
	venueConfigs := make(map[string]VenueConfig, len(e.venues))
	for name, v := range e.venues {
		venueConfigs[name] = v.cfg
	}
	instruments := e.instruments.All()

	e.clock = NewTestClock(e.initialTsInit)
	e.bus = NewMessageBus()
	e.data = NewDataContainer()
	e.instruments = NewInstrumentCache()
	e.venues = make(map[string]*SimulatedVenue)

	for name, cfg := range venueConfigs {
		e.venues[name] = NewSimulatedVenue(name, cfg, e.instruments, e.clock, e)
	}
	for _, inst := range instruments {
		e.instruments.Add(inst)
		for _, v := range e.venues {
			v.AddInstrument(inst.ID)
		}
	}
}

// Dispose releases the engine's resources. It is idempotent.
func (e *Engine) Dispose() {
	if e.disposed {
		return
	}
	e.disposed = true
	e.venues = nil
	e.data = nil
	e.handlers = nil
}
