package backtest

import (
	"context"
	"fmt"
	"time"

	"jax-trading-assistant/libs/strategies"
)

// StrategyBridge adapts an indicator-driven strategies.Strategy onto this
// package's event-driven replay loop: every Bar dispatched to it is turned
// into an AnalysisInput, the wrapped strategy's Analyze result is sized
// into a position using a fixed risk-per-trade fraction (the same
// convention strategies.Backtester uses), and a SignalBuy/SignalSell is
// submitted to the engine as a bracket order when no position is open.
type StrategyBridge struct {
	strategy     strategies.Strategy
	engine       *Engine
	venueName    string
	instrumentID InstrumentID
	precision    int32

	riskPerTrade float64 // fraction of account equity risked per trade
	defaultQty   Quantity

	openPosition bool
}

// NewStrategyBridge wires strategy into engine for trading instrumentID on
// venueName. defaultQty is used whenever stop-distance based sizing cannot
// be computed (e.g. the strategy issued no stop-loss).
func NewStrategyBridge(strategy strategies.Strategy, engine *Engine, venueName string, instrumentID InstrumentID, precision int32, defaultQty Quantity) *StrategyBridge {
	return &StrategyBridge{
		strategy:     strategy,
		engine:       engine,
		venueName:    venueName,
		instrumentID: instrumentID,
		precision:    precision,
		riskPerTrade: 0.01,
		defaultQty:   defaultQty,
	}
}

// WithRiskPerTrade sets the fraction of account equity risked per trade
// (mirrors strategies.Backtester.WithRiskPerTrade).
func (b *StrategyBridge) WithRiskPerTrade(risk float64) *StrategyBridge {
	b.riskPerTrade = risk
	return b
}

// OnBar converts bar into an AnalysisInput, asks the wrapped strategy to
// analyze it, and submits a bracket order on a BUY/SELL signal when no
// position is currently open for this instrument.
func (b *StrategyBridge) OnBar(ctx context.Context, bar Bar) error {
	if b.openPosition {
		return nil
	}

	input := strategies.AnalysisInput{
		Symbol:    b.instrumentID.Symbol,
		Price:     bar.Close.Float64(),
		Timestamp: time.Unix(0, bar.TsEvent),
	}

	signal, err := b.strategy.Analyze(ctx, input)
	if err != nil {
		return fmt.Errorf("backtest: strategy %s analyze: %w", b.strategy.ID(), err)
	}
	if signal.Type == strategies.SignalHold {
		return nil
	}

	side := SideBuy
	if signal.Type == strategies.SignalSell {
		side = SideSell
	}

	entryPrice := signal.EntryPrice
	if entryPrice == 0 {
		entryPrice = bar.Close.Float64()
	}

	qty := b.sizePosition(entryPrice, signal.StopLoss)

	entry := NewLimitOrder(b.instrumentID, side, qty, NewPrice(entryPrice, b.precision), false, b.strategy.ID())

	bracket := &Bracket{Entry: entry}
	if signal.StopLoss != 0 {
		bracket.StopLoss = NewStopMarketOrder(b.instrumentID, side.Opposite(), qty, NewPrice(signal.StopLoss, b.precision), b.strategy.ID())
	}
	if len(signal.TakeProfit) > 0 {
		bracket.TakeProfit = NewLimitOrder(b.instrumentID, side.Opposite(), qty, NewPrice(signal.TakeProfit[0], b.precision), false, b.strategy.ID())
	}

	b.openPosition = true
	return b.engine.SubmitBracketOrder(b.venueName, bracket)
}

// sizePosition risks riskPerTrade of current free balance over the distance
// from entry to stop; falls back to defaultQty when no stop was given or
// the venue/account cannot be resolved.
func (b *StrategyBridge) sizePosition(entryPrice, stopPrice float64) Quantity {
	if stopPrice == 0 || entryPrice == stopPrice {
		return b.defaultQty
	}
	v, err := b.engine.Venue(b.venueName)
	if err != nil {
		return b.defaultQty
	}
	inst, ok := b.engine.instruments.Get(b.instrumentID)
	if !ok {
		return b.defaultQty
	}
	equity := v.Account().Balance(inst.SettlementCurrency).Free().Float64()
	riskAmount := equity * b.riskPerTrade
	distance := entryPrice - stopPrice
	if distance < 0 {
		distance = -distance
	}
	if distance == 0 {
		return b.defaultQty
	}
	return inst.RoundQuantity(riskAmount / distance)
}

// OnOrderEvent, OnPositionEvent and OnAccountState satisfy StrategyHandler
// so a StrategyBridge can also be registered with Engine.AddHandler to
// track when its own position closes.
func (b *StrategyBridge) OnOrderEvent(OrderEvent) {}

func (b *StrategyBridge) OnPositionEvent(ev PositionEvent) {
	if ev.InstrumentID == b.instrumentID && ev.Type == EventPositionClosed {
		b.openPosition = false
	}
}

func (b *StrategyBridge) OnAccountState(AccountStateEvent) {}
