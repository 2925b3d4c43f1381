package backtest

// RiskGate is an optional pre-trade check consulted by SubmitOrder before an
// order reaches the matching engine. It is a local, duck-typed interface
// rather than an import of jax-trading-assistant/libs/risk: libs/risk lives
// directly in the root module (it is not its own Go module with a
// require/replace pointing back at libs/backtest), so this package cannot
// depend on it directly without inverting that relationship. Any type
// structurally satisfying RiskGate — including a thin adapter the
// application layer builds around a real *risk.Enforcer — can be wired in
// via SimulatedVenue.SetRiskGate.
type RiskGate interface {
	// Evaluate reports whether order should be blocked pre-trade, and why.
	Evaluate(order *Order) (reason string, blocked bool)
}

// SlippageRecorder is an optional sink for observed TAKER slippage, fed one
// (instrument, expected, actual) triple per fill that slipped. Structurally
// compatible with an adapter over jax-trading-assistant/libs/microstructure's
// SlippageModel, for the same cross-module reason RiskGate is duck-typed
// instead of imported directly.
type SlippageRecorder interface {
	RecordSlip(instrumentID InstrumentID, expected, actual Price)
}

// SetRiskGate installs an optional pre-trade risk gate. Passing nil removes it.
func (v *SimulatedVenue) SetRiskGate(g RiskGate) { v.riskGate = g }

// SetSlippageRecorder installs an optional slippage observer. Passing nil removes it.
func (v *SimulatedVenue) SetSlippageRecorder(r SlippageRecorder) { v.slippageRecorder = r }
