package backtest

import "math/rand/v2"

// FillModelConfig controls the three independent Bernoulli predicates the
// matching engine consults at an equal-price touch or on a TAKER fill
//. No library in this repo's dependency pack provides a seeded,
// reproducible PRNG beyond the standard library's math/rand/v2 (the
// cryptographically-secure crypto/rand is unsuitable since determinism, not
// unpredictability, is the requirement here) — this is the one place this
// package reaches for the standard library for an ambient concern; see
// DESIGN.md.
type FillModelConfig struct {
	// ProbLimitFilled is P(a resting limit fills on an equal-price touch).
	ProbLimitFilled float64
	// ProbStopFilled is P(a stop triggers on an equal-price touch).
	ProbStopFilled float64
	// ProbSlipped is P(a TAKER fill slips one tick against the order).
	ProbSlipped float64
	// Seed makes the model's draws reproducible across runs.
	Seed uint64
}

// DefaultFillModelConfig returns a model with no randomness: limits and
// stops always fill/trigger on an equal-price touch, and TAKER fills never
// slip. This matches a naive, maximally-permissive matching engine and is
// the safest default for strategies that haven't calibrated a fill model.
func DefaultFillModelConfig() FillModelConfig {
	return FillModelConfig{
		ProbLimitFilled: 1.0,
		ProbStopFilled:  1.0,
		ProbSlipped:     0.0,
		Seed:            1,
	}
}

// FillModel implements the three marginal-fill/slippage predicates,
// backed by a seeded deterministic PRNG so that repeated runs with the
// same seed produce byte-identical event streams.
type FillModel struct {
	cfg  FillModelConfig
	rng  *rand.Rand
}

// NewFillModel constructs a FillModel from cfg.
func NewFillModel(cfg FillModelConfig) *FillModel {
	return &FillModel{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// IsLimitFilled draws whether a resting limit order fills on an equal-price touch.
func (m *FillModel) IsLimitFilled() bool { return m.draw(m.cfg.ProbLimitFilled) }

// IsStopFilled draws whether a stop order triggers on an equal-price touch.
func (m *FillModel) IsStopFilled() bool { return m.draw(m.cfg.ProbStopFilled) }

// IsSlipped draws whether a TAKER fill slips one tick against the order.
func (m *FillModel) IsSlipped() bool { return m.draw(m.cfg.ProbSlipped) }

func (m *FillModel) draw(prob float64) bool {
	if prob <= 0 {
		return false
	}
	if prob >= 1 {
		return true
	}
	return m.rng.Float64() < prob
}
