// Package backtest implements L30–L33 of the Jax trading-system architecture:
//
//   - L30: fixed-precision Price/Quantity/Money value types and the
//     Instrument registry (Currency, commission schedules, tick size).
//   - L31: per-venue order books (L1 top-of-book, L2 aggregated depth) and
//     the SimulatedVenue matching engine — order lifecycle, OCO linkage,
//     bracket (entry + stop-loss + take-profit) handling.
//   - L32: Account bookkeeping — commission, realized PnL, cross-currency
//     conversion via RateCalculator, balance adjustment.
//   - L33: the deterministic Engine — a single-threaded, timestamp-ordered
//     replay driver (TestClock, MessageBus, DataContainer) that
//     interleaves market data, time events and venue messages and delivers
//     them to strategies in strict order.
//
// This package supersedes the single-symbol, candle-close Backtester in
// jax-trading-assistant/libs/strategies/backtest.go and the pending-order
// SimBroker in jax-trading-assistant/libs/replay/replay.go with a full matching
// engine: L1/L2 books, bracket/OCO orders, post-only and stop semantics,
// and venue-native account bookkeeping. Strategies subscribe to emitted
// events and issue commands through Engine/SimulatedVenue; nothing in this
// package performs live I/O or blocks.
package backtest
