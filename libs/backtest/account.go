package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountType selects margin or cash accounting rules. The
// matching/bookkeeping logic in this package treats both identically for
// balance adjustment; AccountType is carried through for callers that build
// margin-requirement checks on top.
type AccountType string

const (
	AccountCash   AccountType = "CASH"
	AccountMargin AccountType = "MARGIN"
)

// AccountBalance is the per-currency ledger entry.
type AccountBalance struct {
	Currency Currency
	Total    Money
	Locked   Money
}

// Free returns Total − Locked.
func (b AccountBalance) Free() Money { return b.Total.Sub(b.Locked) }

// Account holds per-currency balances for one venue. "Frozen" accounts
// ignore adjustments.
type Account struct {
	Type     AccountType
	Frozen   bool
	balances map[string]*AccountBalance // keyed by Currency.Code

	// TotalCommissions accumulates even while frozen: a frozen account still
	// owes commission, it just cannot move balance.
	TotalCommissions map[string]Money
}

// NewAccount creates an Account seeded with starting balances.
func NewAccount(accountType AccountType, frozen bool, starting []AccountBalance) *Account {
	a := &Account{
		Type:             accountType,
		Frozen:           frozen,
		balances:         make(map[string]*AccountBalance),
		TotalCommissions: make(map[string]Money),
	}
	for _, b := range starting {
		bal := b
		a.balances[b.Currency.Code] = &bal
	}
	return a
}

// Balance returns the balance for currency, or a zero balance if untracked.
func (a *Account) Balance(currency Currency) AccountBalance {
	if b, ok := a.balances[currency.Code]; ok {
		return *b
	}
	return AccountBalance{Currency: currency, Total: NewMoney(0, currency), Locked: NewMoney(0, currency)}
}

// Balances returns every tracked balance, in no particular order.
func (a *Account) Balances() []AccountBalance {
	out := make([]AccountBalance, 0, len(a.balances))
	for _, b := range a.balances {
		out = append(out, *b)
	}
	return out
}

// Adjust applies delta to currency's Total (Free mirrors Total since Locked
// is unaffected by PnL/commission settlement). Frozen accounts record
// nothing — not even TotalCommissions delta is passed here; callers track
// commission separately via RecordCommission.
func (a *Account) Adjust(currency Currency, delta Money) {
	if a.Frozen {
		return
	}
	b, ok := a.balances[currency.Code]
	if !ok {
		zero := NewMoney(0, currency)
		b = &AccountBalance{Currency: currency, Total: zero, Locked: zero}
		a.balances[currency.Code] = b
	}
	b.Total = b.Total.Add(delta)
}

// RecordCommission accumulates TotalCommissions unconditionally — even for
// frozen accounts.
func (a *Account) RecordCommission(commission Money) {
	cur := commission.Currency().Code
	existing, ok := a.TotalCommissions[cur]
	if !ok {
		existing = NewMoney(0, commission.Currency())
	}
	a.TotalCommissions[cur] = existing.Add(commission)
}

// ─── RateCalculator ──────────────────────────────────────────────────────────

// PriceType selects which side of a quote a conversion uses.
type PriceType string

const (
	PriceBid PriceType = "BID"
	PriceAsk PriceType = "ASK"
)

// pair is an ordered (base, quote) lookup key for a directly-quoted currency
// pair; the inverse path looks the same pair up with base and quote swapped.
type pair struct{ base, quote string }

// RateGraph holds the current best bid/ask for every quoted pair on a venue,
// built from the venue's instruments.
type RateGraph struct {
	bid map[pair]decimal.Decimal
	ask map[pair]decimal.Decimal
}

// NewRateGraph creates an empty RateGraph.
func NewRateGraph() *RateGraph {
	return &RateGraph{bid: make(map[pair]decimal.Decimal), ask: make(map[pair]decimal.Decimal)}
}

// SetQuote records the current best bid/ask for the base/quote pair (e.g.
// base=EUR, quote=USD for "EUR/USD").
func (g *RateGraph) SetQuote(base, quote Currency, bid, ask Price) {
	key := pair{base: base.Code, quote: quote.Code}
	g.bid[key] = bid.toDecimal()
	g.ask[key] = ask.toDecimal()
}

// toDecimal exposes the underlying decimal.Decimal for RateGraph bookkeeping
// without widening Price's public API with a second accessor convention.
func (p Price) toDecimal() decimal.Decimal { return p.dec }

// RateCalculator resolves a conversion rate from one currency to another by
// walking a small graph of quoted pairs: direct, inverse, or triangulated
// through a quoted intermediate.
type RateCalculator struct {
	// Intermediates lists currencies tried as a triangulation hop, in order.
	// Defaults to [USD] when nil.
	Intermediates []Currency
}

// Rate resolves from→to using priceType (BID when converting a sell-side
// proceed, ASK when converting a buy-side cost).
func (rc RateCalculator) Rate(from, to Currency, priceType PriceType, graph *RateGraph) (decimal.Decimal, error) {
	if from.Code == to.Code {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := rc.direct(from, to, priceType, graph); ok {
		return r, nil
	}
	if r, ok := rc.inverse(from, to, priceType, graph); ok {
		return r, nil
	}
	intermediates := rc.Intermediates
	if intermediates == nil {
		intermediates = []Currency{USD}
	}
	for _, mid := range intermediates {
		if mid.Code == from.Code || mid.Code == to.Code {
			continue
		}
		legA, okA := rc.anyDirection(from, mid, priceType, graph)
		legB, okB := rc.anyDirection(mid, to, priceType, graph)
		if okA && okB {
			return legA.Mul(legB), nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %s -> %s", ErrRateUnavailable, from.Code, to.Code)
}

func (rc RateCalculator) direct(from, to Currency, pt PriceType, g *RateGraph) (decimal.Decimal, bool) {
	m := g.ask
	if pt == PriceBid {
		m = g.bid
	}
	r, ok := m[pair{base: from.Code, quote: to.Code}]
	return r, ok
}

func (rc RateCalculator) inverse(from, to Currency, pt PriceType, g *RateGraph) (decimal.Decimal, bool) {
	m := g.ask
	if pt == PriceBid {
		m = g.bid
	}
	r, ok := m[pair{base: to.Code, quote: from.Code}]
	if !ok || r.IsZero() {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromInt(1).Div(r), true
}

func (rc RateCalculator) anyDirection(from, to Currency, pt PriceType, g *RateGraph) (decimal.Decimal, bool) {
	if r, ok := rc.direct(from, to, pt, g); ok {
		return r, true
	}
	return rc.inverse(from, to, pt, g)
}

// ─── Bookkeeper ──────────────────────────────────────────────────────────────

// Bookkeeper applies a fill's commission and PnL to an Account: convert both
// to the account's base currency, adjust balance, and report an
// AccountStateEvent with every balance after adjustment. Resolving the
// position and computing commission and PnL happen before Settle is called,
// in SimulatedVenue.applyFill.
type Bookkeeper struct {
	BaseCurrency Currency
	RateCalc     RateCalculator
}

// NewBookkeeper creates a Bookkeeper settling into baseCurrency.
func NewBookkeeper(baseCurrency Currency) *Bookkeeper {
	return &Bookkeeper{BaseCurrency: baseCurrency, RateCalc: RateCalculator{}}
}

// Settle converts commission and pnl into the account's base currency using
// graph, adjusts the account, records the commission (even if frozen), and
// returns the resulting AccountStateEvent. A non-convertible amount is a
// fatal error.
func (bk *Bookkeeper) Settle(acct *Account, commission, pnl Money, side Side, graph *RateGraph, venueName string, tsEvent, tsInit int64) (AccountStateEvent, error) {
	priceType := PriceAsk
	if side == SideSell {
		priceType = PriceBid
	}

	commissionBase, err := bk.convert(commission, priceType, graph)
	if err != nil {
		return AccountStateEvent{}, fmt.Errorf("backtest: settle commission: %w", err)
	}
	pnlBase, err := bk.convert(pnl, priceType, graph)
	if err != nil {
		return AccountStateEvent{}, fmt.Errorf("backtest: settle pnl: %w", err)
	}

	acct.RecordCommission(commissionBase)
	net := pnlBase.Sub(commissionBase)
	acct.Adjust(bk.BaseCurrency, net)

	return AccountStateEvent{
		VenueName: venueName,
		Balances:  acct.Balances(),
		TsEvent:   tsEvent,
		TsInit:    tsInit,
	}, nil
}

func (bk *Bookkeeper) convert(m Money, priceType PriceType, graph *RateGraph) (Money, error) {
	if m.Currency().Code == bk.BaseCurrency.Code {
		return m, nil
	}
	// A zero amount needs no rate path regardless of its currency — this
	// covers a zero-cost CommissionSchedule that was never given an explicit
	// Currency (Code == "").
	if m.IsZero() {
		return NewMoney(0, bk.BaseCurrency), nil
	}
	rate, err := bk.RateCalc.Rate(m.Currency(), bk.BaseCurrency, priceType, graph)
	if err != nil {
		return Money{}, err
	}
	return m.MulRate(rate, bk.BaseCurrency), nil
}
