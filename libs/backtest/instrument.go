package backtest

import "fmt"

// InstrumentID identifies a tradable instrument at a specific venue, e.g.
// "AAPL.NASDAQ" or "EUR/USD.SIM".
type InstrumentID struct {
	Symbol string
	Venue  string
}

func (id InstrumentID) String() string { return fmt.Sprintf("%s.%s", id.Symbol, id.Venue) }

// LiquiditySide distinguishes a fill that posted resting liquidity (MAKER)
// from one that consumed it (TAKER).
type LiquiditySide string

const (
	LiquidityMaker LiquiditySide = "MAKER"
	LiquidityTaker LiquiditySide = "TAKER"
)

// CommissionSchedule computes commission for a fill as a simple
// proportional-to-notional model (commonly used by equities/FX venues), with
// separate maker and taker rates. Tiered or per-contract fee models are not
// covered.
type CommissionSchedule struct {
	// MakerRate and TakerRate are fractions of notional (e.g. 0.0005 = 5bps).
	MakerRate decimal64
	TakerRate decimal64
	// Currency the commission is denominated in.
	Currency Currency
}

// decimal64 avoids importing shopspring/decimal into this file's public
// surface redundantly; it is a thin float64 alias used only for commission
// rate configuration, which is not itself a book or ledger quantity.
type decimal64 = float64

// Calculate returns the commission owed for a fill of qty at price px with
// the given liquidity side.
func (cs CommissionSchedule) Calculate(qty Quantity, px Price, side LiquiditySide) Money {
	rate := cs.TakerRate
	if side == LiquidityMaker {
		rate = cs.MakerRate
	}
	notional := qty.Mul(px)
	return NewMoney(notional.Float64()*rate, cs.Currency)
}

// Instrument is an immutable descriptor for a tradable symbol at a venue.
// Instruments are registered once with the Engine before any data or order
// referencing them is accepted.
type Instrument struct {
	ID InstrumentID

	// PricePrecision and SizePrecision are the number of decimal places
	// prices and quantities conform to.
	PricePrecision int32
	SizePrecision  int32

	// TickSize is the minimum price increment.
	TickSize Price

	// MinQuantity and MaxQuantity bound order size; MaxQuantity zero means unbounded.
	MinQuantity Quantity
	MaxQuantity Quantity

	// QuoteCurrency is the currency prices are quoted in.
	QuoteCurrency Currency
	// SettlementCurrency is the currency PnL and commission settle in —
	// usually equal to QuoteCurrency except for inverse contracts.
	SettlementCurrency Currency

	// Multiplier is the contract size (e.g. futures contract size);
	// NotionalMultiplier treats zero as 1. Commission and PnL in this
	// package are computed from quantity × price without it.
	Multiplier float64

	// Inverse marks instruments (e.g. inverse perpetuals) that quote PnL in
	// the base asset rather than the quote currency. Nothing in this package
	// reads the flag: PnL and commission for an inverse instrument are
	// computed and converted like those of any other instrument.
	Inverse bool

	// Commission computes commission Money for a fill; defaults to a
	// zero-cost CommissionSchedule if left as the zero value.
	Commission CommissionSchedule
}

// NewInstrument constructs an Instrument, applying the Multiplier default.
// Commission.Currency defaults to settlement — a zero-cost schedule (the
// common case for a freshly constructed Instrument) must still settle in a
// real currency so Bookkeeper never has to convert a zero amount out of an
// empty Currency{}.
func NewInstrument(id InstrumentID, pricePrecision, sizePrecision int32, tickSize Price, quote, settlement Currency) Instrument {
	return Instrument{
		ID:                 id,
		PricePrecision:     pricePrecision,
		SizePrecision:      sizePrecision,
		TickSize:           tickSize,
		QuoteCurrency:      quote,
		SettlementCurrency: settlement,
		Multiplier:         1,
		Commission:         CommissionSchedule{Currency: settlement},
	}
}

// NotionalMultiplier returns Multiplier, defaulting to 1.
func (i Instrument) NotionalMultiplier() float64 {
	if i.Multiplier == 0 {
		return 1
	}
	return i.Multiplier
}

// RoundPrice rounds value to this instrument's price precision and tick size.
func (i Instrument) RoundPrice(value float64) Price {
	p := NewPrice(value, i.PricePrecision)
	if i.TickSize.IsZero() {
		return p
	}
	// Snap to the nearest tick: round(value/tick) * tick.
	ticks := p.Float64() / i.TickSize.Float64()
	rounded := float64(int64(ticks + 0.5))
	if ticks < 0 {
		rounded = float64(int64(ticks - 0.5))
	}
	return NewPrice(rounded*i.TickSize.Float64(), i.PricePrecision)
}

// RoundQuantity rounds value to this instrument's size precision.
func (i Instrument) RoundQuantity(value float64) Quantity {
	return NewQuantity(value, i.SizePrecision)
}

// ValidateQuantity checks qty against MinQuantity/MaxQuantity. A zero
// MaxQuantity means unbounded.
func (i Instrument) ValidateQuantity(qty Quantity) error {
	if !i.MinQuantity.IsZero() && qty.LessThan(i.MinQuantity) {
		return fmt.Errorf("%w: quantity %s below minimum %s", ErrQuantityOutOfRange, qty, i.MinQuantity)
	}
	if !i.MaxQuantity.IsZero() && qty.GreaterThan(i.MaxQuantity) {
		return fmt.Errorf("%w: quantity %s exceeds maximum %s", ErrQuantityOutOfRange, qty, i.MaxQuantity)
	}
	return nil
}

// InstrumentCache is a registry of Instruments keyed by InstrumentID.
// Venues and the data engine both consult it; it owns no order/position
// state, only static descriptors.
type InstrumentCache struct {
	byID map[InstrumentID]Instrument
}

// NewInstrumentCache creates an empty InstrumentCache.
func NewInstrumentCache() *InstrumentCache {
	return &InstrumentCache{byID: make(map[InstrumentID]Instrument)}
}

// Add registers an instrument, overwriting any prior registration for the same ID.
func (c *InstrumentCache) Add(inst Instrument) { c.byID[inst.ID] = inst }

// Get returns the instrument and whether it was found.
func (c *InstrumentCache) Get(id InstrumentID) (Instrument, bool) {
	inst, ok := c.byID[id]
	return inst, ok
}

// MustGet returns the instrument or panics — used internally only after a
// caller has already validated presence; never called directly on
// strategy-supplied input.
func (c *InstrumentCache) MustGet(id InstrumentID) Instrument {
	inst, ok := c.byID[id]
	if !ok {
		panic(fmt.Sprintf("backtest: instrument %s not registered", id))
	}
	return inst
}

// All returns every registered instrument, in no particular order.
func (c *InstrumentCache) All() []Instrument {
	out := make([]Instrument, 0, len(c.byID))
	for _, inst := range c.byID {
		out = append(out, inst)
	}
	return out
}
