package backtest

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ─── Currency ───────────────────────────────────────────────────────────────

// Currency is a symbolic currency code carrying the precision used when
// formatting amounts in that currency and whether it trades on the crypto
// (24/7, no settlement lag) or traditional "iso" rails. Nothing in this
// package reads the classification: RateCalculator resolves direct,
// inverse and triangulated paths the same way for both kinds.
type Currency struct {
	Code      string
	Precision int32
	IsCrypto  bool
}

// USD, EUR, GBP, BTC, ETH and USDT are provided as convenience constructors
// for the currencies exercised in tests and example instruments; callers may
// construct any other Currency value directly.
var (
	USD  = Currency{Code: "USD", Precision: 2}
	EUR  = Currency{Code: "EUR", Precision: 2}
	GBP  = Currency{Code: "GBP", Precision: 2}
	JPY  = Currency{Code: "JPY", Precision: 0}
	BTC  = Currency{Code: "BTC", Precision: 8, IsCrypto: true}
	ETH  = Currency{Code: "ETH", Precision: 8, IsCrypto: true}
	USDT = Currency{Code: "USDT", Precision: 6, IsCrypto: true}
)

func (c Currency) String() string { return c.Code }

// knownCurrencies maps a currency code to its canonical Currency value (with
// the right Precision/IsCrypto) for the codes this package predefines.
var knownCurrencies = map[string]Currency{
	USD.Code: USD, EUR.Code: EUR, GBP.Code: GBP, JPY.Code: JPY,
	BTC.Code: BTC, ETH.Code: ETH, USDT.Code: USDT,
}

// currencyByCode resolves code to its canonical Currency if known, otherwise
// returns a bare Currency carrying only the code.
func currencyByCode(code string) Currency {
	if c, ok := knownCurrencies[code]; ok {
		return c
	}
	return Currency{Code: code}
}

// ─── fixed-point value types ────────────────────────────────────────────────

// Price is a fixed-precision decimal quantity. It wraps decimal.Decimal,
// whose internal (coefficient, exponent) representation is a raw integer
// times 10^-precision: Raw() rescales to Precision and returns the
// coefficient as an int64, so comparisons and invariant checks never touch
// floating point.
type Price struct {
	dec       decimal.Decimal
	precision int32
}

// Quantity is a fixed-precision decimal size. Structurally identical to
// Price; kept as a distinct type so a Price can never be passed where a
// Quantity is expected and vice versa.
type Quantity struct {
	dec       decimal.Decimal
	precision int32
}

// Money is a fixed-precision decimal amount carrying an explicit Currency.
type Money struct {
	dec       decimal.Decimal
	precision int32
	currency  Currency
}

// NewPrice builds a Price from a float64, rounded to precision decimal places.
func NewPrice(value float64, precision int32) Price {
	return Price{dec: decimal.NewFromFloat(value).Round(precision), precision: precision}
}

// NewPriceFromString parses a decimal string exactly (no float64 rounding
// error), rounding to precision decimal places.
func NewPriceFromString(value string, precision int32) (Price, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Price{}, fmt.Errorf("backtest: invalid price %q: %w", value, err)
	}
	return Price{dec: d.Round(precision), precision: precision}, nil
}

// NewQuantity builds a Quantity from a float64, rounded to precision decimal places.
func NewQuantity(value float64, precision int32) Quantity {
	return Quantity{dec: decimal.NewFromFloat(value).Round(precision), precision: precision}
}

// NewQuantityFromString parses a decimal string exactly.
func NewQuantityFromString(value string, precision int32) (Quantity, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Quantity{}, fmt.Errorf("backtest: invalid quantity %q: %w", value, err)
	}
	return Quantity{dec: d.Round(precision), precision: precision}, nil
}

// NewMoney builds a Money value in the given currency, rounded to the
// currency's configured precision.
func NewMoney(value float64, currency Currency) Money {
	return Money{dec: decimal.NewFromFloat(value).Round(currency.Precision), precision: currency.Precision, currency: currency}
}

// IsZero reports whether p is exactly zero.
func (p Price) IsZero() bool { return p.dec.IsZero() }

// Raw returns the coefficient of the value rescaled to Precision, as a
// plain int64. Safe to use for integer comparisons.
func (p Price) Raw() int64 { return p.dec.Round(p.precision).CoefficientInt64() }

// Precision returns the number of decimal places this Price conforms to.
func (p Price) Precision() int32 { return p.precision }

// Float64 returns the value as a float64, for display/metrics only — never
// for arithmetic that feeds back into the book or account balances.
func (p Price) Float64() float64 { f, _ := p.dec.Float64(); return f }

func (p Price) String() string { return p.dec.StringFixed(p.precision) }

// MarshalJSON renders Price as its fixed-precision decimal string, since its
// fields are unexported and would otherwise marshal to "{}" — used by
// testing.Golden/AssertDeterministic snapshots, never by the venue's own logic.
func (p Price) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

// Add returns p+other, preserving p's precision.
func (p Price) Add(other Price) Price {
	return Price{dec: p.dec.Add(other.dec).Round(p.precision), precision: p.precision}
}

// Sub returns p-other, preserving p's precision.
func (p Price) Sub(other Price) Price {
	return Price{dec: p.dec.Sub(other.dec).Round(p.precision), precision: p.precision}
}

// AddTicks returns p shifted by n ticks of the given tickSize (n may be negative).
func (p Price) AddTicks(n int, tickSize Price) Price {
	shift := tickSize.dec.Mul(decimal.NewFromInt(int64(n)))
	return Price{dec: p.dec.Add(shift).Round(p.precision), precision: p.precision}
}

// Cmp compares p to other: -1, 0, 1 as in decimal.Decimal.Cmp.
func (p Price) Cmp(other Price) int { return p.dec.Cmp(other.dec) }

// GreaterThan, LessThan, Equal and their -OrEqual variants are convenience
// wrappers around Cmp, mirroring decimal.Decimal's own API so call sites
// read the same way the rest of the pack's decimal-backed code does.
func (p Price) GreaterThan(o Price) bool        { return p.dec.GreaterThan(o.dec) }
func (p Price) GreaterThanOrEqual(o Price) bool { return p.dec.GreaterThanOrEqual(o.dec) }
func (p Price) LessThan(o Price) bool           { return p.dec.LessThan(o.dec) }
func (p Price) LessThanOrEqual(o Price) bool     { return p.dec.LessThanOrEqual(o.dec) }
func (p Price) Equal(o Price) bool              { return p.dec.Equal(o.dec) }

// AsMoney converts a Price into a Money value in currency, at currency's precision.
func (p Price) AsMoney(currency Currency) Money {
	return Money{dec: p.dec.Round(currency.Precision), precision: currency.Precision, currency: currency}
}

// Quantity methods — structurally parallel to Price.

func (q Quantity) IsZero() bool       { return q.dec.IsZero() }
func (q Quantity) Raw() int64         { return q.dec.Round(q.precision).CoefficientInt64() }
func (q Quantity) Precision() int32   { return q.precision }
func (q Quantity) Float64() float64   { f, _ := q.dec.Float64(); return f }
func (q Quantity) String() string     { return q.dec.StringFixed(q.precision) }

// MarshalJSON renders Quantity as its fixed-precision decimal string, for
// the same reason as Price.MarshalJSON.
func (q Quantity) MarshalJSON() ([]byte, error) { return json.Marshal(q.String()) }

func (q Quantity) Add(other Quantity) Quantity {
	return Quantity{dec: q.dec.Add(other.dec).Round(q.precision), precision: q.precision}
}
func (q Quantity) Sub(other Quantity) Quantity {
	return Quantity{dec: q.dec.Sub(other.dec).Round(q.precision), precision: q.precision}
}
func (q Quantity) Cmp(other Quantity) int                 { return q.dec.Cmp(other.dec) }
func (q Quantity) GreaterThan(o Quantity) bool            { return q.dec.GreaterThan(o.dec) }
func (q Quantity) GreaterThanOrEqual(o Quantity) bool     { return q.dec.GreaterThanOrEqual(o.dec) }
func (q Quantity) LessThan(o Quantity) bool               { return q.dec.LessThan(o.dec) }
func (q Quantity) LessThanOrEqual(o Quantity) bool        { return q.dec.LessThanOrEqual(o.dec) }
func (q Quantity) Equal(o Quantity) bool                  { return q.dec.Equal(o.dec) }

// Mul multiplies a Quantity by a Price, returning a Money value at price's precision.
func (q Quantity) Mul(p Price) Money {
	return Money{dec: q.dec.Mul(p.dec), precision: p.precision}
}

// Money methods.

func (m Money) IsZero() bool       { return m.dec.IsZero() }
func (m Money) Raw() int64         { return m.dec.Round(m.precision).CoefficientInt64() }
func (m Money) Precision() int32   { return m.precision }
func (m Money) Currency() Currency { return m.currency }
func (m Money) Float64() float64   { f, _ := m.dec.Float64(); return f }
func (m Money) String() string     { return fmt.Sprintf("%s %s", m.dec.StringFixed(m.precision), m.currency.Code) }

// MarshalJSON renders Money as "<amount> <currency code>", for the same
// reason as Price.MarshalJSON.
func (m Money) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

func (m Money) Add(other Money) Money {
	return Money{dec: m.dec.Add(other.dec).Round(m.precision), precision: m.precision, currency: m.currency}
}
func (m Money) Sub(other Money) Money {
	return Money{dec: m.dec.Sub(other.dec).Round(m.precision), precision: m.precision, currency: m.currency}
}
func (m Money) Neg() Money {
	return Money{dec: m.dec.Neg(), precision: m.precision, currency: m.currency}
}
func (m Money) GreaterThan(o Money) bool { return m.dec.GreaterThan(o.dec) }
func (m Money) LessThan(o Money) bool    { return m.dec.LessThan(o.dec) }

// MulRate multiplies m by a conversion rate and re-denominates into `to`,
// rounding to `to`'s precision. Used by RateCalculator-driven conversions.
func (m Money) MulRate(rate decimal.Decimal, to Currency) Money {
	return Money{dec: m.dec.Mul(rate).Round(to.Precision), precision: to.Precision, currency: to}
}
