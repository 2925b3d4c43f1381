package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountAdjustAndFree(t *testing.T) {
	a := NewAccount(AccountCash, false, []AccountBalance{
		{Currency: USD, Total: NewMoney(10000, USD), Locked: NewMoney(500, USD)},
	})

	a.Adjust(USD, NewMoney(-50, USD))

	bal := a.Balance(USD)
	assert.Equal(t, "9950.00 USD", bal.Total.String())
	assert.Equal(t, "9450.00 USD", bal.Free().String())
}

func TestFrozenAccountIgnoresAdjustButRecordsCommission(t *testing.T) {
	a := NewAccount(AccountCash, true, []AccountBalance{
		{Currency: USD, Total: NewMoney(10000, USD)},
	})

	a.Adjust(USD, NewMoney(-50, USD))
	a.RecordCommission(NewMoney(1.50, USD))

	bal := a.Balance(USD)
	assert.Equal(t, "10000.00 USD", bal.Total.String(), "frozen account balance must not change")
	assert.Equal(t, "1.50 USD", a.TotalCommissions["USD"].String())
}

func TestRateCalculatorDirectAndInverse(t *testing.T) {
	g := NewRateGraph()
	g.SetQuote(EUR, USD, NewPrice(1.10, 4), NewPrice(1.1010, 4))

	rc := RateCalculator{}

	rate, err := rc.Rate(EUR, USD, PriceAsk, g)
	require.NoError(t, err)
	assert.True(t, rate.Equal(NewPrice(1.1010, 4).toDecimal()))

	inv, err := rc.Rate(USD, EUR, PriceAsk, g)
	require.NoError(t, err)
	assert.False(t, inv.IsZero())
}

func TestRateCalculatorTriangulatesThroughIntermediate(t *testing.T) {
	g := NewRateGraph()
	g.SetQuote(GBP, USD, NewPrice(1.25, 4), NewPrice(1.2510, 4))
	g.SetQuote(USD, JPY, NewPrice(150, 4), NewPrice(150.50, 4))

	rc := RateCalculator{Intermediates: []Currency{USD}}

	rate, err := rc.Rate(GBP, JPY, PriceAsk, g)
	require.NoError(t, err)
	assert.False(t, rate.IsZero())
}

func TestRateCalculatorUnavailableIsError(t *testing.T) {
	g := NewRateGraph()
	rc := RateCalculator{}

	_, err := rc.Rate(GBP, JPY, PriceAsk, g)
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestBookkeeperSettleConvertsAndAdjusts(t *testing.T) {
	g := NewRateGraph()
	a := NewAccount(AccountCash, false, []AccountBalance{{Currency: USD, Total: NewMoney(10000, USD)}})
	bk := NewBookkeeper(USD)

	event, err := bk.Settle(a, NewMoney(1, USD), NewMoney(25, USD), SideBuy, g, "SIM", 1, 1)
	require.NoError(t, err)

	assert.Equal(t, "SIM", event.VenueName)
	bal := a.Balance(USD)
	assert.Equal(t, "10024.00 USD", bal.Total.String())
	assert.Equal(t, "1.00 USD", a.TotalCommissions["USD"].String())
}

func TestBookkeeperSettleZeroCommissionInEmptyCurrencyDoesNotError(t *testing.T) {
	// A zero-value CommissionSchedule.Calculate (instrument.go) yields a
	// commission Money in Currency{} — Settle must not try to rate-convert it.
	g := NewRateGraph()
	a := NewAccount(AccountCash, false, []AccountBalance{{Currency: USD, Total: NewMoney(10000, USD)}})
	bk := NewBookkeeper(USD)

	var zeroCommission Money
	_, err := bk.Settle(a, zeroCommission, NewMoney(25, USD), SideBuy, g, "SIM", 1, 1)
	require.NoError(t, err)
}
