package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataContainerInsertKeepsSortedByTsInit(t *testing.T) {
	id := InstrumentID{Symbol: "AAPL", Venue: "SIM"}
	c := NewDataContainer()

	c.AddQuoteTick(QuoteTick{InstrumentID: id, TsInit: 300})
	c.AddQuoteTick(QuoteTick{InstrumentID: id, TsInit: 100})
	c.AddQuoteTick(QuoteTick{InstrumentID: id, TsInit: 200})

	require.Equal(t, 3, c.Len())
	first, ok := c.FirstTs()
	require.True(t, ok)
	assert.Equal(t, int64(100), first)
	last, ok := c.LastTs()
	require.True(t, ok)
	assert.Equal(t, int64(300), last)
}

func TestDataContainerRangeIsHalfOpen(t *testing.T) {
	id := InstrumentID{Symbol: "AAPL", Venue: "SIM"}
	c := NewDataContainer()
	for _, ts := range []int64{100, 200, 300, 400} {
		c.AddQuoteTick(QuoteTick{InstrumentID: id, TsInit: ts})
	}

	items := c.Range(200, 400)
	require.Len(t, items, 2)
	assert.Equal(t, int64(200), items[0].tsInit)
	assert.Equal(t, int64(300), items[1].tsInit)
}

func TestDataContainerAddGenericRequiresClientID(t *testing.T) {
	c := NewDataContainer()

	err := c.AddGeneric(GenericData{TsInit: 1})
	assert.ErrorIs(t, err, ErrMissingClientID)

	err = c.AddGeneric(GenericData{ClientID: "custom-feed", TsInit: 1})
	assert.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestDataContainerValidateRejectsUnknownInstrument(t *testing.T) {
	registered := InstrumentID{Symbol: "AAPL", Venue: "SIM"}
	unregistered := InstrumentID{Symbol: "MSFT", Venue: "SIM"}

	cache := NewInstrumentCache()
	cache.Add(NewInstrument(registered, 2, 0, NewPrice(0.01, 2), USD, USD))

	c := NewDataContainer()
	c.AddQuoteTick(QuoteTick{InstrumentID: unregistered, TsInit: 1})

	err := c.Validate(cache)
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestDataContainerValidateRejectsNonExternalBar(t *testing.T) {
	id := InstrumentID{Symbol: "AAPL", Venue: "SIM"}
	cache := NewInstrumentCache()
	cache.Add(NewInstrument(id, 2, 0, NewPrice(0.01, 2), USD, USD))

	c := NewDataContainer()
	c.AddBar(Bar{BarType: BarType{InstrumentID: id, AggregationSource: AggregationInternal}, TsInit: 1})

	err := c.Validate(cache)
	assert.Error(t, err)
}

func TestDataContainerIsEmpty(t *testing.T) {
	c := NewDataContainer()
	assert.True(t, c.IsEmpty())
	c.AddQuoteTick(QuoteTick{TsInit: 1})
	assert.False(t, c.IsEmpty())
}
