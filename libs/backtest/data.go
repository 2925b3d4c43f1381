package backtest

import (
	"fmt"
	"sort"
)

// AggregationSource distinguishes bars built by an external data provider
// from ones the engine itself would aggregate from ticks. Only EXTERNAL is
// supported.
type AggregationSource string

const (
	AggregationExternal AggregationSource = "EXTERNAL"
	AggregationInternal AggregationSource = "INTERNAL"
)

// BarType names a bar's instrument, step and aggregation source, e.g.
// "AAPL.NASDAQ-1-MINUTE-LAST-EXTERNAL".
type BarType struct {
	InstrumentID      InstrumentID
	StepSize          int
	Aggregation       string // e.g. "MINUTE", "HOUR", "DAY"
	PriceType         string // e.g. "LAST", "BID", "ASK", "MID"
	AggregationSource AggregationSource
}

func (bt BarType) String() string {
	return fmt.Sprintf("%s-%d-%s-%s-%s", bt.InstrumentID, bt.StepSize, bt.Aggregation, bt.PriceType, bt.AggregationSource)
}

// Bar is a single OHLCV bar.
type Bar struct {
	BarType BarType
	Open    Price
	High    Price
	Low     Price
	Close   Price
	Volume  Quantity
	TsEvent int64
	TsInit  int64
}

// QuoteTick is a top-of-book update.
type QuoteTick struct {
	InstrumentID InstrumentID
	BidPrice     Price
	AskPrice     Price
	BidSize      Quantity
	AskSize      Quantity
	TsEvent      int64
	TsInit       int64
}

// TradeTick is a single executed trade print.
type TradeTick struct {
	InstrumentID InstrumentID
	Price        Price
	Size         Quantity
	Aggressor    Side
	TradeID      string
	TsEvent      int64
	TsInit       int64
}

// GenericData wraps any caller-defined payload that still needs to be
// merged into the timestamp-ordered replay sequence.
type GenericData struct {
	ClientID string
	Payload  any
	TsEvent  int64
	TsInit   int64
}

// dataItem is the internal tagged union DataContainer sorts and Engine replays.
// Exactly one of the typed fields is populated per Kind.
type dataItemKind int

const (
	kindQuote dataItemKind = iota
	kindTrade
	kindBookDelta
	kindBookSnapshot
	kindBar
	kindGeneric
)

type dataItem struct {
	kind     dataItemKind
	quote    QuoteTick
	trade    TradeTick
	delta    BookDelta
	snapshot BookSnapshot
	bar      Bar
	generic  GenericData

	tsInit       int64
	instrumentID InstrumentID // zero value for GenericData
	hasInstrument bool
}

// DataContainer accumulates heterogeneous market data and keeps it sorted
// by TsInit as items are added, so Engine.Run never re-sorts the whole set
//.
type DataContainer struct {
	items []dataItem
}

// NewDataContainer creates an empty container.
func NewDataContainer() *DataContainer { return &DataContainer{} }

func (c *DataContainer) insert(item dataItem) {
	idx := sort.Search(len(c.items), func(i int) bool { return c.items[i].tsInit > item.tsInit })
	c.items = append(c.items, dataItem{})
	copy(c.items[idx+1:], c.items[idx:])
	c.items[idx] = item
}

// AddQuoteTick inserts a quote tick in ts_init order.
func (c *DataContainer) AddQuoteTick(q QuoteTick) {
	c.insert(dataItem{kind: kindQuote, quote: q, tsInit: q.TsInit, instrumentID: q.InstrumentID, hasInstrument: true})
}

// AddTradeTick inserts a trade tick in ts_init order.
func (c *DataContainer) AddTradeTick(t TradeTick) {
	c.insert(dataItem{kind: kindTrade, trade: t, tsInit: t.TsInit, instrumentID: t.InstrumentID, hasInstrument: true})
}

// AddBookDelta inserts an order book delta in ts_init order.
func (c *DataContainer) AddBookDelta(d BookDelta) {
	c.insert(dataItem{kind: kindBookDelta, delta: d, tsInit: d.TsInit, instrumentID: d.InstrumentID, hasInstrument: true})
}

// AddBookSnapshot inserts an order book snapshot in ts_init order.
func (c *DataContainer) AddBookSnapshot(s BookSnapshot) {
	c.insert(dataItem{kind: kindBookSnapshot, snapshot: s, tsInit: s.TsInit, instrumentID: s.InstrumentID, hasInstrument: true})
}

// AddBar inserts a bar in ts_init order.
func (c *DataContainer) AddBar(b Bar) {
	c.insert(dataItem{kind: kindBar, bar: b, tsInit: b.TsInit, instrumentID: b.BarType.InstrumentID, hasInstrument: true})
}

// AddGeneric inserts caller data carrying an explicit ClientID in ts_init
// order. ClientID must be non-empty.
func (c *DataContainer) AddGeneric(g GenericData) error {
	if g.ClientID == "" {
		return ErrMissingClientID
	}
	c.insert(dataItem{kind: kindGeneric, generic: g, tsInit: g.TsInit, hasInstrument: false})
	return nil
}

// Len returns the number of items in the container.
func (c *DataContainer) Len() int { return len(c.items) }

// IsEmpty reports whether the container holds no items.
func (c *DataContainer) IsEmpty() bool { return len(c.items) == 0 }

// Range returns every item with tsInit in [start, end) — the half-open range
// semantics Engine.Run applies.
func (c *DataContainer) Range(start, end int64) []dataItem {
	lo := sort.Search(len(c.items), func(i int) bool { return c.items[i].tsInit >= start })
	hi := sort.Search(len(c.items), func(i int) bool { return c.items[i].tsInit >= end })
	if hi < lo {
		hi = lo
	}
	return c.items[lo:hi]
}

// FirstTs and LastTs return the ts_init of the earliest/latest item, and
// false if the container is empty.
func (c *DataContainer) FirstTs() (int64, bool) {
	if len(c.items) == 0 {
		return 0, false
	}
	return c.items[0].tsInit, true
}
func (c *DataContainer) LastTs() (int64, bool) {
	if len(c.items) == 0 {
		return 0, false
	}
	return c.items[len(c.items)-1].tsInit, true
}

// Validate checks the pre-run invariants: every item carrying
// an InstrumentID must reference one registered in instruments, and every
// Bar's aggregation source must be EXTERNAL.
func (c *DataContainer) Validate(instruments *InstrumentCache) error {
	for _, item := range c.items {
		if item.hasInstrument {
			if _, ok := instruments.Get(item.instrumentID); !ok {
				return fmt.Errorf("%w: %s", ErrUnknownInstrument, item.instrumentID)
			}
		}
		if item.kind == kindBar && item.bar.BarType.AggregationSource != AggregationExternal {
			return fmt.Errorf("backtest: bar type %s has non-external aggregation source", item.bar.BarType)
		}
	}
	return nil
}

// Wrangler converts a provider-specific data shape (e.g. a column-oriented
// batch from a parquet/Arrow reader) into the engine's native tick/bar
// types. Implementations live in the application layer; this package only
// depends on the interface so this package never imports a concrete producer.
type Wrangler interface {
	// ToQuoteTicks converts raw into a ts_init-ordered slice of QuoteTick.
	ToQuoteTicks(raw any) ([]QuoteTick, error)
	// ToTradeTicks converts raw into a ts_init-ordered slice of TradeTick.
	ToTradeTicks(raw any) ([]TradeTick, error)
	// ToBars converts raw into a ts_init-ordered slice of Bar.
	ToBars(raw any) ([]Bar, error)
}
