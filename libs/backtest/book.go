package backtest

import "sort"

// BookLevel selects the depth model a venue maintains for an instrument
//.
type BookLevel string

const (
	BookL1 BookLevel = "L1"
	BookL2 BookLevel = "L2"
	BookL3 BookLevel = "L3"
)

// PriceLevel is one aggregated price level in an L2/L3 book.
type PriceLevel struct {
	Price Price
	Size  Quantity
}

// FillLevel is one (price, quantity) pair produced by simulating a marketable
// order walking the book.
type FillLevel struct {
	Price    Price
	Quantity Quantity
}

// DeltaOp is the operation carried by an order-book delta.
type DeltaOp string

const (
	DeltaAdd    DeltaOp = "ADD"
	DeltaUpdate DeltaOp = "UPDATE"
	DeltaDelete DeltaOp = "DELETE"
)

// BookDelta mutates one price level of an L2/L3 book.
type BookDelta struct {
	InstrumentID InstrumentID
	Side         Side // side of the BOOK the level sits on (BUY=bid, SELL=ask)
	Price        Price
	Size         Quantity
	Op           DeltaOp
	TsEvent      int64
	TsInit       int64
}

// BookSnapshot replaces an entire book side-by-side.
type BookSnapshot struct {
	InstrumentID InstrumentID
	Bids         []PriceLevel
	Asks         []PriceLevel
	TsEvent      int64
	TsInit       int64
}

// OrderBook is the per-instrument top-of-book + (for L2/L3) depth view the
// matching engine consults. L1Book and L2Book both satisfy it.
type OrderBook interface {
	InstrumentID() InstrumentID
	Level() BookLevel
	BestBidPrice() (Price, bool)
	BestAskPrice() (Price, bool)
	BestBidSize() (Quantity, bool)
	BestAskSize() (Quantity, bool)
	// SimulateOrderFills walks the opposite side of the book and returns the
	// ordered (price, quantity) fills a marketable order of side/qty would
	// receive under price-time priority, stopping when qty is exhausted or
	// depth runs out.
	SimulateOrderFills(side Side, qty Quantity) []FillLevel
	// ApplyQuote updates top-of-book from a quote tick.
	ApplyQuote(bid, ask Price, bidSize, askSize Quantity)
	// ApplyTrade infers one side of the book from a trade tick's aggressor.
	ApplyTrade(price Price, aggressor Side)
}

// ─── L1Book ──────────────────────────────────────────────────────────────────

// L1Book stores only top-of-book: two prices plus sizes, updated by quote
// ticks or, for trade ticks, by inferring the touched side from the
// aggressor.
type L1Book struct {
	instrumentID InstrumentID
	bid, ask     Price
	bidSize      Quantity
	askSize      Quantity
	hasBid       bool
	hasAsk       bool
}

// NewL1Book creates an empty L1Book for instrument.
func NewL1Book(id InstrumentID) *L1Book {
	return &L1Book{instrumentID: id}
}

func (b *L1Book) InstrumentID() InstrumentID { return b.instrumentID }
func (b *L1Book) Level() BookLevel           { return BookL1 }

func (b *L1Book) BestBidPrice() (Price, bool) { return b.bid, b.hasBid }
func (b *L1Book) BestAskPrice() (Price, bool) { return b.ask, b.hasAsk }
func (b *L1Book) BestBidSize() (Quantity, bool) { return b.bidSize, b.hasBid }
func (b *L1Book) BestAskSize() (Quantity, bool) { return b.askSize, b.hasAsk }

func (b *L1Book) ApplyQuote(bid, ask Price, bidSize, askSize Quantity) {
	b.bid, b.ask, b.bidSize, b.askSize = bid, ask, bidSize, askSize
	b.hasBid, b.hasAsk = true, true
}

// ApplyTrade applies a print to the top of book: a SELL trade hits the bid (set bid =
// trade price), a BUY trade lifts the offer (set ask = trade price); if the
// other side is unset, initialize it to the trade price too.
func (b *L1Book) ApplyTrade(price Price, aggressor Side) {
	if aggressor == SideSell {
		b.bid = price
		b.hasBid = true
		if !b.hasAsk {
			b.ask = price
			b.hasAsk = true
		}
	} else {
		b.ask = price
		b.hasAsk = true
		if !b.hasBid {
			b.bid = price
			b.hasBid = true
		}
	}
}

// SimulateOrderFills for an L1 book always produces a single fill at top of
// book for the full requested quantity — there is no depth to walk and the
// top-of-book size is not checked. SimulatedVenue's L1 matching does its own
// split in fillTaker (top-of-book size at the top price, the remainder one
// tick further away) rather than calling this method.
func (b *L1Book) SimulateOrderFills(side Side, qty Quantity) []FillLevel {
	var px Price
	var ok bool
	if side == SideBuy {
		px, ok = b.BestAskPrice()
	} else {
		px, ok = b.BestBidPrice()
	}
	if !ok {
		return nil
	}
	return []FillLevel{{Price: px, Quantity: qty}}
}

// ─── L2Book ──────────────────────────────────────────────────────────────────

// L2Book maintains sorted ascending asks and descending bids, each level
// carrying aggregated volume.
type L2Book struct {
	instrumentID InstrumentID
	bids         []PriceLevel // descending by price
	asks         []PriceLevel // ascending by price
}

// NewL2Book creates an empty L2Book for instrument.
func NewL2Book(id InstrumentID) *L2Book {
	return &L2Book{instrumentID: id}
}

func (b *L2Book) InstrumentID() InstrumentID { return b.instrumentID }
func (b *L2Book) Level() BookLevel           { return BookL2 }

func (b *L2Book) BestBidPrice() (Price, bool) {
	if len(b.bids) == 0 {
		return Price{}, false
	}
	return b.bids[0].Price, true
}
func (b *L2Book) BestAskPrice() (Price, bool) {
	if len(b.asks) == 0 {
		return Price{}, false
	}
	return b.asks[0].Price, true
}
func (b *L2Book) BestBidSize() (Quantity, bool) {
	if len(b.bids) == 0 {
		return Quantity{}, false
	}
	return b.bids[0].Size, true
}
func (b *L2Book) BestAskSize() (Quantity, bool) {
	if len(b.asks) == 0 {
		return Quantity{}, false
	}
	return b.asks[0].Size, true
}

// Apply replays a single delta against the book, keeping bids descending and
// asks ascending by price.
func (b *L2Book) Apply(d BookDelta) {
	levels := &b.asks
	less := func(p, q Price) bool { return p.LessThan(q) } // ascending
	if d.Side == SideBuy {
		levels = &b.bids
		less = func(p, q Price) bool { return p.GreaterThan(q) } // descending
	}

	idx := sort.Search(len(*levels), func(i int) bool {
		return !less((*levels)[i].Price, d.Price) // first index whose price is not "better" than d.Price
	})
	found := idx < len(*levels) && (*levels)[idx].Price.Equal(d.Price)

	switch d.Op {
	case DeltaDelete:
		if found {
			*levels = append((*levels)[:idx], (*levels)[idx+1:]...)
		}
	case DeltaAdd, DeltaUpdate:
		if found {
			(*levels)[idx].Size = d.Size
		} else {
			newLevel := PriceLevel{Price: d.Price, Size: d.Size}
			*levels = append(*levels, PriceLevel{})
			copy((*levels)[idx+1:], (*levels)[idx:])
			(*levels)[idx] = newLevel
		}
	}
}

// ApplySnapshot replaces both sides wholesale, sorting into the book's invariant order.
func (b *L2Book) ApplySnapshot(snap BookSnapshot) {
	bids := append([]PriceLevel(nil), snap.Bids...)
	asks := append([]PriceLevel(nil), snap.Asks...)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	b.bids, b.asks = bids, asks
}

func (b *L2Book) ApplyQuote(bid, ask Price, bidSize, askSize Quantity) {
	b.bids = []PriceLevel{{Price: bid, Size: bidSize}}
	b.asks = []PriceLevel{{Price: ask, Size: askSize}}
}

func (b *L2Book) ApplyTrade(price Price, aggressor Side) {
	if aggressor == SideSell {
		if len(b.bids) == 0 {
			b.bids = []PriceLevel{{Price: price}}
		} else {
			b.bids[0].Price = price
		}
		if len(b.asks) == 0 {
			b.asks = []PriceLevel{{Price: price}}
		}
	} else {
		if len(b.asks) == 0 {
			b.asks = []PriceLevel{{Price: price}}
		} else {
			b.asks[0].Price = price
		}
		if len(b.bids) == 0 {
			b.bids = []PriceLevel{{Price: price}}
		}
	}
}

// SimulateOrderFills walks the opposite side of the book, consuming size at
// each level under price-time priority until qty is exhausted or depth dries
// up.
func (b *L2Book) SimulateOrderFills(side Side, qty Quantity) []FillLevel {
	levels := b.asks
	if side == SideSell {
		levels = b.bids
	}

	var fills []FillLevel
	remaining := qty
	for _, lvl := range levels {
		if remaining.IsZero() {
			break
		}
		take := lvl.Size
		if take.GreaterThan(remaining) {
			take = remaining
		}
		if take.IsZero() {
			continue
		}
		fills = append(fills, FillLevel{Price: lvl.Price, Quantity: take})
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			break
		}
	}
	return fills
}
