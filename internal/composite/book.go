// Package composite implements the multi-exchange aggregation layer:
// a composite top-of-book across venues, an aggregated position tracker,
// a per-exchange clock-sync estimator, an order router with failover, and
// a split-order tracker for orders fanned out across multiple venues.
package composite

import (
	"time"

	"code.hybscloud.com/atomix"

	"flox/pkg/ids"
	"flox/pkg/numeric"
)

// StaleAfter is how long a venue's last top-of-book update is trusted
// before Book excludes it from the composite best bid/ask.
const StaleAfter = 2 * time.Second

// venueSlot holds one exchange's view of one symbol's top of book. Fields
// are written by exactly one writer goroutine per exchange and read by any
// number of readers; Book.Update stores with release, composite reads load
// with acquire. Each field is its own atomic, so a reader racing an Update
// can see some fields from that update and others from the previous one.
type venueSlot struct {
	bidTick   atomix.Int64
	askTick   atomix.Int64
	qtyRaw    atomix.Int64
	updatedNs atomix.Int64
	present   atomix.Bool
}

// Book is the composite top-of-book for one symbol across MaxExchanges
// venues. Each exchange owns exactly one venueSlot; Update is the single
// write path for that exchange, so concurrent Update calls from different
// exchanges never race on the same slot.
type Book struct {
	symbol   ids.SymbolId
	tickSize numeric.Price
	slots    []venueSlot
}

// NewBook creates a composite book for symbol across maxExchanges venue
// slots.
func NewBook(symbol ids.SymbolId, tickSize numeric.Price, maxExchanges int) *Book {
	return &Book{
		symbol:   symbol,
		tickSize: tickSize,
		slots:    make([]venueSlot, maxExchanges),
	}
}

// Update stores exchange's current top of book. nowNs should be a monotonic
// clock reading (time.Now().UnixNano() or similar), used to judge
// staleness on read.
func (b *Book) Update(exchange ids.ExchangeId, bid, ask numeric.Price, qty numeric.Quantity, nowNs int64) {
	s := &b.slots[exchange]
	s.bidTick.StoreRelease(b.tick(bid))
	s.askTick.StoreRelease(b.tick(ask))
	s.qtyRaw.StoreRelease(qty.Raw())
	s.updatedNs.StoreRelease(nowNs)
	s.present.StoreRelease(true)
}

func (b *Book) tick(p numeric.Price) int64 {
	return p.Raw() / b.tickSize.Raw()
}

func (b *Book) price(tick int64) numeric.Price {
	return numeric.PriceFromRaw(tick * b.tickSize.Raw())
}

// VenueQuote is one exchange's top of book as observed by BestBid/BestAsk.
type VenueQuote struct {
	Exchange ids.ExchangeId
	Price    numeric.Price
	Quantity numeric.Quantity
}

// BestBid returns the highest non-stale bid across all venues.
func (b *Book) BestBid(nowNs int64) (VenueQuote, bool) {
	return b.best(nowNs, func(tick, best int64) bool { return tick > best }, func(s *venueSlot) int64 { return s.bidTick.LoadAcquire() })
}

// BestAsk returns the lowest non-stale ask across all venues.
func (b *Book) BestAsk(nowNs int64) (VenueQuote, bool) {
	return b.best(nowNs, func(tick, best int64) bool { return tick < best }, func(s *venueSlot) int64 { return s.askTick.LoadAcquire() })
}

func (b *Book) best(nowNs int64, better func(tick, best int64) bool, pick func(s *venueSlot) int64) (VenueQuote, bool) {
	found := false
	var bestTick int64
	var bestEx ids.ExchangeId
	var bestQty int64
	for i := range b.slots {
		s := &b.slots[i]
		if !s.present.LoadAcquire() {
			continue
		}
		if nowNs-s.updatedNs.LoadAcquire() > int64(StaleAfter) {
			continue
		}
		tick := pick(s)
		if !found || better(tick, bestTick) {
			found = true
			bestTick = tick
			bestEx = ids.ExchangeId(i)
			bestQty = s.qtyRaw.LoadAcquire()
		}
	}
	if !found {
		return VenueQuote{}, false
	}
	return VenueQuote{Exchange: bestEx, Price: b.price(bestTick), Quantity: numeric.QuantityFromRaw(bestQty)}, true
}

// BestBidBySize returns the venue offering the largest available bid
// quantity across all non-stale venues, irrespective of price.
func (b *Book) BestBidBySize(nowNs int64) (VenueQuote, bool) {
	return b.bestBySize(nowNs, func(s *venueSlot) int64 { return s.bidTick.LoadAcquire() })
}

// BestAskBySize returns the venue offering the largest available ask
// quantity across all non-stale venues, irrespective of price.
func (b *Book) BestAskBySize(nowNs int64) (VenueQuote, bool) {
	return b.bestBySize(nowNs, func(s *venueSlot) int64 { return s.askTick.LoadAcquire() })
}

func (b *Book) bestBySize(nowNs int64, pick func(s *venueSlot) int64) (VenueQuote, bool) {
	found := false
	var bestQty int64
	var bestTick int64
	var bestEx ids.ExchangeId
	for i := range b.slots {
		s := &b.slots[i]
		if !s.present.LoadAcquire() {
			continue
		}
		if nowNs-s.updatedNs.LoadAcquire() > int64(StaleAfter) {
			continue
		}
		qty := s.qtyRaw.LoadAcquire()
		if !found || qty > bestQty {
			found = true
			bestQty = qty
			bestTick = pick(s)
			bestEx = ids.ExchangeId(i)
		}
	}
	if !found {
		return VenueQuote{}, false
	}
	return VenueQuote{Exchange: bestEx, Price: b.price(bestTick), Quantity: numeric.QuantityFromRaw(bestQty)}, true
}

// HasArbitrage reports whether the composite best bid crosses the
// composite best ask, i.e. some venue's bid exceeds another venue's ask.
func (b *Book) HasArbitrage(nowNs int64) bool {
	bid, okB := b.BestBid(nowNs)
	ask, okA := b.BestAsk(nowNs)
	if !okB || !okA {
		return false
	}
	return bid.Price.Cmp(ask.Price) > 0
}
