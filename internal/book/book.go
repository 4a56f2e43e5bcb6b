// Package book implements an N-level order book: a dense, tick-indexed
// array on each side anchored to a sliding window, with hysteresis against
// base-index thrashing and a 128-bit-accumulator sweep for volume-weighted
// fills. Files are small and purpose-built, errors are explicit return
// values, and a slog logger is threaded through the constructor rather than
// a package singleton.
package book

import (
	"log/slog"

	"flox/internal/events"
	"flox/pkg/ids"
	"flox/pkg/numeric"
)

// side identifies which array a tick belongs to.
type side int

const (
	bidSide side = iota
	askSide
)

// levels is one side of a Book: a dense array of quantities indexed by
// tick offset from baseTick, plus the cached occupied range and best index.
type levels struct {
	qty      []int64 // scaled Quantity, 0 means empty
	baseTick int64
	minOcc   int // index of lowest occupied tick, -1 if none
	maxOcc   int // index of highest occupied tick, -1 if none
	bestIdx  int // -1 if invalid
	side     side
}

func newLevels(maxLevels int, s side) levels {
	return levels{
		qty:     make([]int64, maxLevels),
		minOcc:  -1,
		maxOcc:  -1,
		bestIdx: -1,
		side:    s,
	}
}

func (l *levels) reset(baseTick int64) {
	for i := range l.qty {
		l.qty[i] = 0
	}
	l.baseTick = baseTick
	l.minOcc, l.maxOcc, l.bestIdx = -1, -1, -1
}

// inWindow reports whether tick maps to a valid array index, and returns it.
func (l *levels) inWindow(tick int64) (int, bool) {
	idx := tick - l.baseTick
	if idx < 0 || int(idx) >= len(l.qty) {
		return 0, false
	}
	return int(idx), true
}

// set writes qty at idx, maintaining minOcc/maxOcc/bestIdx.
func (l *levels) set(idx int, qty int64) {
	wasOccupied := l.qty[idx] != 0
	l.qty[idx] = qty
	nowOccupied := qty != 0

	switch {
	case nowOccupied && !wasOccupied:
		if l.minOcc == -1 || idx < l.minOcc {
			l.minOcc = idx
		}
		if l.maxOcc == -1 || idx > l.maxOcc {
			l.maxOcc = idx
		}
	case !nowOccupied && wasOccupied:
		if idx == l.minOcc {
			l.minOcc = l.nextOccupied(idx, +1)
		}
		if idx == l.maxOcc {
			l.maxOcc = l.nextOccupied(idx, -1)
		}
	}

	l.refreshBest()
}

// nextOccupied scans from idx in the given direction (+1 or -1) for the
// next non-zero level, bounded by the occupied range. Returns -1 if none.
func (l *levels) nextOccupied(idx, dir int) int {
	for i := idx + dir; i >= 0 && i < len(l.qty); i += dir {
		if l.qty[i] != 0 {
			return i
		}
		if dir > 0 && l.maxOcc != -1 && i > l.maxOcc {
			break
		}
		if dir < 0 && l.minOcc != -1 && i < l.minOcc {
			break
		}
	}
	return -1
}

// refreshBest restores bestIdx: for bids the highest occupied tick, for
// asks the lowest. If the previous best is still occupied it stays; this
// is only expensive (a bounded linear probe) immediately after a removal
// at the former best.
func (l *levels) refreshBest() {
	if l.bestIdx != -1 && l.qty[l.bestIdx] != 0 {
		return
	}
	if l.side == bidSide {
		l.bestIdx = l.maxOcc
	} else {
		l.bestIdx = l.minOcc
	}
}

func (l *levels) bestTick() (int64, bool) {
	if l.bestIdx == -1 {
		return 0, false
	}
	return l.baseTick + int64(l.bestIdx), true
}

func (l *levels) bestQty() int64 {
	if l.bestIdx == -1 {
		return 0
	}
	return l.qty[l.bestIdx]
}

// Book is one symbol's N-level order book.
type Book struct {
	symbol          ids.SymbolId
	tickSize        numeric.Price
	maxLevels       int
	hysteresisTicks int64
	log             *slog.Logger

	bids levels
	asks levels

	haveSnapshot bool
	lastSeq      uint64
	sideValid    [2]bool // [bidSide]/[askSide]: false after a sequence gap until next snapshot
}

// New creates an empty book for symbol. tickSize and maxLevels mirror
// config.BookConfig; hysteresisTicks is the re-anchor guard band.
func New(symbol ids.SymbolId, tickSize numeric.Price, maxLevels int, hysteresisTicks int64, log *slog.Logger) *Book {
	if log == nil {
		log = slog.Default()
	}
	return &Book{
		symbol:          symbol,
		tickSize:        tickSize,
		maxLevels:       maxLevels,
		hysteresisTicks: hysteresisTicks,
		log:             log.With("component", "book", "symbol", symbol),
		bids:            newLevels(maxLevels, bidSide),
		asks:            newLevels(maxLevels, askSide),
	}
}

func (b *Book) tickOf(p numeric.Price) int64 {
	return p.Raw() / b.tickSize.Raw()
}

func (b *Book) priceOf(tick int64) numeric.Price {
	return numeric.PriceFromRaw(tick * b.tickSize.Raw())
}

// Apply applies one book update. A returned error always means the update
// was dropped, never partially applied.
func (b *Book) Apply(u *events.BookUpdate) error {
	if u.Kind == events.BookSnapshot {
		b.applySnapshot(u)
		return nil
	}
	return b.applyDelta(u)
}

func (b *Book) applySnapshot(u *events.BookUpdate) {
	base := b.chooseBase(u)
	b.bids.reset(base)
	b.asks.reset(base)
	for _, lv := range u.Bids {
		b.writeLevel(bidSide, lv)
	}
	for _, lv := range u.Asks {
		b.writeLevel(askSide, lv)
	}
	b.haveSnapshot = true
	b.sideValid[bidSide] = true
	b.sideValid[askSide] = true
	b.lastSeq = u.SequenceNumber
}

// chooseBase centers the tick window on the snapshot's own best levels so
// a freshly-anchored book has maximal room on both sides.
func (b *Book) chooseBase(u *events.BookUpdate) int64 {
	var minTick, maxTick int64
	first := true
	for _, lv := range u.Bids {
		t := b.tickOf(numeric.PriceFromRaw(lv.Price))
		if first || t < minTick {
			minTick = t
		}
		if first || t > maxTick {
			maxTick = t
		}
		first = false
	}
	for _, lv := range u.Asks {
		t := b.tickOf(numeric.PriceFromRaw(lv.Price))
		if first || t < minTick {
			minTick = t
		}
		if first || t > maxTick {
			maxTick = t
		}
		first = false
	}
	if first {
		return 0
	}
	mid := (minTick + maxTick) / 2
	return mid - int64(b.maxLevels/2)
}

func (b *Book) writeLevel(s side, lv events.BookLevel) {
	l := b.sideFor(s)
	tick := b.tickOf(numeric.PriceFromRaw(lv.Price))
	idx, ok := l.inWindow(tick)
	if !ok {
		return // snapshot levels outside the chosen window are simply not representable
	}
	l.set(idx, lv.Quantity)
}

func (b *Book) sideFor(s side) *levels {
	if s == bidSide {
		return &b.bids
	}
	return &b.asks
}

func (b *Book) applyDelta(u *events.BookUpdate) error {
	if !b.haveSnapshot {
		return ErrOutOfWindow
	}
	if u.SequenceNumber <= b.lastSeq {
		// A regressing sequence number is an out-of-order feed; treat it as
		// an error rather than silently applying it.
		b.sideValid[bidSide] = false
		b.sideValid[askSide] = false
		b.log.Warn("book update sequence regressed, invalidating book", "seq", u.SequenceNumber, "last_seq", b.lastSeq)
		return ErrSequenceGap
	}
	if u.SequenceNumber != b.lastSeq+1 {
		b.sideValid[bidSide] = false
		b.sideValid[askSide] = false
		b.log.Warn("book update sequence gap, awaiting snapshot", "seq", u.SequenceNumber, "last_seq", b.lastSeq)
		return ErrSequenceGap
	}

	if needsReanchor(b, u) {
		b.reanchor(u)
	}

	dropped := false
	for _, lv := range u.Bids {
		if !b.applyOneLevel(bidSide, lv) {
			dropped = true
		}
	}
	for _, lv := range u.Asks {
		if !b.applyOneLevel(askSide, lv) {
			dropped = true
		}
	}
	b.lastSeq = u.SequenceNumber
	if dropped {
		b.log.Warn("book delta level outside window after reanchor, dropped", "seq", u.SequenceNumber)
	}
	return nil
}

func (b *Book) applyOneLevel(s side, lv events.BookLevel) bool {
	l := b.sideFor(s)
	tick := b.tickOf(numeric.PriceFromRaw(lv.Price))
	idx, ok := l.inWindow(tick)
	if !ok {
		return false
	}
	l.set(idx, lv.Quantity)
	return true
}

// needsReanchor reports whether any level in u falls outside the
// hysteresis-padded window, which forces a translation of the base index
// rather than a simple drop.
func needsReanchor(b *Book, u *events.BookUpdate) bool {
	check := func(l *levels, lv events.BookLevel) bool {
		tick := b.tickOf(numeric.PriceFromRaw(lv.Price))
		idx := tick - l.baseTick
		return idx < b.hysteresisTicks || idx >= int64(len(l.qty))-b.hysteresisTicks
	}
	for _, lv := range u.Bids {
		if check(&b.bids, lv) {
			return true
		}
	}
	for _, lv := range u.Asks {
		if check(&b.asks, lv) {
			return true
		}
	}
	return false
}

// reanchor recenters both sides' windows on the union of the currently
// occupied tick range and the triggering delta's own levels, then
// translates existing occupied levels into the new window, dropping any
// that no longer fit. Centering on the delta alone (as chooseBase does for
// a fresh snapshot) would discard whatever best-price levels already sit
// deep inside the old window, even though nothing about them went stale.
func (b *Book) reanchor(u *events.BookUpdate) {
	newBase := b.reanchorBase(u)
	b.translate(&b.bids, newBase)
	b.translate(&b.asks, newBase)
}

func (b *Book) reanchorBase(u *events.BookUpdate) int64 {
	var minTick, maxTick int64
	first := true
	consider := func(t int64) {
		if first || t < minTick {
			minTick = t
		}
		if first || t > maxTick {
			maxTick = t
		}
		first = false
	}
	for _, l := range [...]*levels{&b.bids, &b.asks} {
		if l.minOcc != -1 {
			consider(l.baseTick + int64(l.minOcc))
		}
		if l.maxOcc != -1 {
			consider(l.baseTick + int64(l.maxOcc))
		}
	}
	for _, lv := range u.Bids {
		consider(b.tickOf(numeric.PriceFromRaw(lv.Price)))
	}
	for _, lv := range u.Asks {
		consider(b.tickOf(numeric.PriceFromRaw(lv.Price)))
	}
	if first {
		return 0
	}
	mid := (minTick + maxTick) / 2
	return mid - int64(b.maxLevels/2)
}

func (b *Book) translate(l *levels, newBase int64) {
	delta := l.baseTick - newBase
	next := newLevels(len(l.qty), l.side)
	next.baseTick = newBase
	for i, q := range l.qty {
		if q == 0 {
			continue
		}
		ni := i + int(delta)
		if ni < 0 || ni >= len(next.qty) {
			continue
		}
		next.qty[ni] = q
	}
	for i, q := range next.qty {
		if q != 0 {
			if next.minOcc == -1 {
				next.minOcc = i
			}
			next.maxOcc = i
		}
	}
	next.refreshBest()
	*l = next
}

// BestBid returns the best bid price/quantity, ok=false if the book has no
// bids or the bid side is invalidated pending a resynchronizing snapshot.
func (b *Book) BestBid() (numeric.Price, numeric.Quantity, bool) {
	if !b.sideValid[bidSide] {
		return numeric.Price(0), numeric.Quantity(0), false
	}
	tick, ok := b.bids.bestTick()
	if !ok {
		return numeric.Price(0), numeric.Quantity(0), false
	}
	return b.priceOf(tick), numeric.QuantityFromRaw(b.bids.bestQty()), true
}

// BestAsk returns the best ask price/quantity, ok=false if the book has no
// asks or the ask side is invalidated pending a resynchronizing snapshot.
func (b *Book) BestAsk() (numeric.Price, numeric.Quantity, bool) {
	if !b.sideValid[askSide] {
		return numeric.Price(0), numeric.Quantity(0), false
	}
	tick, ok := b.asks.bestTick()
	if !ok {
		return numeric.Price(0), numeric.Quantity(0), false
	}
	return b.priceOf(tick), numeric.QuantityFromRaw(b.asks.bestQty()), true
}

// IsCrossed reports whether best bid >= best ask.
func (b *Book) IsCrossed() bool {
	bid, _, okB := b.BestBid()
	ask, _, okA := b.BestAsk()
	if !okB || !okA {
		return false
	}
	return bid.Cmp(ask) >= 0
}

// Spread returns ask-bid, ok=false if either side is empty.
func (b *Book) Spread() (numeric.Price, bool) {
	bid, _, okB := b.BestBid()
	ask, _, okA := b.BestAsk()
	if !okB || !okA {
		return numeric.Price(0), false
	}
	return ask.Sub(bid), true
}

// Mid returns the midpoint price using half-tick rounding to avoid integer
// division bias.
func (b *Book) Mid() (numeric.Price, bool) {
	bid, _, okB := b.BestBid()
	ask, _, okA := b.BestAsk()
	if !okB || !okA {
		return numeric.Price(0), false
	}
	sum := bid.Add(ask)
	return sum.Half(), true
}

// SweepResult is the outcome of walking levels from the best inward.
type SweepResult struct {
	Filled   numeric.Quantity
	Notional numeric.Volume
}

// SweepAsks accumulates fills from the best ask inward until need is
// exhausted or asks run out. Returns a zero result if the ask side is
// invalidated pending a resynchronizing snapshot.
func (b *Book) SweepAsks(need numeric.Quantity) SweepResult {
	if !b.sideValid[askSide] {
		return SweepResult{}
	}
	return b.sweep(&b.asks, need, +1)
}

// SweepBids accumulates fills from the best bid inward until need is
// exhausted or bids run out. Returns a zero result if the bid side is
// invalidated pending a resynchronizing snapshot.
func (b *Book) SweepBids(need numeric.Quantity) SweepResult {
	if !b.sideValid[bidSide] {
		return SweepResult{}
	}
	return b.sweep(&b.bids, need, -1)
}

func (b *Book) sweep(l *levels, need numeric.Quantity, dir int) SweepResult {
	var acc numeric.Accumulator
	filled := numeric.Quantity(0)
	remaining := need

	idx := l.bestIdx
	for idx != -1 && remaining.Raw() > 0 {
		avail := numeric.QuantityFromRaw(l.qty[idx])
		take := avail
		if take.Raw() > remaining.Raw() {
			take = remaining
		}
		price := b.priceOf(l.baseTick + int64(idx))
		acc.Add(price.Mul(take))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
		idx = l.nextOccupiedBounded(idx, dir)
	}

	return SweepResult{Filled: filled, Notional: acc.Volume()}
}

// nextOccupiedBounded walks toward the book's interior (away from the
// array edge the side's worst price sits at).
func (l *levels) nextOccupiedBounded(idx, dir int) int {
	for i := idx + dir; i >= 0 && i < len(l.qty); i += dir {
		if l.qty[i] != 0 {
			return i
		}
	}
	return -1
}
