package composite

import (
	"math/bits"
	"sync"

	"code.hybscloud.com/atomix"

	"flox/pkg/ids"
	"flox/pkg/numeric"
)

// positionCell is one (exchange, symbol) cell: a signed raw quantity and a
// volume-weighted average entry price, both updated under cellMu since a
// fill needs to read-modify-write both fields together (a lock-free
// compare-and-swap pair would still need to retry on races between the two
// fields, which is no cheaper than a narrow mutex at fill rates).
type positionCell struct {
	mu       sync.Mutex
	qtyRaw   int64
	entryRaw int64
}

type posKey struct {
	exchange ids.ExchangeId
	symbol   ids.SymbolId
}

// PositionTracker aggregates per-(exchange, symbol) fills into a
// volume-weighted average entry price, and sums across exchanges for a
// symbol's total position.
type PositionTracker struct {
	mu    sync.RWMutex
	cells map[posKey]*positionCell

	totalQty map[ids.SymbolId]*atomix.Int64
	totalMu  sync.Mutex
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{
		cells:    make(map[posKey]*positionCell),
		totalQty: make(map[ids.SymbolId]*atomix.Int64),
	}
}

func (t *PositionTracker) cellFor(exchange ids.ExchangeId, symbol ids.SymbolId) *positionCell {
	k := posKey{exchange, symbol}
	t.mu.RLock()
	c, ok := t.cells[k]
	t.mu.RUnlock()
	if ok {
		return c
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.cells[k]; ok {
		return c
	}
	c = &positionCell{}
	t.cells[k] = c
	return c
}

func (t *PositionTracker) totalCell(symbol ids.SymbolId) *atomix.Int64 {
	t.totalMu.Lock()
	defer t.totalMu.Unlock()
	c, ok := t.totalQty[symbol]
	if !ok {
		c = &atomix.Int64{}
		t.totalQty[symbol] = c
	}
	return c
}

// OnFill folds a signed fill (positive = buy, negative = sell) into the
// (exchange, symbol) cell's volume-weighted average entry, and into the
// symbol's cross-exchange total.
func (t *PositionTracker) OnFill(exchange ids.ExchangeId, symbol ids.SymbolId, signedQty numeric.Quantity, price numeric.Price) {
	c := t.cellFor(exchange, symbol)
	c.mu.Lock()
	newQty := c.qtyRaw + signedQty.Raw()
	switch {
	case c.qtyRaw == 0:
		c.entryRaw = price.Raw()
	case sameSign(c.qtyRaw, signedQty.Raw()):
		// volume-weighted average of the existing position and the new fill
		oldAbs := absI64(c.qtyRaw)
		addAbs := absI64(signedQty.Raw())
		total := oldAbs + addAbs
		if total != 0 {
			// both products are price(1e8) x qty(1e8) and overflow int64,
			// so the weighted sum is taken in 128 bits
			hi1, lo1 := bits.Mul64(uint64(c.entryRaw), uint64(oldAbs))
			hi2, lo2 := bits.Mul64(uint64(price.Raw()), uint64(addAbs))
			lo, carry := bits.Add64(lo1, lo2, 0)
			hi, _ := bits.Add64(hi1, hi2, carry)
			avg, _ := bits.Div64(hi, lo, uint64(total))
			c.entryRaw = int64(avg)
		}
	case absI64(signedQty.Raw()) > absI64(c.qtyRaw):
		// fill flips the position through flat; the new leg's price becomes
		// the fresh entry
		c.entryRaw = price.Raw()
	}
	c.qtyRaw = newQty
	c.mu.Unlock()

	t.totalCell(symbol).AddAcqRel(signedQty.Raw())
}

func sameSign(a, b int64) bool {
	return (a >= 0) == (b >= 0)
}

func absI64(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

// Position returns (exchange, symbol)'s current quantity and average entry.
func (t *PositionTracker) Position(exchange ids.ExchangeId, symbol ids.SymbolId) (numeric.Quantity, numeric.Price) {
	c := t.cellFor(exchange, symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	return numeric.QuantityFromRaw(c.qtyRaw), numeric.PriceFromRaw(c.entryRaw)
}

// TotalPosition returns symbol's summed quantity across every exchange.
func (t *PositionTracker) TotalPosition(symbol ids.SymbolId) numeric.Quantity {
	return numeric.QuantityFromRaw(t.totalCell(symbol).LoadAcquire())
}
