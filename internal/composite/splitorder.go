package composite

import (
	"sync"

	"flox/pkg/ids"
)

// childOrder is one venue leg of a split parent order.
type childOrder struct {
	Exchange  ids.ExchangeId
	Qty       int64
	Filled    int64
	Completed bool
	Failed    bool
	CreatedTs int64
}

// SplitOrder tracks a parent order fanned out across up to its number of
// children venues. Fills and completions are folded in as they arrive from
// each venue's execution feed.
type SplitOrder struct {
	mu       sync.Mutex
	parentId ids.OrderId
	symbol   ids.SymbolId
	children map[ids.ExchangeId]*childOrder
}

// NewSplitOrder creates a tracker for parentId with one child leg per entry
// in legs (exchange -> child quantity, createdTs).
func NewSplitOrder(parentId ids.OrderId, symbol ids.SymbolId, legs map[ids.ExchangeId]int64, createdTs int64) *SplitOrder {
	children := make(map[ids.ExchangeId]*childOrder, len(legs))
	for ex, qty := range legs {
		children[ex] = &childOrder{Exchange: ex, Qty: qty, CreatedTs: createdTs}
	}
	return &SplitOrder{parentId: parentId, symbol: symbol, children: children}
}

// OnChildFill folds a fill for exchange's leg. fillQty is the incremental
// quantity filled by this report, not the cumulative total.
func (s *SplitOrder) OnChildFill(exchange ids.ExchangeId, fillQty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[exchange]
	if !ok {
		return
	}
	c.Filled += fillQty
	if c.Filled >= c.Qty {
		c.Completed = true
	}
}

// OnChildComplete marks exchange's leg as finished, successfully if failed
// is false. A leg that completes without having been fully filled (e.g. a
// canceled remainder) is still Completed but not Failed, unless failed is
// explicitly set.
func (s *SplitOrder) OnChildComplete(exchange ids.ExchangeId, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[exchange]
	if !ok {
		return
	}
	c.Completed = true
	c.Failed = failed
}

// IsComplete reports whether every child leg has completed, successfully or
// not.
func (s *SplitOrder) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.children {
		if !c.Completed {
			return false
		}
	}
	return true
}

// IsSuccessful reports whether every child leg completed without failure.
// Calling this before IsComplete is true gives a premature answer; callers
// should check IsComplete first.
func (s *SplitOrder) IsSuccessful() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.children {
		if !c.Completed || c.Failed {
			return false
		}
	}
	return true
}

// FillRatio returns the fraction of total parent quantity filled so far,
// across every leg.
func (s *SplitOrder) FillRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var totalQty, totalFilled int64
	for _, c := range s.children {
		totalQty += c.Qty
		totalFilled += c.Filled
	}
	if totalQty == 0 {
		return 0
	}
	return float64(totalFilled) / float64(totalQty)
}

// ChildState returns a snapshot of exchange's leg, ok=false if exchange has
// no leg in this split order.
func (s *SplitOrder) ChildState(exchange ids.ExchangeId) (childOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[exchange]
	if !ok {
		return childOrder{}, false
	}
	return *c, true
}

// ParentId returns the tracked parent order's identifier.
func (s *SplitOrder) ParentId() ids.OrderId { return s.parentId }

// Symbol returns the tracked parent order's symbol.
func (s *SplitOrder) Symbol() ids.SymbolId { return s.symbol }
