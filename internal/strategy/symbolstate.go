package strategy

import (
	"sync"

	"flox/pkg/ids"
)

// SymbolStateMap holds one scratch value of type T per symbol: a dense
// slice indexed directly by SymbolId up to the ceiling fixed at
// construction, with a mutex-guarded overflow map for anything beyond it.
// Access to a dense slot is unsynchronized, the same assumption
// bar.Aggregator makes: a given SymbolId's state is only ever touched by
// the single consumer goroutine processing that symbol's events.
type SymbolStateMap[T any] struct {
	dense []T

	mu       sync.Mutex
	overflow map[ids.SymbolId]*T
}

// NewSymbolStateMap creates a map with room for maxDense dense slots.
func NewSymbolStateMap[T any](maxDense int) *SymbolStateMap[T] {
	return &SymbolStateMap[T]{
		dense:    make([]T, maxDense),
		overflow: make(map[ids.SymbolId]*T),
	}
}

// Get returns a pointer to symbol's state, lazily creating a zero-valued
// overflow entry on first access beyond the dense ceiling.
func (m *SymbolStateMap[T]) Get(symbol ids.SymbolId) *T {
	if int(symbol) < len(m.dense) {
		return &m.dense[symbol]
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.overflow[symbol]
	if !ok {
		s = new(T)
		m.overflow[symbol] = s
	}
	return s
}
