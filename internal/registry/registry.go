// Package registry issues stable dense identifiers for symbols and
// exchanges, and tracks which symbols across venues denote the same
// economic instrument.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"flox/pkg/ids"
)

type symbolKey struct {
	exchange ids.ExchangeId
	symbol   string
}

// snapshot is an immutable view of the registry's state. Registration
// builds a new snapshot and swaps the Registry's pointer to it; every
// lookup reads one snapshot pointer with no lock at all, which is what
// makes lookups lock-free once registration goes quiet.
type snapshot struct {
	bySymbolKey    map[symbolKey]ids.SymbolId
	byId           map[ids.SymbolId]symbolKey
	exchangeByName map[string]ids.ExchangeId
	exchangeNames  map[ids.ExchangeId]string
	canonicalOf    map[ids.SymbolId]ids.SymbolId   // group member -> canonical (lowest SymbolId in the group)
	groupMembers   map[ids.SymbolId][]ids.SymbolId // canonical -> sorted group members, including itself
}

func emptySnapshot() *snapshot {
	return &snapshot{
		bySymbolKey:    make(map[symbolKey]ids.SymbolId),
		byId:           make(map[ids.SymbolId]symbolKey),
		exchangeByName: make(map[string]ids.ExchangeId),
		exchangeNames:  make(map[ids.ExchangeId]string),
		canonicalOf:    make(map[ids.SymbolId]ids.SymbolId),
		groupMembers:   make(map[ids.SymbolId][]ids.SymbolId),
	}
}

// clone makes a shallow copy-on-write copy of s: every map gets a fresh
// backing store so the old snapshot, still visible to any reader holding
// its pointer, is never mutated.
func (s *snapshot) clone() *snapshot {
	c := emptySnapshot()
	for k, v := range s.bySymbolKey {
		c.bySymbolKey[k] = v
	}
	for k, v := range s.byId {
		c.byId[k] = v
	}
	for k, v := range s.exchangeByName {
		c.exchangeByName[k] = v
	}
	for k, v := range s.exchangeNames {
		c.exchangeNames[k] = v
	}
	for k, v := range s.canonicalOf {
		c.canonicalOf[k] = v
	}
	for k, v := range s.groupMembers {
		members := make([]ids.SymbolId, len(v))
		copy(members, v)
		c.groupMembers[k] = members
	}
	return c
}

// Registry issues stable SymbolId/ExchangeId values and tracks
// economically-equivalent symbol groups across venues. Registration
// (RegisterExchange, RegisterSymbol, Group) is serialized under mu;
// lookups never take mu, they only load the current snapshot pointer.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]

	nextSymbolId   ids.SymbolId
	nextExchangeId ids.ExchangeId
}

// New creates an empty Registry.
func New() *Registry {
	r := &Registry{}
	r.current.Store(emptySnapshot())
	return r
}

func (r *Registry) snap() *snapshot {
	return r.current.Load()
}

// RegisterExchange returns exchange's stable ExchangeId, assigning a new
// one on first sight. Idempotent: registering the same name twice returns
// the same id.
func (r *Registry) RegisterExchange(name string) ids.ExchangeId {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.snap()
	if id, ok := s.exchangeByName[name]; ok {
		return id
	}

	id := r.nextExchangeId
	r.nextExchangeId++

	next := s.clone()
	next.exchangeByName[name] = id
	next.exchangeNames[id] = name
	r.current.Store(next)
	return id
}

// RegisterSymbol returns the stable SymbolId for (exchange, symbol),
// assigning a new one on first sight. Idempotent per (exchange, symbol)
// pair.
func (r *Registry) RegisterSymbol(exchange ids.ExchangeId, symbol string) ids.SymbolId {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := symbolKey{exchange: exchange, symbol: symbol}
	s := r.snap()
	if id, ok := s.bySymbolKey[key]; ok {
		return id
	}

	id := r.nextSymbolId
	r.nextSymbolId++

	next := s.clone()
	next.bySymbolKey[key] = id
	next.byId[id] = key
	r.current.Store(next)
	return id
}

// Group marks symbols as denoting the same economic instrument across
// venues. Merging a symbol already in a different group than its peers
// folds every existing member of every involved group into one group,
// canonicalized on the lowest SymbolId across the union.
func (r *Registry) Group(symbols ...ids.SymbolId) {
	if len(symbols) < 2 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.snap()
	next := s.clone()

	members := make(map[ids.SymbolId]bool)
	for _, sym := range symbols {
		members[sym] = true
		if canon, ok := next.canonicalOf[sym]; ok {
			for _, m := range next.groupMembers[canon] {
				members[m] = true
			}
		}
	}

	all := make([]ids.SymbolId, 0, len(members))
	for sym := range members {
		all = append(all, sym)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	canonical := all[0]

	for _, old := range symbols {
		if oldCanon, ok := next.canonicalOf[old]; ok && oldCanon != canonical {
			delete(next.groupMembers, oldCanon)
		}
	}
	for _, sym := range all {
		next.canonicalOf[sym] = canonical
	}
	next.groupMembers[canonical] = all

	r.current.Store(next)
}

// SymbolId looks up the SymbolId for (exchange, symbol), ok=false if
// never registered.
func (r *Registry) SymbolId(exchange ids.ExchangeId, symbol string) (ids.SymbolId, bool) {
	s := r.snap()
	id, ok := s.bySymbolKey[symbolKey{exchange: exchange, symbol: symbol}]
	return id, ok
}

// SymbolKey resolves a SymbolId back to its (exchange, symbol) pair.
func (r *Registry) SymbolKey(id ids.SymbolId) (ids.ExchangeId, string, bool) {
	s := r.snap()
	key, ok := s.byId[id]
	if !ok {
		return 0, "", false
	}
	return key.exchange, key.symbol, true
}

// ExchangeId looks up an exchange's stable id, ok=false if never
// registered.
func (r *Registry) ExchangeId(name string) (ids.ExchangeId, bool) {
	s := r.snap()
	id, ok := s.exchangeByName[name]
	return id, ok
}

// ExchangeName resolves an ExchangeId back to its registered name.
func (r *Registry) ExchangeName(id ids.ExchangeId) (string, bool) {
	s := r.snap()
	name, ok := s.exchangeNames[id]
	return name, ok
}

// EquivalentGroup returns every SymbolId grouped with id, including id
// itself, sorted ascending. A symbol with no group returns just itself.
func (r *Registry) EquivalentGroup(id ids.SymbolId) []ids.SymbolId {
	s := r.snap()
	canon, ok := s.canonicalOf[id]
	if !ok {
		return []ids.SymbolId{id}
	}
	members := s.groupMembers[canon]
	out := make([]ids.SymbolId, len(members))
	copy(out, members)
	return out
}
