package bar

import (
	"sync"

	"flox/internal/bus"
	"flox/internal/events"
	"flox/pkg/ids"
)

// ring is a fixed-depth circular buffer of the most recent bars for one
// (symbol, timeframe) pair.
type ring struct {
	buf   []events.Bar
	next  int
	count int
}

func newRing(depth int) *ring {
	return &ring{buf: make([]events.Bar, depth)}
}

func (r *ring) push(b events.Bar) {
	r.buf[r.next] = b
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// at returns the bar lookback slots behind the most recent one (0 = most
// recent), ok=false if fewer than lookback+1 bars have been seen.
func (r *ring) at(lookback int) (events.Bar, bool) {
	if lookback < 0 || lookback >= r.count {
		return events.Bar{}, false
	}
	idx := (r.next - 1 - lookback + len(r.buf)) % len(r.buf)
	return r.buf[idx], true
}

// BarMatrix subscribes to a bar bus and keeps the last Depth bars per
// (symbol, timeframe) so strategies can do O(1) historical lookups instead
// of replaying the bus. Timeframe is identified by (BarKind, BarParam); a
// matrix only tracks the timeframes it's told to by NewBarMatrix's specs,
// everything else is ignored.
type BarMatrix struct {
	depth      int
	maxSymbols int
	timeframes []timeframeKey

	mu     sync.RWMutex
	rings  map[matrixKey]*ring
	dense  []*ring // indexed by symbol*len(timeframes)+timeframeIdx, when symbol < maxSymbols
}

type timeframeKey struct {
	kind  Kind
	param int64
}

type matrixKey struct {
	symbol ids.SymbolId
	tf     timeframeKey
}

// NewBarMatrix subscribes a listener to bus for the given timeframes and
// depth, tracking up to maxSymbols symbols in a dense array before falling
// back to a mutex-guarded map.
func NewBarMatrix(b *bus.Bus[events.Bar], timeframes []TimeframeSpec, depth, maxSymbols int) (*BarMatrix, error) {
	keys := make([]timeframeKey, len(timeframes))
	for i, spec := range timeframes {
		p := spec.Factory()
		keys[i] = timeframeKey{kind: p.Kind(), param: p.Param()}
	}
	m := &BarMatrix{
		depth:      depth,
		maxSymbols: maxSymbols,
		timeframes: keys,
		rings:      make(map[matrixKey]*ring),
		dense:      make([]*ring, maxSymbols*len(keys)),
	}
	_, err := b.Subscribe(bus.ListenerFunc[events.Bar](func(seq uint64, ev *events.Bar, placeholder bool) {
		if placeholder {
			return
		}
		m.record(*ev)
	}), false)
	return m, err
}

func (m *BarMatrix) tfIndex(kind Kind, param int64) (int, bool) {
	for i, k := range m.timeframes {
		if k.kind == kind && k.param == param {
			return i, true
		}
	}
	return 0, false
}

func (m *BarMatrix) record(b events.Bar) {
	tfIdx, ok := m.tfIndex(Kind(b.BarKind), b.BarParam)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.ringFor(b.Symbol, tfIdx)
	r.push(b)
}

func (m *BarMatrix) ringFor(symbol ids.SymbolId, tfIdx int) *ring {
	if int(symbol) < m.maxSymbols {
		idx := int(symbol)*len(m.timeframes) + tfIdx
		if m.dense[idx] == nil {
			m.dense[idx] = newRing(m.depth)
		}
		return m.dense[idx]
	}
	k := matrixKey{symbol: symbol, tf: m.timeframes[tfIdx]}
	r, ok := m.rings[k]
	if !ok {
		r = newRing(m.depth)
		m.rings[k] = r
	}
	return r
}

// Bar returns the bar lookback closed bars behind the most recent one for
// (symbol, timeframe); ok=false if no such bar has been recorded yet.
func (m *BarMatrix) Bar(symbol ids.SymbolId, kind Kind, param int64, lookback int) (events.Bar, bool) {
	tfIdx, ok := m.tfIndex(kind, param)
	if !ok {
		return events.Bar{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var r *ring
	if int(symbol) < m.maxSymbols {
		r = m.dense[int(symbol)*len(m.timeframes)+tfIdx]
	} else {
		r = m.rings[matrixKey{symbol: symbol, tf: m.timeframes[tfIdx]}]
	}
	if r == nil {
		return events.Bar{}, false
	}
	return r.at(lookback)
}
