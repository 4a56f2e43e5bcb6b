package bar

import (
	"sync"

	"flox/internal/bus"
	"flox/internal/events"
	"flox/pkg/ids"
)

// PolicyFactory builds a fresh Policy instance for one (symbol, timeframe)
// pair. Policies like HeikinAshi carry per-symbol smoothing state, so every
// tracked symbol needs its own instance rather than sharing one across the
// whole aggregator.
type PolicyFactory func() Policy

// closer is implemented by policies that need to snapshot state out of a
// bar right before it's reused for the next one (HeikinAshiPolicy).
type closer interface {
	OnClosed(bar *events.Bar)
}

type symbolSlot struct {
	inUse  bool
	policy Policy
	bar    events.Bar
}

// Aggregator folds trades for one timeframe into bars under a Policy,
// publishing each completed bar onto out. Per-symbol state lives in a dense
// array up to MaxSymbols, with an overflow map for SymbolIds beyond that
// ceiling so a registry that outgrows its initial sizing degrades to a
// mutex-guarded map instead of dropping symbols.
type Aggregator struct {
	factory PolicyFactory
	out     *bus.Bus[events.Bar]

	dense []symbolSlot

	mu       sync.Mutex
	overflow map[ids.SymbolId]*symbolSlot
}

// NewAggregator creates an Aggregator with room for maxSymbols dense slots.
func NewAggregator(factory PolicyFactory, out *bus.Bus[events.Bar], maxSymbols int) *Aggregator {
	return &Aggregator{
		factory:  factory,
		out:      out,
		dense:    make([]symbolSlot, maxSymbols),
		overflow: make(map[ids.SymbolId]*symbolSlot),
	}
}

func (a *Aggregator) slotFor(symbol ids.SymbolId) *symbolSlot {
	if int(symbol) < len(a.dense) {
		return &a.dense[symbol]
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.overflow[symbol]
	if !ok {
		s = &symbolSlot{}
		a.overflow[symbol] = s
	}
	return s
}

// OnTrade folds one trade into its symbol's current bar: open a new bar if
// none is in flight or the prior one just closed, pre-close if the policy
// checks before applying, apply the trade, then post-close if the policy
// checks after. Every bar that closes is published onto out.
func (a *Aggregator) OnTrade(trade *events.Trade) {
	s := a.slotFor(trade.Symbol)

	if !s.inUse {
		s.policy = a.factory()
		s.policy.InitBar(trade, &s.bar)
		s.inUse = true
	} else if s.policy.PreClose() && s.policy.ShouldClose(trade, &s.bar) {
		// a pre-close bar ends at its interval boundary, not at the
		// timestamp of the trade that crossed it
		s.bar.EndTs = s.bar.StartTs + s.policy.Param()
		a.closeBar(s, events.CloseThreshold)
		s.policy.InitBar(trade, &s.bar)
	}

	s.policy.Update(trade, &s.bar)

	if rp, ok := s.policy.(*RenkoPolicy); ok {
		a.drainRenko(s, rp, trade)
		return
	}

	if !s.policy.PreClose() && s.policy.ShouldClose(trade, &s.bar) {
		a.closeBar(s, events.CloseThreshold)
		s.inUse = false
	}
}

// drainRenko closes as many consecutive bricks as the trade's price move
// covers, since one large gap can cross several brick boundaries: each
// closed bar spans exactly one brick, and any leftover move becomes the
// still-open current bar.
func (a *Aggregator) drainRenko(s *symbolSlot, rp *RenkoPolicy, trade *events.Trade) {
	brick := rp.BrickRaw
	for {
		diff := s.bar.Close - s.bar.Open
		switch {
		case diff >= brick:
			boundary := s.bar.Open + brick
			s.bar.High = maxI64(s.bar.High, boundary)
			s.bar.Close = boundary
			a.closeBar(s, events.CloseThreshold)
			a.reopenRenkoBrick(s, trade, boundary, boundary+(diff-brick))
		case -diff >= brick:
			boundary := s.bar.Open - brick
			s.bar.Low = minI64(s.bar.Low, boundary)
			s.bar.Close = boundary
			a.closeBar(s, events.CloseThreshold)
			a.reopenRenkoBrick(s, trade, boundary, boundary-(-diff-brick))
		default:
			return
		}
	}
}

func (a *Aggregator) reopenRenkoBrick(s *symbolSlot, trade *events.Trade, openPrice, closePrice int64) {
	s.bar.Symbol = trade.Symbol
	s.bar.Open = openPrice
	s.bar.High = maxI64(openPrice, closePrice)
	s.bar.Low = minI64(openPrice, closePrice)
	s.bar.Close = closePrice
	s.bar.Volume = 0
	s.bar.BuyVolume = 0
	s.bar.TradeCount = 0
	s.bar.StartTs = trade.ExchangeTs
	s.bar.EndTs = trade.ExchangeTs
	s.bar.BarKind = uint8(KindRenko)
	s.bar.BarParam = s.policy.Param()
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (a *Aggregator) closeBar(s *symbolSlot, reason events.CloseReason) {
	s.bar.CloseReason = reason
	if c, ok := s.policy.(closer); ok {
		c.OnClosed(&s.bar)
	}
	if a.out != nil {
		a.out.Publish(s.bar)
	}
}

// Flush force-closes every open bar across both dense and overflow slots,
// tagging them CloseForced. Used on shutdown so no partial bar is silently
// lost.
func (a *Aggregator) Flush() {
	for i := range a.dense {
		if a.dense[i].inUse {
			a.closeBar(&a.dense[i], events.CloseForced)
			a.dense[i].inUse = false
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.overflow {
		if s.inUse {
			a.closeBar(s, events.CloseForced)
			s.inUse = false
		}
	}
}
