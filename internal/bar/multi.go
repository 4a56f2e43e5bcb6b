package bar

import (
	"flox/internal/bus"
	"flox/internal/events"
)

// TimeframeSpec names one timeframe a MultiTimeframeAggregator fans a trade
// out to: a label plus the policy factory that produces its bars.
type TimeframeSpec struct {
	Name    string
	Factory PolicyFactory
}

// MultiTimeframeAggregator fans one trade into up to len(specs) independent
// Aggregators, each tracking its own per-symbol bar state and publishing
// onto the same bar bus; a bar's BarKind/BarParam (stamped by its own
// policy) is what lets downstream consumers tell timeframes apart.
type MultiTimeframeAggregator struct {
	aggregators []*Aggregator
	names       []string
}

// NewMultiTimeframeAggregator builds one Aggregator per spec, all sharing
// the output bus and the same per-symbol dense sizing.
func NewMultiTimeframeAggregator(specs []TimeframeSpec, out *bus.Bus[events.Bar], maxSymbols int) *MultiTimeframeAggregator {
	m := &MultiTimeframeAggregator{
		aggregators: make([]*Aggregator, len(specs)),
		names:       make([]string, len(specs)),
	}
	for i, spec := range specs {
		m.aggregators[i] = NewAggregator(spec.Factory, out, maxSymbols)
		m.names[i] = spec.Name
	}
	return m
}

// OnTrade feeds trade into every tracked timeframe.
func (m *MultiTimeframeAggregator) OnTrade(trade *events.Trade) {
	for _, a := range m.aggregators {
		a.OnTrade(trade)
	}
}

// Flush force-closes every open bar across every timeframe.
func (m *MultiTimeframeAggregator) Flush() {
	for _, a := range m.aggregators {
		a.Flush()
	}
}

// Timeframes returns the configured timeframe names, in registration order.
func (m *MultiTimeframeAggregator) Timeframes() []string {
	return m.names
}
