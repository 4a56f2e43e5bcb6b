// Package bar implements bar aggregation: folding a stream of trades into
// OHLCV bars under a pluggable close policy, then fanning each completed
// bar out across however many timeframes a symbol is tracked at.
package bar

import (
	"flox/internal/events"
	"flox/pkg/numeric"
)

// Kind identifies a close policy, stored on every Bar it produces so
// consumers reading a mixed bus know which timeframe a bar belongs to.
type Kind uint8

const (
	KindTime Kind = iota
	KindTick
	KindVolume
	KindRange
	KindRenko
	KindHeikinAshi
)

// Policy governs when a bar closes and how a trade folds into it. InitBar
// stamps a freshly opened bar; Update folds one trade in; ShouldClose
// reports whether the bar is complete. Whether ShouldClose is consulted
// before or after Update is fixed per policy (Time checks before, so the
// trade that crosses the boundary opens the next bar instead of closing
// this one; the rest check after).
type Policy interface {
	Kind() Kind
	Param() int64
	PreClose() bool
	InitBar(trade *events.Trade, bar *events.Bar)
	Update(trade *events.Trade, bar *events.Bar)
	ShouldClose(trade *events.Trade, bar *events.Bar) bool
}

func initCommon(trade *events.Trade, bar *events.Bar) {
	bar.Symbol = trade.Symbol
	bar.Open = trade.Price
	bar.High = trade.Price
	bar.Low = trade.Price
	bar.Close = trade.Price
	bar.Volume = 0
	bar.BuyVolume = 0
	bar.TradeCount = 0
	bar.StartTs = trade.ExchangeTs
	bar.EndTs = trade.ExchangeTs
}

func updateCommon(trade *events.Trade, bar *events.Bar) {
	price := numeric.PriceFromRaw(trade.Price)
	high := numeric.PriceFromRaw(bar.High)
	low := numeric.PriceFromRaw(bar.Low)
	if price.Cmp(high) > 0 {
		bar.High = trade.Price
	}
	if price.Cmp(low) < 0 {
		bar.Low = trade.Price
	}
	bar.Close = trade.Price

	notional := numeric.PriceFromRaw(trade.Price).Mul(numeric.QuantityFromRaw(trade.Quantity))
	bar.Volume = numeric.VolumeFromRaw(bar.Volume).Add(notional).Raw()
	if trade.IsBuy {
		bar.BuyVolume = numeric.VolumeFromRaw(bar.BuyVolume).Add(notional).Raw()
	}
	bar.TradeCount++
	bar.EndTs = trade.ExchangeTs
}

// TimePolicy closes a bar when the incoming trade's timestamp has crossed
// the interval boundary, checked before applying the trade so the
// boundary-crossing trade opens the next bar.
type TimePolicy struct {
	IntervalNs int64
}

func (p TimePolicy) Kind() Kind     { return KindTime }
func (p TimePolicy) Param() int64   { return p.IntervalNs }
func (p TimePolicy) PreClose() bool { return true }

func (p TimePolicy) InitBar(trade *events.Trade, bar *events.Bar) {
	initCommon(trade, bar)
	bar.BarKind = uint8(KindTime)
	bar.BarParam = p.IntervalNs
}

func (p TimePolicy) Update(trade *events.Trade, bar *events.Bar) { updateCommon(trade, bar) }

func (p TimePolicy) ShouldClose(trade *events.Trade, bar *events.Bar) bool {
	return trade.ExchangeTs >= bar.StartTs+p.IntervalNs
}

// TickPolicy closes a bar once it has absorbed N trades.
type TickPolicy struct {
	N int64
}

func (p TickPolicy) Kind() Kind     { return KindTick }
func (p TickPolicy) Param() int64   { return p.N }
func (p TickPolicy) PreClose() bool { return false }

func (p TickPolicy) InitBar(trade *events.Trade, bar *events.Bar) {
	initCommon(trade, bar)
	bar.BarKind = uint8(KindTick)
	bar.BarParam = p.N
}

func (p TickPolicy) Update(trade *events.Trade, bar *events.Bar) { updateCommon(trade, bar) }

func (p TickPolicy) ShouldClose(trade *events.Trade, bar *events.Bar) bool {
	return int64(bar.TradeCount) >= p.N
}

// VolumePolicy closes a bar once its notional volume reaches a threshold.
type VolumePolicy struct {
	ThresholdRaw int64
}

func (p VolumePolicy) Kind() Kind     { return KindVolume }
func (p VolumePolicy) Param() int64   { return p.ThresholdRaw }
func (p VolumePolicy) PreClose() bool { return false }

func (p VolumePolicy) InitBar(trade *events.Trade, bar *events.Bar) {
	initCommon(trade, bar)
	bar.BarKind = uint8(KindVolume)
	bar.BarParam = p.ThresholdRaw
}

func (p VolumePolicy) Update(trade *events.Trade, bar *events.Bar) { updateCommon(trade, bar) }

func (p VolumePolicy) ShouldClose(trade *events.Trade, bar *events.Bar) bool {
	return bar.Volume >= p.ThresholdRaw
}

// RangePolicy closes a bar once high-low spans at least Ticks price ticks.
type RangePolicy struct {
	Ticks    int64
	TickSize numeric.Price
}

func (p RangePolicy) Kind() Kind     { return KindRange }
func (p RangePolicy) Param() int64   { return p.Ticks }
func (p RangePolicy) PreClose() bool { return false }

func (p RangePolicy) InitBar(trade *events.Trade, bar *events.Bar) {
	initCommon(trade, bar)
	bar.BarKind = uint8(KindRange)
	bar.BarParam = p.Ticks
}

func (p RangePolicy) Update(trade *events.Trade, bar *events.Bar) { updateCommon(trade, bar) }

func (p RangePolicy) ShouldClose(trade *events.Trade, bar *events.Bar) bool {
	high := numeric.PriceFromRaw(bar.High)
	low := numeric.PriceFromRaw(bar.Low)
	span := high.Sub(low)
	threshold := p.TickSize.Raw() * p.Ticks
	return span.Raw() >= threshold
}

// RenkoPolicy closes on a fixed-size price move from the last close.
// Because the aggregator only calls ShouldClose once per trade, a trade
// that moves price by more than one brick needs the aggregator to loop
// closing and reopening bars from the same trade; see Aggregator.drainRenko.
type RenkoPolicy struct {
	BrickRaw int64
}

func (p RenkoPolicy) Kind() Kind     { return KindRenko }
func (p RenkoPolicy) Param() int64   { return p.BrickRaw }
func (p RenkoPolicy) PreClose() bool { return false }

func (p RenkoPolicy) InitBar(trade *events.Trade, bar *events.Bar) {
	initCommon(trade, bar)
	bar.BarKind = uint8(KindRenko)
	bar.BarParam = p.BrickRaw
}

func (p RenkoPolicy) Update(trade *events.Trade, bar *events.Bar) { updateCommon(trade, bar) }

func (p RenkoPolicy) ShouldClose(trade *events.Trade, bar *events.Bar) bool {
	open := numeric.PriceFromRaw(bar.Open)
	last := numeric.PriceFromRaw(bar.Close)
	move := last.Sub(open)
	if move.Raw() < 0 {
		move = move.Neg()
	}
	return move.Raw() >= p.BrickRaw
}

// HeikinAshiPolicy is timed like TimePolicy but tracks the smoothed
// open/close of the previous HA bar per symbol so InitBar can compute this
// bar's HA-open as the midpoint of the prior HA bar.
type HeikinAshiPolicy struct {
	IntervalNs int64

	havePrev    bool
	prevHaOpen  int64
	prevHaClose int64
}

func (p *HeikinAshiPolicy) Kind() Kind     { return KindHeikinAshi }
func (p *HeikinAshiPolicy) Param() int64   { return p.IntervalNs }
func (p *HeikinAshiPolicy) PreClose() bool { return true }

func (p *HeikinAshiPolicy) InitBar(trade *events.Trade, bar *events.Bar) {
	initCommon(trade, bar)
	bar.BarKind = uint8(KindHeikinAshi)
	bar.BarParam = p.IntervalNs
	if p.havePrev {
		haOpen := (numeric.PriceFromRaw(p.prevHaOpen).Raw() + numeric.PriceFromRaw(p.prevHaClose).Raw()) / 2
		bar.Open = haOpen
	}
}

func (p *HeikinAshiPolicy) Update(trade *events.Trade, bar *events.Bar) {
	updateCommon(trade, bar)
	haClose := (bar.Open + bar.High + bar.Low + bar.Close) / 4
	bar.Close = haClose
}

func (p *HeikinAshiPolicy) ShouldClose(trade *events.Trade, bar *events.Bar) bool {
	return trade.ExchangeTs >= bar.StartTs+p.IntervalNs
}

// OnClosed records the closed bar's HA-open/close as the seed for the next
// bar's InitBar. The aggregator calls this immediately after closing.
func (p *HeikinAshiPolicy) OnClosed(bar *events.Bar) {
	p.havePrev = true
	p.prevHaOpen = bar.Open
	p.prevHaClose = bar.Close
}
