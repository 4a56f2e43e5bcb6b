package strategy

import (
	"flox/pkg/ids"
	"flox/pkg/numeric"
)

// SignalKind is the logical action a strategy asks the SignalHandler to
// carry out. A strategy never builds an events.Order itself, it only
// expresses intent; the handler owns translating that intent into an order
// under risk and kill-switch checks.
type SignalKind uint8

const (
	SignalMarketBuy SignalKind = iota
	SignalMarketSell
	SignalLimitBuy
	SignalLimitSell
	SignalCancel
	SignalCancelAll
)

// Signal is one unit of strategy intent. Price/Quantity are only
// meaningful for the buy/sell kinds; OrderId is only meaningful for
// SignalCancel.
type Signal struct {
	Kind     SignalKind
	Symbol   ids.SymbolId
	Price    numeric.Price
	Quantity numeric.Quantity
	OrderId  ids.OrderId
	Tag      string
}
