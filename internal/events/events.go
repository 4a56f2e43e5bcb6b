// Package events defines the four event families that travel over Flox's
// buses: trades, book updates, bars, and order-state transitions.
// Trade, Bar, and Order events are small and fixed-size, so they are moved
// by value into a ring slot (the "embedded" family). Book
// updates carry a variable number of levels and are instead transported as
// pool.Handle[BookUpdate] (the "pooled" family), with levels written into
// the handle's arena rather than a heap slice.
package events

import "flox/pkg/ids"

// BookUpdateKind distinguishes a full replace from an incremental delta.
type BookUpdateKind uint8

const (
	BookSnapshot BookUpdateKind = iota
	BookDelta
)

// CloseReason records why a bar aggregator closed a bar.
type CloseReason uint8

const (
	CloseThreshold CloseReason = iota
	CloseGap
	CloseForced
	CloseWarmup
)

func (r CloseReason) String() string {
	switch r {
	case CloseThreshold:
		return "threshold"
	case CloseGap:
		return "gap"
	case CloseForced:
		return "forced"
	case CloseWarmup:
		return "warmup"
	default:
		return "unknown"
	}
}

// OrderStatus is the order lifecycle state. See internal/order for the
// transition table that governs moves between these states.
type OrderStatus uint8

const (
	StatusSubmitted OrderStatus = iota
	StatusAccepted
	StatusPartiallyFilled
	StatusFilled
	StatusPendingCancel
	StatusCanceled
	StatusExpired
	StatusRejected
	StatusReplaced
)

func (s OrderStatus) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusAccepted:
		return "accepted"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusPendingCancel:
		return "pending_cancel"
	case StatusCanceled:
		return "canceled"
	case StatusExpired:
		return "expired"
	case StatusRejected:
		return "rejected"
	case StatusReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Trade is a single execution print. Moved by value into a bus slot.
type Trade struct {
	Symbol     ids.SymbolId
	Price      int64 // scaled Price, see pkg/numeric
	Quantity   int64 // scaled Quantity
	IsBuy      bool
	TradeId    uint64
	ExchangeTs int64 // monotonic nanoseconds, as stamped by the venue
	RecvTs     int64 // monotonic nanoseconds, as stamped on receipt
}

// BookLevel is one (price, quantity) pair inside a book update. Qty==0 on a
// delta signals the level should be removed.
type BookLevel struct {
	Price    int64
	Quantity int64
}

// MaxArenaLevels bounds how many (bid+ask) levels a single BookUpdate can
// carry. The backing array is embedded in the event itself, a bounded arena
// scoped to each pooled object, so a snapshot with many levels costs no
// heap traffic, only a bump of the cursor through this fixed buffer. Levels
// beyond the bound are dropped by SetLevels without any report.
const MaxArenaLevels = 256

// BookUpdate is a pooled, variable-sized event. Bids and Asks are slices
// into this event's own arena array, so the whole update moves with the
// pool.Handle[BookUpdate] that owns it without any separate allocation.
type BookUpdate struct {
	Symbol         ids.SymbolId
	Kind           BookUpdateKind
	SequenceNumber uint64

	arena  [MaxArenaLevels]BookLevel
	cursor int
	Bids   []BookLevel
	Asks   []BookLevel
}

// Reset clears a BookUpdate back to its zero state and rewinds its arena.
// It is the pool's reset hook, invoked when the last pool.Handle to the
// event is released, before the object returns to the free list. Callers
// don't normally call this directly.
func (b *BookUpdate) Reset() {
	b.Symbol = 0
	b.Kind = BookSnapshot
	b.SequenceNumber = 0
	b.cursor = 0
	b.Bids = nil
	b.Asks = nil
}

// SetLevels carves Bids and Asks out of the event's own arena, truncating
// whichever side runs past MaxArenaLevels combined.
func (b *BookUpdate) SetLevels(bids, asks []BookLevel) {
	b.Bids = b.allocLevels(bids)
	b.Asks = b.allocLevels(asks)
}

func (b *BookUpdate) allocLevels(src []BookLevel) []BookLevel {
	room := len(b.arena) - b.cursor
	n := len(src)
	if n > room {
		n = room
	}
	dst := b.arena[b.cursor : b.cursor+n : b.cursor+n]
	copy(dst, src[:n])
	b.cursor += n
	return dst
}

// Bar is a completed OHLCV bar, moved by value.
type Bar struct {
	Symbol      ids.SymbolId
	BarKind     uint8 // see internal/bar.Kind
	BarParam    int64 // interval_ns, tick count, volume threshold, etc.
	Open        int64
	High        int64
	Low         int64
	Close       int64
	Volume      int64
	BuyVolume   int64
	TradeCount  uint32
	StartTs     int64
	EndTs       int64
	CloseReason CloseReason
}

// Order is a point-in-time order-state snapshot, moved by value.
type Order struct {
	Id               ids.OrderId
	ClientId         uint64
	ExchangeOrderId  string
	Symbol           ids.SymbolId
	Side             OrderSide
	Type             OrderType
	Tif              TimeInForce
	Price            int64
	TriggerPrice     int64
	Quantity         int64
	FilledQuantity   int64
	TrailingOffset   int64
	VisibleQuantity  int64
	ExecFlags        ExecFlags
	ParentId         ids.OrderId // InvalidOrderId when no parent
	CreatedTs        int64
	LastUpdateTs     int64
}

// OrderEvent wraps an Order with the status transition and any fill or
// rejection detail that accompanies it.
type OrderEvent struct {
	Order    Order
	Status   OrderStatus
	FillQty  int64  // valid when Status is partially_filled or filled
	Reason   string // valid when Status is rejected, canceled, or expired
}

type OrderSide uint8

const (
	SideBuy OrderSide = iota
	SideSell
)

type OrderType uint8

const (
	TypeMarket OrderType = iota
	TypeLimit
	TypeStopMarket
	TypeStopLimit
	TypeTrailingStop
)

type TimeInForce uint8

const (
	TifGTC TimeInForce = iota
	TifIOC
	TifFOK
	TifDay
)

// ExecFlags are the boolean execution modifiers attached to an order.
type ExecFlags struct {
	ReduceOnly    bool
	PostOnly      bool
	ClosePosition bool
}
