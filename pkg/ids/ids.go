// Package ids defines the stable identifier types shared across Flox:
// SymbolId, ExchangeId, OrderId, and SubscriberId.
package ids

// SymbolId is a dense 32-bit identifier assigned by the symbol registry.
// Once assigned, a SymbolId is never reused for the lifetime of the
// process.
type SymbolId uint32

// ExchangeId is an 8-bit identifier assigned by the symbol registry.
type ExchangeId uint8

// OrderId is a 64-bit identifier for an order, assigned by the strategy or
// execution layer that creates the order.
type OrderId uint64

// SubscriberId is an opaque handle returned by Bus.Subscribe, stable over
// the subscriber's lifetime. The zero value never denotes a live
// subscriber.
type SubscriberId uint32

// InvalidSymbolId is returned by lookups that fail to resolve a symbol.
const InvalidSymbolId SymbolId = ^SymbolId(0)

// InvalidSubscriberId is returned when subscription fails.
const InvalidSubscriberId SubscriberId = 0

// InvalidOrderId marks an Order.ParentId with no parent.
const InvalidOrderId OrderId = 0
