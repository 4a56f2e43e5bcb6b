package strategy

import (
	"sync"

	"flox/internal/events"
	"flox/pkg/ids"
)

// ocoCanceler is the execution-side collaborator OCOTracker cancels the
// surviving leg through. OrderSubmitter already satisfies it.
type ocoCanceler interface {
	Cancel(orderId ids.OrderId) error
}

// OCOTracker maintains a bidirectional map of one-cancels-the-other order
// pairs. When either leg reaches a terminal status, its partner is
// canceled through the executor and the pair is forgotten; a pair is only
// ever resolved once, so a duplicate terminal report for an already-
// resolved leg is a no-op.
type OCOTracker struct {
	mu       sync.Mutex
	partner  map[ids.OrderId]ids.OrderId
	canceler ocoCanceler
}

// NewOCOTracker creates a tracker that cancels surviving legs through
// canceler.
func NewOCOTracker(canceler ocoCanceler) *OCOTracker {
	return &OCOTracker{
		partner:  make(map[ids.OrderId]ids.OrderId),
		canceler: canceler,
	}
}

// Link registers a and b as an OCO pair.
func (t *OCOTracker) Link(a, b ids.OrderId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partner[a] = b
	t.partner[b] = a
}

// isTerminal reports whether status ends an order's lifecycle.
func isTerminal(status events.OrderStatus) bool {
	switch status {
	case events.StatusFilled, events.StatusCanceled, events.StatusExpired, events.StatusRejected:
		return true
	default:
		return false
	}
}

// OnOrderEvent inspects one order-state transition. If it's terminal and
// the order is half of a live OCO pair, the partner is canceled and the
// pair is removed. Canceling an already-resolved or unknown order is
// idempotent: ocoCanceler.Cancel is expected to no-op on a missing order,
// matching the router-no-executor/oco-missing-partner error discipline.
func (t *OCOTracker) OnOrderEvent(ev *events.OrderEvent) {
	if !isTerminal(ev.Status) {
		return
	}
	t.mu.Lock()
	partner, ok := t.partner[ev.Order.Id]
	if ok {
		delete(t.partner, ev.Order.Id)
		delete(t.partner, partner)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	_ = t.canceler.Cancel(partner)
}

// Pending reports whether orderId is still tracked as half of a live pair.
func (t *OCOTracker) Pending(orderId ids.OrderId) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.partner[orderId]
	return ok
}
