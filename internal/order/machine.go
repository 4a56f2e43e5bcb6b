package order

import (
	"sync"

	"flox/internal/events"
)

// Machine tracks one order's lifecycle status and filled quantity,
// rejecting any transition the DAG in transition.go doesn't permit.
type Machine struct {
	mu       sync.Mutex
	status   events.OrderStatus
	quantity int64
	filled   int64
}

// NewMachine starts a Machine at StatusSubmitted for an order of the
// given quantity.
func NewMachine(quantity int64) *Machine {
	return &Machine{status: events.StatusSubmitted, quantity: quantity}
}

// Status returns the current lifecycle status.
func (m *Machine) Status() events.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Filled returns the current filled quantity.
func (m *Machine) Filled() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filled
}

// Transition moves the machine to to, applying fillDelta (zero when the
// transition carries no fill) to the running filled quantity. It rejects
// a transition the DAG doesn't permit, and rejects any fill that would
// push filled_quantity past quantity.
func (m *Machine) Transition(to events.OrderStatus, fillDelta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !IsLegalTransition(m.status, to) {
		return &TransitionError{From: m.status, To: to}
	}
	newFilled := m.filled + fillDelta
	if newFilled > m.quantity {
		return &TransitionError{From: m.status, To: to}
	}
	m.status = to
	m.filled = newFilled
	return nil
}

// Tracker maps live orders to their Machine, pruning absorbed (terminal)
// orders on their final transition. Grounded on book.Keeper's
// mutex-guarded lazy map: order ids are 64-bit and globally assigned, not
// a bounded dense range, so there's no dense-array tier here.
type Tracker struct {
	mu     sync.Mutex
	orders map[uint64]*Machine
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{orders: make(map[uint64]*Machine)}
}

// Open registers a new order under orderId with the given quantity,
// starting it at StatusSubmitted.
func (t *Tracker) Open(orderId uint64, quantity int64) *Machine {
	m := NewMachine(quantity)
	t.mu.Lock()
	t.orders[orderId] = m
	t.mu.Unlock()
	return m
}

// Get returns the Machine tracking orderId, if one is open.
func (t *Tracker) Get(orderId uint64) (*Machine, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.orders[orderId]
	return m, ok
}

// Apply transitions orderId's machine to to and, once that transition
// lands on a terminal status, removes it from the tracker so a long-
// running process doesn't accumulate closed orders forever.
func (t *Tracker) Apply(orderId uint64, to events.OrderStatus, fillDelta int64) error {
	t.mu.Lock()
	m, ok := t.orders[orderId]
	t.mu.Unlock()
	if !ok {
		return &TransitionError{From: events.StatusSubmitted, To: to}
	}
	if err := m.Transition(to, fillDelta); err != nil {
		return err
	}
	if IsTerminal(to) {
		t.mu.Lock()
		delete(t.orders, orderId)
		t.mu.Unlock()
	}
	return nil
}

// Len returns the number of currently open (non-terminal) orders.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}
