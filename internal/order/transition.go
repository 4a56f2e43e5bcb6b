// Package order implements the order lifecycle state machine: a DAG of
// legal events.OrderStatus transitions rooted at submitted and absorbing
// at {filled, canceled, expired, rejected}, per events.OrderStatus's own
// doc comment.
package order

import "flox/internal/events"

// terminal is the absorbing status set: no transition starts from one of
// these once reached.
var terminal = map[events.OrderStatus]bool{
	events.StatusFilled:   true,
	events.StatusCanceled: true,
	events.StatusExpired:  true,
	events.StatusRejected: true,
}

// edges lists, for each non-terminal status, the statuses it may legally
// move to. partially_filled carries a self-loop: successive partial fills
// keep the status unchanged while FilledQuantity advances.
var edges = map[events.OrderStatus]map[events.OrderStatus]bool{
	events.StatusSubmitted: set(
		events.StatusAccepted,
		events.StatusRejected,
	),
	events.StatusAccepted: set(
		events.StatusPartiallyFilled,
		events.StatusFilled,
		events.StatusPendingCancel,
		events.StatusCanceled,
		events.StatusExpired,
		events.StatusReplaced,
	),
	events.StatusPartiallyFilled: set(
		events.StatusPartiallyFilled,
		events.StatusFilled,
		events.StatusPendingCancel,
		events.StatusCanceled,
		events.StatusExpired,
		events.StatusReplaced,
	),
	events.StatusPendingCancel: set(
		events.StatusCanceled,
		events.StatusPartiallyFilled,
		events.StatusFilled,
	),
	events.StatusReplaced: set(
		events.StatusAccepted,
		events.StatusPartiallyFilled,
		events.StatusFilled,
		events.StatusPendingCancel,
		events.StatusCanceled,
		events.StatusExpired,
	),
}

func set(statuses ...events.OrderStatus) map[events.OrderStatus]bool {
	m := make(map[events.OrderStatus]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

// IsTerminal reports whether status is an absorbing state.
func IsTerminal(status events.OrderStatus) bool {
	return terminal[status]
}

// IsLegalTransition reports whether the DAG permits moving from from to
// to. A terminal from always returns false.
func IsLegalTransition(from, to events.OrderStatus) bool {
	if terminal[from] {
		return false
	}
	return edges[from][to]
}
