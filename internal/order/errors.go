package order

import (
	"errors"
	"fmt"

	"flox/internal/events"
)

// ErrIllegalTransition is wrapped by TransitionError and matches it via
// errors.Is.
var ErrIllegalTransition = errors.New("order: illegal status transition")

// TransitionError names the rejected transition.
type TransitionError struct {
	From events.OrderStatus
	To   events.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order: illegal transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}
