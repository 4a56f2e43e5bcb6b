package order

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"flox/internal/events"
)

func TestLegalTransitionsFromSubmitted(t *testing.T) {
	require.True(t, IsLegalTransition(events.StatusSubmitted, events.StatusAccepted))
	require.True(t, IsLegalTransition(events.StatusSubmitted, events.StatusRejected))
	require.False(t, IsLegalTransition(events.StatusSubmitted, events.StatusFilled))
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, s := range []events.OrderStatus{
		events.StatusFilled, events.StatusCanceled, events.StatusExpired, events.StatusRejected,
	} {
		require.True(t, IsTerminal(s))
		require.False(t, IsLegalTransition(s, events.StatusAccepted))
	}
}

func TestPartiallyFilledSelfLoop(t *testing.T) {
	require.True(t, IsLegalTransition(events.StatusPartiallyFilled, events.StatusPartiallyFilled))
}

func TestMachineHappyPathFill(t *testing.T) {
	m := NewMachine(100)
	require.NoError(t, m.Transition(events.StatusAccepted, 0))
	require.NoError(t, m.Transition(events.StatusPartiallyFilled, 40))
	require.EqualValues(t, 40, m.Filled())
	require.NoError(t, m.Transition(events.StatusPartiallyFilled, 30))
	require.EqualValues(t, 70, m.Filled())
	require.NoError(t, m.Transition(events.StatusFilled, 30))
	require.EqualValues(t, 100, m.Filled())
	require.Equal(t, events.StatusFilled, m.Status())
}

func TestMachineRejectsIllegalTransition(t *testing.T) {
	m := NewMachine(100)
	err := m.Transition(events.StatusFilled, 100)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIllegalTransition))
	require.Equal(t, events.StatusSubmitted, m.Status())
}

func TestMachineRejectsFillPastQuantity(t *testing.T) {
	m := NewMachine(100)
	require.NoError(t, m.Transition(events.StatusAccepted, 0))
	err := m.Transition(events.StatusPartiallyFilled, 150)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestMachineRejectsTransitionOutOfTerminal(t *testing.T) {
	m := NewMachine(100)
	require.NoError(t, m.Transition(events.StatusAccepted, 0))
	require.NoError(t, m.Transition(events.StatusCanceled, 0))
	err := m.Transition(events.StatusFilled, 0)
	require.Error(t, err)
}

func TestTrackerPrunesOnTerminal(t *testing.T) {
	tr := NewTracker()
	tr.Open(1, 100)
	require.Equal(t, 1, tr.Len())

	require.NoError(t, tr.Apply(1, events.StatusAccepted, 0))
	require.NoError(t, tr.Apply(1, events.StatusFilled, 100))
	require.Equal(t, 0, tr.Len())

	_, ok := tr.Get(1)
	require.False(t, ok)
}

func TestTrackerApplyUnknownOrderErrors(t *testing.T) {
	tr := NewTracker()
	err := tr.Apply(99, events.StatusAccepted, 0)
	require.Error(t, err)
}

func TestTrackerPendingCancelRaceWithLateFill(t *testing.T) {
	tr := NewTracker()
	tr.Open(5, 50)
	require.NoError(t, tr.Apply(5, events.StatusAccepted, 0))
	require.NoError(t, tr.Apply(5, events.StatusPendingCancel, 0))
	// A fill report can still race a cancel ack.
	require.NoError(t, tr.Apply(5, events.StatusPartiallyFilled, 20))
	require.NoError(t, tr.Apply(5, events.StatusCanceled, 0))
	require.Equal(t, 0, tr.Len())
}
