package strategy

import (
	"context"

	"flox/internal/events"
)

// Subsystem is the start/stop lifecycle shared by buses, aggregators,
// recorders, and strategies. Start order across a running system is
// subsystems before connectors; stop order is connectors before
// subsystems, so a strategy is always live before its market-data feed and
// torn down only after that feed stops delivering.
type Subsystem interface {
	Start(ctx context.Context) error
	Stop()
}

// SignalStrategy is the capability contract for a strategy that reacts to
// market data and emits logical order signals on Signals(). A concrete
// strategy additionally implements bus.Listener[T] for whichever event
// families it consumes (events.Trade, pool.Handle[events.BookUpdate],
// events.OrderEvent); those are wired directly to their buses by the
// runtime rather than through this interface, which only names the
// lifecycle and signal-emission contract every strategy shares.
type SignalStrategy interface {
	Subsystem
	// Signals returns the channel a SignalHandler reads from. Closed when
	// the strategy stops.
	Signals() <-chan Signal
}

// BarStrategy is a SignalStrategy that additionally reads completed bars,
// typically via a bar.BarMatrix lookup triggered from OnBar.
type BarStrategy interface {
	SignalStrategy
	OnBar(bar *events.Bar)
}
