package strategy

import "errors"

// ErrKilled is returned by SignalHandler.Handle when the kill switch has
// tripped for the signal's symbol.
var ErrKilled = errors.New("strategy: kill switch active for symbol")

// ErrRiskRejected is returned by SignalHandler.Handle when the risk check
// rejects a signal.
var ErrRiskRejected = errors.New("strategy: signal rejected by risk check")
