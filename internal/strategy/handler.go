package strategy

import (
	"log/slog"
	"time"

	"flox/internal/events"
	"flox/pkg/ids"
)

// OrderSubmitter is the execution-side collaborator a SignalHandler submits
// orders through. It is a minimal interface so the handler can be tested
// against a stub without pulling in a real exchange connector.
type OrderSubmitter interface {
	Submit(order events.Order) error
	Cancel(orderId ids.OrderId) error
	CancelAll(symbol ids.SymbolId) error
}

// RiskCheck decides whether a signal is allowed to proceed. A nil RiskCheck
// passed to NewSignalHandler allows every signal.
type RiskCheck func(Signal) bool

// KillSwitch reports whether a symbol is currently killed. A nil KillSwitch
// passed to NewSignalHandler never kills anything.
type KillSwitch func(ids.SymbolId) bool

// SignalHandler translates strategy signals into orders, subject to a risk
// check and a kill switch, then submits them through an OrderSubmitter.
type SignalHandler struct {
	submitter   OrderSubmitter
	riskCheck   RiskCheck
	killSwitch  KillSwitch
	nextOrderId func() ids.OrderId
	log         *slog.Logger
}

// NewSignalHandler creates a SignalHandler. nextOrderId assigns the Id on
// every order built from a buy/sell signal.
func NewSignalHandler(submitter OrderSubmitter, riskCheck RiskCheck, killSwitch KillSwitch, nextOrderId func() ids.OrderId, log *slog.Logger) *SignalHandler {
	return &SignalHandler{
		submitter:   submitter,
		riskCheck:   riskCheck,
		killSwitch:  killSwitch,
		nextOrderId: nextOrderId,
		log:         log,
	}
}

// Handle processes one signal: kill switch first, then risk check, then
// translation to an order or cancel request and submission.
func (h *SignalHandler) Handle(signal Signal) error {
	if h.killSwitch != nil && h.killSwitch(signal.Symbol) {
		if h.log != nil {
			h.log.Warn("signal dropped by kill switch", "symbol", signal.Symbol, "kind", signal.Kind)
		}
		return ErrKilled
	}
	if h.riskCheck != nil && !h.riskCheck(signal) {
		if h.log != nil {
			h.log.Warn("signal rejected by risk check", "symbol", signal.Symbol, "kind", signal.Kind)
		}
		return ErrRiskRejected
	}

	switch signal.Kind {
	case SignalCancel:
		return h.submitter.Cancel(signal.OrderId)
	case SignalCancelAll:
		return h.submitter.CancelAll(signal.Symbol)
	default:
		return h.submitter.Submit(h.orderFromSignal(signal))
	}
}

func (h *SignalHandler) orderFromSignal(signal Signal) events.Order {
	order := events.Order{
		Id:        h.nextOrderId(),
		Symbol:    signal.Symbol,
		Quantity:  signal.Quantity.Raw(),
		CreatedTs: time.Now().UnixNano(),
		Tif:       events.TifGTC,
	}
	switch signal.Kind {
	case SignalMarketBuy:
		order.Side = events.SideBuy
		order.Type = events.TypeMarket
	case SignalMarketSell:
		order.Side = events.SideSell
		order.Type = events.TypeMarket
	case SignalLimitBuy:
		order.Side = events.SideBuy
		order.Type = events.TypeLimit
		order.Price = signal.Price.Raw()
	case SignalLimitSell:
		order.Side = events.SideSell
		order.Type = events.TypeLimit
		order.Price = signal.Price.Raw()
	}
	order.LastUpdateTs = order.CreatedTs
	return order
}
