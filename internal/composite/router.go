package composite

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"flox/internal/config"
	"flox/internal/events"
	"flox/pkg/ids"
)

// Executor submits an order to one exchange.
type Executor interface {
	Submit(order events.Order) error
}

// ErrNoEligibleExchange is returned when no registered, enabled exchange can
// take an order under the configured routing strategy.
var ErrNoEligibleExchange = errors.New("composite: no eligible exchange for order")

// ErrAllExchangesFailed is returned by Submit when failover is enabled and
// every eligible exchange's executor returned an error. Only the
// RouteRoundRobin and RouteLowestLatency strategies retry far enough to
// reach it; see Submit.
var ErrAllExchangesFailed = errors.New("composite: all eligible exchanges failed")

type registeredExchange struct {
	executor Executor
	enabled  atomic.Bool
}

// Router picks an exchange for an order under a configured RouterStrategy
// and, on executor failure, applies the configured FailoverPolicy.
type Router struct {
	strategy config.RouterStrategy
	failover config.FailoverPolicy

	mu        sync.RWMutex
	exchanges map[ids.ExchangeId]*registeredExchange

	rrCounter atomic.Uint64

	book  *Book
	clock *ClockSync
}

// NewRouter creates a Router. book and clock may be nil if the chosen
// strategy never needs them (round_robin, explicit); Route returns an error
// instead of panicking if a strategy needs one that's nil.
func NewRouter(cfg config.RouterConfig, book *Book, clock *ClockSync) *Router {
	return &Router{
		strategy:  cfg.Strategy,
		failover:  cfg.Failover,
		exchanges: make(map[ids.ExchangeId]*registeredExchange),
		book:      book,
		clock:     clock,
	}
}

// Register adds or replaces exchange's executor, enabled by default.
func (r *Router) Register(exchange ids.ExchangeId, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	re := &registeredExchange{executor: executor}
	re.enabled.Store(true)
	r.exchanges[exchange] = re
}

// SetEnabled toggles whether exchange participates in routing. A disabled
// exchange is skipped by every strategy, including explicit.
func (r *Router) SetEnabled(exchange ids.ExchangeId, enabled bool) {
	r.mu.RLock()
	re, ok := r.exchanges[exchange]
	r.mu.RUnlock()
	if ok {
		re.enabled.Store(enabled)
	}
}

func (r *Router) enabledExchanges() []ids.ExchangeId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ids.ExchangeId, 0, len(r.exchanges))
	for ex, re := range r.exchanges {
		if re.enabled.Load() {
			out = append(out, ex)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Route picks an exchange for order under the router's configured strategy.
// explicitExchange is only consulted under RouteExplicit.
func (r *Router) Route(order events.Order, explicitExchange ids.ExchangeId) (ids.ExchangeId, error) {
	return r.route(order, explicitExchange, r.enabledExchanges())
}

func (r *Router) route(order events.Order, explicitExchange ids.ExchangeId, candidates []ids.ExchangeId) (ids.ExchangeId, error) {
	if len(candidates) == 0 {
		return 0, ErrNoEligibleExchange
	}

	switch r.strategy {
	case config.RouteExplicit:
		for _, ex := range candidates {
			if ex == explicitExchange {
				return ex, nil
			}
		}
		return 0, ErrNoEligibleExchange

	case config.RouteRoundRobin:
		n := r.rrCounter.Add(1) - 1
		return candidates[n%uint64(len(candidates))], nil

	case config.RouteBestPrice:
		if r.book == nil {
			return 0, ErrNoEligibleExchange
		}
		var quote VenueQuote
		var ok bool
		if order.Side == events.SideBuy {
			quote, ok = r.book.BestAsk(0)
		} else {
			quote, ok = r.book.BestBid(0)
		}
		if !ok || !slices.Contains(candidates, quote.Exchange) {
			return 0, ErrNoEligibleExchange
		}
		return quote.Exchange, nil

	case config.RouteLowestLatency:
		if r.clock == nil {
			return 0, ErrNoEligibleExchange
		}
		best, found := ids.ExchangeId(0), false
		var bestLatency int64
		for _, ex := range candidates {
			est, ok := r.clock.Estimate(ex)
			if !ok {
				continue
			}
			if !found || est.LatencyNs < bestLatency {
				found = true
				best = ex
				bestLatency = est.LatencyNs
			}
		}
		if !found {
			return 0, ErrNoEligibleExchange
		}
		return best, nil

	case config.RouteLargestSize:
		if r.book == nil {
			return 0, ErrNoEligibleExchange
		}
		var quote VenueQuote
		var ok bool
		if order.Side == events.SideBuy {
			quote, ok = r.book.BestAskBySize(0)
		} else {
			quote, ok = r.book.BestBidBySize(0)
		}
		if !ok || !slices.Contains(candidates, quote.Exchange) {
			return 0, ErrNoEligibleExchange
		}
		return quote.Exchange, nil

	default:
		return 0, ErrNoEligibleExchange
	}
}

func (r *Router) executorFor(exchange ids.ExchangeId) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	re, ok := r.exchanges[exchange]
	if !ok {
		return nil, false
	}
	return re.executor, true
}

// Submit routes order and submits it through the chosen exchange's
// executor. On executor failure, behavior follows the router's configured
// FailoverPolicy: reject fails immediately, failover retries the remaining
// enabled exchanges in routing order, notify behaves like failover but
// additionally invokes onNotify with the exchange and error that failed (nil
// onNotify is a no-op). A retry picks among the remaining exchanges only
// under RouteRoundRobin and RouteLowestLatency. RouteBestPrice and
// RouteLargestSize take the quote from the whole composite book, so once
// that quote's exchange has failed the retry returns ErrNoEligibleExchange;
// RouteExplicit likewise returns ErrNoEligibleExchange once the named
// exchange has failed.
func (r *Router) Submit(order events.Order, explicitExchange ids.ExchangeId, onNotify func(ids.ExchangeId, error)) (ids.ExchangeId, error) {
	tried := make(map[ids.ExchangeId]bool)

	for {
		ex, err := r.routeExcluding(order, explicitExchange, tried)
		if err != nil {
			return 0, err
		}
		executor, ok := r.executorFor(ex)
		if !ok {
			tried[ex] = true
			continue
		}
		err = executor.Submit(order)
		if err == nil {
			return ex, nil
		}
		tried[ex] = true
		if r.failover == config.FailoverNotify && onNotify != nil {
			onNotify(ex, err)
		}
		if r.failover == config.FailoverReject {
			return 0, err
		}
		// failover and notify both retry remaining exchanges
	}
}

func (r *Router) routeExcluding(order events.Order, explicitExchange ids.ExchangeId, tried map[ids.ExchangeId]bool) (ids.ExchangeId, error) {
	candidates := r.enabledExchanges()
	if len(tried) == 0 {
		return r.route(order, explicitExchange, candidates)
	}
	remaining := candidates[:0:0]
	for _, ex := range candidates {
		if !tried[ex] {
			remaining = append(remaining, ex)
		}
	}
	if len(remaining) == 0 {
		return 0, ErrAllExchangesFailed
	}
	return r.route(order, explicitExchange, remaining)
}
