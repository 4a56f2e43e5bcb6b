package composite

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flox/internal/config"
	"flox/internal/events"
	"flox/pkg/ids"
	"flox/pkg/numeric"
)

func TestCompositeBookBestAcrossVenues(t *testing.T) {
	book := NewBook(1, numeric.FromFloatPrice(0.01, 0), 4)
	now := int64(time.Second)

	book.Update(0, numeric.FromFloatPrice(99.00, 0.01), numeric.FromFloatPrice(99.10, 0.01), numeric.FromFloatQuantity(5, 0), now)
	book.Update(1, numeric.FromFloatPrice(99.05, 0.01), numeric.FromFloatPrice(99.08, 0.01), numeric.FromFloatQuantity(3, 0), now)

	bid, ok := book.BestBid(now)
	require.True(t, ok)
	require.Equal(t, ids.ExchangeId(1), bid.Exchange)
	require.Equal(t, numeric.FromFloatPrice(99.05, 0.01), bid.Price)

	ask, ok := book.BestAsk(now)
	require.True(t, ok)
	require.Equal(t, ids.ExchangeId(1), ask.Exchange)
	require.Equal(t, numeric.FromFloatPrice(99.08, 0.01), ask.Price)
}

func TestCompositeBookArbitrageDetection(t *testing.T) {
	book := NewBook(1, numeric.FromFloatPrice(0.01, 0), 4)
	now := int64(time.Second)

	book.Update(0, numeric.FromFloatPrice(100.10, 0.01), numeric.FromFloatPrice(100.20, 0.01), numeric.FromFloatQuantity(1, 0), now)
	require.False(t, book.HasArbitrage(now))

	// exchange 1's bid crosses exchange 0's ask
	book.Update(1, numeric.FromFloatPrice(100.25, 0.01), numeric.FromFloatPrice(100.30, 0.01), numeric.FromFloatQuantity(1, 0), now)
	require.True(t, book.HasArbitrage(now))
}

func TestCompositeBookExcludesStaleVenue(t *testing.T) {
	book := NewBook(1, numeric.FromFloatPrice(0.01, 0), 4)
	book.Update(0, numeric.FromFloatPrice(50.00, 0.01), numeric.FromFloatPrice(50.10, 0.01), numeric.FromFloatQuantity(1, 0), 0)

	_, ok := book.BestBid(int64(StaleAfter) + int64(time.Second))
	require.False(t, ok)
}

func TestPositionTrackerVolumeWeightedAverage(t *testing.T) {
	tr := NewPositionTracker()
	tr.OnFill(0, 1, numeric.FromFloatQuantity(10, 0), numeric.FromFloatPrice(100.00, 0.01))
	tr.OnFill(0, 1, numeric.FromFloatQuantity(10, 0), numeric.FromFloatPrice(102.00, 0.01))

	qty, entry := tr.Position(0, 1)
	require.Equal(t, numeric.FromFloatQuantity(20, 0), qty)
	require.Equal(t, numeric.FromFloatPrice(101.00, 0.01), entry)
}

func TestPositionTrackerSignFlipResetsEntry(t *testing.T) {
	tr := NewPositionTracker()
	tr.OnFill(0, 1, numeric.FromFloatQuantity(5, 0), numeric.FromFloatPrice(100.00, 0.01))
	// sell through flat and into a short position; the short leg's price
	// becomes the new entry
	tr.OnFill(0, 1, numeric.FromFloatQuantity(-8, 0), numeric.FromFloatPrice(110.00, 0.01))

	qty, entry := tr.Position(0, 1)
	require.Equal(t, numeric.FromFloatQuantity(-3, 0), qty)
	require.Equal(t, numeric.FromFloatPrice(110.00, 0.01), entry)
}

func TestPositionTrackerTotalAcrossExchanges(t *testing.T) {
	tr := NewPositionTracker()
	tr.OnFill(0, 1, numeric.FromFloatQuantity(10, 0), numeric.FromFloatPrice(100.00, 0.01))
	tr.OnFill(1, 1, numeric.FromFloatQuantity(-4, 0), numeric.FromFloatPrice(101.00, 0.01))

	require.Equal(t, numeric.FromFloatQuantity(6, 0), tr.TotalPosition(1))
}

func TestClockSyncEstimateAndToLocal(t *testing.T) {
	cs := NewClockSync()
	// a perfectly symmetric round trip: 100ns out, 100ns back, offset +50ns
	cs.Sample(0, 1000, 1150, 1200)

	est, ok := cs.Estimate(0)
	require.True(t, ok)
	require.Equal(t, int64(100), est.LatencyNs)
	require.Equal(t, int64(50), est.OffsetNs)
	require.Equal(t, uint64(1), est.SampleCount)

	local, ok := cs.ToLocal(0, 1150)
	require.True(t, ok)
	require.Equal(t, int64(1100), local)
}

func TestClockSyncUnknownExchange(t *testing.T) {
	cs := NewClockSync()
	_, ok := cs.Estimate(9)
	require.False(t, ok)
}

type stubExecutor struct {
	err error
}

func (s *stubExecutor) Submit(order events.Order) error { return s.err }

func TestRouterExplicitStrategy(t *testing.T) {
	r := NewRouter(config.RouterConfig{Strategy: config.RouteExplicit, Failover: config.FailoverReject}, nil, nil)
	exA, exB := &stubExecutor{}, &stubExecutor{}
	r.Register(0, exA)
	r.Register(1, exB)

	ex, err := r.Route(events.Order{}, 1)
	require.NoError(t, err)
	require.Equal(t, ids.ExchangeId(1), ex)
}

func TestRouterRoundRobinCycles(t *testing.T) {
	r := NewRouter(config.RouterConfig{Strategy: config.RouteRoundRobin, Failover: config.FailoverReject}, nil, nil)
	r.Register(0, &stubExecutor{})
	r.Register(1, &stubExecutor{})

	seen := make([]ids.ExchangeId, 4)
	for i := range seen {
		ex, err := r.Route(events.Order{}, 0)
		require.NoError(t, err)
		seen[i] = ex
	}
	require.Equal(t, []ids.ExchangeId{0, 1, 0, 1}, seen)
}

func TestRouterBestPriceUsesComposite(t *testing.T) {
	book := NewBook(1, numeric.FromFloatPrice(0.01, 0), 4)
	now := int64(time.Second)
	book.Update(0, numeric.FromFloatPrice(10.00, 0.01), numeric.FromFloatPrice(10.10, 0.01), numeric.FromFloatQuantity(1, 0), now)
	book.Update(1, numeric.FromFloatPrice(10.05, 0.01), numeric.FromFloatPrice(10.08, 0.01), numeric.FromFloatQuantity(1, 0), now)

	r := NewRouter(config.RouterConfig{Strategy: config.RouteBestPrice, Failover: config.FailoverReject}, book, nil)
	r.Register(0, &stubExecutor{})
	r.Register(1, &stubExecutor{})

	ex, err := r.Route(events.Order{Side: events.SideSell}, 0)
	require.NoError(t, err)
	require.Equal(t, ids.ExchangeId(1), ex)
}

func TestRouterLargestSizeUsesComposite(t *testing.T) {
	book := NewBook(1, numeric.FromFloatPrice(0.01, 0), 4)
	now := int64(time.Second)
	// exchange 0 has the worse price but by far the larger resting size;
	// largest_size must pick it over exchange 1's better price/smaller size.
	book.Update(0, numeric.FromFloatPrice(10.00, 0.01), numeric.FromFloatPrice(10.10, 0.01), numeric.FromFloatQuantity(50, 0), now)
	book.Update(1, numeric.FromFloatPrice(10.05, 0.01), numeric.FromFloatPrice(10.08, 0.01), numeric.FromFloatQuantity(1, 0), now)

	r := NewRouter(config.RouterConfig{Strategy: config.RouteLargestSize, Failover: config.FailoverReject}, book, nil)
	r.Register(0, &stubExecutor{})
	r.Register(1, &stubExecutor{})

	ex, err := r.Route(events.Order{Side: events.SideSell}, 0)
	require.NoError(t, err)
	require.Equal(t, ids.ExchangeId(0), ex)
}

func TestRouterFailoverRetriesRemainingExchanges(t *testing.T) {
	r := NewRouter(config.RouterConfig{Strategy: config.RouteRoundRobin, Failover: config.FailoverFailover}, nil, nil)
	failing := &stubExecutor{err: errors.New("rejected")}
	ok := &stubExecutor{}
	r.Register(0, failing)
	r.Register(1, ok)

	ex, err := r.Submit(events.Order{}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, ids.ExchangeId(1), ex)
}

func TestRouterRejectFailsImmediately(t *testing.T) {
	r := NewRouter(config.RouterConfig{Strategy: config.RouteRoundRobin, Failover: config.FailoverReject}, nil, nil)
	failing := &stubExecutor{err: errors.New("rejected")}
	r.Register(0, failing)

	_, err := r.Submit(events.Order{}, 0, nil)
	require.Error(t, err)
}

func TestRouterNotifyInvokesCallback(t *testing.T) {
	r := NewRouter(config.RouterConfig{Strategy: config.RouteRoundRobin, Failover: config.FailoverNotify}, nil, nil)
	failing := &stubExecutor{err: errors.New("rejected")}
	ok := &stubExecutor{}
	r.Register(0, failing)
	r.Register(1, ok)

	var notified ids.ExchangeId
	var notifyErr error
	_, err := r.Submit(events.Order{}, 0, func(ex ids.ExchangeId, e error) {
		notified = ex
		notifyErr = e
	})
	require.NoError(t, err)
	require.Equal(t, ids.ExchangeId(0), notified)
	require.Error(t, notifyErr)
}

func TestRouterDisabledExchangeSkipped(t *testing.T) {
	r := NewRouter(config.RouterConfig{Strategy: config.RouteRoundRobin, Failover: config.FailoverReject}, nil, nil)
	r.Register(0, &stubExecutor{})
	r.Register(1, &stubExecutor{})
	r.SetEnabled(0, false)

	ex, err := r.Route(events.Order{}, 0)
	require.NoError(t, err)
	require.Equal(t, ids.ExchangeId(1), ex)
}

func TestSplitOrderFillRatioAndCompletion(t *testing.T) {
	legs := map[ids.ExchangeId]int64{0: 10, 1: 10}
	so := NewSplitOrder(42, 1, legs, 0)

	so.OnChildFill(0, 10)
	require.Equal(t, 0.5, so.FillRatio())
	require.False(t, so.IsComplete())

	so.OnChildFill(1, 4)
	so.OnChildComplete(1, true)
	require.True(t, so.IsComplete())
	require.False(t, so.IsSuccessful())

	state, ok := so.ChildState(1)
	require.True(t, ok)
	require.True(t, state.Failed)
	require.Equal(t, int64(4), state.Filled)
}

func TestSplitOrderAllLegsSuccessful(t *testing.T) {
	legs := map[ids.ExchangeId]int64{0: 5, 1: 5}
	so := NewSplitOrder(7, 1, legs, 0)

	so.OnChildFill(0, 5)
	so.OnChildFill(1, 5)

	require.True(t, so.IsComplete())
	require.True(t, so.IsSuccessful())
	require.Equal(t, 1.0, so.FillRatio())
}
