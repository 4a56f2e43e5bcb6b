package composite

import (
	"math"
	"sync"

	"flox/pkg/ids"
)

// emaAlpha weights new samples against the running estimate. Smaller values
// smooth more aggressively against outliers at the cost of slower tracking
// of genuine clock drift.
const emaAlpha = 0.2

// clockEstimator holds one exchange's running offset/latency estimate.
type clockEstimator struct {
	mu          sync.Mutex
	haveSample  bool
	offsetNs    float64
	latencyNs   float64
	varianceNs2 float64
	sampleCount uint64
}

// Estimate is a point-in-time read of one exchange's clock-sync state.
type Estimate struct {
	OffsetNs      int64
	LatencyNs     int64
	Confidence2Ns int64 // 2 standard deviations of the offset estimate
	SampleCount   uint64
}

// ClockSync tracks one RTT/offset estimator per exchange, fed by
// (local_send, exchange_ts, local_recv) round-trip samples.
type ClockSync struct {
	mu         sync.RWMutex
	estimators map[ids.ExchangeId]*clockEstimator
}

// NewClockSync creates an empty ClockSync.
func NewClockSync() *ClockSync {
	return &ClockSync{estimators: make(map[ids.ExchangeId]*clockEstimator)}
}

func (c *ClockSync) estimatorFor(exchange ids.ExchangeId) *clockEstimator {
	c.mu.RLock()
	e, ok := c.estimators[exchange]
	c.mu.RUnlock()
	if ok {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.estimators[exchange]; ok {
		return e
	}
	e = &clockEstimator{}
	c.estimators[exchange] = e
	return e
}

// Sample feeds one round-trip observation: localSend and localRecv bracket
// the request, exchangeTs is the venue's own timestamp on its response. The
// one-way latency is estimated as half the round trip; the offset is the
// exchange's reported time minus the local time at the estimated midpoint
// of the round trip.
func (c *ClockSync) Sample(exchange ids.ExchangeId, localSendNs, exchangeTsNs, localRecvNs int64) {
	rtt := localRecvNs - localSendNs
	if rtt < 0 {
		return
	}
	latency := float64(rtt) / 2
	midpoint := float64(localSendNs) + latency
	offset := float64(exchangeTsNs) - midpoint

	e := c.estimatorFor(exchange)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.haveSample {
		e.offsetNs = offset
		e.latencyNs = latency
		e.haveSample = true
	} else {
		diff := offset - e.offsetNs
		e.offsetNs += emaAlpha * diff
		e.latencyNs += emaAlpha * (latency - e.latencyNs)
		e.varianceNs2 += emaAlpha * (diff*diff - e.varianceNs2)
	}
	e.sampleCount++
}

// Estimate returns exchange's current offset/latency estimate, ok=false if
// no sample has been recorded yet.
func (c *ClockSync) Estimate(exchange ids.ExchangeId) (Estimate, bool) {
	e := c.estimatorFor(exchange)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.haveSample {
		return Estimate{}, false
	}
	sigma := math.Sqrt(e.varianceNs2)
	return Estimate{
		OffsetNs:      int64(e.offsetNs),
		LatencyNs:     int64(e.latencyNs),
		Confidence2Ns: int64(2 * sigma),
		SampleCount:   e.sampleCount,
	}, true
}

// ToLocal converts an exchange timestamp to the local clock's estimate of
// the same instant by subtracting the tracked offset.
func (c *ClockSync) ToLocal(exchange ids.ExchangeId, exchangeTsNs int64) (int64, bool) {
	est, ok := c.Estimate(exchange)
	if !ok {
		return 0, false
	}
	return exchangeTsNs - est.OffsetNs, true
}
