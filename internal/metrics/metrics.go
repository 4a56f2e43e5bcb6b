// Package metrics exposes the Prometheus counters and gauges for structured
// errors surfaced to operators, plus bus and aggregator health gauges. All
// methods are nil-safe so callers can pass a nil *Recorder when metrics are
// disabled, without branching at every call site.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder owns a Prometheus registry and the counters/gauges Flox
// populates during normal operation.
type Recorder struct {
	registry *prometheus.Registry

	errorsTotal  *prometheus.CounterVec
	busPublished *prometheus.CounterVec
	busDepth     *prometheus.GaugeVec
	barsClosed   *prometheus.CounterVec
	poolInUse    *prometheus.GaugeVec
}

// New creates a Recorder registered against a fresh Prometheus registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flox",
			Name:      "errors_total",
			Help:      "Count of structured errors by kind.",
		}, []string{"kind"}),
		busPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flox",
			Name:      "bus_published_total",
			Help:      "Events successfully published per bus.",
		}, []string{"bus"}),
		busDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flox",
			Name:      "bus_unconsumed_depth",
			Help:      "Published sequence minus minimum required-consumer gating.",
		}, []string{"bus"}),
		barsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flox",
			Name:      "bars_closed_total",
			Help:      "Completed bars emitted, by close reason.",
		}, []string{"symbol", "reason"}),
		poolInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flox",
			Name:      "pool_objects_in_use",
			Help:      "Objects currently checked out of a pool.",
		}, []string{"pool"}),
	}
	reg.MustRegister(r.errorsTotal, r.busPublished, r.busDepth, r.barsClosed, r.poolInUse)
	return r
}

// Registry exposes the underlying Prometheus registry for an HTTP handler
// to serve via promhttp.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Error increments the counter for a structured error kind.
func (r *Recorder) Error(kind string) {
	if r == nil {
		return
	}
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// BusPublished increments the publish counter for a named bus.
func (r *Recorder) BusPublished(bus string) {
	if r == nil {
		return
	}
	r.busPublished.WithLabelValues(bus).Inc()
}

// BusDepth sets the current unconsumed-depth gauge for a named bus.
func (r *Recorder) BusDepth(bus string, depth float64) {
	if r == nil {
		return
	}
	r.busDepth.WithLabelValues(bus).Set(depth)
}

// BarClosed increments the bar-close counter for a symbol and close reason.
func (r *Recorder) BarClosed(symbol, reason string) {
	if r == nil {
		return
	}
	r.barsClosed.WithLabelValues(symbol, reason).Inc()
}

// PoolInUse sets the in-use gauge for a named pool.
func (r *Recorder) PoolInUse(pool string, n float64) {
	if r == nil {
		return
	}
	r.poolInUse.WithLabelValues(pool).Set(n)
}
