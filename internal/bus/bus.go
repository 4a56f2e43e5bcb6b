// Package bus implements a Disruptor-style single-producer /
// multiple-consumer ring buffer. A Bus[E] is generic over the event payload
// type: embedded events (e.g. a Trade) are moved by value into the slot;
// pooled events (e.g. a book update) are transported as a pool.Handle[T],
// which implements Releaser so the slot can give up its reference on
// reclamation.
//
// The two suspension points, publish-when-full and consume-when-empty, use
// the internal/backoff package, never a blocking primitive.
package bus

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"flox/internal/backoff"
	"flox/internal/config"
	"flox/internal/metrics"
	"flox/pkg/ids"
)

// OSScheduler is the hook point for CPU-affinity and real-time priority,
// kept outside this core's scope. A nil OSScheduler means Start never
// attempts to pin threads or bump priority.
type OSScheduler interface {
	// Pin binds the calling goroutine's OS thread to core. Implementations
	// are expected to call runtime.LockOSThread first.
	Pin(core int) error
	// SetRealtime requests a real-time scheduling class for the calling
	// thread.
	SetRealtime() error
}

type consumer[E any] struct {
	id          ids.SubscriberId
	listener    Listener[E]
	required    bool
	lastHandled atomix.Uint64
	core        int // -1 = unpinned
}

// Bus is a single-producer, multiple-consumer event ring buffer over event
// type E.
type Bus[E any] struct {
	name   string
	logger loggerFunc
	rec    *metrics.Recorder

	capacity uint64
	mask     uint64
	slots    []slot[E]

	kind        backoff.Kind
	drainOnStop bool
	sched       OSScheduler

	cursor atomix.Int64

	mu           sync.Mutex
	consumers    []*consumer[E]
	maxConsumers int
	started      bool

	active []*consumer[E] // snapshot taken at Start, read-only thereafter

	stopped atomix.Bool
	abort   atomix.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// loggerFunc lets callers plug in slog.Logger.Debug/Warn-shaped calls
// without this package importing log/slog directly, keeping Bus usable in
// tests without constructing a logger.
type loggerFunc func(msg string, args ...any)

// New constructs a Bus. cfg.Capacity must be a power of two.
func New[E any](name string, cfg config.BusConfig, sched OSScheduler, rec *metrics.Recorder, logWarn func(msg string, args ...any)) (*Bus[E], error) {
	if cfg.Capacity <= 0 || cfg.Capacity&(cfg.Capacity-1) != 0 {
		return nil, errors.New("bus: capacity must be a power of two")
	}
	if cfg.MaxConsumers <= 0 {
		return nil, errors.New("bus: max_consumers must be > 0")
	}
	kind := backoff.Adaptive
	switch cfg.Backoff {
	case config.BackoffAggressive:
		kind = backoff.Aggressive
	case config.BackoffRelaxed:
		kind = backoff.Relaxed
	case config.BackoffAdaptive, "":
		kind = backoff.Adaptive
	}
	if logWarn == nil {
		logWarn = func(string, ...any) {}
	}
	b := &Bus[E]{
		name:         name,
		logger:       logWarn,
		rec:          rec,
		capacity:     uint64(cfg.Capacity),
		mask:         uint64(cfg.Capacity) - 1,
		slots:        make([]slot[E], cfg.Capacity),
		kind:         kind,
		drainOnStop:  cfg.DrainOnStop,
		sched:        sched,
		maxConsumers: cfg.MaxConsumers,
	}
	return b, nil
}

// Subscribe registers a listener. Legal only before Start.
func (b *Bus[E]) Subscribe(listener Listener[E], required bool) (ids.SubscriberId, error) {
	return b.subscribeOnCore(listener, required, -1)
}

// SubscribeOnCore registers a listener and requests the consumer's thread
// be pinned to core via the bus's OSScheduler (no-op if none was supplied).
func (b *Bus[E]) SubscribeOnCore(listener Listener[E], required bool, core int) (ids.SubscriberId, error) {
	return b.subscribeOnCore(listener, required, core)
}

func (b *Bus[E]) subscribeOnCore(listener Listener[E], required bool, core int) (ids.SubscriberId, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return 0, ErrAlreadyStarted
	}
	if len(b.consumers) >= b.maxConsumers {
		return 0, ErrCapped
	}
	id := ids.SubscriberId(len(b.consumers) + 1)
	b.consumers = append(b.consumers, &consumer[E]{
		id:       id,
		listener: listener,
		required: required,
		core:     core,
	})
	return id, nil
}

// Start spawns one goroutine per subscribed consumer. Each loops until Stop
// (cooperatively, polled between deliveries and inside back-off) or ctx is
// cancelled.
func (b *Bus[E]) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.active = append([]*consumer[E]{}, b.consumers...)
	b.mu.Unlock()

	b.ctx, b.cancel = context.WithCancel(ctx)
	for _, c := range b.active {
		b.wg.Add(1)
		go b.runConsumer(c)
	}
	return nil
}

// Stop requests termination and joins every consumer thread. If
// drainOnStop was configured, consumers finish delivering everything
// already published before exiting; otherwise they exit at their next
// poll. Any slots still holding a constructed event are then destructed.
func (b *Bus[E]) Stop() {
	b.stopped.Store(true)
	if !b.drainOnStop {
		b.abort.Store(true)
	}
	if b.cancel != nil {
		// Cancel only unblocks goroutines that are also select-ing on
		// ctx.Done (none on the hot path); kept for API symmetry with
		// other Flox subsystems' Start(ctx)/Stop() contract.
		defer b.cancel()
	}
	b.wg.Wait()
	for i := range b.slots {
		releaseIfPooled(&b.slots[i].event)
	}
}

// Publish allocates the next sequence, back-pressures on required
// consumers, waits for all consumers to have vacated the slot being
// reused, constructs ev in place, and publishes it with release ordering.
func (b *Bus[E]) Publish(ev E) (uint64, error) {
	if b.stopped.Load() {
		b.noteError("bus-stopped")
		return 0, ErrStopped
	}
	s := b.cursor.AddAcqRel(1)
	if s < 0 {
		b.stopped.Store(true)
		b.noteError("bus-stopped")
		return 0, ErrStopped
	}
	us := uint64(s)
	bo := backoff.New(b.kind)
	cap64 := int64(b.capacity)

	// abandon finalises the already-reserved slot as a placeholder before
	// returning ErrStopped. Without this, a consumer waiting on seq us
	// would spin forever: the cursor already includes us, so its
	// stopped-vs-cursor check never trips, and nothing would ever store
	// sl.published for it.
	abandon := func() (uint64, error) {
		sl := &b.slots[us&b.mask]
		releaseIfPooled(&sl.event)
		var zero E
		sl.event = zero
		sl.storeState(slotPlaceholder)
		sl.published.StoreRelease(us)
		b.noteError("bus-stopped")
		return 0, ErrStopped
	}

	for s-cap64 > b.minRequiredGating() {
		if b.stopped.Load() {
			return abandon()
		}
		bo.Pause()
	}
	bo.Reset()
	for s-cap64 > b.minConsumed() {
		if b.abort.Load() {
			return abandon()
		}
		bo.Pause()
	}
	sl := &b.slots[us&b.mask]
	releaseIfPooled(&sl.event)
	sl.event = ev
	sl.storeState(slotValid)
	sl.published.StoreRelease(us)
	if b.rec != nil {
		b.rec.BusPublished(b.name)
	}
	return us, nil
}

// TryPublish is Publish with a deadline. On timeout the already-reserved
// slot is finalised as a timeout placeholder so consumers don't stall on
// it; the returned error is ErrTimeout and the sequence is still valid
// (callers may pass it to WaitConsumed).
func (b *Bus[E]) TryPublish(ev E, timeout time.Duration) (uint64, error) {
	if b.stopped.Load() {
		b.noteError("bus-stopped")
		return 0, ErrStopped
	}
	s := b.cursor.AddAcqRel(1)
	if s < 0 {
		b.stopped.Store(true)
		b.noteError("bus-stopped")
		return 0, ErrStopped
	}
	us := uint64(s)
	deadline := time.Now().Add(timeout)
	bo := backoff.New(b.kind)
	cap64 := int64(b.capacity)

	finalizeTimeout := func() (uint64, error) {
		sl := &b.slots[us&b.mask]
		releaseIfPooled(&sl.event)
		var zero E
		sl.event = zero
		sl.storeState(slotPlaceholder)
		sl.published.StoreRelease(us)
		b.noteError("bus-timeout")
		return us, ErrTimeout
	}

	// abandon finalises the already-reserved slot as a placeholder before
	// returning ErrStopped, the same reasoning as Publish's own abandon.
	abandon := func() (uint64, error) {
		sl := &b.slots[us&b.mask]
		releaseIfPooled(&sl.event)
		var zero E
		sl.event = zero
		sl.storeState(slotPlaceholder)
		sl.published.StoreRelease(us)
		b.noteError("bus-stopped")
		return 0, ErrStopped
	}

	timedOut := false
	for s-cap64 > b.minRequiredGating() {
		if b.stopped.Load() {
			return abandon()
		}
		if time.Now().After(deadline) {
			// The deadline only excuses waiting on back-pressure: break out
			// here and fall through to the reclaim-safety wait below, which
			// is never skipped regardless of how long publish has been
			// waiting. Overwriting a slot a consumer hasn't advanced past
			// would violate the no-use-after-free property.
			timedOut = true
			break
		}
		bo.Pause()
	}
	bo.Reset()
	for s-cap64 > b.minConsumed() {
		if b.abort.Load() {
			return abandon()
		}
		bo.Pause()
	}
	if timedOut {
		return finalizeTimeout()
	}
	sl := &b.slots[us&b.mask]
	releaseIfPooled(&sl.event)
	sl.event = ev
	sl.storeState(slotValid)
	sl.published.StoreRelease(us)
	if b.rec != nil {
		b.rec.BusPublished(b.name)
	}
	return us, nil
}

// WaitConsumed blocks until every required consumer has advanced past seq.
func (b *Bus[E]) WaitConsumed(seq uint64) {
	bo := backoff.New(b.kind)
	for b.minRequiredGating() < int64(seq) {
		bo.Pause()
	}
}

// Flush blocks until every required consumer has caught up to the most
// recently published sequence.
func (b *Bus[E]) Flush() {
	last := b.cursor.LoadAcquire()
	if last <= 0 {
		return
	}
	b.WaitConsumed(uint64(last))
}

// Depth reports how far the producer is ahead of the slowest required
// consumer, for the bus_unconsumed_depth gauge.
func (b *Bus[E]) Depth() int64 {
	last := b.cursor.LoadAcquire()
	g := b.minRequiredGating()
	if g == math.MaxInt64 {
		return 0
	}
	return last - g
}

func (b *Bus[E]) minRequiredGating() int64 {
	min := int64(math.MaxInt64)
	found := false
	for _, c := range b.active {
		if !c.required {
			continue
		}
		found = true
		if v := int64(c.lastHandled.LoadAcquire()); v < min {
			min = v
		}
	}
	if !found {
		return math.MaxInt64
	}
	return min
}

func (b *Bus[E]) minConsumed() int64 {
	min := int64(math.MaxInt64)
	found := false
	for _, c := range b.active {
		found = true
		if v := int64(c.lastHandled.LoadAcquire()); v < min {
			min = v
		}
	}
	if !found {
		return math.MaxInt64
	}
	return min
}

func (b *Bus[E]) noteError(kind string) {
	if b.rec != nil {
		b.rec.Error(kind)
	}
}

func (b *Bus[E]) runConsumer(c *consumer[E]) {
	defer b.wg.Done()

	if b.sched != nil && c.core >= 0 {
		if err := b.sched.Pin(c.core); err != nil {
			b.logger("bus: affinity pin failed", "bus", b.name, "consumer", c.id, "error", err)
		}
		if err := b.sched.SetRealtime(); err != nil {
			b.logger("bus: realtime priority failed", "bus", b.name, "consumer", c.id, "error", err)
		}
	}

	bo := backoff.New(b.kind)
	seq := c.lastHandled.LoadRelaxed() + 1

	for {
		sl := &b.slots[seq&b.mask]
		for sl.published.LoadAcquire() != seq {
			if b.abort.Load() {
				return
			}
			if b.stopped.Load() {
				cur := uint64(b.cursor.LoadAcquire())
				if seq > cur {
					return
				}
			}
			bo.Pause()
		}
		bo.Reset()

		st := sl.loadState()
		switch {
		case st == slotPlaceholder && !c.required:
			// optional consumers never see placeholders.
		default:
			c.listener.OnEvent(seq, &sl.event, st == slotPlaceholder)
		}

		c.lastHandled.StoreRelease(seq)
		seq++
	}
}
