// Package pool implements a refcounted object pool. A Pool[T] preallocates
// a fixed number of slots up front and hands them out as Handle[T] values;
// the last Release on a handle returns its slot to the free list instead of
// letting the garbage collector reclaim it, so the producer side of a Bus
// never allocates on the hot path.
//
// The free list itself is lfq.MPSCIndirect: many consumer goroutines each
// release handles concurrently (multiple producers onto the free list)
// while a single allocator goroutine, typically a Bus[E] producer, dequeues
// free slots (single consumer), which is exactly the queue's buffer-pool
// use case from its own documentation.
package pool

import (
	"fmt"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"

	"flox/internal/backoff"
	"flox/internal/config"
	"flox/internal/metrics"
)

// ErrExhausted is returned by Get when no free slot is available. It wraps
// iox.ErrWouldBlock, the same sentinel lfq aliases its own ErrWouldBlock to,
// so a caller can classify pool exhaustion as a non-failure, retryable
// condition with iox.IsWouldBlock/iox.IsNonFailure instead of a hard error,
// the same contract internal/bus.ErrTimeout gives TryPublish callers.
var ErrExhausted = fmt.Errorf("pool: exhausted: %w", iox.ErrWouldBlock)

// slot holds one pooled value plus its reference count and scratch arena.
type slot[T any] struct {
	refs  atomix.Int32
	value T
	arena Arena
}

// Pool is a fixed-capacity, refcounted object pool for type T.
type Pool[T any] struct {
	name  string
	slots []slot[T]
	free  *lfq.MPSCIndirect
	inUse atomix.Int64
	rec   *metrics.Recorder
}

// New preallocates cfg.Capacity slots, each with a cfg.ArenaBytes scratch
// buffer for variable-sized payloads (e.g. a serialized book-update
// snapshot).
func New[T any](name string, cfg config.PoolConfig, rec *metrics.Recorder) *Pool[T] {
	if cfg.Capacity < 1 {
		panic("pool: capacity must be >= 1")
	}
	p := &Pool[T]{
		name:  name,
		slots: make([]slot[T], cfg.Capacity),
		free:  lfq.NewMPSCIndirect(cfg.Capacity),
		rec:   rec,
	}
	for i := range p.slots {
		if cfg.ArenaBytes > 0 {
			p.slots[i].arena = newArena(cfg.ArenaBytes)
		}
		if err := p.free.Enqueue(uintptr(i)); err != nil {
			panic("pool: failed to seed free list: " + err.Error())
		}
	}
	return p
}

// Get checks out a slot. It returns ErrExhausted when the pool has none
// free; the caller is expected to apply back-pressure itself rather than
// block, mirroring the bus's own no-blocking-primitives rule.
func (p *Pool[T]) Get() (Handle[T], error) {
	idx, err := p.free.Dequeue()
	if err != nil {
		return Handle[T]{}, ErrExhausted
	}
	s := &p.slots[idx]
	s.refs.StoreRelease(1)
	s.arena.Reset()
	n := p.inUse.AddAcqRel(1)
	p.noteInUse(n)
	return Handle[T]{pool: p, index: idx}, nil
}

// Cap returns the pool's fixed capacity.
func (p *Pool[T]) Cap() int { return len(p.slots) }

func (p *Pool[T]) noteInUse(n int64) {
	if p.rec != nil {
		p.rec.PoolInUse(p.name, float64(n))
	}
}

// resetter is implemented by pooled payloads with their own reset logic,
// called on Release before the slot returns to the free list; types
// without one are simply overwritten with their zero value.
type resetter interface {
	Reset()
}

func resetValue[T any](v *T) {
	if r, ok := any(v).(resetter); ok {
		r.Reset()
		return
	}
	var zero T
	*v = zero
}

// Handle is a reference-counted checkout from a Pool[T]. The zero Handle is
// not usable; Handles are only produced by Pool.Get and, via Retain, copies
// of an existing live Handle.
type Handle[T any] struct {
	pool  *Pool[T]
	index uintptr
}

// Valid reports whether h refers to a live slot.
func (h Handle[T]) Valid() bool { return h.pool != nil }

// Value returns a pointer to the checked-out payload.
func (h Handle[T]) Value() *T { return &h.pool.slots[h.index].value }

// Arena returns the slot's scratch byte arena for variable-sized payloads.
func (h Handle[T]) Arena() *Arena { return &h.pool.slots[h.index].arena }

// Retain increments the slot's reference count. Used when a handle fans out
// to more than one downstream owner (e.g. a book-update delivered to both a
// required strategy consumer and an optional archival consumer) that each
// need to call Release independently.
func (h Handle[T]) Retain() {
	h.pool.slots[h.index].refs.AddAcqRel(1)
}

// Release implements bus.Releaser. It decrements the reference count and,
// on the transition to zero, zeroes the payload and returns the slot to the
// free list.
func (h Handle[T]) Release() {
	if h.pool == nil {
		return
	}
	s := &h.pool.slots[h.index]
	if s.refs.AddAcqRel(-1) != 0 {
		return
	}
	resetValue(&s.value)
	// The free list can never genuinely be full here: at most Cap()
	// slots exist and this Release is returning exactly one of them.
	// A transient Enqueue failure only happens if another release is
	// mid-flight on the same ring position; retry clears it immediately.
	bo := backoff.New(backoff.Aggressive)
	for {
		if err := h.pool.free.Enqueue(h.index); err == nil {
			break
		}
		bo.Pause()
	}
	n := h.pool.inUse.AddAcqRel(-1)
	h.pool.noteInUse(n)
}
