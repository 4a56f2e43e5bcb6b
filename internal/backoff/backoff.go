// Package backoff implements the three suspension policies the event bus
// uses at its two blocking points: publish-when-full and
// consume-when-empty.
//
// The "relaxed" policy is built directly on code.hybscloud.com/spin's
// Wait primitive, the same one the lfq lock-free queue library uses at its
// own spin points. "aggressive" and "adaptive" extend that idea with staged
// escalation, since spin.Wait exposes a single undifferentiated
// pause-then-yield strategy and this module calls for three distinct tiers.
package backoff

import (
	"runtime"
	"time"

	"code.hybscloud.com/spin"
)

// Kind selects a back-off policy.
type Kind int

const (
	// Aggressive never sleeps: every Pause is a runtime.Gosched, with no
	// CPU-pause step before it, for threads pinned
	// to an isolated core where yielding the OS scheduler is the only
	// cost worth paying.
	Aggressive Kind = iota
	// Relaxed pauses briefly then sleeps in short, fixed microsecond
	// steps. Built on spin.Wait.
	Relaxed
	// Adaptive escalates: pause -> yield -> short sleep -> long sleep,
	// resetting to the pause stage after a long sleep fires once.
	Adaptive
)

const (
	relaxedSleep    = 20 * time.Microsecond
	adaptiveShort   = 10 * time.Microsecond
	adaptiveLong    = 500 * time.Microsecond
	escalateAfter   = 64  // spins before escalating a stage
	longSleepAfter  = 512 // total spins before reaching the long-sleep stage
)

// Backoff tracks the escalation state for one suspension point. It is not
// safe for concurrent use by multiple goroutines; each producer/consumer
// loop owns its own Backoff value.
type Backoff struct {
	kind  Kind
	spins uint64
	wait  spin.Wait
}

// New creates a Backoff for the given policy.
func New(kind Kind) *Backoff {
	return &Backoff{kind: kind}
}

// Pause performs one unit of back-off and advances the internal escalation
// counter.
func (b *Backoff) Pause() {
	switch b.kind {
	case Aggressive:
		b.spins++
		runtime.Gosched()
	case Relaxed:
		b.wait.Wait()
		if b.spins++; b.spins%8 == 0 {
			time.Sleep(relaxedSleep)
		}
	case Adaptive:
		b.spins++
		switch {
		case b.spins < escalateAfter:
			b.wait.Wait()
		case b.spins < longSleepAfter:
			runtime.Gosched()
			time.Sleep(adaptiveShort)
		default:
			time.Sleep(adaptiveLong)
			b.spins = 0
		}
	}
}

// Reset clears the escalation counter, called whenever the caller makes
// forward progress.
func (b *Backoff) Reset() {
	b.spins = 0
	b.wait.Reset()
}
