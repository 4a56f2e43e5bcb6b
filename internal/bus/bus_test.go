package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flox/internal/config"
)

type intEvent struct{ v int }

func testBus(t *testing.T, capacity, maxConsumers int) *Bus[intEvent] {
	t.Helper()
	b, err := New[intEvent]("test", config.BusConfig{
		Capacity:     capacity,
		MaxConsumers: maxConsumers,
		Backoff:      config.BackoffAggressive,
		DrainOnStop:  true,
	}, nil, nil, nil)
	require.NoError(t, err)
	return b
}

// TestSequenceTotality verifies property 1: a consumer observes strictly
// increasing sequence numbers with no gaps.
func TestSequenceTotality(t *testing.T) {
	t.Parallel()
	b := testBus(t, 8, 2)

	var mu sync.Mutex
	var seen []uint64
	_, err := b.Subscribe(ListenerFunc[intEvent](func(seq uint64, ev *intEvent, placeholder bool) {
		mu.Lock()
		seen = append(seen, seq)
		mu.Unlock()
	}), true)
	require.NoError(t, err)

	require.NoError(t, b.Start(context.Background()))
	for i := 0; i < 100; i++ {
		_, err := b.Publish(intEvent{v: i})
		require.NoError(t, err)
	}
	b.Flush()
	b.Stop()

	require.Len(t, seen, 100)
	for i, s := range seen {
		require.Equal(t, uint64(i+1), s)
	}
}

// TestGatingBlocksUntilConsumerAdvances checks that publish blocks on a
// required consumer that has fallen behind.
func TestGatingBlocksUntilConsumerAdvances(t *testing.T) {
	t.Parallel()
	b := testBus(t, 4, 1)

	release := make(chan struct{})
	var handled atomic.Int64
	_, err := b.Subscribe(ListenerFunc[intEvent](func(seq uint64, ev *intEvent, placeholder bool) {
		if seq == 1 {
			<-release // hold at seq 1 until told to proceed
		}
		handled.Store(int64(seq))
	}), true)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))

	for i := 1; i <= 4; i++ {
		_, err := b.Publish(intEvent{v: i})
		require.NoError(t, err)
	}

	done := make(chan uint64, 1)
	go func() {
		seq, err := b.Publish(intEvent{v: 5})
		require.NoError(t, err)
		done <- seq
	}()

	select {
	case <-done:
		t.Fatal("fifth publish completed before consumer advanced past seq 0")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case seq := <-done:
		require.Equal(t, uint64(5), seq)
	case <-time.After(2 * time.Second):
		t.Fatal("fifth publish never completed")
	}

	b.Stop()
}

// TestOptionalConsumerNeverBlocksProducer checks that an optional consumer
// falling behind never blocks the producer. The bus capacity exceeds the
// event count so no slot reuse (and therefore no reclamation wait, which is
// gated on ALL consumers) is needed within the test; it isolates the
// back-pressure gating, which excludes optional consumers by design.
func TestOptionalConsumerNeverBlocksProducer(t *testing.T) {
	t.Parallel()
	b := testBus(t, 32, 2)

	var requiredCount atomic.Int64
	_, err := b.Subscribe(ListenerFunc[intEvent](func(seq uint64, ev *intEvent, placeholder bool) {
		requiredCount.Add(1)
	}), true)
	require.NoError(t, err)

	optionalStall := make(chan struct{})
	var optionalCount atomic.Int64
	_, err = b.Subscribe(ListenerFunc[intEvent](func(seq uint64, ev *intEvent, placeholder bool) {
		<-optionalStall
		optionalCount.Add(1)
	}), false)
	require.NoError(t, err)

	require.NoError(t, b.Start(context.Background()))

	for i := 0; i < 20; i++ {
		_, err := b.Publish(intEvent{v: i})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return requiredCount.Load() == 20 }, time.Second, time.Millisecond)

	close(optionalStall)
	b.Stop() // drain-on-stop: optional must still receive all 20

	require.Equal(t, int64(20), optionalCount.Load())
}

// TestReleaserCalledOnReclaim verifies a value implementing Releaser
// is released exactly once, when its slot is reclaimed for reuse.
type releasedEvent struct {
	id       int
	released *atomic.Int64
}

func (r releasedEvent) Release() {
	if r.released != nil {
		r.released.Add(1)
	}
}

func TestReleaserCalledOnReclaim(t *testing.T) {
	t.Parallel()
	b, err := New[releasedEvent]("test", config.BusConfig{
		Capacity:     2,
		MaxConsumers: 1,
		Backoff:      config.BackoffAggressive,
		DrainOnStop:  true,
	}, nil, nil, nil)
	require.NoError(t, err)

	var released atomic.Int64
	_, err = b.Subscribe(ListenerFunc[releasedEvent](func(seq uint64, ev *releasedEvent, placeholder bool) {}), true)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))

	for i := 0; i < 5; i++ {
		_, err := b.Publish(releasedEvent{id: i, released: &released})
		require.NoError(t, err)
	}
	b.Flush()
	b.Stop()

	// capacity 2: slots 0 and 1 get reused repeatedly; every publish after
	// the first lap releases the prior occupant, plus Stop releases the
	// final two live slots.
	require.Equal(t, int64(5), released.Load())
}

// TestTryPublishTimeoutFinalizesPlaceholder checks that a deadline elapsing
// only excuses the back-pressure wait, never the reclaim-safety wait: the
// third publish times out on back-pressure well before the stalled consumer
// frees slot 1, but TryPublish itself only returns once that slot is safe
// to overwrite. It does not hand back a placeholder that stomps on data the
// consumer hasn't read yet.
func TestTryPublishTimeoutFinalizesPlaceholder(t *testing.T) {
	t.Parallel()
	b := testBus(t, 2, 1)

	block := make(chan struct{})
	var seen []bool
	var mu sync.Mutex
	_, err := b.Subscribe(ListenerFunc[intEvent](func(seq uint64, ev *intEvent, placeholder bool) {
		if seq == 1 {
			<-block
		}
		mu.Lock()
		seen = append(seen, placeholder)
		mu.Unlock()
	}), true)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))

	_, err = b.Publish(intEvent{v: 1})
	require.NoError(t, err)
	_, err = b.Publish(intEvent{v: 2})
	require.NoError(t, err)

	type result struct {
		seq uint64
		err error
	}
	done := make(chan result, 1)
	go func() {
		seq, err := b.TryPublish(intEvent{v: 3}, 30*time.Millisecond)
		done <- result{seq, err}
	}()

	// The back-pressure deadline elapses long before the consumer is
	// unblocked, but TryPublish must still be waiting on reclaim safety.
	select {
	case <-done:
		t.Fatal("TryPublish returned before the stalled consumer freed its slot")
	case <-time.After(200 * time.Millisecond):
	}

	close(block)

	var r result
	select {
	case r = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TryPublish never returned after consumer unblocked")
	}
	require.ErrorIs(t, r.err, ErrTimeout)
	require.Equal(t, uint64(3), r.seq)

	b.Flush()
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{false, false, true}, seen)
}

func TestPublishAfterStopReturnsStopped(t *testing.T) {
	t.Parallel()
	b := testBus(t, 2, 1)
	_, err := b.Subscribe(ListenerFunc[intEvent](func(seq uint64, ev *intEvent, placeholder bool) {}), true)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	b.Stop()

	_, err = b.Publish(intEvent{v: 1})
	require.ErrorIs(t, err, ErrStopped)
}

func TestSubscribeAfterStartRejected(t *testing.T) {
	t.Parallel()
	b := testBus(t, 2, 2)
	require.NoError(t, b.Start(context.Background()))
	_, err := b.Subscribe(ListenerFunc[intEvent](func(seq uint64, ev *intEvent, placeholder bool) {}), true)
	require.ErrorIs(t, err, ErrAlreadyStarted)
	b.Stop()
}

func TestSubscribeCapped(t *testing.T) {
	t.Parallel()
	b := testBus(t, 2, 1)
	_, err := b.Subscribe(ListenerFunc[intEvent](func(seq uint64, ev *intEvent, placeholder bool) {}), true)
	require.NoError(t, err)
	_, err = b.Subscribe(ListenerFunc[intEvent](func(seq uint64, ev *intEvent, placeholder bool) {}), true)
	require.ErrorIs(t, err, ErrCapped)
}
