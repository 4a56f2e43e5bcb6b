package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"flox/internal/config"
)

type payload struct {
	n int
}

func testPool(t *testing.T, capacity, arenaBytes int) *Pool[payload] {
	t.Helper()
	return New[payload]("test", config.PoolConfig{Capacity: capacity, ArenaBytes: arenaBytes}, nil)
}

// TestPoolConservation verifies property 5: the number of slots in flight
// never exceeds capacity, and every checked-out slot eventually returns to
// the free list so the pool never leaks.
func TestPoolConservation(t *testing.T) {
	t.Parallel()
	p := testPool(t, 4, 0)

	var handles []Handle[payload]
	for i := 0; i < 4; i++ {
		h, err := p.Get()
		require.NoError(t, err)
		h.Value().n = i
		handles = append(handles, h)
	}

	// scenario C: pool exhaustion reports ErrExhausted, never blocks.
	_, err := p.Get()
	require.ErrorIs(t, err, ErrExhausted)

	for _, h := range handles {
		h.Release()
	}

	for i := 0; i < 4; i++ {
		h, err := p.Get()
		require.NoError(t, err)
		_ = h
	}
}

func TestHandleValueRoundTrips(t *testing.T) {
	t.Parallel()
	p := testPool(t, 2, 0)
	h, err := p.Get()
	require.NoError(t, err)
	h.Value().n = 42
	require.Equal(t, 42, h.Value().n)
	h.Release()
}

func TestHandleZeroedAfterRelease(t *testing.T) {
	t.Parallel()
	p := testPool(t, 1, 0)
	h, err := p.Get()
	require.NoError(t, err)
	h.Value().n = 7
	h.Release()

	h2, err := p.Get()
	require.NoError(t, err)
	require.Equal(t, 0, h2.Value().n)
}

// TestRetainDelaysReclamation checks refcounting: a retained handle keeps
// its slot out of the free list until every retain has a matching release.
func TestRetainDelaysReclamation(t *testing.T) {
	t.Parallel()
	p := testPool(t, 1, 0)
	h, err := p.Get()
	require.NoError(t, err)
	h.Retain()

	h.Release() // refcount 2 -> 1, slot still owned
	_, err = p.Get()
	require.ErrorIs(t, err, ErrExhausted, "slot must still be checked out after one of two releases")

	h.Release() // refcount 1 -> 0, slot returns to free list
	_, err = p.Get()
	require.NoError(t, err)
}

func TestArenaAllocAndReset(t *testing.T) {
	t.Parallel()
	p := testPool(t, 1, 16)
	h, err := p.Get()
	require.NoError(t, err)

	a := h.Arena()
	b := a.Alloc(10)
	require.Len(t, b, 10)
	require.Equal(t, 6, a.Remaining())
	require.Nil(t, a.Alloc(7), "allocation past arena capacity must fail, not panic")

	h.Release()
	h2, err := p.Get()
	require.NoError(t, err)
	require.Equal(t, 16, h2.Arena().Remaining(), "arena rewinds on checkout")
}

// TestConcurrentGetReleaseStaysWithinCapacity hammers the pool from many
// goroutines and checks the in-use count never exceeds capacity.
func TestConcurrentGetReleaseStaysWithinCapacity(t *testing.T) {
	t.Parallel()
	p := testPool(t, 8, 0)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				h, err := p.Get()
				if err != nil {
					continue
				}
				h.Value().n++
				h.Release()
			}
		}()
	}
	wg.Wait()

	seen := 0
	for {
		if _, err := p.Get(); err != nil {
			break
		}
		seen++
	}
	require.Equal(t, 8, seen, "exactly capacity slots must be reclaimable after all goroutines finish")
}
