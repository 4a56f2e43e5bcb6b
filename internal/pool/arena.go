package pool

// Arena is a bump allocator over a fixed byte buffer, scoped to a single
// pool slot's lifetime. It exists for variable-sized payloads a pooled
// value wants to reference without its own heap allocation, for example a
// serialized snapshot of levels that changed. Reset is called automatically
// by Pool.Get each time the slot is checked out, so callers never need to
// call it themselves.
type Arena struct {
	buf []byte
	off int
}

func newArena(size int) Arena {
	return Arena{buf: make([]byte, size)}
}

// Alloc returns an n-byte slice carved from the arena's backing buffer, or
// nil if the arena doesn't have n bytes left. The returned slice is only
// valid until the owning slot is next checked out via Pool.Get.
func (a *Arena) Alloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	if a.off+n > len(a.buf) {
		return nil
	}
	b := a.buf[a.off : a.off+n : a.off+n]
	a.off += n
	return b
}

// Remaining reports how many bytes are left before Alloc starts returning
// nil.
func (a *Arena) Remaining() int { return len(a.buf) - a.off }

// Cap reports the arena's total size.
func (a *Arena) Cap() int { return len(a.buf) }

// Reset rewinds the bump pointer to the start of the buffer without
// clearing its contents; the next Alloc calls simply overwrite stale bytes.
func (a *Arena) Reset() { a.off = 0 }
