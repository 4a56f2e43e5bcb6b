package bus

import "code.hybscloud.com/atomix"

// slotState is the three-valued constructed flag for one ring slot:
// empty (never written), valid (holds a constructed event), or
// timeoutPlaceholder (the producer hit its deadline before constructing an
// event and finalised the slot so consumers don't stall).
type slotState int32

const (
	slotEmpty slotState = iota
	slotValid
	slotPlaceholder
)

// cachePad is layout-only: placed between hot atomics to discourage false
// sharing between producer-written and consumer-written cache lines,
// mirroring the padding fields in the lfq lock-free queue library.
type cachePad [56]byte

// slot owns at most one constructed event at a time. published carries the sequence number this slot is currently
// valid for; state distinguishes a genuinely constructed event from a
// timeout placeholder.
type slot[E any] struct {
	_         cachePad
	published atomix.Uint64
	_         cachePad
	state     atomix.Int32
	event     E
}

func (s *slot[E]) loadState() slotState {
	return slotState(s.state.LoadAcquire())
}

func (s *slot[E]) storeState(st slotState) {
	s.state.StoreRelease(int32(st))
}
