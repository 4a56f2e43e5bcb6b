package bus

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// Error kinds returned by a Bus.
var (
	// ErrStopped is returned by Publish/TryPublish after Stop, and by a
	// publish that would overflow the signed sequence counter.
	ErrStopped = errors.New("bus: stopped")
	// ErrTimeout is returned by TryPublish when the deadline elapses
	// while it waits on back-pressure after reserving a slot. The reserved
	// slot is finalised as a timeout placeholder so consumers never stall
	// on it.
	// It wraps iox.ErrWouldBlock so a caller can classify it with
	// iox.IsWouldBlock/iox.IsNonFailure as a retryable back-pressure
	// signal rather than a hard failure.
	ErrTimeout = fmt.Errorf("bus: publish timeout: %w", iox.ErrWouldBlock)
	// ErrCapped is returned by Subscribe once MaxConsumers subscribers
	// are registered.
	ErrCapped = errors.New("bus: consumer cap reached")
	// ErrAlreadyStarted is returned by Subscribe once Start has run.
	ErrAlreadyStarted = errors.New("bus: already started")
)
