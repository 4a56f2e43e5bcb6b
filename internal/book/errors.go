package book

import "errors"

// Error kinds returned by Book.Apply.
var (
	// ErrOutOfWindow is returned when a delta arrives before any snapshot
	// has established the book's window.
	ErrOutOfWindow = errors.New("book: out of window")
	// ErrSequenceGap is returned when a delta's sequence number does not
	// immediately follow the last applied sequence, or regresses. The
	// affected sides are marked invalid until the next snapshot.
	ErrSequenceGap = errors.New("book: sequence gap")
)
