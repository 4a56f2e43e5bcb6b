package book

import (
	"log/slog"
	"sync"

	"flox/internal/config"
	"flox/internal/events"
	"flox/internal/metrics"
	"flox/pkg/ids"
	"flox/pkg/numeric"
)

// Keeper owns one Book per symbol, created lazily on first update. It is
// the usual consumer-side counterpart to a book-update bus: subscribe
// Keeper.Apply as a bus.Listener[events.BookUpdate] (via a small adapter
// that unwraps the pool.Handle) and query Keeper.Book for downstream reads.
type Keeper struct {
	cfg config.BookConfig
	log *slog.Logger
	rec *metrics.Recorder

	mu    sync.RWMutex
	books map[ids.SymbolId]*Book
}

// NewKeeper creates a Keeper sharing one BookConfig across every symbol it
// sees.
func NewKeeper(cfg config.BookConfig, rec *metrics.Recorder, log *slog.Logger) *Keeper {
	return &Keeper{
		cfg:   cfg,
		log:   log,
		rec:   rec,
		books: make(map[ids.SymbolId]*Book),
	}
}

// Apply routes an update to its symbol's Book, creating one on first sight.
func (k *Keeper) Apply(u *events.BookUpdate) error {
	b := k.bookFor(u.Symbol)
	if err := b.Apply(u); err != nil {
		if k.rec != nil {
			k.rec.Error(errKind(err))
		}
		return err
	}
	return nil
}

func errKind(err error) string {
	switch err {
	case ErrOutOfWindow:
		return "book-out-of-window"
	case ErrSequenceGap:
		return "book-sequence-gap"
	default:
		return "book-unknown"
	}
}

func (k *Keeper) bookFor(symbol ids.SymbolId) *Book {
	k.mu.RLock()
	b, ok := k.books[symbol]
	k.mu.RUnlock()
	if ok {
		return b
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if b, ok = k.books[symbol]; ok {
		return b
	}
	tick := numeric.FromFloatPrice(k.cfg.TickSize, 0)
	b = New(symbol, tick, k.cfg.MaxLevels, int64(k.cfg.HysteresisTicks), k.log)
	k.books[symbol] = b
	return b
}

// Book returns the book for symbol, if one has been created.
func (k *Keeper) Book(symbol ids.SymbolId) (*Book, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	b, ok := k.books[symbol]
	return b, ok
}
