package htable

import "sync/atomic"

// Walker is a restartable cursor over every entry of the table.
//
// A walker pins one table generation and registers itself on it, so the
// rehash engine can invalidate the cursor when that generation is
// replaced. The traversal contract is the weak one full-table walks get on
// a concurrently mutating table: an entry may be seen twice or, if it was
// removed or moved mid-walk, not at all. The walk always terminates and
// never observes freed memory. Callers that need stronger guarantees must
// checkpoint idempotently and honor restart signals.
//
// A Walker is not safe for concurrent use by multiple goroutines.
type Walker[K comparable, V any] struct {
	t   *Table[K, V]
	tbl *bucketTable[K, V] // pinned generation

	bucket int
	skip   int // entries already produced from the current bucket

	key   K
	value V
	err   error

	started bool
	restart atomic.Bool // set by the rehash engine when the pinned generation retires
}

// NewWalker creates a walker over the table.
// The cursor pins a table generation on Start (or on the first Next).
func (t *Table[K, V]) NewWalker() *Walker[K, V] {
	return &Walker[K, V]{t: t}
}

// Start pins the current table generation and resets the cursor.
// It is called implicitly by the first Next.
func (w *Walker[K, V]) Start() {
	w.tbl = w.t.tbl.Load()
	w.tbl.registerWalker(w)
	w.bucket = 0
	w.skip = 0
	w.err = nil
	w.started = true
	w.restart.Store(false)
}

// Next advances to the next entry, returning true when one is available.
// It returns false at the end of the table or when a resize invalidated
// the cursor; Err tells the two apart. After ErrRestartRequired the cursor
// has been reset and calling Next again resumes from the beginning of the
// now-current table.
func (w *Walker[K, V]) Next() bool {
	if !w.started {
		w.Start()
	}
	if w.err == ErrRestartRequired {
		w.rehome()
	}
	if w.restart.Load() || w.t.tbl.Load() != w.tbl {
		return w.signalRestart()
	}

	for w.bucket < len(w.tbl.buckets) {
		n := w.tbl.buckets[w.bucket].Load()
		depth := 0
		for i := 0; n != nil && i < w.skip; i++ {
			if depth++; depth > maxChainLen {
				w.t.poison()
				w.err = ErrCorrupted
				return false
			}
			n = n.next.Load()
		}
		if n != nil {
			w.key = n.key
			w.value = n.value
			w.skip++
			return true
		}
		w.bucket++
		w.skip = 0
	}

	// End of the pinned generation. If it was being drained while we
	// walked it, the caller has likely missed migrated entries; demand a
	// restart instead of reporting a clean finish.
	if w.tbl.future.Load() != nil || w.t.tbl.Load() != w.tbl {
		return w.signalRestart()
	}
	w.err = nil
	return false
}

// signalRestart reports the invalidated cursor once; the next call to
// Next re-pins the current table.
func (w *Walker[K, V]) signalRestart() bool {
	w.err = ErrRestartRequired
	w.t.metrics.incWalkRestart()
	return false
}

// rehome re-pins the walker on the current table after a restart signal.
func (w *Walker[K, V]) rehome() {
	w.tbl.unregisterWalker(w)
	w.Start()
}

// Key returns the current entry's key.
func (w *Walker[K, V]) Key() K {
	return w.key
}

// Value returns the current entry's value.
func (w *Walker[K, V]) Value() V {
	return w.value
}

// Err returns nil after a completed walk, ErrRestartRequired when the
// cursor was invalidated by a resize, or ErrCorrupted.
func (w *Walker[K, V]) Err() error {
	return w.err
}

// Stop deregisters the walker from its pinned table and ends the walk.
// The walker may be reused; the next Next starts a fresh walk.
func (w *Walker[K, V]) Stop() {
	if !w.started {
		return
	}
	w.tbl.unregisterWalker(w)
	w.tbl = nil
	w.started = false
	w.err = nil
}

// Collect runs the walk to completion, honoring restart signals, and
// returns every visited key/value pair. Entries revisited after a restart
// appear once; the most recently seen value wins.
func (w *Walker[K, V]) Collect() map[K]V {
	out := make(map[K]V)
	for {
		for w.Next() {
			out[w.Key()] = w.Value()
		}
		if w.err == ErrRestartRequired {
			continue
		}
		return out
	}
}
