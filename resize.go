package htable

import "time"

// nudgeResizer wakes the background worker when the load factor left the
// configured band. The send never blocks; a pending wake-up is enough.
func (t *Table[K, V]) nudgeResizer() {
	if t.desiredSize() == 0 {
		return
	}
	select {
	case t.resizeWake <- struct{}{}:
	default:
	}
}

// desiredSize returns the bucket count the resizer should move to next,
// or 0 when the table is inside the configured band. The value is not
// clamped to MaxSize; attempting and failing an over-cap grow is how an
// abandoned resize gets counted.
func (t *Table[K, V]) desiredSize() int {
	tbl := t.tbl.Load()
	n := len(tbl.buckets)
	c := int(t.count.Load())

	if t.cfg.GrowDecision(n, c) {
		return n * 2
	}
	// An empty table never auto-shrinks: presizing via WithInitialSize
	// would otherwise be undone before the first insert.
	if c > 0 && n > t.cfg.MinSize && t.cfg.ShrinkDecision(n, c) {
		return n / 2
	}
	return 0
}

// settled reports whether no further resize can improve the load factor:
// either it is inside the band or the only move left is a grow past
// MaxSize, which would fail.
func (t *Table[K, V]) settled() bool {
	d := t.desiredSize()
	return d == 0 || d > t.cfg.MaxSize
}

// resizeWorker runs rehashes off the mutator's goroutine so that insert
// and remove latency stays bounded by a single bucket lock.
func (t *Table[K, V]) resizeWorker() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.resizeWake:
			t.resizeToTarget()
		}
	}
}

// resizeToTarget keeps rehashing until the load factor is back inside the
// band. A burst of inserts can cross several doublings before the worker
// catches up, so one wake-up may trigger multiple rehashes.
func (t *Table[K, V]) resizeToTarget() {
	for {
		if t.closed.Load() || t.corrupted.Load() {
			return
		}
		target := t.desiredSize()
		if target == 0 {
			return
		}
		if err := t.resize(target); err != nil {
			// Abandoned, typically ErrAllocation on a grow past MaxSize.
			// The table stays at its current size; correctness is
			// unaffected, the load factor just overshoots the band.
			t.metrics.incFailedResize()
			return
		}
	}
}

// Expand synchronously doubles the bucket count.
// Returns ErrAllocation when the doubled table cannot be allocated; the
// table keeps operating at its current size.
func (t *Table[K, V]) Expand() error {
	if err := t.usable(); err != nil {
		return err
	}
	if err := t.resize(len(t.tbl.Load().buckets) * 2); err != nil {
		return err
	}
	// An explicit resize can land the load factor outside the band; let
	// the worker move it back so Wait has a settling point.
	t.nudgeResizer()
	return nil
}

// Shrink synchronously halves the bucket count, clamped to the minimum.
func (t *Table[K, V]) Shrink() error {
	if err := t.usable(); err != nil {
		return err
	}
	n := len(t.tbl.Load().buckets)
	if n <= t.cfg.MinSize {
		return nil
	}
	if err := t.resize(n / 2); err != nil {
		return err
	}
	t.nudgeResizer()
	return nil
}

// resize replaces the current bucket table with one of target buckets,
// migrating every entry while the table stays fully usable. Only one
// rehash runs at a time, serialized by the structural mutex.
func (t *Table[K, V]) resize(target int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return ErrClosed
	}
	old := t.tbl.Load()
	if target < t.cfg.MinSize {
		target = t.cfg.MinSize
	}
	if target == len(old.buckets) {
		return nil
	}

	nt, err := newBucketTable[K, V](target, t.cfg.MaxSize, t.cfg.LockMultiplier)
	if err != nil {
		return err
	}

	t.resizing.Store(true)
	defer t.resizing.Store(false)

	// Publish the new table before touching any bucket. From here on,
	// lookups and removals that miss in the old table consult the new
	// one, and inserts land in it.
	old.future.Store(nt)

	for idx := range old.buckets {
		t.drainBucket(old, nt, uint64(idx))
	}

	// The old generation is empty; make the new one current. Readers that
	// captured the old table keep traversing it safely (the GC holds it
	// alive for them) and find migrated entries through future.
	t.tbl.Store(nt)
	old.retire()

	if target > len(old.buckets) {
		t.metrics.incGrowth()
	} else {
		t.metrics.incShrink()
	}
	return nil
}

// drainBucket migrates one old bucket into the new table, popping one
// entry at a time from the front of the remaining chain. The old bucket
// lock is held across the whole drain; the destination bucket lock nests
// inside it. Every code path in the package that takes two bucket locks
// follows this old-before-new nesting.
func (t *Table[K, V]) drainBucket(old, nt *bucketTable[K, V], idx uint64) {
	mu := old.lockFor(idx)
	mu.Lock()
	defer mu.Unlock()

	head := &old.buckets[idx]
	for {
		n := head.Load()
		if n == nil {
			break
		}

		// Publish a copy in the destination before popping the original,
		// so the key is reachable from at least one generation at every
		// instant. A reader that still finds the original returns it; one
		// that misses the drained old bucket finds the copy through
		// future. Copying rather than relinking matters too: a lock-free
		// reader may be parked on n, and rewriting n.next would send it
		// walking an unrelated chain in the new table. The popped node
		// keeps its links until the GC sees the last reader drop it.
		h := t.hasher(nt.seed, n.key)
		didx := h & nt.mask
		m := &node[K, V]{key: n.key, value: n.value}
		dmu := nt.lockFor(didx)
		dmu.Lock()
		m.next.Store(nt.buckets[didx].Load())
		nt.buckets[didx].Store(m)
		dmu.Unlock()

		head.Store(n.next.Load()) // pop from the old chain
	}
	old.migrated.Add(1)
}

// Wait blocks until no resize is pending or in flight. It is mainly
// useful in tests that need the asynchronous resize contract settled
// before asserting on bucket counts.
func (t *Table[K, V]) Wait() {
	for {
		if t.closed.Load() || t.corrupted.Load() {
			return
		}
		if t.settled() && !t.resizing.Load() && len(t.resizeWake) == 0 {
			return
		}
		time.Sleep(50 * time.Microsecond)
	}
}
