// Package htable implements a resizable concurrent hash table.
//
// The table stores key/value pairs in chained buckets and grows or shrinks
// in the background as the load factor crosses configurable thresholds.
// Lookups are lock-free; inserts and removals take a single striped bucket
// lock each, so operation latency stays O(1) even while a resize is
// migrating buckets. During a resize the old and new bucket arrays are
// both reachable and every operation consults both, so no entry is ever
// lost or observed twice by a lookup.
package htable

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/OrlovEvgeny/go-htable/internal/alloc"
	"github.com/OrlovEvgeny/go-htable/internal/hash"
)

// Table is a concurrent hash table that resizes itself in the background.
// All methods are safe for use by multiple goroutines.
type Table[K comparable, V any] struct {
	tbl     atomic.Pointer[bucketTable[K, V]]
	count   atomic.Int64 // approximate element count, drives resize decisions
	cfg     *config[K, V]
	hasher  func(seed uint64, key K) uint64
	metrics *Metrics

	// mu serializes structural mutations (resize, clear, close).
	// It is never taken on the insert/lookup/remove path.
	mu sync.Mutex

	resizeWake chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	resizing  atomic.Bool
	closed    atomic.Bool
	corrupted atomic.Bool
}

// New creates a Table with the given options.
// It fails when the configuration is invalid or when the key type has no
// default hasher and none was supplied via WithKeyHasher.
func New[K comparable, V any](opts ...Option[K, V]) (*Table[K, V], error) {
	cfg := defaultConfig[K, V]()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	hasher := cfg.KeyHasher
	if hasher == nil {
		if hasher = defaultKeyHasher[K](); hasher == nil {
			var zero K
			return nil, fmt.Errorf("htable: no default hasher for key type %T, use WithKeyHasher", zero)
		}
	}

	// Normalize table geometry to powers of two.
	cfg.MinSize = alloc.NextPowerOf2(cfg.MinSize)
	cfg.MaxSize = alloc.NextPowerOf2(cfg.MaxSize)
	initial := alloc.NextPowerOf2(cfg.InitialSize)
	if initial < cfg.MinSize {
		initial = cfg.MinSize
	}
	if initial > cfg.MaxSize {
		initial = cfg.MaxSize
	}
	cfg.InitialSize = initial

	if cfg.GrowDecision == nil {
		grow := cfg.GrowThreshold
		cfg.GrowDecision = func(buckets, elements int) bool {
			return float64(elements) > grow*float64(buckets)
		}
	}
	if cfg.ShrinkDecision == nil {
		shrink := cfg.ShrinkThreshold
		cfg.ShrinkDecision = func(buckets, elements int) bool {
			return float64(elements) < shrink*float64(buckets)
		}
	}

	tbl, err := newBucketTable[K, V](initial, cfg.MaxSize, cfg.LockMultiplier)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Table[K, V]{
		cfg:        cfg,
		hasher:     hasher,
		metrics:    newMetrics(),
		resizeWake: make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	t.tbl.Store(tbl)

	t.wg.Add(1)
	go t.resizeWorker()

	return t, nil
}

// Lookup retrieves the value stored under key.
// It takes no locks: the bucket chain is traversed with atomic loads and,
// when a resize is in flight, a miss on the old table transparently
// retries against the table being grown or shrunk into.
func (t *Table[K, V]) Lookup(key K) (V, bool) {
	var zero V
	if t.closed.Load() {
		return zero, false
	}

	for tbl := t.tbl.Load(); tbl != nil; tbl = tbl.future.Load() {
		h := t.hasher(tbl.seed, key)
		depth := 0
		for n := tbl.buckets[h&tbl.mask].Load(); n != nil; n = n.next.Load() {
			if n.key == key {
				t.metrics.incHit()
				return n.value, true
			}
			if depth++; depth > maxChainLen {
				t.poison()
				return zero, false
			}
		}
	}

	t.metrics.incMiss()
	return zero, false
}

// Has reports whether key is present.
func (t *Table[K, V]) Has(key K) bool {
	_, ok := t.Lookup(key)
	return ok
}

// Insert stores value under key, replacing any previous value.
// The most recent insert always wins, including across a resize window.
func (t *Table[K, V]) Insert(key K, value V) error {
	if err := t.usable(); err != nil {
		return err
	}
	if err := t.store(key, value, false); err != nil {
		return err
	}
	t.nudgeResizer()
	return nil
}

// InsertUnique stores value under key only if the key is absent.
// Returns ErrDuplicateKey when the key is already present; the duplicate
// check runs under the bucket lock and covers the table being migrated
// away from, so two racing InsertUnique calls for the same key produce
// exactly one winner even mid-resize.
func (t *Table[K, V]) InsertUnique(key K, value V) error {
	if err := t.usable(); err != nil {
		return err
	}
	if err := t.store(key, value, true); err != nil {
		return err
	}
	t.nudgeResizer()
	return nil
}

// Remove deletes the entry stored under key.
// Reports false when the key was absent, which makes concurrent removals
// of the same key idempotent: exactly one caller observes true.
func (t *Table[K, V]) Remove(key K) bool {
	if t.closed.Load() || t.corrupted.Load() {
		return false
	}

	// A resize may have migrated the entry already, so fall through to
	// the next generation when the current bucket does not hold it.
	for tbl := t.tbl.Load(); tbl != nil; tbl = tbl.future.Load() {
		h := t.hasher(tbl.seed, key)
		idx := h & tbl.mask
		mu := tbl.lockFor(idx)
		mu.Lock()
		ok := t.unlinkLocked(tbl, idx, key)
		mu.Unlock()
		if ok {
			t.count.Add(-1)
			t.metrics.incRemove()
			t.nudgeResizer()
			return true
		}
	}
	return false
}

// store performs the locked insert. New entries always land in the newest
// generation; a stale occurrence still sitting in a generation being
// drained is replaced under nested old-then-new bucket locks, the same
// lock ordering the rehash engine uses, so a concurrent reader always
// finds the key in at least one generation.
func (t *Table[K, V]) store(key K, value V, unique bool) error {
retry:
	for {
		first := t.tbl.Load()
		last := first
		for f := last.future.Load(); f != nil; f = last.future.Load() {
			last = f
		}

		for old := first; old != last; old = old.future.Load() {
			h := t.hasher(old.seed, key)
			idx := h & old.mask
			mu := old.lockFor(idx)
			mu.Lock()
			if unique {
				_, found := t.findLocked(old, idx, key)
				mu.Unlock()
				if found {
					t.metrics.incDuplicate()
					return ErrDuplicateKey
				}
				continue
			}
			if _, found := t.findLocked(old, idx, key); found {
				// Replace across generations: publish the new node in the
				// newest table before unlinking the stale copy, both locks
				// held. Holding the old bucket lock keeps the rehash
				// engine from migrating the stale copy past the fresh one.
				lh := t.hasher(last.seed, key)
				lidx := lh & last.mask
				dmu := last.lockFor(lidx)
				dmu.Lock()
				if last.future.Load() != nil {
					dmu.Unlock()
					mu.Unlock()
					continue retry
				}
				nn := &node[K, V]{key: key, value: value}
				nn.next.Store(last.buckets[lidx].Load())
				last.buckets[lidx].Store(nn)
				t.unlinkLocked(old, idx, key)
				dmu.Unlock()
				mu.Unlock()
				t.metrics.incUpdate()
				return nil
			}
			mu.Unlock()
		}

		h := t.hasher(last.seed, key)
		idx := h & last.mask
		mu := last.lockFor(idx)
		mu.Lock()
		if last.future.Load() != nil {
			// A new resize started draining this generation between the
			// chain walk and the lock. Chase the newest table.
			mu.Unlock()
			continue
		}

		if stale, found := t.findLocked(last, idx, key); found {
			if unique {
				mu.Unlock()
				t.metrics.incDuplicate()
				return ErrDuplicateKey
			}
			// Prepend the replacement before unlinking the stale node so
			// lock-free readers never observe the key as briefly absent.
			nn := &node[K, V]{key: key, value: value}
			nn.next.Store(last.buckets[idx].Load())
			last.buckets[idx].Store(nn)
			prev := &nn.next
			for cur := prev.Load(); cur != nil; cur = prev.Load() {
				if cur == stale {
					prev.Store(cur.next.Load())
					break
				}
				prev = &cur.next
			}
			mu.Unlock()
			t.metrics.incUpdate()
			return nil
		}

		nn := &node[K, V]{key: key, value: value}
		nn.next.Store(last.buckets[idx].Load())
		last.buckets[idx].Store(nn)
		mu.Unlock()

		t.count.Add(1)
		t.metrics.incInsert()
		return nil
	}
}

// findLocked scans one bucket chain for key. The bucket lock must be held.
func (t *Table[K, V]) findLocked(tbl *bucketTable[K, V], idx uint64, key K) (*node[K, V], bool) {
	depth := 0
	for n := tbl.buckets[idx].Load(); n != nil; n = n.next.Load() {
		if n.key == key {
			return n, true
		}
		if depth++; depth > maxChainLen {
			t.poison()
			return nil, false
		}
	}
	return nil, false
}

// unlinkLocked removes the first chain node matching key.
// The bucket lock must be held; reports whether a node was removed.
func (t *Table[K, V]) unlinkLocked(tbl *bucketTable[K, V], idx uint64, key K) bool {
	depth := 0
	prev := &tbl.buckets[idx]
	for cur := prev.Load(); cur != nil; cur = prev.Load() {
		if cur.key == key {
			prev.Store(cur.next.Load())
			return true
		}
		if depth++; depth > maxChainLen {
			t.poison()
			return false
		}
		prev = &cur.next
	}
	return false
}

// LookupMany retrieves multiple keys, returning a map of the ones found.
func (t *Table[K, V]) LookupMany(keys []K) map[K]V {
	result := make(map[K]V, len(keys))
	for _, key := range keys {
		if value, ok := t.Lookup(key); ok {
			result[key] = value
		}
	}
	return result
}

// InsertMany stores multiple key/value pairs.
// Returns the number of pairs successfully stored.
func (t *Table[K, V]) InsertMany(pairs map[K]V) int {
	count := 0
	for key, value := range pairs {
		if t.Insert(key, value) == nil {
			count++
		}
	}
	return count
}

// RemoveMany deletes multiple keys.
// Returns the number of keys actually removed.
func (t *Table[K, V]) RemoveMany(keys []K) int {
	count := 0
	for _, key := range keys {
		if t.Remove(key) {
			count++
		}
	}
	return count
}

// Range calls fn for every key/value pair until fn returns false.
// The traversal is weakly consistent: it takes no locks, and entries moved
// by a concurrent resize may be visited twice or not at all. Use a Walker
// when restart-aware traversal is required.
func (t *Table[K, V]) Range(fn func(key K, value V) bool) {
	for tbl := t.tbl.Load(); tbl != nil; tbl = tbl.future.Load() {
		for i := range tbl.buckets {
			depth := 0
			for n := tbl.buckets[i].Load(); n != nil; n = n.next.Load() {
				if !fn(n.key, n.value) {
					return
				}
				if depth++; depth > maxChainLen {
					t.poison()
					return
				}
			}
		}
	}
}

// Len returns the approximate number of entries.
func (t *Table[K, V]) Len() int {
	return int(t.count.Load())
}

// Buckets returns the current bucket count.
func (t *Table[K, V]) Buckets() int {
	return len(t.tbl.Load().buckets)
}

// LoadFactor returns the current elements-per-bucket ratio.
func (t *Table[K, V]) LoadFactor() float64 {
	return float64(t.count.Load()) / float64(t.Buckets())
}

// Metrics returns a snapshot of the table metrics.
func (t *Table[K, V]) Metrics() MetricsSnapshot {
	return t.metrics.Snapshot()
}

// Clear removes all entries, resetting the table to its initial size.
func (t *Table[K, V]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return
	}

	nt, err := newBucketTable[K, V](t.cfg.InitialSize, t.cfg.MaxSize, t.cfg.LockMultiplier)
	if err != nil {
		return
	}
	old := t.tbl.Load()
	t.tbl.Store(nt)
	t.count.Store(0)
	old.retire()
}

// Close permanently shuts the table down. It stops the background resizer
// and waits for an in-flight rehash to finish. The caller must guarantee
// no concurrent Expand, Shrink or Clear is running, per the destroy
// contract; data-path calls racing with Close simply miss or fail with
// ErrClosed.
func (t *Table[K, V]) Close() {
	if t.closed.Swap(true) {
		return
	}
	t.cancel()
	t.wg.Wait()
}

// usable reports why the table cannot accept mutations, if it cannot.
func (t *Table[K, V]) usable() error {
	if t.closed.Load() {
		return ErrClosed
	}
	if t.corrupted.Load() {
		return ErrCorrupted
	}
	return nil
}

// poison marks the handle corrupted after a chain sanity bound violation.
// Mutations fail with ErrCorrupted from then on; continuing to modify a
// damaged chain risks infinite loops or lost entries.
func (t *Table[K, V]) poison() {
	if !t.corrupted.Swap(true) {
		t.metrics.incCorruption()
	}
}

// defaultKeyHasher returns the seeded hasher for a key type, or nil when
// the type has no default.
func defaultKeyHasher[K comparable]() func(seed uint64, key K) uint64 {
	var zero K
	switch any(zero).(type) {
	case string:
		return func(seed uint64, key K) uint64 { return hash.String(seed, any(key).(string)) }
	case int:
		return func(seed uint64, key K) uint64 { return hash.Int(seed, any(key).(int)) }
	case int64:
		return func(seed uint64, key K) uint64 { return hash.Int64(seed, any(key).(int64)) }
	case uint64:
		return func(seed uint64, key K) uint64 { return hash.Uint64(seed, any(key).(uint64)) }
	case int32:
		return func(seed uint64, key K) uint64 { return hash.Int32(seed, any(key).(int32)) }
	case uint32:
		return func(seed uint64, key K) uint64 { return hash.Uint32(seed, any(key).(uint32)) }
	case uint:
		return func(seed uint64, key K) uint64 { return hash.Uint(seed, any(key).(uint)) }
	case uintptr:
		return func(seed uint64, key K) uint64 { return hash.Uintptr(seed, any(key).(uintptr)) }
	default:
		return nil
	}
}
