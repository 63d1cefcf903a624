package htable

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/OrlovEvgeny/go-htable/internal/alloc"
)

// maxChainLen bounds bucket chain traversal. A chain longer than this can
// only mean a corrupted or cyclic chain; traversal stops and the handle is
// poisoned rather than risking an infinite loop.
const maxChainLen = 1 << 16

// node is a single chain link. Nodes are allocated by the table and never
// exposed to callers.
type node[K comparable, V any] struct {
	key   K
	value V
	next  atomic.Pointer[node[K, V]]
}

// lockStripe pads each bucket lock onto its own cache line to prevent
// false sharing between neighboring stripes.
type lockStripe struct {
	mu sync.Mutex
	//lint:ignore U1000 prevents false sharing
	_ [(alloc.CacheLineSize - unsafe.Sizeof(sync.Mutex{})%alloc.CacheLineSize) % alloc.CacheLineSize]byte
}

// bucketTable is one generation of the hash table: a power-of-two array of
// bucket chain heads plus a smaller striped lock array shared across
// buckets via index masking. Lookups read it without locks; the Go garbage
// collector keeps a retired generation alive until the last reader drops
// its reference.
type bucketTable[K comparable, V any] struct {
	buckets  []atomic.Pointer[node[K, V]]
	locks    []lockStripe
	mask     uint64
	lockMask uint64
	seed     uint64 // per-generation hash salt

	// future points at the table this generation is being drained into.
	// Readers that miss here must retry against it.
	future atomic.Pointer[bucketTable[K, V]]

	// migrated counts buckets fully drained by the rehash engine.
	migrated atomic.Int64

	walkersMu sync.Mutex
	walkers   []*Walker[K, V]
}

// newBucketTable allocates a zeroed table. size must be a power of two.
// Sizes past maxSize fail with ErrAllocation; the caller treats that as a
// skipped resize, not a fatal condition.
func newBucketTable[K comparable, V any](size, maxSize, lockMultiplier int) (*bucketTable[K, V], error) {
	if size > maxSize {
		return nil, ErrAllocation
	}
	nLocks := alloc.NextPowerOf2(runtime.GOMAXPROCS(0) * lockMultiplier)
	if nLocks > size/2 {
		nLocks = size / 2
	}
	if nLocks < 1 {
		nLocks = 1
	}

	return &bucketTable[K, V]{
		buckets:  make([]atomic.Pointer[node[K, V]], size),
		locks:    make([]lockStripe, nLocks),
		mask:     uint64(size - 1),
		lockMask: uint64(nLocks - 1),
		seed:     rand.Uint64(),
	}, nil
}

// lockFor returns the lock guarding the given bucket index.
func (bt *bucketTable[K, V]) lockFor(idx uint64) *sync.Mutex {
	return &bt.locks[idx&bt.lockMask].mu
}

func (bt *bucketTable[K, V]) registerWalker(w *Walker[K, V]) {
	bt.walkersMu.Lock()
	bt.walkers = append(bt.walkers, w)
	bt.walkersMu.Unlock()
}

func (bt *bucketTable[K, V]) unregisterWalker(w *Walker[K, V]) {
	bt.walkersMu.Lock()
	for i, reg := range bt.walkers {
		if reg == w {
			last := len(bt.walkers) - 1
			bt.walkers[i] = bt.walkers[last]
			bt.walkers[last] = nil
			bt.walkers = bt.walkers[:last]
			break
		}
	}
	bt.walkersMu.Unlock()
}

// retire flags every walker still pinned to this generation so that its
// next advance restarts on the current table.
func (bt *bucketTable[K, V]) retire() {
	bt.walkersMu.Lock()
	for _, w := range bt.walkers {
		w.restart.Store(true)
	}
	bt.walkers = nil
	bt.walkersMu.Unlock()
}
