package htable

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInsertLookup(t *testing.T) {
	tbl, err := New[string, int]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	if err := tbl.Insert("alpha", 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tbl.Insert("beta", 2); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	v, ok := tbl.Lookup("alpha")
	if !ok || v != 1 {
		t.Errorf("Lookup(alpha) = %d, %v; want 1, true", v, ok)
	}
	v, ok = tbl.Lookup("beta")
	if !ok || v != 2 {
		t.Errorf("Lookup(beta) = %d, %v; want 2, true", v, ok)
	}
	if _, ok := tbl.Lookup("gamma"); ok {
		t.Error("Lookup(gamma) found a key that was never inserted")
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
}

func TestInsertReplaces(t *testing.T) {
	tbl, err := New[string, string]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	tbl.Insert("k", "first")
	tbl.Insert("k", "second")
	tbl.Insert("k", "third")

	v, ok := tbl.Lookup("k")
	if !ok || v != "third" {
		t.Errorf("Lookup(k) = %q, %v; want %q, true", v, ok, "third")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d after replacing the same key, want 1", tbl.Len())
	}
	m := tbl.Metrics()
	if m.Inserts != 1 || m.Updates != 2 {
		t.Errorf("metrics inserts=%d updates=%d, want 1 and 2", m.Inserts, m.Updates)
	}
}

func TestRemove(t *testing.T) {
	tbl, err := New[string, int]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	tbl.Insert("k", 7)
	if !tbl.Remove("k") {
		t.Error("Remove(k) = false for a present key")
	}
	if tbl.Remove("k") {
		t.Error("Remove(k) = true on second removal")
	}
	if _, ok := tbl.Lookup("k"); ok {
		t.Error("Lookup(k) found the key after removal")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tbl.Len())
	}
}

func TestReinsertAfterRemove(t *testing.T) {
	tbl, err := New[string, int]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	tbl.Insert("k", 1)
	tbl.Remove("k")
	tbl.Insert("k", 2)

	v, ok := tbl.Lookup("k")
	if !ok || v != 2 {
		t.Errorf("Lookup(k) = %d, %v; want 2, true", v, ok)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

func TestInsertUnique(t *testing.T) {
	tbl, err := New[string, int]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	if err := tbl.InsertUnique("k", 1); err != nil {
		t.Fatalf("InsertUnique first: %v", err)
	}
	if err := tbl.InsertUnique("k", 2); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("InsertUnique duplicate: err = %v, want ErrDuplicateKey", err)
	}
	if v, _ := tbl.Lookup("k"); v != 1 {
		t.Errorf("Lookup(k) = %d after failed duplicate, want 1", v)
	}

	tbl.Remove("k")
	if err := tbl.InsertUnique("k", 3); err != nil {
		t.Fatalf("InsertUnique after remove: %v", err)
	}
	if v, _ := tbl.Lookup("k"); v != 3 {
		t.Errorf("Lookup(k) = %d, want 3", v)
	}
}

func TestConcurrentInsertUniqueSingleWinner(t *testing.T) {
	tbl, err := New[string, int]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	const racers = 16
	var wins, dups atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			switch err := tbl.InsertUnique("contested", id); {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrDuplicateKey):
				dups.Add(1)
			default:
				t.Errorf("InsertUnique: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("winners = %d, want exactly 1", wins.Load())
	}
	if dups.Load() != racers-1 {
		t.Errorf("duplicates = %d, want %d", dups.Load(), racers-1)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

func TestIntegerKeys(t *testing.T) {
	ti, err := New[int, string]()
	if err != nil {
		t.Fatalf("New[int]: %v", err)
	}
	defer ti.Close()
	ti.Insert(-42, "neg")
	ti.Insert(42, "pos")
	if v, ok := ti.Lookup(-42); !ok || v != "neg" {
		t.Errorf("Lookup(-42) = %q, %v", v, ok)
	}

	tu, err := New[uint64, int]()
	if err != nil {
		t.Fatalf("New[uint64]: %v", err)
	}
	defer tu.Close()
	tu.Insert(1<<63, 1)
	if _, ok := tu.Lookup(1 << 63); !ok {
		t.Error("Lookup(1<<63) missed")
	}
}

func TestCustomHasher(t *testing.T) {
	type point struct{ x, y int }

	if _, err := New[point, int](); err == nil {
		t.Fatal("New with an unhashable key type succeeded without a hasher")
	}

	tbl, err := New[point, int](
		WithKeyHasher[point, int](func(seed uint64, p point) uint64 {
			return seed ^ uint64(p.x)*0x9e3779b97f4a7c15 ^ uint64(p.y)
		}),
	)
	if err != nil {
		t.Fatalf("New with hasher: %v", err)
	}
	defer tbl.Close()

	tbl.Insert(point{1, 2}, 12)
	tbl.Insert(point{3, 4}, 34)
	if v, ok := tbl.Lookup(point{1, 2}); !ok || v != 12 {
		t.Errorf("Lookup({1,2}) = %d, %v", v, ok)
	}
	if _, ok := tbl.Lookup(point{2, 1}); ok {
		t.Error("Lookup({2,1}) found a key that was never inserted")
	}
}

func TestConfigValidation(t *testing.T) {
	cases := map[string][]Option[string, int]{
		"zero initial size":      {WithInitialSize[string, int](0)},
		"negative min size":      {WithMinSize[string, int](-1)},
		"max below min":          {WithMinSize[string, int](64), WithMaxSize[string, int](8)},
		"grow threshold zero":    {WithGrowThreshold[string, int](0)},
		"shrink above grow":      {WithGrowThreshold[string, int](0.5), WithShrinkThreshold[string, int](0.6)},
		"zero lock multiplier":   {WithLockMultiplier[string, int](0)},
		"negative shrink":        {WithShrinkThreshold[string, int](-0.1)},
		"grow threshold above 1": {WithGrowThreshold[string, int](1.5)},
	}
	for name, opts := range cases {
		if _, err := New[string, int](opts...); err == nil {
			t.Errorf("%s: New succeeded, want config error", name)
		}
	}
}

func TestClose(t *testing.T) {
	tbl, err := New[string, int]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tbl.Insert("k", 1)
	tbl.Close()
	tbl.Close() // second close is a no-op

	if err := tbl.Insert("x", 2); !errors.Is(err, ErrClosed) {
		t.Errorf("Insert after close: err = %v, want ErrClosed", err)
	}
	if err := tbl.Expand(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expand after close: err = %v, want ErrClosed", err)
	}
	if _, ok := tbl.Lookup("k"); ok {
		t.Error("Lookup succeeded after close")
	}
	if tbl.Remove("k") {
		t.Error("Remove succeeded after close")
	}
	tbl.Wait() // must not hang on a closed table
}

func TestClear(t *testing.T) {
	tbl, err := New[int, int](WithInitialSize[int, int](4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	for i := 0; i < 100; i++ {
		tbl.Insert(i, i)
	}
	tbl.Wait()
	tbl.Clear()

	if tbl.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", tbl.Len())
	}
	if tbl.Buckets() != 4 {
		t.Errorf("Buckets() = %d after Clear, want the initial 4", tbl.Buckets())
	}
	if _, ok := tbl.Lookup(50); ok {
		t.Error("Lookup(50) found an entry after Clear")
	}
	tbl.Insert(1, 1)
	if v, ok := tbl.Lookup(1); !ok || v != 1 {
		t.Errorf("Lookup(1) = %d, %v after reuse", v, ok)
	}
}

func TestBatchOperations(t *testing.T) {
	tbl, err := New[string, int]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	pairs := map[string]int{"a": 1, "b": 2, "c": 3}
	if n := tbl.InsertMany(pairs); n != 3 {
		t.Errorf("InsertMany = %d, want 3", n)
	}

	got := tbl.LookupMany([]string{"a", "c", "missing"})
	if len(got) != 2 || got["a"] != 1 || got["c"] != 3 {
		t.Errorf("LookupMany = %v", got)
	}

	if n := tbl.RemoveMany([]string{"a", "b", "missing"}); n != 2 {
		t.Errorf("RemoveMany = %d, want 2", n)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

func TestRange(t *testing.T) {
	tbl, err := New[int, int]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	const n = 64
	for i := 0; i < n; i++ {
		tbl.Insert(i, i*i)
	}
	tbl.Wait()

	seen := make(map[int]int)
	tbl.Range(func(k, v int) bool {
		seen[k] = v
		return true
	})
	if len(seen) != n {
		t.Fatalf("Range visited %d entries, want %d", len(seen), n)
	}
	for i := 0; i < n; i++ {
		if seen[i] != i*i {
			t.Errorf("Range saw %d = %d, want %d", i, seen[i], i*i)
		}
	}

	// Early termination.
	visits := 0
	tbl.Range(func(k, v int) bool {
		visits++
		return visits < 5
	})
	if visits != 5 {
		t.Errorf("Range visited %d entries after stop, want 5", visits)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	tbl, err := New[string, int]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	tbl.Insert("a", 1)
	tbl.Insert("a", 2)
	tbl.Lookup("a")
	tbl.Lookup("absent")
	tbl.InsertUnique("a", 3)
	tbl.Remove("a")

	m := tbl.Metrics()
	if m.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", m.Inserts)
	}
	if m.Updates != 1 {
		t.Errorf("Updates = %d, want 1", m.Updates)
	}
	if m.Hits != 1 || m.Misses != 1 {
		t.Errorf("Hits = %d Misses = %d, want 1 and 1", m.Hits, m.Misses)
	}
	if m.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", m.Duplicates)
	}
	if m.Removes != 1 {
		t.Errorf("Removes = %d, want 1", m.Removes)
	}
	if r := m.HitRatio; r != 0.5 {
		t.Errorf("HitRatio = %f, want 0.5", r)
	}

	tbl.metrics.Reset()
	if m := tbl.Metrics(); m.Hits != 0 || m.Inserts != 0 {
		t.Errorf("snapshot after Reset = %+v, want zeroes", m)
	}
}

func TestParallelMixedOperations(t *testing.T) {
	tbl, err := New[string, int](WithInitialSize[string, int](4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	const workers = 8
	const perWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if err := tbl.Insert(key, i); err != nil {
					t.Errorf("Insert(%s): %v", key, err)
					return
				}
				if v, ok := tbl.Lookup(key); !ok || v != i {
					t.Errorf("Lookup(%s) = %d, %v right after insert", key, v, ok)
					return
				}
				if i%3 == 0 {
					tbl.Remove(key)
				}
			}
		}(w)
	}
	wg.Wait()
	tbl.Wait()

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			key := fmt.Sprintf("w%d-k%d", w, i)
			_, ok := tbl.Lookup(key)
			if i%3 == 0 {
				if ok {
					t.Fatalf("Lookup(%s) found a removed key", key)
				}
			} else if !ok {
				t.Fatalf("Lookup(%s) missed a surviving key", key)
			}
		}
	}

	removedPerWorker := (perWorker + 2) / 3
	want := workers * (perWorker - removedPerWorker)
	if tbl.Len() != want {
		t.Errorf("Len() = %d, want %d", tbl.Len(), want)
	}
}
