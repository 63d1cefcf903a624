package hash

import (
	"strings"
	"testing"
)

func TestStringHash(t *testing.T) {
	// Same seed and input should produce same hash
	h1 := String(42, "hello")
	h2 := String(42, "hello")
	if h1 != h2 {
		t.Error("Same string should produce same hash")
	}

	// Different input should produce different hash
	h3 := String(42, "world")
	if h1 == h3 {
		t.Error("Different strings should produce different hashes")
	}

	// Different seeds should redistribute the same key
	h4 := String(43, "hello")
	if h1 == h4 {
		t.Error("Different seeds should produce different hashes")
	}
}

func TestStringHashLongKeys(t *testing.T) {
	long := strings.Repeat("k", 100)

	h1 := String(7, long)
	h2 := String(7, long)
	if h1 != h2 {
		t.Error("Same long string should produce same hash")
	}

	h3 := String(8, long)
	if h1 == h3 {
		t.Error("Different seeds should produce different hashes for long strings")
	}
}

func TestBytesHash(t *testing.T) {
	h1 := Bytes(42, []byte("hello"))
	h2 := Bytes(42, []byte("hello"))
	if h1 != h2 {
		t.Error("Same bytes should produce same hash")
	}

	// Should match String hash
	h3 := String(42, "hello")
	if h1 != h3 {
		t.Error("Bytes and String should produce same hash for same content")
	}

	long := []byte(strings.Repeat("x", 64))
	if Bytes(1, long) != String(1, string(long)) {
		t.Error("Bytes and String should agree on long keys")
	}
}

func TestIntHashes(t *testing.T) {
	h1 := Int64(42, 12345)
	h2 := Int64(42, 12345)
	if h1 != h2 {
		t.Error("Same int64 should produce same hash")
	}

	h3 := Int64(42, 12346)
	if h1 == h3 {
		t.Error("Different int64 should produce different hashes")
	}

	h4 := Int64(99, 12345)
	if h1 == h4 {
		t.Error("Different seeds should produce different hashes")
	}

	// Wrappers should agree with the uint64 base hash
	if Int(42, 12345) != h1 {
		t.Error("Int and Int64 should agree")
	}
	if Uint32(42, 7) != Int32(42, 7) {
		t.Error("Uint32 and Int32 should agree on non-negative values")
	}
}

func TestCombine(t *testing.T) {
	c1 := Combine(1, 2)
	c2 := Combine(2, 1)
	if c1 == c2 {
		t.Error("Combine should not be commutative")
	}
	if Combine(1, 2) != Combine(1, 2) {
		t.Error("Combine should be deterministic")
	}
}

func TestDistribution(t *testing.T) {
	// Sequential integer keys should spread over buckets reasonably well.
	const buckets = 64
	var counts [buckets]int
	for i := 0; i < buckets*64; i++ {
		counts[Int(12345, i)&(buckets-1)]++
	}
	for i, c := range counts {
		if c == 0 {
			t.Errorf("Bucket %d received no keys", i)
		}
	}
}
