// Package hash provides seeded hash functions for table keys.
//
// Every function takes the owning bucket table's random seed so that two
// table generations distribute the same key set differently.
package hash

import (
	"github.com/cespare/xxhash/v2"
)

const (
	// FNV-1a constants
	offset64 = 14695981039346656037
	prime64  = 1099511628211

	// xxhash only pays for itself past this length; short keys stay on FNV-1a.
	longKeyLen = 32
)

// String computes a seeded hash of a string key without allocations.
func String(seed uint64, s string) uint64 {
	if len(s) >= longKeyLen {
		return Combine(seed, xxhash.Sum64String(s))
	}
	h := offset64 ^ seed
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// Bytes computes a seeded hash of a byte slice.
func Bytes(seed uint64, b []byte) uint64 {
	if len(b) >= longKeyLen {
		return Combine(seed, xxhash.Sum64(b))
	}
	h := offset64 ^ seed
	for i := 0; i < len(b); i++ {
		h ^= uint64(b[i])
		h *= prime64
	}
	return h
}

// Uint64 computes a seeded hash for a uint64 key.
func Uint64(seed, k uint64) uint64 {
	// splitmix64 for good bit diffusion
	x := k ^ seed
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Int64 computes a seeded hash for an int64 key.
func Int64(seed uint64, k int64) uint64 {
	return Uint64(seed, uint64(k))
}

// Int computes a seeded hash for an int key.
func Int(seed uint64, k int) uint64 {
	return Uint64(seed, uint64(int64(k)))
}

// Uint computes a seeded hash for a uint key.
func Uint(seed uint64, k uint) uint64 {
	return Uint64(seed, uint64(k))
}

// Int32 computes a seeded hash for an int32 key.
func Int32(seed uint64, k int32) uint64 {
	return Uint64(seed, uint64(int64(k)))
}

// Uint32 computes a seeded hash for a uint32 key.
func Uint32(seed uint64, k uint32) uint64 {
	return Uint64(seed, uint64(k))
}

// Uintptr computes a seeded hash for a uintptr key.
func Uintptr(seed uint64, k uintptr) uint64 {
	return Uint64(seed, uint64(k))
}

// Combine combines two hashes into one.
func Combine(h1, h2 uint64) uint64 {
	// Use a variant of boost::hash_combine
	h1 ^= h2 + 0x9e3779b97f4a7c15 + (h1 << 12) + (h1 >> 4)
	return h1
}
