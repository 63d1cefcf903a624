// Package alloc provides sizing and cache-line geometry helpers for the
// bucket table and its lock stripes.
package alloc

const (
	// CacheLineSize is the typical CPU cache line size in bytes.
	CacheLineSize = 64
)

// NextPowerOf2 returns the smallest power of 2 >= n.
func NextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}

// IsPowerOf2 reports whether n is a positive power of two.
func IsPowerOf2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// PadToCacheLine pads a size to the next cache line boundary.
func PadToCacheLine(size int) int {
	return (size + CacheLineSize - 1) &^ (CacheLineSize - 1)
}
