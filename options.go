package htable

import "fmt"

// Default table geometry and resize thresholds.
const (
	DefaultInitialSize     = 16
	DefaultMinSize         = 4
	DefaultMaxSize         = 1 << 30
	DefaultGrowThreshold   = 0.75
	DefaultShrinkThreshold = 0.25
	DefaultLockMultiplier  = 32
)

// config holds the configuration for a Table instance.
type config[K comparable, V any] struct {
	// Table geometry (bucket counts, rounded up to powers of 2)
	InitialSize int // Starting bucket count
	MinSize     int // Lower bound a shrink may reach
	MaxSize     int // Upper bound a grow may reach

	// Resize thresholds (load factor = elements / buckets)
	GrowThreshold   float64 // Grow when load factor exceeds this
	ShrinkThreshold float64 // Shrink when load factor falls below this

	// Locking
	LockMultiplier int // Lock stripes per CPU before clamping to buckets/2

	// Key handling
	KeyHasher func(seed uint64, key K) uint64 // Custom seeded key hasher

	// Resize policy overrides. When set they replace the threshold checks.
	GrowDecision   func(buckets, elements int) bool
	ShrinkDecision func(buckets, elements int) bool
}

// Option is a function that configures a Table.
type Option[K comparable, V any] func(*config[K, V])

// defaultConfig returns the default configuration.
func defaultConfig[K comparable, V any]() *config[K, V] {
	return &config[K, V]{
		InitialSize:     DefaultInitialSize,
		MinSize:         DefaultMinSize,
		MaxSize:         DefaultMaxSize,
		GrowThreshold:   DefaultGrowThreshold,
		ShrinkThreshold: DefaultShrinkThreshold,
		LockMultiplier:  DefaultLockMultiplier,
	}
}

// validate reports the first configuration problem found.
func (c *config[K, V]) validate() error {
	if c.InitialSize <= 0 {
		return fmt.Errorf("htable: initial size must be positive, got %d", c.InitialSize)
	}
	if c.MinSize <= 0 {
		return fmt.Errorf("htable: min size must be positive, got %d", c.MinSize)
	}
	if c.MaxSize < c.MinSize {
		return fmt.Errorf("htable: max size %d is below min size %d", c.MaxSize, c.MinSize)
	}
	if c.GrowThreshold <= 0 || c.GrowThreshold > 1 {
		return fmt.Errorf("htable: grow threshold must be in (0, 1], got %v", c.GrowThreshold)
	}
	if c.ShrinkThreshold < 0 || c.ShrinkThreshold >= c.GrowThreshold {
		return fmt.Errorf("htable: shrink threshold must be in [0, grow threshold), got %v", c.ShrinkThreshold)
	}
	if c.LockMultiplier <= 0 {
		return fmt.Errorf("htable: lock multiplier must be positive, got %d", c.LockMultiplier)
	}
	return nil
}

// WithInitialSize sets the starting bucket count.
// The value is rounded up to a power of 2 and clamped to [min, max].
func WithInitialSize[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		c.InitialSize = n
	}
}

// WithMinSize sets the smallest bucket count a shrink may reach.
func WithMinSize[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		c.MinSize = n
	}
}

// WithMaxSize sets the largest bucket count a grow may reach.
// A grow past this bound fails with ErrAllocation and the table keeps
// operating at its current size.
func WithMaxSize[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		c.MaxSize = n
	}
}

// WithGrowThreshold sets the load factor above which the table grows.
// Default is 0.75.
func WithGrowThreshold[K comparable, V any](f float64) Option[K, V] {
	return func(c *config[K, V]) {
		c.GrowThreshold = f
	}
}

// WithShrinkThreshold sets the load factor below which the table shrinks.
// A value of 0 disables shrinking. Default is 0.25.
func WithShrinkThreshold[K comparable, V any](f float64) Option[K, V] {
	return func(c *config[K, V]) {
		c.ShrinkThreshold = f
	}
}

// WithLockMultiplier sets how many lock stripes are allocated per CPU.
// The stripe count is rounded to a power of 2 and never exceeds half the
// bucket count. Default is 32.
func WithLockMultiplier[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		c.LockMultiplier = n
	}
}

// WithKeyHasher sets a custom seeded key hasher.
// If not set, a default hasher is used based on the key type; key types
// without a default hasher make New fail.
func WithKeyHasher[K comparable, V any](fn func(seed uint64, key K) uint64) Option[K, V] {
	return func(c *config[K, V]) {
		c.KeyHasher = fn
	}
}

// WithGrowDecision replaces the grow threshold check with a custom
// decision function over the current bucket and element counts.
func WithGrowDecision[K comparable, V any](fn func(buckets, elements int) bool) Option[K, V] {
	return func(c *config[K, V]) {
		c.GrowDecision = fn
	}
}

// WithShrinkDecision replaces the shrink threshold check with a custom
// decision function over the current bucket and element counts.
func WithShrinkDecision[K comparable, V any](fn func(buckets, elements int) bool) Option[K, V] {
	return func(c *config[K, V]) {
		c.ShrinkDecision = fn
	}
}
