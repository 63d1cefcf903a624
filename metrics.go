package htable

import "sync/atomic"

// Metrics holds table statistics.
type Metrics struct {
	hits          atomic.Int64 // Successful lookups
	misses        atomic.Int64 // Failed lookups
	inserts       atomic.Int64 // New keys inserted
	updates       atomic.Int64 // Existing keys replaced
	removes       atomic.Int64 // Successful removals
	duplicates    atomic.Int64 // InsertUnique rejections
	growths       atomic.Int64 // Completed grow rehashes
	shrinks       atomic.Int64 // Completed shrink rehashes
	failedResizes atomic.Int64 // Resize attempts abandoned on allocation failure
	walkRestarts  atomic.Int64 // Walker cursors invalidated by a resize
	corruptions   atomic.Int64 // Bucket chain sanity bound violations
}

// MetricsSnapshot is a point-in-time snapshot of table metrics.
type MetricsSnapshot struct {
	Hits          int64   // Total successful lookups
	Misses        int64   // Total failed lookups
	Inserts       int64   // Total new keys inserted
	Updates       int64   // Total existing keys replaced
	Removes       int64   // Total successful removals
	Duplicates    int64   // Total InsertUnique rejections
	Growths       int64   // Total completed grow rehashes
	Shrinks       int64   // Total completed shrink rehashes
	FailedResizes int64   // Total resize attempts abandoned
	WalkRestarts  int64   // Total walker restarts forced by resizes
	Corruptions   int64   // Total chain corruption detections
	HitRatio      float64 // Hit ratio (hits / (hits + misses))
}

// newMetrics creates a new Metrics instance.
func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) incHit()          { m.hits.Add(1) }
func (m *Metrics) incMiss()         { m.misses.Add(1) }
func (m *Metrics) incInsert()       { m.inserts.Add(1) }
func (m *Metrics) incUpdate()       { m.updates.Add(1) }
func (m *Metrics) incRemove()       { m.removes.Add(1) }
func (m *Metrics) incDuplicate()    { m.duplicates.Add(1) }
func (m *Metrics) incGrowth()       { m.growths.Add(1) }
func (m *Metrics) incShrink()       { m.shrinks.Add(1) }
func (m *Metrics) incFailedResize() { m.failedResizes.Add(1) }
func (m *Metrics) incWalkRestart()  { m.walkRestarts.Add(1) }
func (m *Metrics) incCorruption()   { m.corruptions.Add(1) }

// Snapshot returns a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	hits := m.hits.Load()
	misses := m.misses.Load()
	total := hits + misses

	var hitRatio float64
	if total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return MetricsSnapshot{
		Hits:          hits,
		Misses:        misses,
		Inserts:       m.inserts.Load(),
		Updates:       m.updates.Load(),
		Removes:       m.removes.Load(),
		Duplicates:    m.duplicates.Load(),
		Growths:       m.growths.Load(),
		Shrinks:       m.shrinks.Load(),
		FailedResizes: m.failedResizes.Load(),
		WalkRestarts:  m.walkRestarts.Load(),
		Corruptions:   m.corruptions.Load(),
		HitRatio:      hitRatio,
	}
}

// Reset resets all metrics to zero.
func (m *Metrics) Reset() {
	m.hits.Store(0)
	m.misses.Store(0)
	m.inserts.Store(0)
	m.updates.Store(0)
	m.removes.Store(0)
	m.duplicates.Store(0)
	m.growths.Store(0)
	m.shrinks.Store(0)
	m.failedResizes.Store(0)
	m.walkRestarts.Store(0)
	m.corruptions.Store(0)
}
