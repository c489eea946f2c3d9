// Package cache implements two caching layers: L1 delegation
// (agent,task -> DelegationPlan memoization) and L3 semantic
// (embedding-similarity lookup). LRU access-order tracking uses a
// doubly linked deque, with atomic hit/miss/put/invalidation stats and
// TTL/age-based staleness checks.
package cache

import "sync/atomic"

// Stats holds atomically maintained counters for one cache layer.
type Stats struct {
	hits          int64
	misses        int64
	puts          int64
	invalidations int64
	size          int64
}

func (s *Stats) recordHit()          { atomic.AddInt64(&s.hits, 1) }
func (s *Stats) recordMiss()         { atomic.AddInt64(&s.misses, 1) }
func (s *Stats) recordPut()          { atomic.AddInt64(&s.puts, 1) }
func (s *Stats) recordInvalidation() { atomic.AddInt64(&s.invalidations, 1) }
func (s *Stats) setSize(n int)       { atomic.StoreInt64(&s.size, int64(n)) }

// Snapshot is an immutable read of Stats at a point in time.
type Snapshot struct {
	Hits          int64
	Misses        int64
	Puts          int64
	Invalidations int64
	Size          int64
	HitRate       float64
}

// Snapshot reads every counter consistently enough for reporting (exact
// atomicity across fields is not required: stats are observational).
func (s *Stats) Snapshot() Snapshot {
	hits := atomic.LoadInt64(&s.hits)
	misses := atomic.LoadInt64(&s.misses)
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Snapshot{
		Hits:          hits,
		Misses:        misses,
		Puts:          atomic.LoadInt64(&s.puts),
		Invalidations: atomic.LoadInt64(&s.invalidations),
		Size:          atomic.LoadInt64(&s.size),
		HitRate:       hitRate,
	}
}
