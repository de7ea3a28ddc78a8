package mem

import (
	"sync"
	"time"
)

// DefaultCacheCapacity bounds the frame cache at 64 entries (256 KiB).
const DefaultCacheCapacity = 64

// CachedFrame is a recently freed frame with its insertion timestamp.
type CachedFrame struct {
	Frame      Frame
	InsertedAt time.Time
}

// CacheStats are the frame cache hit/miss counters plus current occupancy.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// MissRate returns misses/(hits+misses), or 0 before any lookup.
func (s CacheStats) MissRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Misses) / float64(total)
}

// FrameCache sits in front of the frame allocator, holding recently freed
// frames for fast, temporally local reuse. Hits pop the newest entry
// (LIFO); at capacity the oldest entry is evicted (FIFO).
//
// Invariant: a frame in the cache is never also on the frame allocator's
// free-list. The two disjoint pools together define "free".
type FrameCache struct {
	mu       sync.Mutex
	entries  []CachedFrame
	capacity int
	hits     uint64
	misses   uint64
}

// NewFrameCache creates a cache bounded at capacity entries.
// Non-positive capacity selects DefaultCacheCapacity.
func NewFrameCache(capacity int) *FrameCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}

	return &FrameCache{capacity: capacity}
}

// GetFrame pops the most recently cached frame, if any.
func (c *FrameCache) GetFrame() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	if n == 0 {
		c.misses++

		return 0, false
	}

	f := c.entries[n-1].Frame
	c.entries = c.entries[:n-1]
	c.hits++

	return f, true
}

// CacheFrame inserts a freed frame, timestamped now. If the cache is full
// the single oldest entry is evicted first and returned so the caller can
// hand it back to the frame allocator; dropping it would leak the frame.
func (c *FrameCache) CacheFrame(f Frame) (evicted Frame, didEvict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.capacity {
		evicted = c.entries[0].Frame
		didEvict = true
		c.entries = append(c.entries[:0], c.entries[1:]...)
	}

	c.entries = append(c.entries, CachedFrame{Frame: f, InsertedAt: time.Now()})

	return evicted, didEvict
}

// CleanupOldCache removes every entry older than maxAge and returns the
// removed frames. Advisory hygiene for a housekeeping task; never invoked
// by the allocation path itself.
func (c *FrameCache) CleanupOldCache(maxAge time.Duration) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var removed []Frame

	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.InsertedAt.Before(cutoff) {
			removed = append(removed, e.Frame)

			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept

	return removed
}

// Stats returns hit/miss counters and the current entry count.
func (c *FrameCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{Hits: c.hits, Misses: c.misses, Len: len(c.entries)}
}
