package mem

import (
	"sync"
	"unsafe"
)

// Slab size classes for small, hot kernel objects. Allocations here stay
// off the heap entirely, so churn in these classes cannot fragment it.
const (
	SlabChunkTiny   uintptr = 64
	SlabChunkSmall  uintptr = 128
	SlabChunkMedium uintptr = 256

	// slabPoolBytes is each pool's fixed backing capacity.
	slabPoolBytes uintptr = 64 * 1024
)

// slabPool is a fixed-capacity bump-and-bitmap pool: one backing buffer,
// one free bit per chunk-aligned slot, its own lock.
type slabPool struct {
	mu        sync.Mutex
	chunkSize uintptr
	backing   []byte
	used      []bool
	inUse     int
}

func newSlabPool(chunkSize uintptr) *slabPool {
	return &slabPool{
		chunkSize: chunkSize,
		backing:   make([]byte, slabPoolBytes),
		used:      make([]bool, slabPoolBytes/chunkSize),
	}
}

func (p *slabPool) alloc() (unsafe.Pointer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, taken := range p.used {
		if taken {
			continue
		}

		p.used[i] = true
		p.inUse++

		return unsafe.Pointer(&p.backing[uintptr(i)*p.chunkSize]), true
	}

	return nil, false
}

func (p *slabPool) free(ptr unsafe.Pointer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	base := uintptr(unsafe.Pointer(&p.backing[0]))
	idx := (uintptr(ptr) - base) / p.chunkSize
	if idx >= uintptr(len(p.used)) || !p.used[idx] {
		return
	}

	p.used[idx] = false
	p.inUse--
}

func (p *slabPool) stats() SlabPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return SlabPoolStats{
		ChunkSize: p.chunkSize,
		Capacity:  len(p.used),
		InUse:     p.inUse,
	}
}

// SlabPoolStats describes one pool's occupancy.
type SlabPoolStats struct {
	ChunkSize uintptr
	Capacity  int
	InUse     int
}

// The three pools are static for the kernel's lifetime.
var (
	slabOnce  sync.Once
	slabPools [3]*slabPool
)

func slabs() *[3]*slabPool {
	slabOnce.Do(func() {
		slabPools = [3]*slabPool{
			newSlabPool(SlabChunkTiny),
			newSlabPool(SlabChunkSmall),
			newSlabPool(SlabChunkMedium),
		}
	})

	return &slabPools
}

func poolFor(size uintptr) *slabPool {
	if size == 0 {
		return nil
	}

	for _, p := range slabs() {
		if size <= p.chunkSize {
			return p
		}
	}

	return nil
}

// AllocSmall returns a chunk from the smallest pool whose chunk size fits
// size, or false when no pool fits or the chosen pool is full. Pools never
// spill into each other: a full 64-byte pool does not fall back to the
// 128-byte pool.
func AllocSmall(size uintptr) (unsafe.Pointer, bool) {
	p := poolFor(size)
	if p == nil {
		return nil, false
	}

	return p.alloc()
}

// DeallocSmall releases a chunk obtained from AllocSmall. The size must be
// the one passed to AllocSmall; an inconsistent size selects the wrong pool
// and is undefined by caller contract.
func DeallocSmall(ptr unsafe.Pointer, size uintptr) {
	if ptr == nil {
		return
	}

	p := poolFor(size)
	if p == nil {
		return
	}

	p.free(ptr)
}

// SlabStats reports per-pool occupancy, tiny pool first.
func SlabStats() [3]SlabPoolStats {
	var out [3]SlabPoolStats
	for i, p := range slabs() {
		out[i] = p.stats()
	}

	return out
}
