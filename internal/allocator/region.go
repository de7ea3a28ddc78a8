package allocator

import (
	"fmt"
	"sync"
)

// freeRange is one node of the free list, kept sorted by start address so
// adjacent ranges coalesce on free.
type freeRange struct {
	start uintptr
	size  uintptr
	next  *freeRange
}

func (r *freeRange) end() uintptr { return r.start + r.size }

// RegionAllocator hands out addresses from a fixed [start, start+size)
// range. The range must be fully usable (for the kernel heap: every page
// mapped) before the first Alloc. Metadata lives out of band, so the
// managed range itself is never written by the allocator.
type RegionAllocator struct {
	mu     sync.Mutex
	start  uintptr
	size   uintptr
	free   *freeRange
	config *Config

	totalAllocated uintptr
	totalFreed     uintptr
	allocCount     uint64
	freeCount      uint64

	live map[uintptr]uintptr // addr -> rounded size, when tracking
}

// NewRegionAllocator creates an allocator over [start, start+size).
func NewRegionAllocator(start, size uintptr, opts ...Option) (*RegionAllocator, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	if size == 0 {
		return nil, fmt.Errorf("allocator: empty region")
	}

	ra := &RegionAllocator{
		start:  start,
		size:   size,
		free:   &freeRange{start: start, size: size},
		config: config,
	}
	if config.EnableTracking {
		ra.live = make(map[uintptr]uintptr)
	}

	return ra, nil
}

// Bounds returns the managed range.
func (ra *RegionAllocator) Bounds() (start, size uintptr) {
	return ra.start, ra.size
}

// Alloc returns the address of a free block of at least size bytes, or 0
// when no free range can satisfy the request. The caller reports failure;
// the allocator never blocks or retries.
func (ra *RegionAllocator) Alloc(size uintptr) uintptr {
	if size == 0 {
		return 0
	}

	rounded := alignUp(size, ra.config.AlignmentSize)

	ra.mu.Lock()
	defer ra.mu.Unlock()

	for prev := &ra.free; *prev != nil; prev = &(*prev).next {
		r := *prev

		addr := alignUp(r.start, ra.config.AlignmentSize)
		pad := addr - r.start
		if r.size < pad+rounded {
			continue
		}

		tail := r.size - pad - rounded

		// Carve [addr, addr+rounded) out of r, keeping any head padding
		// and tail remainder on the free list.
		switch {
		case pad == 0 && tail == 0:
			*prev = r.next
		case pad == 0:
			r.start = addr + rounded
			r.size = tail
		case tail == 0:
			r.size = pad
		default:
			r.size = pad
			r.next = &freeRange{start: addr + rounded, size: tail, next: r.next}
		}

		ra.totalAllocated += rounded
		ra.allocCount++
		if ra.live != nil {
			ra.live[addr] = rounded
		}

		return addr
	}

	return 0
}

// Free returns [ptr, ptr+size) to the free list, coalescing with adjacent
// ranges. Size must match the original request; with tracking enabled a
// mismatch or a foreign pointer is rejected with an error.
func (ra *RegionAllocator) Free(ptr, size uintptr) error {
	if ptr == 0 {
		return nil
	}

	rounded := alignUp(size, ra.config.AlignmentSize)

	ra.mu.Lock()
	defer ra.mu.Unlock()

	if ra.live != nil {
		recorded, ok := ra.live[ptr]
		if !ok {
			return fmt.Errorf("allocator: free of untracked pointer %#x", ptr)
		}
		if recorded != rounded {
			return fmt.Errorf("allocator: free size %d does not match allocation %d at %#x",
				rounded, recorded, ptr)
		}

		delete(ra.live, ptr)
	}

	if ptr < ra.start || ptr+rounded > ra.start+ra.size {
		return fmt.Errorf("allocator: free of %#x outside managed region", ptr)
	}

	// Insert sorted by address, then merge adjacent ranges. The list is
	// fully coalesced before the insert, so one pass settles it.
	prev := &ra.free
	for *prev != nil && (*prev).start < ptr {
		prev = &(*prev).next
	}

	*prev = &freeRange{start: ptr, size: rounded, next: *prev}

	for r := ra.free; r != nil && r.next != nil; {
		if r.end() == r.next.start {
			r.size += r.next.size
			r.next = r.next.next

			continue
		}
		r = r.next
	}

	ra.totalFreed += rounded
	ra.freeCount++

	return nil
}

// Stats snapshots counters and free-list shape under the allocator lock.
func (ra *RegionAllocator) Stats() Stats {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	s := Stats{
		TotalAllocated:  ra.totalAllocated,
		TotalFreed:      ra.totalFreed,
		AllocationCount: ra.allocCount,
		FreeCount:       ra.freeCount,
		BytesInUse:      ra.totalAllocated - ra.totalFreed,
	}

	for r := ra.free; r != nil; r = r.next {
		s.FreeBlocks++
		s.TotalFree += r.size
		if r.size > s.LargestFree {
			s.LargestFree = r.size
		}
	}

	return s
}
