package mem

import (
	"sync"

	"github.com/helios-os/helios/internal/boot"
)

// FrameSize is the unit of physical allocation: one 4 KiB frame.
const FrameSize = 4096

// Frame is a 4 KiB-aligned physical address. It is a value, not an owned
// object: copying a Frame copies an identifier, never memory.
type Frame uintptr

// FrameContaining returns the frame holding the given physical address.
func FrameContaining(addr uintptr) Frame { return Frame(addr &^ (FrameSize - 1)) }

// Addr returns the physical base address of the frame.
func (f Frame) Addr() uintptr { return uintptr(f) }

// FrameStats are the frame allocator's monotonically increasing counters.
type FrameStats struct {
	Allocated   uint64
	Deallocated uint64
}

// InUse estimates frames currently handed out. Reading it across two lock
// acquisitions is a snapshot race, acceptable for diagnostics only.
func (s FrameStats) InUse() uint64 { return s.Allocated - s.Deallocated }

// FrameAllocator is the ground-truth physical allocator. It walks usable
// regions frame by frame handing out never-before-used frames, and owns a
// free-list of explicitly deallocated frames that is always tried first.
//
// The allocator is stateless to construct: a fresh instance re-derives its
// scan cursor from the memory map. Multiple instances are safe but do not
// share a free-list.
type FrameAllocator struct {
	mu        sync.Mutex
	usable    []boot.MemoryRegion
	regionIdx int
	next      uintptr // next candidate address in the current region, 0 before entry
	freeList  []Frame

	allocated   uint64
	deallocated uint64

	shadow map[Frame]struct{} // debug builds: currently allocated frames
}

// NewFrameAllocator creates an allocator over the memory map singleton's
// usable regions. The map must already be initialized.
func NewFrameAllocator() *FrameAllocator {
	var usable []boot.MemoryRegion
	for r := range GetMemoryMap().UsableRegions() {
		usable = append(usable, r)
	}

	return newFrameAllocatorForRegions(usable)
}

func newFrameAllocatorForRegions(usable []boot.MemoryRegion) *FrameAllocator {
	fa := &FrameAllocator{usable: usable}
	debugInitShadow(fa)

	return fa
}

// AllocateFrame returns a free frame, or false when physical memory is
// exhausted. The free-list is popped first (most recently freed frame);
// otherwise the scan cursor advances over usable regions in boot-map order,
// ascending addresses within each region.
func (fa *FrameAllocator) AllocateFrame() (Frame, bool) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if n := len(fa.freeList); n > 0 {
		f := fa.freeList[n-1]
		fa.freeList = fa.freeList[:n-1]
		fa.allocated++
		debugTrackAlloc(fa, f)

		return f, true
	}

	f, ok := fa.scanNext()
	if ok {
		fa.allocated++
		debugTrackAlloc(fa, f)
	}

	return f, ok
}

// scanNext advances the region cursor to the next frame. Region start is
// rounded up to a frame boundary; the frame containing the region's last
// byte is still yielded even when the region end is mid-frame. A region
// whose rounded start lies past its last byte yields nothing.
func (fa *FrameAllocator) scanNext() (Frame, bool) {
	for fa.regionIdx < len(fa.usable) {
		r := fa.usable[fa.regionIdx]
		start := alignUp(r.Start, FrameSize)
		end := alignUp(r.End(), FrameSize)

		if fa.next < start {
			fa.next = start
		}

		if fa.next+FrameSize <= end {
			f := Frame(fa.next)
			fa.next += FrameSize

			return f, true
		}

		fa.regionIdx++
		fa.next = 0
	}

	return 0, false
}

// DeallocateFrame returns a frame to the free-list. Double frees are
// detected (and logged, not escalated) only in debug builds.
func (fa *FrameAllocator) DeallocateFrame(f Frame) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	debugTrackFree(fa, f)
	fa.freeList = append(fa.freeList, f)
	fa.deallocated++
}

// Stats returns the allocation counters.
func (fa *FrameAllocator) Stats() FrameStats {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return FrameStats{Allocated: fa.allocated, Deallocated: fa.deallocated}
}

// noteAlloc accounts for a frame handed out from the frame cache, keeping
// the in-use estimate consistent across both free pools.
func (fa *FrameAllocator) noteAlloc(f Frame) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	fa.allocated++
	debugTrackAlloc(fa, f)
}

// noteDealloc accounts for a frame retired into the frame cache.
func (fa *FrameAllocator) noteDealloc(f Frame) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	debugTrackFree(fa, f)
	fa.deallocated++
}

// pushFree takes custody of a frame leaving the cache (eviction or age
// sweep). The frame was already counted as deallocated on its way in.
func (fa *FrameAllocator) pushFree(f Frame) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	fa.freeList = append(fa.freeList, f)
}

func alignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}
