package mem

import (
	"fmt"
	"sync"

	"github.com/helios-os/helios/internal/allocator"
	"github.com/helios-os/helios/internal/boot"
)

// Kernel heap constants. The heap lives at a fixed virtual base; its size
// is decided once at init and clamped to [HeapMinSize, HeapMaxSize].
const (
	HeapStart   VirtAddr = 0x4444_4444_0000
	HeapMinSize uintptr  = 100 * 1024
	HeapMaxSize uintptr  = 2 * 1024 * 1024

	// heapRegionStep scales the heap with the boot map: more reported
	// regions is a coarse proxy for more physical memory.
	heapRegionStep uintptr = 128 * 1024

	// leakSuspectFrames is the allocated-minus-deallocated gap above which
	// the exhaustion path flags a suspected frame leak.
	leakSuspectFrames uint64 = 1000
)

type kernelHeap struct {
	mu          sync.Mutex
	start       VirtAddr
	size        uintptr
	backing     *allocator.RegionAllocator
	recovery    func() bool
	initialized bool
}

var heap kernelHeap

// heapSizeFor derives the heap size from the number of boot-map regions.
func heapSizeFor(regionCount int) uintptr {
	size := uintptr(regionCount) * heapRegionStep
	if size < HeapMinSize {
		size = HeapMinSize
	}
	if size > HeapMaxSize {
		size = HeapMaxSize
	}

	return alignUp(size, PageSize)
}

// InitHeap maps the kernel heap page by page (present+writable, one frame
// each, never reclaimed) and hands the range to the backing allocator.
// Must run exactly once, after the frame allocator and before any
// heap-dependent subsystem.
func InitHeap(info *boot.Info, mapper *OffsetMapper) error {
	heap.mu.Lock()
	defer heap.mu.Unlock()

	if heap.initialized {
		return fmt.Errorf("mem: heap already initialized")
	}

	size := heapSizeFor(len(info.Regions))

	for page := HeapStart; page < HeapStart+VirtAddr(size); page += PageSize {
		f, ok := mapper.fa.AllocateFrame()
		if !ok {
			return fmt.Errorf("mem: mapping heap page %#x: %w", uintptr(page), ErrFrameExhausted)
		}

		if err := mapper.mapPage(page, f, PTEPresent|PTEWritable); err != nil {
			return fmt.Errorf("mem: mapping heap page %#x: %w", uintptr(page), err)
		}
	}

	backing, err := allocator.NewRegionAllocator(uintptr(HeapStart), size)
	if err != nil {
		return fmt.Errorf("mem: heap backing allocator: %w", err)
	}

	heap.start = HeapStart
	heap.size = size
	heap.backing = backing
	heap.recovery = defaultRecovery
	heap.initialized = true

	logf("heap: %d KiB at %#x", size/1024, uintptr(HeapStart))

	return nil
}

// HeapBounds returns the heap's fixed start and size. Diagnostics only;
// zeros before InitHeap.
func HeapBounds() (VirtAddr, uintptr) {
	heap.mu.Lock()
	defer heap.mu.Unlock()

	return heap.start, heap.size
}

// SetRecoveryStrategy installs the hook the heap exhaustion path runs
// before giving up. The strategy returns whether it reclaimed anything;
// recovery can only help future allocations, never the failing one.
func SetRecoveryStrategy(f func() bool) {
	heap.mu.Lock()
	defer heap.mu.Unlock()

	heap.recovery = f
}

// HeapAlloc allocates from the kernel heap. On exhaustion it runs the
// failure path (diagnostics, recovery attempt) and reports the error; if
// recovery itself fails the kernel terminates.
func HeapAlloc(size uintptr) (uintptr, error) {
	heap.mu.Lock()
	backing, recovery := heap.backing, heap.recovery
	heap.mu.Unlock()

	if backing == nil {
		return 0, fmt.Errorf("mem: heap alloc: %w", ErrNotInitialized)
	}

	ptr := backing.Alloc(size)
	if ptr != 0 {
		return ptr, nil
	}

	handleHeapExhaustion(size, recovery)

	return 0, fmt.Errorf("mem: heap alloc %d bytes: %w", size, ErrHeapExhausted)
}

// HeapFree returns an allocation to the heap.
func HeapFree(ptr, size uintptr) error {
	heap.mu.Lock()
	backing := heap.backing
	heap.mu.Unlock()

	if backing == nil {
		return fmt.Errorf("mem: heap free: %w", ErrNotInitialized)
	}

	return backing.Free(ptr, size)
}

// handleHeapExhaustion is the one intentionally fatal path in the core: it
// dumps full diagnostic state, attempts recovery, and halts the kernel if
// recovery fails. An allocation-failure handler cannot resume the faulting
// call, so a successful recovery still fails the current request.
func handleHeapExhaustion(size uintptr, recovery func() bool) {
	start, heapSize := HeapBounds()
	logf("heap exhausted: request=%d bytes heap=[%#x..%#x) size=%d KiB",
		size, uintptr(start), uintptr(start)+heapSize, heapSize/1024)

	if frameAlloc != nil {
		fs := frameAlloc.Stats()
		logf("heap exhausted: frames allocated=%d deallocated=%d in-use=%d",
			fs.Allocated, fs.Deallocated, fs.InUse())

		if fs.InUse() > leakSuspectFrames {
			logf("heap exhausted: suspected frame leak (%d frames in use)", fs.InUse())
		}
	}

	if recovery != nil && recovery() {
		logf("heap exhausted: recovery strategy reclaimed memory; future allocations may succeed")

		return
	}

	panic("mem: kernel heap exhausted and recovery failed")
}

// defaultRecovery sweeps the frame cache, returning every cached frame to
// the allocator free-list so future page mappings can succeed.
func defaultRecovery() bool {
	if frameCache == nil || frameAlloc == nil {
		return false
	}

	removed := frameCache.CleanupOldCache(0)
	for _, f := range removed {
		frameAlloc.pushFree(f)
	}

	return len(removed) > 0
}

// heapStats snapshots the backing allocator, zero before InitHeap.
func heapStats() allocator.Stats {
	heap.mu.Lock()
	backing := heap.backing
	heap.mu.Unlock()

	if backing == nil {
		return allocator.Stats{}
	}

	return backing.Stats()
}
