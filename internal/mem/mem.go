package mem

import (
	"fmt"
	"sync"
	"time"

	"github.com/helios-os/helios/internal/boot"
)

// Singletons constructed once by Init and alive for the kernel's lifetime.
// Each guards its own state with its own lock; nothing here is shared
// across locks.
var (
	initMu       sync.Mutex
	initialized  bool
	frameAlloc   *FrameAllocator
	frameCache   *FrameCache
	kernelMapper *OffsetMapper

	// sharedFallback selects the cache-miss route of AllocateFrameCached:
	// the shared singleton allocator (default, free-list reuse) or a fresh
	// scan instance (lock-free with respect to the singleton, but blind to
	// its free-list).
	sharedFallback = true
)

type initConfig struct {
	cacheCapacity  int
	sharedFallback bool
}

// InitOption tunes Init.
type InitOption func(*initConfig)

// WithCacheCapacity overrides the frame cache capacity.
func WithCacheCapacity(n int) InitOption {
	return func(c *initConfig) { c.cacheCapacity = n }
}

// WithSharedFallback selects whether AllocateFrameCached falls back to the
// shared frame allocator (true) or to a transient fresh-scan instance that
// never touches the singleton's lock or free-list (false).
func WithSharedFallback(shared bool) InitOption {
	return func(c *initConfig) { c.sharedFallback = shared }
}

// Init brings up the memory core in order: memory map, frame allocator and
// cache, offset mapper, kernel heap. Must be called exactly once, early,
// before any dynamic allocation.
func Init(info *boot.Info, opts ...InitOption) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return fmt.Errorf("mem: already initialized")
	}

	cfg := initConfig{cacheCapacity: DefaultCacheCapacity, sharedFallback: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := boot.ValidateHandoff(info); err != nil {
		return fmt.Errorf("mem: init: %w", err)
	}

	if err := InitMemoryMap(info.Regions); err != nil {
		return fmt.Errorf("mem: init: %w", err)
	}

	frameAlloc = NewFrameAllocator()
	frameCache = NewFrameCache(cfg.cacheCapacity)
	sharedFallback = cfg.sharedFallback

	cachedPhysOffset.Store(GetPhysicalMemoryOffset(info))
	SetPageTableRoot(info.L4Table)

	mapper, err := InitMapper(info.PhysBase)
	if err != nil {
		return fmt.Errorf("mem: init: %w", err)
	}

	if err := InitHeap(info, mapper); err != nil {
		return fmt.Errorf("mem: init: %w", err)
	}

	kernelMapper = mapper
	initialized = true

	logf("initialized: %d MiB usable across %d regions",
		GetMemoryMap().TotalUsableMemory()/(1024*1024), GetMemoryMap().RegionCount())

	return nil
}

// Mapper returns the kernel's offset mapper. Panics before Init.
func Mapper() *OffsetMapper {
	if kernelMapper == nil {
		panic("mem: mapper accessed before initialization")
	}

	return kernelMapper
}

// AllocateFrame hands out a physical frame: cache first, then the frame
// allocator. The sanctioned way for the rest of the kernel to obtain raw
// pages. Returns false only on physical exhaustion. Panics before Init.
func AllocateFrame() (Frame, bool) {
	if frameAlloc == nil {
		panic("mem: AllocateFrame before initialization")
	}

	// Cache lock is released before the allocator lock is taken; the two
	// are never held together.
	if f, ok := frameCache.GetFrame(); ok {
		frameAlloc.noteAlloc(f)

		return f, true
	}

	return frameAlloc.AllocateFrame()
}

// DeallocateFrame releases a frame. It lands in the frame cache for warm
// reuse; a cache eviction cascades to the allocator free-list so no frame
// is ever dropped.
func DeallocateFrame(f Frame) {
	if frameAlloc == nil {
		panic("mem: DeallocateFrame before initialization")
	}

	frameAlloc.noteDealloc(f)

	if evicted, ok := frameCache.CacheFrame(f); ok {
		frameAlloc.pushFree(evicted)
	}
}

// AllocateFrameCached tries the frame cache and falls back per the
// WithSharedFallback configuration. With the fresh-scan route the returned
// frame does not come from the singleton's free-list.
func AllocateFrameCached() (Frame, bool) {
	if frameCache == nil {
		panic("mem: AllocateFrameCached before initialization")
	}

	if f, ok := frameCache.GetFrame(); ok {
		frameAlloc.noteAlloc(f)

		return f, true
	}

	if sharedFallback {
		return frameAlloc.AllocateFrame()
	}

	return NewFrameAllocator().AllocateFrame()
}

// CleanupOldCache sweeps cache entries older than maxAge back to the frame
// allocator's free-list and reports how many moved. Advisory hygiene for a
// housekeeping task.
func CleanupOldCache(maxAge time.Duration) int {
	if frameCache == nil || frameAlloc == nil {
		return 0
	}

	removed := frameCache.CleanupOldCache(maxAge)
	for _, f := range removed {
		frameAlloc.pushFree(f)
	}

	return len(removed)
}

// MapZeroPageAt maps a zero-filled page at addr on demand.
func MapZeroPageAt(addr VirtAddr) error {
	if kernelMapper == nil {
		return fmt.Errorf("mem: map zero page: %w", ErrNotInitialized)
	}

	return kernelMapper.MapZeroPageAt(addr)
}

// GetFrameStats returns the frame allocator counters. Diagnostics only.
func GetFrameStats() FrameStats {
	if frameAlloc == nil {
		return FrameStats{}
	}

	return frameAlloc.Stats()
}

// GetCacheStats returns the frame cache counters. Diagnostics only.
func GetCacheStats() CacheStats {
	if frameCache == nil {
		return CacheStats{}
	}

	return frameCache.Stats()
}

// logf is the core's diagnostic channel. This early in boot there is no
// console driver to speak of, so it prints straight to the kernel log.
func logf(format string, args ...any) {
	fmt.Printf("[mem] "+format+"\n", args...)
}
