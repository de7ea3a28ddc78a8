package mem

import (
	"testing"
	"unsafe"

	"github.com/helios-os/helios/internal/boot"
)

// resetMemoryState tears down every singleton so each test can stand up
// its own boot map. Tests in this package do not run in parallel.
func resetMemoryState() {
	memoryMap = nil
	frameAlloc = nil
	frameCache = nil
	kernelMapper = nil
	initialized = false
	sharedFallback = true
	heap = kernelHeap{}
	cachedPhysOffset.Store(0)
	pageTableRoot.Store(0)

	ResetFragmentationHistory()
	fragmon.mu.Lock()
	fragmon.capacity = DefaultFragHistoryCap
	fragmon.warn = DefaultWarnRatio
	fragmon.critical = DefaultCriticalRatio
	fragmon.mu.Unlock()

	guardRegistry.mu.Lock()
	guardRegistry.pages = make(map[VirtAddr]struct{})
	guardRegistry.mu.Unlock()
}

// fakeInfo builds boot info whose only interesting property is its region
// count (the heap sizing input).
func fakeInfo(regionCount int) *boot.Info {
	info := &boot.Info{ProtocolVersion: "1.4.0"}
	for i := 0; i < regionCount; i++ {
		info.Regions = append(info.Regions, boot.MemoryRegion{
			Start:  uintptr(i) * 0x100000,
			Length: 0x100000,
			Kind:   boot.RegionReserved,
		})
	}

	return info
}

func usableRegion(start, length uintptr) []boot.MemoryRegion {
	return []boot.MemoryRegion{{Start: start, Length: length, Kind: boot.RegionUsable}}
}

// simRAM backs a 0-based physical address space with ordinary memory and
// returns the linear-mapping base. The caller must keep buf alive for
// the duration of the test.
func simRAM(t *testing.T, size uintptr) (base unsafe.Pointer, buf []byte) {
	t.Helper()

	buf = make([]byte, size)

	return unsafe.Pointer(&buf[0]), buf
}
