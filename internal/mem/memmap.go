// Package mem is the physical and virtual memory core of the Helios
// kernel: the boot memory map, the physical frame allocator and its reuse
// cache, the offset page-table mapper, the kernel heap bootstrap, a small
// slab allocator, and the fragmentation monitor that observes all of them.
//
// Everything here is built around lock-protected singletons constructed
// exactly once by Init; accessors fail loudly when called too early.
package mem

import (
	"fmt"
	"iter"

	"github.com/helios-os/helios/internal/boot"
)

// MemoryMap holds the boot-supplied region list. Read-only after
// InitMemoryMap; all other components see regions only through iteration.
type MemoryMap struct {
	regions []boot.MemoryRegion
}

var memoryMap *MemoryMap

// InitMemoryMap captures the boot region list. The caller guarantees the
// list is boot-valid and lives for the kernel's lifetime. Must run once.
func InitMemoryMap(regions []boot.MemoryRegion) error {
	if memoryMap != nil {
		return fmt.Errorf("mem: memory map already initialized")
	}

	memoryMap = &MemoryMap{regions: regions}

	return nil
}

// GetMemoryMap returns the memory map singleton. It panics if the map has
// not been initialized: every consumer runs strictly after Init.
func GetMemoryMap() *MemoryMap {
	if memoryMap == nil {
		panic("mem: memory map accessed before initialization")
	}

	return memoryMap
}

// Regions iterates every region in boot-map order.
func (m *MemoryMap) Regions() iter.Seq[boot.MemoryRegion] {
	return func(yield func(boot.MemoryRegion) bool) {
		for _, r := range m.regions {
			if !yield(r) {
				return
			}
		}
	}
}

func (m *MemoryMap) kindRegions(kind boot.RegionKind) iter.Seq[boot.MemoryRegion] {
	return func(yield func(boot.MemoryRegion) bool) {
		for _, r := range m.regions {
			if r.Kind != kind {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// UsableRegions iterates regions available for general kernel use.
func (m *MemoryMap) UsableRegions() iter.Seq[boot.MemoryRegion] {
	return m.kindRegions(boot.RegionUsable)
}

// ReservedRegions iterates firmware/hardware reserved regions.
func (m *MemoryMap) ReservedRegions() iter.Seq[boot.MemoryRegion] {
	return m.kindRegions(boot.RegionReserved)
}

// KernelRegions iterates regions occupied by the kernel image.
func (m *MemoryMap) KernelRegions() iter.Seq[boot.MemoryRegion] {
	return m.kindRegions(boot.RegionKernel)
}

// BootloaderRegions iterates regions still owned by bootloader data.
func (m *MemoryMap) BootloaderRegions() iter.Seq[boot.MemoryRegion] {
	return m.kindRegions(boot.RegionBootloader)
}

// TotalUsableMemory sums the lengths of all usable regions.
func (m *MemoryMap) TotalUsableMemory() uintptr {
	var total uintptr
	for r := range m.UsableRegions() {
		total += r.Length
	}

	return total
}

// RegionCount returns the number of regions in the boot map.
func (m *MemoryMap) RegionCount() int { return len(m.regions) }
