package boot

import (
	"fmt"
	"unsafe"
)

// Physical layout of the simulated machine. Addresses are 0-based; the
// linear physical mapping starts at the backing reservation's base, so a
// physical address offset from that base is a dereferenceable pointer.
const (
	simKernelStart     = 0x0
	simKernelEnd       = 0x10000 // 64 KiB kernel image + boot page tables
	simL4Table         = 0x1000  // Root page table frame inside the kernel region
	simBootloaderStart = 0x10000
	simBootloaderEnd   = 0x18000
	simReservedStart   = 0x18000
	simReservedEnd     = 0x20000 // Firmware hole
	simUsableStart     = 0x20000

	// MinSimulatedRAM is the smallest address space NewSimulatedInfo accepts:
	// enough for the fixed layout plus a few usable frames.
	MinSimulatedRAM = 0x40000

	simProtocolVersion = "1.4.2"
)

// NewSimulatedInfo reserves size bytes of anonymous memory and describes it
// as a boot memory map: kernel image, bootloader data, a reserved firmware
// hole, and the remainder split into two usable regions. The top-level page
// table lives inside the kernel region and starts zeroed.
//
// The caller owns the reservation and must call Release when done.
func NewSimulatedInfo(size uintptr) (*Info, error) {
	if size < MinSimulatedRAM {
		return nil, fmt.Errorf("boot: simulated RAM too small: %#x < %#x", size, uintptr(MinSimulatedRAM))
	}

	ram, release, err := reserveRAM(size)
	if err != nil {
		return nil, fmt.Errorf("boot: reserving simulated RAM: %w", err)
	}

	// Two usable regions with a reserved hole between them, so region
	// iteration and the frame scan cursor see a realistic map.
	holeStart := simUsableStart + (size-simUsableStart)/2
	holeEnd := holeStart + 0x4000

	info := &Info{
		Regions: []MemoryRegion{
			{Start: simKernelStart, Length: simKernelEnd - simKernelStart, Kind: RegionKernel},
			{Start: simBootloaderStart, Length: simBootloaderEnd - simBootloaderStart, Kind: RegionBootloader},
			{Start: simReservedStart, Length: simReservedEnd - simReservedStart, Kind: RegionReserved},
			{Start: simUsableStart, Length: holeStart - simUsableStart, Kind: RegionUsable},
			{Start: holeStart, Length: holeEnd - holeStart, Kind: RegionReserved},
			{Start: holeEnd, Length: size - holeEnd, Kind: RegionUsable},
		},
		PhysBase:        unsafe.Pointer(&ram[0]),
		L4Table:         simL4Table,
		ProtocolVersion: simProtocolVersion,
		ram:             ram,
		release:         release,
	}

	return info, nil
}
