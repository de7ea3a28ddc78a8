// Package boot models the hand-off the bootloader performs before the
// kernel memory core takes over: a typed physical-memory region list, the
// offset at which all physical memory is linearly mapped, and the frame
// holding the active top-level page table.
//
// Outside of a real machine the package can also stand up a simulated
// physical address space (see NewSimulatedInfo) so the memory core and the
// demo kernel can run hosted.
package boot

import (
	"fmt"
	"unsafe"

	semver "github.com/Masterminds/semver/v3"
)

// RegionKind classifies a physical memory region reported by the bootloader.
type RegionKind uint32

const (
	RegionUsable RegionKind = iota
	RegionReserved
	RegionKernel
	RegionBootloader
)

// String returns the human-readable region kind.
func (k RegionKind) String() string {
	switch k {
	case RegionUsable:
		return "usable"
	case RegionReserved:
		return "reserved"
	case RegionKernel:
		return "kernel"
	case RegionBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}

// MemoryRegion is one contiguous physical memory range from the boot map.
// Regions are immutable once captured at boot.
type MemoryRegion struct {
	Start  uintptr // Physical base address
	Length uintptr // Size in bytes
	Kind   RegionKind
}

// End returns the exclusive physical end address of the region.
func (r MemoryRegion) End() uintptr { return r.Start + r.Length }

// Info is the complete boot hand-off consumed by the memory core.
type Info struct {
	Regions         []MemoryRegion
	PhysBase        unsafe.Pointer // Base of the linear physical mapping, nil if absent
	L4Table         uintptr        // Physical address of the active top-level page table
	ProtocolVersion string         // Bootloader hand-off protocol version

	ram     []byte
	release func() error
}

// HandoffConstraint is the range of bootloader protocol versions this
// kernel knows how to consume.
const HandoffConstraint = ">=1.2.0, <2.0.0"

// ValidateHandoff checks the hand-off protocol version against
// HandoffConstraint. The region list must not be trusted before this passes.
func ValidateHandoff(info *Info) error {
	if info == nil {
		return fmt.Errorf("boot: nil boot info")
	}

	c, err := semver.NewConstraint(HandoffConstraint)
	if err != nil {
		return fmt.Errorf("boot: bad hand-off constraint: %w", err)
	}

	v, err := semver.NewVersion(info.ProtocolVersion)
	if err != nil {
		return fmt.Errorf("boot: bad hand-off protocol version %q: %w", info.ProtocolVersion, err)
	}

	if !c.Check(v) {
		return fmt.Errorf("boot: hand-off protocol %s outside supported range %s",
			info.ProtocolVersion, HandoffConstraint)
	}

	return nil
}

// Release unmaps the simulated physical address space. Only meaningful for
// Info produced by NewSimulatedInfo; a no-op otherwise.
func (i *Info) Release() error {
	if i.release == nil {
		return nil
	}

	err := i.release()
	i.release = nil
	i.ram = nil

	return err
}
