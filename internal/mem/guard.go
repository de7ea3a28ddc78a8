package mem

import (
	"fmt"
	"sync"
)

// GuardedStack is a mapped stack flanked by two deliberately unmapped
// sentinel pages. Running off either end faults instead of silently
// corrupting a neighbor.
type GuardedStack struct {
	GuardLow  VirtAddr // unmapped sentinel below the stack
	Bottom    VirtAddr // first mapped stack page
	Top       VirtAddr // exclusive end of the mapped range
	GuardHigh VirtAddr // unmapped sentinel above the stack
}

var guardRegistry = struct {
	mu    sync.Mutex
	pages map[VirtAddr]struct{}
}{pages: make(map[VirtAddr]struct{})}

// ReserveGuardedStack maps pages stack pages starting one page above base,
// leaving base and the page past the stack unmapped and registered as
// guards. Stack frames are never reclaimed.
func ReserveGuardedStack(m *OffsetMapper, base VirtAddr, pages int) (*GuardedStack, error) {
	if base != PageContaining(base) {
		return nil, fmt.Errorf("mem: guarded stack base %#x not page aligned", uintptr(base))
	}

	if pages <= 0 {
		return nil, fmt.Errorf("mem: guarded stack needs at least one page")
	}

	gs := &GuardedStack{
		GuardLow:  base,
		Bottom:    base + PageSize,
		Top:       base + PageSize*VirtAddr(1+pages),
		GuardHigh: base + PageSize*VirtAddr(1+pages),
	}

	for page := gs.Bottom; page < gs.Top; page += PageSize {
		if err := m.MapZeroPageAt(page); err != nil {
			return nil, fmt.Errorf("mem: guarded stack page %#x: %w", uintptr(page), err)
		}
	}

	guardRegistry.mu.Lock()
	guardRegistry.pages[gs.GuardLow] = struct{}{}
	guardRegistry.pages[gs.GuardHigh] = struct{}{}
	guardRegistry.mu.Unlock()

	return gs, nil
}

// IsGuardViolation reports whether a faulting address falls in a
// registered guard page. The page-fault path uses this to distinguish a
// stack overflow from a demand-mapping miss.
func IsGuardViolation(addr VirtAddr) bool {
	guardRegistry.mu.Lock()
	defer guardRegistry.mu.Unlock()

	_, ok := guardRegistry.pages[PageContaining(addr)]

	return ok
}
