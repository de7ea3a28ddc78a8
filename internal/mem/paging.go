package mem

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/helios-os/helios/internal/boot"
)

// PageSize is the unit of virtual mapping; one page maps exactly one frame.
const PageSize = FrameSize

// VirtAddr is a virtual address.
type VirtAddr uintptr

// PageContaining returns the page base holding the given virtual address.
func PageContaining(addr VirtAddr) VirtAddr { return addr &^ (PageSize - 1) }

// PageTableEntry is one x86_64-style page table entry.
type PageTableEntry uint64

const (
	PTEPresent   PageTableEntry = 1 << 0
	PTEWritable  PageTableEntry = 1 << 1
	PTEUser      PageTableEntry = 1 << 2
	PTEAccessed  PageTableEntry = 1 << 5
	PTEDirty     PageTableEntry = 1 << 6
	PTENoExecute PageTableEntry = 1 << 63

	pteAddrMask PageTableEntry = 0x000F_FFFF_FFFF_F000
)

func (e PageTableEntry) present() bool { return e&PTEPresent != 0 }

func (e PageTableEntry) frame() Frame { return Frame(e & pteAddrMask) }

// pageTable is one 512-entry level of the 4-level hierarchy, living in a
// physical frame and reached through the linear physical mapping.
type pageTable [512]PageTableEntry

// pageTableRoot simulates the CPU's page-table-root register (CR3). The
// bootloader loads it before hand-off; Init mirrors that from boot data.
var pageTableRoot atomic.Uintptr

// SetPageTableRoot records the physical address of the active top-level
// page table. Unsafe contract: the table must be the live one.
func SetPageTableRoot(addr uintptr) { pageTableRoot.Store(addr) }

// cachedPhysOffset is the process-wide physical-memory offset, cached after
// the first successful memory-subsystem init so later call sites (an
// interrupt handler mapping a page on demand) need not re-derive it.
var cachedPhysOffset atomic.Uintptr

// GetPhysicalMemoryOffset extracts the linear physical-mapping offset from
// boot data. A zero return means no direct physical mapping exists: a
// degraded state, not a fatal one.
func GetPhysicalMemoryOffset(info *boot.Info) uintptr {
	if info == nil {
		return 0
	}

	return uintptr(info.PhysBase)
}

// PhysicalMemoryOffset returns the cached offset, 0 before Init.
func PhysicalMemoryOffset() uintptr { return cachedPhysOffset.Load() }

// OffsetMapper wraps the boot-established 4-level page table with the
// base pointer used to reach table frames through the linear physical
// mapping. Holding the base as a pointer keeps the backing memory
// reachable for the kernel's lifetime.
type OffsetMapper struct {
	l4         Frame
	base       unsafe.Pointer
	fa         *FrameAllocator
	tlbFlushes atomic.Uint64
}

// InitMapper locates the active top-level page table via the page-table
// root register and wraps it in a mapper bound to the physical mapping
// base. Unsafe contract: the base must be correct and the table the live
// one. The frame allocator singleton must already exist.
func InitMapper(base unsafe.Pointer) (*OffsetMapper, error) {
	if base == nil {
		return nil, fmt.Errorf("mem: init mapper: %w", ErrNoPhysOffset)
	}

	root := pageTableRoot.Load()
	if root == 0 {
		return nil, fmt.Errorf("mem: init mapper: no page table root: %w", ErrNotInitialized)
	}

	if frameAlloc == nil {
		return nil, fmt.Errorf("mem: init mapper: frame allocator: %w", ErrNotInitialized)
	}

	return newOffsetMapper(FrameContaining(root), base, frameAlloc), nil
}

func newOffsetMapper(l4 Frame, base unsafe.Pointer, fa *FrameAllocator) *OffsetMapper {
	return &OffsetMapper{l4: l4, base: base, fa: fa}
}

// ---------------------------------------------------------------------------
// Unsafe core: every raw-address dereference in the memory subsystem goes
// through the helpers below, so unsafety stays auditable in one place.
// ---------------------------------------------------------------------------

func (m *OffsetMapper) tableAt(f Frame) *pageTable {
	return (*pageTable)(unsafe.Add(m.base, f.Addr()))
}

func (m *OffsetMapper) zeroFrame(f Frame) {
	b := (*[FrameSize]byte)(unsafe.Add(m.base, f.Addr()))
	for i := range b {
		b[i] = 0
	}
}

// PhysBytes returns the frame's contents through the linear mapping.
// Diagnostics and tests only.
func (m *OffsetMapper) PhysBytes(f Frame) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(m.base, f.Addr())), FrameSize)
}

// ---------------------------------------------------------------------------

func pageIndices(page VirtAddr) (l4i, l3i, l2i, l1i uint) {
	l4i = uint(page>>39) & 0x1FF
	l3i = uint(page>>30) & 0x1FF
	l2i = uint(page>>21) & 0x1FF
	l1i = uint(page>>12) & 0x1FF

	return
}

// walkCreate descends to the level-1 table for page, allocating and zeroing
// intermediate tables as needed.
func (m *OffsetMapper) walkCreate(page VirtAddr) (*pageTable, error) {
	l4i, l3i, l2i, _ := pageIndices(page)

	t := m.tableAt(m.l4)
	for _, idx := range [...]uint{l4i, l3i, l2i} {
		e := t[idx]
		if !e.present() {
			f, ok := m.fa.AllocateFrame()
			if !ok {
				return nil, fmt.Errorf("mem: allocating page table level: %w", ErrFrameExhausted)
			}

			m.zeroFrame(f)
			t[idx] = PageTableEntry(f.Addr()) | PTEPresent | PTEWritable
			e = t[idx]
		}

		t = m.tableAt(e.frame())
	}

	return t, nil
}

// mapPage installs page -> f with the given flags and flushes the TLB
// entry. Fails if the page is already present.
func (m *OffsetMapper) mapPage(page VirtAddr, f Frame, flags PageTableEntry) error {
	l1, err := m.walkCreate(page)
	if err != nil {
		return err
	}

	_, _, _, l1i := pageIndices(page)
	if l1[l1i].present() {
		return fmt.Errorf("mem: map %#x: %w", uintptr(page), ErrAlreadyMapped)
	}

	l1[l1i] = PageTableEntry(f.Addr()) | flags
	m.flushTLB(page)

	return nil
}

// MapZeroPageAt allocates one frame, maps it present+writable at the page
// containing addr, flushes the TLB entry, and zero-fills the page. Callers
// must not pass an already-mapped address; that precondition is surfaced as
// ErrAlreadyMapped, with the freshly allocated frame returned to the pool.
func (m *OffsetMapper) MapZeroPageAt(addr VirtAddr) error {
	f, ok := m.fa.AllocateFrame()
	if !ok {
		return fmt.Errorf("mem: map zero page at %#x: %w", uintptr(addr), ErrFrameExhausted)
	}

	page := PageContaining(addr)
	if err := m.mapPage(page, f, PTEPresent|PTEWritable); err != nil {
		m.fa.DeallocateFrame(f)

		return err
	}

	m.zeroFrame(f)

	return nil
}

// TranslateAddr walks the table hierarchy and returns the physical address
// backing the given virtual address.
func (m *OffsetMapper) TranslateAddr(addr VirtAddr) (uintptr, error) {
	l4i, l3i, l2i, l1i := pageIndices(PageContaining(addr))

	t := m.tableAt(m.l4)
	for _, idx := range [...]uint{l4i, l3i, l2i} {
		e := t[idx]
		if !e.present() {
			return 0, fmt.Errorf("mem: translate %#x: %w", uintptr(addr), ErrNotMapped)
		}

		t = m.tableAt(e.frame())
	}

	e := t[l1i]
	if !e.present() {
		return 0, fmt.Errorf("mem: translate %#x: %w", uintptr(addr), ErrNotMapped)
	}

	return e.frame().Addr() + uintptr(addr)&(PageSize-1), nil
}

// flushTLB invalidates the TLB entry for page. On real hardware this is
// invlpg; here it only feeds the flush counter consumed by tests.
func (m *OffsetMapper) flushTLB(page VirtAddr) {
	_ = page
	m.tlbFlushes.Add(1)
}

// TLBFlushes reports how many single-page flushes the mapper has issued.
func (m *OffsetMapper) TLBFlushes() uint64 { return m.tlbFlushes.Load() }
