package mem

import "errors"

// Errors surfaced by the memory core. Every failure is returned to the
// immediate caller; the only terminal path is the heap exhaustion handler
// in heap.go.
var (
	// ErrNotInitialized reports use of a subsystem before Init.
	ErrNotInitialized = errors.New("memory subsystem not initialized")

	// ErrFrameExhausted reports that every usable region has been scanned
	// and the free pools are empty. Physical memory exhaustion is a real,
	// reportable condition, not a bug.
	ErrFrameExhausted = errors.New("out of physical frames")

	// ErrAlreadyMapped reports an attempt to map a page that is present.
	ErrAlreadyMapped = errors.New("page already mapped")

	// ErrNotMapped reports a translation of an unmapped virtual address.
	ErrNotMapped = errors.New("page not mapped")

	// ErrNoPhysOffset reports that no linear physical mapping is available.
	// Degraded, not fatal: only operations needing the mapping fail.
	ErrNoPhysOffset = errors.New("no physical memory offset")

	// ErrHeapExhausted reports that the backing heap allocator could not
	// satisfy a request.
	ErrHeapExhausted = errors.New("kernel heap exhausted")
)
