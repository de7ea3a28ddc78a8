//go:build !debug

package mem

// No-op shadow-set hooks for non-debug builds. Double frees go undetected
// here; this is a documented weakness, not an invariant.

func debugInitShadow(fa *FrameAllocator) {}

func debugTrackAlloc(fa *FrameAllocator, f Frame) {}

func debugTrackFree(fa *FrameAllocator, f Frame) {}
