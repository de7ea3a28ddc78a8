//go:build debug

package mem

// In debug builds every allocated frame is mirrored in a shadow set so
// that double frees and foreign frees can be reported. Mismatches are
// logged, never fatal: a crash here would mask the real bug.

func debugInitShadow(fa *FrameAllocator) {
	fa.shadow = make(map[Frame]struct{})
}

func debugTrackAlloc(fa *FrameAllocator, f Frame) {
	if _, dup := fa.shadow[f]; dup {
		logf("warn: frame %#x handed out while already allocated", f.Addr())
	}
	fa.shadow[f] = struct{}{}
}

func debugTrackFree(fa *FrameAllocator, f Frame) {
	if _, ok := fa.shadow[f]; !ok {
		logf("warn: possible double free of frame %#x", f.Addr())

		return
	}
	delete(fa.shadow, f)
}
