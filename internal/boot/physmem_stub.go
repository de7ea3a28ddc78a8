//go:build !linux

package boot

// reserveRAM falls back to a garbage-collected slice on platforms without
// the mmap path. Zero-filled by the runtime, released by the GC.
func reserveRAM(size uintptr) ([]byte, func() error, error) {
	ram := make([]byte, size)

	return ram, func() error { return nil }, nil
}
