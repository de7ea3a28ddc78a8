//go:build linux

package boot

import (
	"golang.org/x/sys/unix"
)

// reserveRAM maps an anonymous, private, zero-filled region to back the
// simulated physical address space.
func reserveRAM(size uintptr) ([]byte, func() error, error) {
	ram, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}

	release := func() error { return unix.Munmap(ram) }

	return ram, release, nil
}
