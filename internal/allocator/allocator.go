// Package allocator provides the general-purpose allocation layer the
// Helios kernel heap rides on: a first-fit, coalescing free-range allocator
// over a fixed, pre-mapped address range. The memory core specifies only
// the integration around it (bootstrap, sizing, failure handling); this
// package owns the free-list bookkeeping itself.
package allocator

import "fmt"

// Config controls allocator behavior.
type Config struct {
	AlignmentSize  uintptr // Every allocation rounds up to this
	EnableTracking bool    // Track live allocation sizes for validation
}

// Option mutates a Config.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		AlignmentSize:  16,
		EnableTracking: true,
	}
}

// WithAlignment sets the allocation alignment. Must be a power of two.
func WithAlignment(alignment uintptr) Option {
	return func(c *Config) { c.AlignmentSize = alignment }
}

// WithTracking toggles live-allocation tracking.
func WithTracking(enabled bool) Option {
	return func(c *Config) { c.EnableTracking = enabled }
}

// Stats describes allocator state. Counters are monotonic; the free-block
// figures are a snapshot under the allocator lock.
type Stats struct {
	TotalAllocated  uintptr
	TotalFreed      uintptr
	AllocationCount uint64
	FreeCount       uint64
	BytesInUse      uintptr
	TotalFree       uintptr
	FreeBlocks      int
	LargestFree     uintptr
}

func validateConfig(c *Config) error {
	if c.AlignmentSize == 0 || c.AlignmentSize&(c.AlignmentSize-1) != 0 {
		return fmt.Errorf("allocator: alignment %d is not a power of two", c.AlignmentSize)
	}

	return nil
}

func alignUp(n, alignment uintptr) uintptr {
	return (n + alignment - 1) &^ (alignment - 1)
}
