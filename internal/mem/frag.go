package mem

import (
	"sync"
	"time"

	"github.com/aclements/go-moremath/stats"
)

// Fragmentation monitoring defaults.
const (
	DefaultFragHistoryCap = 100
	DefaultWarnRatio      = 0.50
	DefaultCriticalRatio  = 0.75
)

// FragmentationSample is one observation of the memory core. Ratio is the
// frame-cache miss rate standing in for true free-list structure: the
// backing heap does not expose its internals, so this is an explicit
// heuristic, not ground truth.
type FragmentationSample struct {
	Ratio            float64
	FreeBlocks       int
	LargestFreeBlock uintptr
	TotalFree        uintptr
	TotalUsed        uintptr
	At               time.Time
}

// FragmentationSummary aggregates the sample history.
type FragmentationSummary struct {
	Samples     int
	MeanRatio   float64
	StdDevRatio float64
	P95Ratio    float64
}

type fragMonitor struct {
	mu       sync.Mutex
	history  []FragmentationSample
	capacity int
	warn     float64
	critical float64
}

var fragmon = fragMonitor{
	capacity: DefaultFragHistoryCap,
	warn:     DefaultWarnRatio,
	critical: DefaultCriticalRatio,
}

// CalculateFragmentation derives the current estimate: frames in use from
// the allocator counters times the frame size, the cache miss rate as the
// fragmentation ratio, and free-list shape from the heap backing allocator.
func CalculateFragmentation() FragmentationSample {
	s := FragmentationSample{At: time.Now()}

	if frameAlloc != nil {
		s.TotalUsed = uintptr(frameAlloc.Stats().InUse()) * FrameSize
	}

	if frameCache != nil {
		s.Ratio = frameCache.Stats().MissRate()
	}

	hs := heapStats()
	s.FreeBlocks = hs.FreeBlocks
	s.LargestFreeBlock = hs.LargestFree
	s.TotalFree = hs.TotalFree

	return s
}

// UpdateStats appends a fresh sample to the bounded history, dropping the
// oldest on overflow, and logs threshold crossings.
func UpdateStats() FragmentationSample {
	s := CalculateFragmentation()

	fragmon.mu.Lock()
	if len(fragmon.history) >= fragmon.capacity {
		fragmon.history = append(fragmon.history[:0], fragmon.history[1:]...)
	}
	fragmon.history = append(fragmon.history, s)
	warn, critical := fragmon.warn, fragmon.critical
	fragmon.mu.Unlock()

	switch {
	case s.Ratio > critical:
		logf("fragmentation critical: ratio=%.2f free_blocks=%d largest_free=%d KiB",
			s.Ratio, s.FreeBlocks, s.LargestFreeBlock/1024)
	case s.Ratio > warn:
		logf("fragmentation warning: ratio=%.2f free_blocks=%d", s.Ratio, s.FreeBlocks)
	}

	return s
}

// LatestFragmentation returns the most recent sample, if any.
func LatestFragmentation() (FragmentationSample, bool) {
	fragmon.mu.Lock()
	defer fragmon.mu.Unlock()

	if len(fragmon.history) == 0 {
		return FragmentationSample{}, false
	}

	return fragmon.history[len(fragmon.history)-1], true
}

// IsFragmented reports whether the latest sample crossed the warn ratio.
func IsFragmented() bool {
	s, ok := LatestFragmentation()

	fragmon.mu.Lock()
	warn := fragmon.warn
	fragmon.mu.Unlock()

	return ok && s.Ratio > warn
}

// IsFragmentationCritical reports whether the latest sample crossed the
// critical ratio.
func IsFragmentationCritical() bool {
	s, ok := LatestFragmentation()

	fragmon.mu.Lock()
	critical := fragmon.critical
	fragmon.mu.Unlock()

	return ok && s.Ratio > critical
}

// FragmentationHistory copies the sample ring, oldest first.
func FragmentationHistory() []FragmentationSample {
	fragmon.mu.Lock()
	defer fragmon.mu.Unlock()

	out := make([]FragmentationSample, len(fragmon.history))
	copy(out, fragmon.history)

	return out
}

// SummarizeFragmentation reduces the history to mean/stddev/p95 of the
// fragmentation ratio. False with an empty history.
func SummarizeFragmentation() (FragmentationSummary, bool) {
	fragmon.mu.Lock()
	xs := make([]float64, len(fragmon.history))
	for i, s := range fragmon.history {
		xs[i] = s.Ratio
	}
	fragmon.mu.Unlock()

	if len(xs) == 0 {
		return FragmentationSummary{}, false
	}

	sample := stats.Sample{Xs: xs}

	return FragmentationSummary{
		Samples:     len(xs),
		MeanRatio:   sample.Mean(),
		StdDevRatio: sample.StdDev(),
		P95Ratio:    sample.Quantile(0.95),
	}, true
}

// SetFragmentationThresholds adjusts the warn/critical ratios. Values
// outside (0, 1] or an inverted pair are ignored.
func SetFragmentationThresholds(warn, critical float64) {
	if warn <= 0 || critical > 1 || warn >= critical {
		logf("warn: rejecting fragmentation thresholds warn=%.2f critical=%.2f", warn, critical)

		return
	}

	fragmon.mu.Lock()
	fragmon.warn = warn
	fragmon.critical = critical
	fragmon.mu.Unlock()
}

// ResetFragmentationHistory drops all samples. Part of reinitialization;
// the thresholds are kept.
func ResetFragmentationHistory() {
	fragmon.mu.Lock()
	fragmon.history = nil
	fragmon.mu.Unlock()
}
