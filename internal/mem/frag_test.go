package mem

import (
	"testing"
	"time"
)

func TestFragmentationRatioForcing(t *testing.T) {
	resetMemoryState()

	frameCache = NewFrameCache(4)

	t.Run("AllMisses", func(t *testing.T) {
		frameCache.GetFrame()
		frameCache.GetFrame()

		if got := CalculateFragmentation().Ratio; got != 1.0 {
			t.Errorf("ratio with only misses = %v, want 1.0", got)
		}
	})

	t.Run("AllHits", func(t *testing.T) {
		frameCache = NewFrameCache(4)
		frameCache.CacheFrame(Frame(0x1000))
		frameCache.GetFrame()

		if got := CalculateFragmentation().Ratio; got != 0.0 {
			t.Errorf("ratio with only hits = %v, want 0.0", got)
		}
	})
}

func TestFragmentationInUseBytes(t *testing.T) {
	resetMemoryState()

	if err := InitMemoryMap(usableRegion(0x10000, 8*FrameSize)); err != nil {
		t.Fatal(err)
	}
	frameAlloc = NewFrameAllocator()
	frameCache = NewFrameCache(4)

	frameAlloc.AllocateFrame()
	frameAlloc.AllocateFrame()

	s := CalculateFragmentation()
	if s.TotalUsed != 2*FrameSize {
		t.Errorf("TotalUsed = %d, want %d", s.TotalUsed, 2*FrameSize)
	}
}

func TestFragmentationHistoryBounded(t *testing.T) {
	resetMemoryState()
	frameCache = NewFrameCache(4)

	fragmon.mu.Lock()
	fragmon.capacity = 5
	fragmon.mu.Unlock()

	for i := 0; i < 8; i++ {
		UpdateStats()
	}

	hist := FragmentationHistory()
	if len(hist) != 5 {
		t.Fatalf("history len = %d, want capped 5", len(hist))
	}

	for i := 1; i < len(hist); i++ {
		if hist[i].At.Before(hist[i-1].At) {
			t.Error("history not oldest-first after overflow")
		}
	}
}

func TestFragmentationFlags(t *testing.T) {
	resetMemoryState()

	if IsFragmented() || IsFragmentationCritical() {
		t.Fatal("no samples should mean no flags")
	}

	inject := func(ratio float64) {
		fragmon.mu.Lock()
		fragmon.history = append(fragmon.history, FragmentationSample{Ratio: ratio, At: time.Now()})
		fragmon.mu.Unlock()
	}

	inject(0.60)
	if !IsFragmented() || IsFragmentationCritical() {
		t.Error("0.60 should warn but not be critical")
	}

	inject(0.80)
	if !IsFragmented() || !IsFragmentationCritical() {
		t.Error("0.80 should be critical")
	}

	// Flags read the most recent sample only.
	inject(0.10)
	if IsFragmented() || IsFragmentationCritical() {
		t.Error("latest 0.10 should clear both flags")
	}
}

func TestSetFragmentationThresholds(t *testing.T) {
	resetMemoryState()

	SetFragmentationThresholds(0.30, 0.60)

	fragmon.mu.Lock()
	warn, critical := fragmon.warn, fragmon.critical
	fragmon.mu.Unlock()

	if warn != 0.30 || critical != 0.60 {
		t.Errorf("thresholds = %v/%v, want 0.30/0.60", warn, critical)
	}

	// Inverted and out-of-range pairs are ignored.
	SetFragmentationThresholds(0.9, 0.2)
	SetFragmentationThresholds(-1, 0.5)
	SetFragmentationThresholds(0.5, 1.5)

	fragmon.mu.Lock()
	warn, critical = fragmon.warn, fragmon.critical
	fragmon.mu.Unlock()

	if warn != 0.30 || critical != 0.60 {
		t.Errorf("invalid thresholds applied: %v/%v", warn, critical)
	}
}

func TestSummarizeFragmentation(t *testing.T) {
	resetMemoryState()

	if _, ok := SummarizeFragmentation(); ok {
		t.Fatal("empty history should not summarize")
	}

	for _, r := range []float64{0.2, 0.4, 0.6} {
		fragmon.mu.Lock()
		fragmon.history = append(fragmon.history, FragmentationSample{Ratio: r})
		fragmon.mu.Unlock()
	}

	sum, ok := SummarizeFragmentation()
	if !ok || sum.Samples != 3 {
		t.Fatalf("summary = %+v, %v", sum, ok)
	}

	if sum.MeanRatio < 0.39 || sum.MeanRatio > 0.41 {
		t.Errorf("mean = %v, want 0.4", sum.MeanRatio)
	}
}
