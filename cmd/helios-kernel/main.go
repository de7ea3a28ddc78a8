// Helios kernel entry point (hosted demo).
// Boots a simulated physical address space, brings up the memory core, and
// exercises every allocation surface the rest of the kernel would use.

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/helios-os/helios/internal/boot"
	"github.com/helios-os/helios/internal/mem"
)

func main() {
	ramMiB := flag.Int("ram", 16, "simulated physical memory in MiB")
	metricsAddr := flag.String("metrics", "", "serve /metrics on this address (empty: off)")
	monitorConfig := flag.String("monitor-config", "", "fragmentation monitor config file to watch")
	samples := flag.Int("samples", 5, "fragmentation samples to record")
	flag.Parse()

	fmt.Println("========================================")
	fmt.Println("       Helios OS - memory core demo     ")
	fmt.Println("========================================")

	info, err := boot.NewSimulatedInfo(uintptr(*ramMiB) * 1024 * 1024)
	if err != nil {
		fmt.Fprintln(os.Stderr, "boot failed:", err)
		os.Exit(1)
	}
	defer info.Release()

	if err := mem.Init(info); err != nil {
		fmt.Fprintln(os.Stderr, "memory init failed:", err)
		os.Exit(1)
	}

	if *monitorConfig != "" {
		stop, err := mem.WatchMonitorConfig(*monitorConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "monitor config:", err)
			os.Exit(1)
		}
		defer stop()
	}

	runSmoke()

	for i := 0; i < *samples; i++ {
		mem.UpdateStats()
		time.Sleep(10 * time.Millisecond)
	}

	displaySystemInfo()

	if *metricsAddr != "" {
		bound, _, err := mem.StartMetricsServer(*metricsAddr, mem.DefaultCollectors())
		if err != nil {
			fmt.Fprintln(os.Stderr, "metrics server:", err)
			os.Exit(1)
		}

		fmt.Printf("serving metrics on http://%s/metrics\n", bound)
		select {}
	}
}

// runSmoke touches every allocation surface once: raw frames, demand
// mapping, the heap, the slab pools, and a guarded stack.
func runSmoke() {
	fmt.Println("Running memory smoke tests...")

	frames := make([]mem.Frame, 0, 8)
	for i := 0; i < 8; i++ {
		f, ok := mem.AllocateFrame()
		if !ok {
			fmt.Println("  frame allocation exhausted early")

			break
		}
		frames = append(frames, f)
	}
	for _, f := range frames {
		mem.DeallocateFrame(f)
	}

	const scratch = mem.VirtAddr(0x5555_0000_0000)
	if err := mem.MapZeroPageAt(scratch); err != nil {
		fmt.Println("  demand mapping failed:", err)
	}

	if ptr, err := mem.HeapAlloc(512); err == nil {
		_ = mem.HeapFree(ptr, 512)
	}

	if p, ok := mem.AllocSmall(48); ok {
		mem.DeallocSmall(p, 48)
	}

	if _, err := mem.ReserveGuardedStack(mem.Mapper(), 0x6000_0000_0000, 4); err != nil {
		fmt.Println("  guarded stack failed:", err)
	}

	fmt.Println("Smoke tests done.")
}

func displaySystemInfo() {
	fs := mem.GetFrameStats()
	cs := mem.GetCacheStats()
	heapStart, heapSize := mem.HeapBounds()

	fmt.Println()
	fmt.Println("System memory state:")
	fmt.Printf("  frames: allocated=%d deallocated=%d in-use=%d\n",
		fs.Allocated, fs.Deallocated, fs.InUse())
	fmt.Printf("  cache:  hits=%d misses=%d entries=%d\n", cs.Hits, cs.Misses, cs.Len)
	fmt.Printf("  heap:   %d KiB at %#x\n", heapSize/1024, uintptr(heapStart))

	if s, ok := mem.LatestFragmentation(); ok {
		fmt.Printf("  frag:   ratio=%.2f (fragmented=%v critical=%v)\n",
			s.Ratio, mem.IsFragmented(), mem.IsFragmentationCritical())
	}

	if sum, ok := mem.SummarizeFragmentation(); ok {
		fmt.Printf("  frag history: n=%d mean=%.2f p95=%.2f\n",
			sum.Samples, sum.MeanRatio, sum.P95Ratio)
	}
}
