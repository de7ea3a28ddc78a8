package mem

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
)

// MetricFunc returns a map of metric name -> value. Names should be simple
// tokens using [a-zA-Z0-9_:] to ease exposition.
type MetricFunc func() map[string]float64

// DefaultCollectors exposes the memory core's diagnostic counters. Reads
// are snapshot races across locks, fine for exposition.
func DefaultCollectors() map[string]MetricFunc {
	return map[string]MetricFunc{
		"frames": func() map[string]float64 {
			s := GetFrameStats()

			return map[string]float64{
				"allocated":   float64(s.Allocated),
				"deallocated": float64(s.Deallocated),
				"in_use":      float64(s.InUse()),
			}
		},
		"cache": func() map[string]float64 {
			s := GetCacheStats()

			return map[string]float64{
				"hits":      float64(s.Hits),
				"misses":    float64(s.Misses),
				"entries":   float64(s.Len),
				"miss_rate": s.MissRate(),
			}
		},
		"heap": func() map[string]float64 {
			_, size := HeapBounds()
			hs := heapStats()

			return map[string]float64{
				"size_bytes":   float64(size),
				"in_use_bytes": float64(hs.BytesInUse),
				"free_bytes":   float64(hs.TotalFree),
				"free_blocks":  float64(hs.FreeBlocks),
				"largest_free": float64(hs.LargestFree),
				"alloc_count":  float64(hs.AllocationCount),
				"free_count":   float64(hs.FreeCount),
			}
		},
		"slab": func() map[string]float64 {
			out := make(map[string]float64)
			for _, p := range SlabStats() {
				prefix := fmt.Sprintf("pool_%d_", p.ChunkSize)
				out[prefix+"capacity"] = float64(p.Capacity)
				out[prefix+"in_use"] = float64(p.InUse)
			}

			return out
		},
		"fragmentation": func() map[string]float64 {
			out := make(map[string]float64)
			if s, ok := LatestFragmentation(); ok {
				out["ratio"] = s.Ratio
				out["total_used_bytes"] = float64(s.TotalUsed)
				out["total_free_bytes"] = float64(s.TotalFree)
			}
			if sum, ok := SummarizeFragmentation(); ok {
				out["ratio_mean"] = sum.MeanRatio
				out["ratio_p95"] = sum.P95Ratio
			}

			return out
		},
	}
}

// StartMetricsServer starts a minimal text exposition endpoint for metrics
// on addr (host:port). The handler aggregates all provided collectors under
// "/metrics". It returns the bound address (which may differ if port 0 was
// used) and a shutdown function. Diagnostics only; never started by Init.
func StartMetricsServer(addr string, collectors map[string]MetricFunc) (string, func(ctx context.Context) error, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		// Text format exposition; keep it simple and deterministic
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		names := make([]string, 0, len(collectors))
		for name := range collectors {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fn := collectors[name]
			if fn == nil {
				continue
			}

			snapshot := fn()
			keys := make([]string, 0, len(snapshot))
			for k := range snapshot {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				// Example line: mem_cache_miss_rate 0.25
				fmt.Fprintf(w, "%s %g\n", sanitizeMetricToken("mem_"+name+"_"+k), snapshot[k])
			}
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 3 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	go func() { _ = srv.Serve(ln) }()

	return ln.Addr().String(), srv.Shutdown, nil
}

func sanitizeMetricToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}
