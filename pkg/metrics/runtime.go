package metrics

import (
	"runtime"
	"time"
)

// RegisterRuntime registers process gauges read from the Go runtime at
// scrape time.
func RegisterRuntime(r *Registry) {
	start := time.Now()
	memstat := func(field func(*runtime.MemStats) uint64) func() float64 {
		return func() float64 {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			return float64(field(&ms))
		}
	}

	r.NewGaugeFunc("go_goroutines", "Number of goroutines that currently exist",
		func() float64 { return float64(runtime.NumGoroutine()) })
	r.NewGaugeFunc("go_memstats_heap_alloc_bytes", "Heap bytes allocated and still in use",
		memstat(func(ms *runtime.MemStats) uint64 { return ms.HeapAlloc }))
	r.NewGaugeFunc("go_memstats_heap_objects", "Number of allocated heap objects",
		memstat(func(ms *runtime.MemStats) uint64 { return ms.HeapObjects }))
	r.NewGaugeFunc("go_gc_cycles_total", "Number of completed GC cycles",
		memstat(func(ms *runtime.MemStats) uint64 { return uint64(ms.NumGC) }))
	r.NewGaugeFunc("process_uptime_seconds", "Seconds since the process started serving",
		func() float64 { return time.Since(start).Seconds() })
}
