// Package sysinfo reports host and process memory.
package sysinfo

import (
	"context"
	"fmt"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/mem"
)

// DefaultMinAvailable is the free memory below which synthesis is risky.
const DefaultMinAvailable = 1331 << 20

// Source returns host virtual memory figures. mem.VirtualMemoryWithContext
// is the default.
type Source func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// Report is a snapshot of memory usage.
type Report struct {
	// Available is the memory the kernel can hand out without swapping,
	// zero when unknown.
	Available uint64 `json:"available_bytes"`
	Total     uint64 `json:"total_bytes"`
	HeapAlloc uint64 `json:"heap_alloc_bytes"`
	Sys       uint64 `json:"sys_bytes"`
	Goroutine int    `json:"goroutines"`
	// Sufficient is false only when Available is known and below the minimum.
	Sufficient bool `json:"sufficient"`
}

// String renders the report for logs and terminal output.
func (r Report) String() string {
	avail := "unknown"
	if r.Total > 0 {
		avail = fmt.Sprintf("%s of %s", humanize.IBytes(r.Available), humanize.IBytes(r.Total))
	}
	return fmt.Sprintf("available %s, heap %s, goroutines %d", avail, humanize.IBytes(r.HeapAlloc), r.Goroutine)
}

// Monitor compares host memory against a minimum.
type Monitor struct {
	source Source
	min    uint64
}

// NewMonitor returns a monitor that flags availability below minBytes.
func NewMonitor(minBytes uint64) *Monitor {
	if minBytes == 0 {
		minBytes = DefaultMinAvailable
	}
	return &Monitor{source: mem.VirtualMemoryWithContext, min: minBytes}
}

// WithSource replaces where host figures come from.
func (p *Monitor) WithSource(src Source) *Monitor {
	p.source = src
	return p
}

// Minimum returns the configured threshold.
func (p *Monitor) Minimum() uint64 {
	return p.min
}

// Report gathers the current snapshot. When the host figures cannot be read
// the report has unknown availability and is still Sufficient.
func (p *Monitor) Report(ctx context.Context) Report {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	r := Report{
		HeapAlloc:  ms.HeapAlloc,
		Sys:        ms.Sys,
		Goroutine:  runtime.NumGoroutine(),
		Sufficient: true,
	}
	if vm, err := p.source(ctx); err == nil && vm != nil && vm.Total > 0 {
		r.Total = vm.Total
		r.Available = vm.Available
		r.Sufficient = vm.Available >= p.min
	}
	return r
}

// CheckAvailableMemory reports whether the host has at least the minimum free.
func (p *Monitor) CheckAvailableMemory(ctx context.Context) bool {
	return p.Report(ctx).Sufficient
}
