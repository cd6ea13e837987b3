package sampler

import (
	"context"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

// ProcCPUCollector reads the CPU time, user plus system, of each thread in
// nanoseconds. It needs the threads' native ids.
type ProcCPUCollector struct {
	pid int
}

// NewProcCPUCollector creates a CPU time collector for process pid.
func NewProcCPUCollector(pid int) *ProcCPUCollector {
	return &ProcCPUCollector{pid: pid}
}

// Name returns the collector name.
func (c *ProcCPUCollector) Name() string {
	return "cpu"
}

// Counter returns snapshot.CPUTime.
func (c *ProcCPUCollector) Counter() snapshot.Counter {
	return snapshot.CPUTime
}

// Collect is implemented in platform-specific files.
func (c *ProcCPUCollector) Collect(ctx context.Context, threads []ThreadInfo) (map[int64]int64, error) {
	return collectCPU(ctx, c.pid, threads, false)
}

// ProcUserCollector reads the user mode CPU time of each thread in
// nanoseconds.
type ProcUserCollector struct {
	pid int
}

// NewProcUserCollector creates a user time collector for process pid.
func NewProcUserCollector(pid int) *ProcUserCollector {
	return &ProcUserCollector{pid: pid}
}

// Name returns the collector name.
func (c *ProcUserCollector) Name() string {
	return "user"
}

// Counter returns snapshot.UserTime.
func (c *ProcUserCollector) Counter() snapshot.Counter {
	return snapshot.UserTime
}

// Collect is implemented in platform-specific files.
func (c *ProcUserCollector) Collect(ctx context.Context, threads []ThreadInfo) (map[int64]int64, error) {
	return collectCPU(ctx, c.pid, threads, true)
}
