package health

import (
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSnapshot captures a lightweight liveness/resource reading for a
// running process, reusing gopsutil the way the teacher's
// diagnostics.ResourceMonitor samples its own process (spec.md §4.8:
// "process still responsive").
type ProcessSnapshot struct {
	Running    bool
	CPUPercent float64
	MemoryRSS  uint64
}

// SnapshotProcess probes pid for liveness and basic resource usage. A
// process that cannot be found or queried is reported as not running
// rather than as an error, matching the rest of the health package's
// never-crash predicate style.
func SnapshotProcess(pid int32) ProcessSnapshot {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ProcessSnapshot{}
	}
	running, err := proc.IsRunning()
	if err != nil || !running {
		return ProcessSnapshot{}
	}

	snap := ProcessSnapshot{Running: true}
	if cpu, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		snap.MemoryRSS = mem.RSS
	}
	return snap
}
