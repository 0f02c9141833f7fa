// Package reaper implements the Reaper & Sampler (spec §4.C): periodic
// liveness checks and resource-usage sampling for every running record, and
// the memory-ceiling check that triggers a restart decision.
//
// CPU% and RSS sampling is grounded on hashicorp/nomad's executor.pidStats,
// which samples per-pid usage via shirou/gopsutil/v3/process rather than
// hand-parsing /proc; the same library is used here.
package reaper

import (
	"github.com/shirou/gopsutil/v3/process"

	"github.com/thainguyen06/pmc/internal/launcher"
	"github.com/thainguyen06/pmc/internal/record"
)

// Sample is one sampling pass's result for a single pid. Err is non-nil
// when the sample could not be taken (spec §4.C "a single sampling failure
// is tolerated and does not itself change status"); Stats is left at its
// previous value by the caller in that case.
type Sample struct {
	Alive bool
	Stats record.Stats
	Err   error
}

// Reaper samples resource usage for a set of live pids on a fixed tick.
type Reaper struct {
	procs map[int]*process.Process // pid -> cached handle, avoids re-resolving every tick
}

// New returns an idle Reaper.
func New() *Reaper {
	return &Reaper{procs: make(map[int]*process.Process)}
}

// Forget drops any cached handle for pid, called once a record stops or
// crashes so a later reused pid doesn't reuse stale gopsutil state.
func (r *Reaper) Forget(pid int) {
	delete(r.procs, pid)
}

// Sample takes one liveness + resource-usage reading for pid. A sampling
// error (process vanished between the liveness check and the stat read,
// permission denied, and so on) is reported but does not itself imply the
// process is dead — that is decided solely by the liveness check.
func (r *Reaper) Sample(pid int) Sample {
	if !launcher.Alive(pid) {
		r.Forget(pid)
		return Sample{Alive: false}
	}

	p, ok := r.procs[pid]
	if !ok {
		np, err := process.NewProcess(int32(pid))
		if err != nil {
			return Sample{Alive: true, Err: err}
		}
		p = np
		r.procs[pid] = p
	}

	var out record.Stats
	var sampleErr error

	if cpuPct, err := p.CPUPercent(); err == nil {
		out.CPUPercent = cpuPct
	} else {
		sampleErr = err
	}

	if memInfo, err := p.MemoryInfo(); err == nil && memInfo != nil {
		out.RSSBytes = memInfo.RSS
	} else if err != nil {
		sampleErr = err
	}

	return Sample{Alive: true, Stats: out, Err: sampleErr}
}

// MemoryExceeded reports whether rssBytes breaches ceiling. A zero ceiling
// means no limit is configured (spec §3 "MaxMemory ... Zero means no
// ceiling").
func MemoryExceeded(rssBytes, ceiling uint64) bool {
	return ceiling > 0 && rssBytes > ceiling
}
