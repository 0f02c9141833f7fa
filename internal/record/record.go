// Package record implements the supervisor's process table: the in-memory
// registry mapping stable ids and names to process records (spec §3, §4.A).
package record

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Status is the lifecycle state of a record (spec §3).
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusCrashed Status = "crashed"
)

// Watch describes a recursive file-watch target that triggers a reload.
type Watch struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Stats is the last-sampled resource usage for a running record. Staleness
// is allowed: the reaper leaves Stats untouched when a sample fails.
type Stats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Record is the central entity of the supervisor: one supervised child
// process and everything needed to relaunch, restart, or persist it.
type Record struct {
	ID     int               `json:"id"`
	Name   string            `json:"name"`
	Script string            `json:"script"`
	Path   string            `json:"path"`
	Env    map[string]string `json:"env"`
	Watch  *Watch            `json:"watch,omitempty"`

	// MaxMemory is the byte ceiling after human-readable suffix parsing
	// (K/M/G). Zero means no ceiling is configured.
	MaxMemory uint64 `json:"max_memory,omitempty"`

	Status Status `json:"status"`
	PID    int    `json:"pid,omitempty"`

	StartedAt time.Time `json:"started_at,omitempty"`

	Restarts int `json:"restarts"`

	// CrashValue is the consecutive-crash counter; it resets to zero on
	// every clean start and increments on every non-zero exit.
	CrashValue int `json:"crash_value"`

	// CrashLimit is the configured maximum; reaching it latches Status to
	// StatusCrashed (invariant 3, spec §3).
	CrashLimit int `json:"crash_limit"`

	Stats Stats `json:"stats"`

	// Workers is the group tag shared by sibling records spawned from a
	// single worker-group create request (spec §4.K). Empty for records
	// created individually.
	Workers string `json:"workers,omitempty"`
}

// Clone returns a deep copy safe to hand to a caller outside the table's
// owning goroutine.
func (r *Record) Clone() *Record {
	cp := *r
	if r.Env != nil {
		cp.Env = make(map[string]string, len(r.Env))
		for k, v := range r.Env {
			cp.Env[k] = v
		}
	}
	if r.Watch != nil {
		w := *r.Watch
		cp.Watch = &w
	}
	return &cp
}

// ParseMaxMemory parses a human-readable byte ceiling such as "512M" or
// "2G". An empty string yields zero (no ceiling).
func ParseMaxMemory(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid max_memory %q: %w", s, err)
	}
	return n, nil
}

// FormatMaxMemory renders a byte ceiling the way `info` and the CLI show it.
// Zero renders as the empty string (no ceiling configured).
func FormatMaxMemory(n uint64) string {
	if n == 0 {
		return ""
	}
	return humanize.Bytes(n)
}
