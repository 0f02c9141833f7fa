// Package persist implements Persistence (spec §4.F): an atomic dump of the
// process table to disk, and a restore that rebuilds records and relaunches
// those marked running.
//
// The dump format is JSON, an implementation detail per spec §3 ("Format is
// an implementation detail of Persistence; the contract is round-trip
// equality modulo crash_value, pid, started_at, and stats"). Atomicity is
// achieved the way the teacher guarantees it for its own per-instance JSON
// files (see instance_test.go / persist.go's persistMeta pattern): write to
// a temp file in the same directory, then os.Rename, which POSIX guarantees
// is atomic within one filesystem.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thainguyen06/pmc/internal/record"
)

// dumpEntry is the on-disk shape of one record (spec §6 "Dump file
// format"). It intentionally omits pid, started_at, and stats — those are
// runtime-only and excluded from the round-trip contract.
type dumpEntry struct {
	ID            int               `json:"id"`
	Name          string            `json:"name"`
	Script        string            `json:"script"`
	Path          string            `json:"path"`
	Env           map[string]string `json:"env"`
	Watch         *record.Watch     `json:"watch,omitempty"`
	MaxMemory     uint64            `json:"max_memory,omitempty"`
	CrashLimit    int               `json:"crash_limit"`
	Restarts      int               `json:"restarts"`
	Workers       string            `json:"workers,omitempty"`
	StatusAtDump  record.Status     `json:"status_at_dump"`
}

// Dump serializes records to path, replacing any existing dumpfile
// atomically. Returns the number of records written (spec §4.I `save()` →
// "count saved").
func Dump(path string, records []*record.Record) (int, error) {
	entries := make([]dumpEntry, len(records))
	for i, rec := range records {
		entries[i] = dumpEntry{
			ID:           rec.ID,
			Name:         rec.Name,
			Script:       rec.Script,
			Path:         rec.Path,
			Env:          rec.Env,
			Watch:        rec.Watch,
			MaxMemory:    rec.MaxMemory,
			CrashLimit:   rec.CrashLimit,
			Restarts:     rec.Restarts,
			Workers:      rec.Workers,
			StatusAtDump: rec.Status,
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal dump: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dump-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp dumpfile: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write temp dumpfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp dumpfile: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename dumpfile into place: %w", err)
	}
	return len(entries), nil
}

// Loaded is one record read back from a dumpfile, rebuilt with
// crash_value := 0 per spec §3 invariant 5 and §4.F.
type Loaded struct {
	Record  *record.Record
	Running bool // status_at_dump == running: restore must relaunch it
}

// Load reads path and rebuilds records. A missing dumpfile yields an empty,
// non-error result (nothing has ever been saved yet).
func Load(path string) ([]Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dumpfile: %w", err)
	}

	var entries []dumpEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse dumpfile: %w", err)
	}

	out := make([]Loaded, len(entries))
	for i, e := range entries {
		out[i] = Loaded{
			Record: &record.Record{
				ID:         e.ID,
				Name:       e.Name,
				Script:     e.Script,
				Path:       e.Path,
				Env:        e.Env,
				Watch:      e.Watch,
				MaxMemory:  e.MaxMemory,
				Status:     record.StatusStopped, // corrected by the caller once relaunch is decided
				Restarts:   e.Restarts,
				CrashValue: 0, // invariant 5: crash_value resets on restore
				CrashLimit: e.CrashLimit,
				Workers:    e.Workers,
			},
			Running: e.StatusAtDump == record.StatusRunning,
		}
	}
	return out, nil
}

// RestoreInto inserts every loaded record into tbl under its original id,
// skipping (and reporting) any whose name or id collides with a record
// already present rather than aborting the whole restore (spec §4.F "skip
// conflicting entries with a diagnostic, continue with the rest"). It
// returns the subset that should be relaunched because it was running at
// dump time.
func RestoreInto(tbl *record.Table, loaded []Loaded) (toRelaunch []*record.Record, skipped []string, err error) {
	for _, l := range loaded {
		if insertErr := tbl.Restore(l.Record); insertErr != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", l.Record.Name, insertErr))
			continue
		}
		if l.Running {
			toRelaunch = append(toRelaunch, l.Record)
		}
	}
	return toRelaunch, skipped, nil
}
